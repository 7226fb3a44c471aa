package asynqjob

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type ServerConfig struct {
	Concurrency   int
	Queue         string
	RetryInterval time.Duration
}

// NewClient shares an existing go-redis connection with asynq.
func NewClient(rdb redis.UniversalClient) *asynq.Client {
	return asynq.NewClientFromRedisClient(rdb)
}

// NewServer builds an asynq server that drains the integrations queue.
func NewServer(rdb redis.UniversalClient, cfg ServerConfig) *asynq.Server {
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = time.Minute
	}
	return asynq.NewServerFromRedisClient(rdb, asynq.Config{
		Concurrency:    cfg.Concurrency,
		Queues:         map[string]int{queue: 1},
		RetryDelayFunc: RetryDelay(retry),
	})
}
