package asynqjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeOperationExecute = "integrations:operation:execute"
	DefaultQueue             = "integrations"
	DefaultMaxRetry          = 3
)

// TaskEnqueuer is the part of *asynq.Client the executor needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type operationPayload struct {
	OperationID string         `json:"operation_id"`
	UserID      string         `json:"user_id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Executor enqueues operations as asynq tasks. The task id is the operation
// id, so a second dispatch of the same operation is a no-op while the first
// task is retained.
type Executor struct {
	client   TaskEnqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
}

type ExecutorOption func(*Executor)

func WithQueue(queue string) ExecutorOption {
	return func(e *Executor) {
		if queue = strings.TrimSpace(queue); queue != "" {
			e.queue = queue
		}
	}
}

func WithMaxRetry(n int) ExecutorOption {
	return func(e *Executor) {
		e.maxRetry = n
	}
}

// WithTaskTimeout bounds a single execution attempt. Zero means no limit.
func WithTaskTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

func NewExecutor(client TaskEnqueuer, opts ...ExecutorOption) *Executor {
	e := &Executor{
		client:   client,
		queue:    DefaultQueue,
		maxRetry: DefaultMaxRetry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *Executor) Execute(ctx context.Context, req core.ExecutionRequest) error {
	if e == nil || e.client == nil {
		return fmt.Errorf("asynqjob: client is not configured")
	}
	task, err := NewOperationTask(req)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.Queue(e.queue),
		asynq.MaxRetry(e.maxRetry),
		asynq.TaskID(strings.TrimSpace(req.OperationID)),
	}
	if e.timeout > 0 {
		opts = append(opts, asynq.Timeout(e.timeout))
	}
	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("asynqjob: enqueue operation %q: %w", req.OperationID, err)
	}
	return nil
}

func NewOperationTask(req core.ExecutionRequest) (*asynq.Task, error) {
	if strings.TrimSpace(req.OperationID) == "" {
		return nil, fmt.Errorf("asynqjob: operation id is required")
	}
	payload, err := json.Marshal(operationPayload{
		OperationID: strings.TrimSpace(req.OperationID),
		UserID:      strings.TrimSpace(req.UserID),
		Type:        strings.TrimSpace(req.Type),
		Payload:     req.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("asynqjob: encode operation payload: %w", err)
	}
	return asynq.NewTask(TaskTypeOperationExecute, payload), nil
}

// DecodeOperationTask reverses NewOperationTask.
func DecodeOperationTask(task *asynq.Task) (core.ExecutionRequest, error) {
	if task == nil {
		return core.ExecutionRequest{}, fmt.Errorf("asynqjob: task is required")
	}
	if task.Type() != TaskTypeOperationExecute {
		return core.ExecutionRequest{}, fmt.Errorf("asynqjob: unexpected task type %q", task.Type())
	}
	var payload operationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return core.ExecutionRequest{}, fmt.Errorf("asynqjob: decode operation payload: %w", err)
	}
	if payload.OperationID == "" {
		return core.ExecutionRequest{}, fmt.Errorf("asynqjob: operation id is missing from task")
	}
	if payload.Payload == nil {
		payload.Payload = map[string]any{}
	}
	return core.ExecutionRequest{
		OperationID: payload.OperationID,
		UserID:      payload.UserID,
		Type:        payload.Type,
		Payload:     payload.Payload,
	}, nil
}

var _ core.Executor = (*Executor)(nil)
