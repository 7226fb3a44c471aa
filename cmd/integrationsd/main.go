// Command integrationsd serves the integrations HTTP API: OAuth connect and
// callback endpoints, integration management and operation tracking.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	integrations "github.com/goliatone/go-integrations"
	"github.com/goliatone/go-integrations/adapters/asynqjob"
	"github.com/goliatone/go-integrations/adapters/gologger"
	"github.com/goliatone/go-integrations/adapters/prommetrics"
	"github.com/goliatone/go-integrations/adapters/pwsurface"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/httpapi"
	redisstore "github.com/goliatone/go-integrations/store/redis"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "integrationsd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, getenv func(string) string) error {
	cfg, err := loadAppConfig(getenv)
	if err != nil {
		return err
	}

	logProvider, err := gologger.NewProductionProvider(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logProvider.Sync() }()
	logger := logProvider.GetLogger("integrationsd")

	coreCfg, err := core.NewCfgxConfigProvider(envConfigLoader{getenv: getenv}).Load(ctx, integrations.DefaultConfig())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := prommetrics.NewRecorder(metricsRegistry)

	registry := core.NewProviderRegistry()
	registered, err := integrations.RegisterBuiltinProviders(registry, cfg.Providers)
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	if len(registered) == 0 {
		logger.Warn("no providers configured; set INTEGRATIONS_<PROVIDER>_CLIENT_ID")
	}

	opts := []integrations.Option{
		integrations.WithLoggerProvider(logProvider),
		integrations.WithLogger(logProvider.GetLogger("integrations")),
		integrations.WithMetricsRecorder(recorder),
		integrations.WithRegistry(registry),
	}

	if cfg.DBDriver != "" {
		client, factory, err := openDatabase(ctx, cfg, coreCfg.Operations.StatusCacheTTL, logger)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		opts = append(opts,
			integrations.WithPersistenceClient(client),
			integrations.WithRepositoryFactory(factory),
		)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		flowStates, err := redisstore.NewFlowStateStore(rdb, coreCfg.OAuth.FlowStateTTL)
		if err != nil {
			return fmt.Errorf("flow state store: %w", err)
		}
		opts = append(opts, integrations.WithFlowStateStore(flowStates))
	}

	var surface *pwsurface.Surface
	if cfg.Interactive {
		surface, err = pwsurface.Launch(pwsurface.Config{
			Headless:       cfg.Headless,
			CallbackPrefix: coreCfg.OAuth.RedirectBaseURL,
		})
		if err != nil {
			return fmt.Errorf("authorization surface: %w", err)
		}
		defer func() { _ = surface.Shutdown() }()
		opts = append(opts, integrations.WithAuthorizationSurface(surface))
	}

	local := &lateExecutor{}
	var asynqClient *asynq.Client
	if cfg.Executor == "asynq" {
		asynqClient = asynqjob.NewClient(rdb)
		defer func() { _ = asynqClient.Close() }()
		opts = append(opts, integrations.WithExecutor(asynqjob.NewExecutor(asynqClient)))
	} else {
		opts = append(opts, integrations.WithExecutor(local))
	}

	svc, err := integrations.NewService(coreCfg, opts...)
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}
	runner := &operationRunner{service: svc, logger: logProvider.GetLogger("runner")}
	local.target = runner

	var worker *asynq.Server
	if asynqClient != nil {
		worker = asynqjob.NewServer(rdb, asynqjob.ServerConfig{Concurrency: cfg.QueueConcurrent})
		handler := asynqjob.NewHandler(runner,
			asynqjob.WithCancellationChecker(svc),
			asynqjob.WithLogger(logProvider.GetLogger("asynq")),
		)
		if err := worker.Start(asynqjob.NewServeMux(handler)); err != nil {
			return fmt.Errorf("asynq worker: %w", err)
		}
	}

	router, err := httpapi.NewRouter(svc,
		httpapi.WithLogger(logProvider.GetLogger("httpapi")),
		httpapi.WithMetricsRecorder(recorder),
		httpapi.WithGatherer(metricsRegistry),
	)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", "addr", cfg.Addr, "providers", cfg.providerIDs(), "executor", cfg.Executor)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")

		err := server.Shutdown(shutdownCtx)
		if worker != nil {
			worker.Shutdown()
		}
		return errors.Join(err, svc.Close(shutdownCtx))
	})
	return group.Wait()
}
