package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/goliatone/go-integrations/core"
	integrationmigrations "github.com/goliatone/go-integrations/migrations"
	"github.com/goliatone/go-integrations/security"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.dsn }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "integrationsd" }

// openDatabase connects, applies the embedded migrations for the driver's
// dialect and returns a store factory whose operation reads go through the
// status cache.
func openDatabase(ctx context.Context, cfg appConfig, statusTTL time.Duration, logger core.Logger) (*persistence.Client, *sqlstore.RepositoryFactory, error) {
	dialectName, err := integrationmigrations.DialectForDriver(cfg.DBDriver)
	if err != nil {
		return nil, nil, err
	}
	var dialect schema.Dialect
	switch dialectName {
	case integrationmigrations.DialectPostgres:
		dialect = pgdialect.New()
	default:
		dialect = sqlitedialect.New()
	}

	sqlDB, err := sql.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if dialectName == integrationmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{
		driver: cfg.DBDriver,
		dsn:    cfg.DBDSN,
		debug:  cfg.LogLevel == "debug",
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("persistence client: %w", err)
	}

	if _, err := integrationmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != dialectName {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, integrationmigrations.WithValidationTargets(dialectName)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	cacheConfig := repositorycache.DefaultConfig()
	if statusTTL > 0 {
		cacheConfig.TTL = statusTTL
	}
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("status cache: %w", err)
	}
	factoryOpts := []sqlstore.FactoryOption{}
	if len(cfg.CredentialKeys) > 0 {
		codec, err := security.NewSealedCredentialCodec(core.JSONCredentialCodec{}, cfg.CredentialKeys[0], cfg.CredentialKeys[1:]...)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("credential codec: %w", err)
		}
		factoryOpts = append(factoryOpts, sqlstore.WithCredentialCodec(codec))
	}
	factoryOpts = append(factoryOpts,
		sqlstore.WithOperationStoreWrapper(func(base core.OperationStore) core.OperationStore {
			cached, err := sqlstore.NewCachedOperationStore(base, cacheService)
			if err != nil {
				logger.Warn("operation status cache disabled", "error", err.Error())
				return base
			}
			return cached
		}),
	)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("repository factory: %w", err)
	}
	return client, factory, nil
}

// operationRunner is the in-process executor behind both the local
// dispatcher and the asynq worker. It moves the operation through processing
// to completed and stops early when the user cancelled it.
type operationRunner struct {
	service *core.Service
	logger  core.Logger
}

func (r *operationRunner) Execute(ctx context.Context, req core.ExecutionRequest) error {
	if r == nil || r.service == nil {
		return fmt.Errorf("integrationsd: operation runner has no service")
	}
	if _, err := r.service.SetOperationStatus(ctx, core.OperationStatusUpdate{
		ID:     req.OperationID,
		Status: core.OperationStatusProcessing,
	}); err != nil {
		return err
	}

	cancelled, err := r.service.IsCancellationRequested(ctx, req.OperationID)
	if err != nil {
		return err
	}
	status := core.OperationStatusCompleted
	if cancelled {
		status = core.OperationStatusCancelled
	}
	_, err = r.service.SetOperationStatus(ctx, core.OperationStatusUpdate{
		ID:     req.OperationID,
		Status: status,
		MetadataPatch: map[string]any{
			"executed_by": "integrationsd",
		},
	})
	if err == nil && r.logger != nil {
		r.logger.WithContext(ctx).Info("operation finished",
			"operation_id", req.OperationID,
			"type", req.Type,
			"status", string(status),
		)
	}
	return err
}

// lateExecutor lets the service be built before the executor that needs it.
type lateExecutor struct {
	target core.Executor
}

func (e *lateExecutor) Execute(ctx context.Context, req core.ExecutionRequest) error {
	if e == nil || e.target == nil {
		return fmt.Errorf("integrationsd: executor is not ready")
	}
	return e.target.Execute(ctx, req)
}

var (
	_ core.Executor = (*operationRunner)(nil)
	_ core.Executor = (*lateExecutor)(nil)
)
