package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/singleflight"
)

// Service is the credential lifecycle manager and operation tracker.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	registry          Registry
	flowStateStore    FlowStateStore
	credentialStore   CredentialStore
	integrationStore  IntegrationStore
	operationStore    OperationStore
	cancellationStore CancellationStore
	surface           AuthorizationSurface
	executor          Executor
	dispatcher        *Dispatcher
	credentialLocker  CredentialLocker
	refreshScheduler  RefreshBackoffScheduler
	expiry            ExpiryMath
	now               func() time.Time
	refreshes         singleflight.Group
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Registry          Registry
	FlowStateStore    FlowStateStore
	CredentialStore   CredentialStore
	IntegrationStore  IntegrationStore
	OperationStore    OperationStore
	CancellationStore CancellationStore
	Surface           AuthorizationSurface
	Executor          Executor
	Dispatcher        *Dispatcher
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	if builder.credentialLocker == nil {
		builder.credentialLocker = NewMemoryCredentialLocker()
	}
	if builder.refreshScheduler == nil {
		builder.refreshScheduler = ExponentialBackoffScheduler{
			Initial: defaultRefreshInitialBackoff,
			Max:     defaultRefreshMaxBackoff,
		}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig = finalConfig.withDefaults()

	if builder.repositoryFactory != nil {
		var stores StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		} else if provided, ok := builder.repositoryFactory.(StoreProvider); ok {
			stores = provided
		}
		if stores != nil {
			if builder.integrationStore == nil {
				builder.integrationStore = stores.IntegrationStore()
			}
			if builder.credentialStore == nil {
				builder.credentialStore = stores.CredentialStore()
			}
			if builder.operationStore == nil {
				builder.operationStore = stores.OperationStore()
			}
			if builder.cancellationStore == nil {
				builder.cancellationStore = stores.CancellationStore()
			}
		}
	}
	if builder.flowStateStore == nil {
		flowStates := NewMemoryFlowStateStore(finalConfig.OAuth.FlowStateTTL, finalConfig.OAuth.FlowStateCapacity)
		flowStates.now = builder.now
		builder.flowStateStore = flowStates
	}
	if builder.credentialStore == nil {
		builder.credentialStore = NewMemoryCredentialStore()
	}
	if builder.integrationStore == nil {
		builder.integrationStore = NewMemoryIntegrationStore()
	}
	if builder.operationStore == nil {
		builder.operationStore = NewMemoryOperationStore()
	}
	if builder.cancellationStore == nil {
		builder.cancellationStore = NewMemoryCancellationStore()
	}

	svc := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		registry:          builder.registry,
		flowStateStore:    builder.flowStateStore,
		credentialStore:   builder.credentialStore,
		integrationStore:  builder.integrationStore,
		operationStore:    builder.operationStore,
		cancellationStore: builder.cancellationStore,
		surface:           builder.surface,
		executor:          builder.executor,
		credentialLocker:  builder.credentialLocker,
		refreshScheduler:  builder.refreshScheduler,
		expiry:            ExpiryMath{Now: builder.now, Logger: logger},
		now:               builder.now,
	}
	svc.dispatcher = NewDispatcher(builder.executor, svc,
		WithDispatchWorkers(finalConfig.Dispatch.Workers),
		WithDispatchErrorBuffer(finalConfig.Dispatch.ErrorBuffer),
		WithDispatchLogger(logger),
	)
	return svc, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Registry:          s.registry,
		FlowStateStore:    s.flowStateStore,
		CredentialStore:   s.credentialStore,
		IntegrationStore:  s.integrationStore,
		OperationStore:    s.operationStore,
		CancellationStore: s.cancellationStore,
		Surface:           s.surface,
		Executor:          s.executor,
		Dispatcher:        s.dispatcher,
	}
}

// Close drains the dispatcher.
func (s *Service) Close(ctx context.Context) error {
	if s == nil || s.dispatcher == nil {
		return nil
	}
	return s.dispatcher.Close(ctx)
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) resolveProvider(serviceName string) (Provider, error) {
	serviceName = normalizeServiceName(serviceName)
	if serviceName == "" {
		return nil, fmt.Errorf("core: service name is required")
	}
	if s.registry == nil {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, serviceName)
	}
	provider, ok := s.registry.Get(serviceName)
	if !ok || provider == nil {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, serviceName)
	}
	return provider, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("core: user id is required")
	}
	return userID, nil
}
