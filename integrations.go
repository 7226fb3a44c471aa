// Package integrations is the entry point for embedding the OAuth credential
// lifecycle and operation tracking in another program.
package integrations

import "github.com/goliatone/go-integrations/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type IntegrationService = core.IntegrationService

type Provider = core.Provider
type Registry = core.Registry
type Executor = core.Executor
type ExecutorFunc = core.ExecutorFunc
type ExecutionRequest = core.ExecutionRequest
type AuthorizationSurface = core.AuthorizationSurface
type FlowStateStore = core.FlowStateStore
type CredentialStore = core.CredentialStore
type IntegrationStore = core.IntegrationStore
type OperationStore = core.OperationStore
type CancellationStore = core.CancellationStore

type ConnectRequest = core.ConnectRequest
type ReconnectRequest = core.ReconnectRequest
type ExchangeRequest = core.ExchangeRequest
type CreateOperationRequest = core.CreateOperationRequest
type TriggerAutomationRequest = core.TriggerAutomationRequest

var (
	WithLogger                  = core.WithLogger
	WithLoggerProvider          = core.WithLoggerProvider
	WithMetricsRecorder         = core.WithMetricsRecorder
	WithErrorFactory            = core.WithErrorFactory
	WithErrorMapper             = core.WithErrorMapper
	WithPersistenceClient       = core.WithPersistenceClient
	WithRepositoryFactory       = core.WithRepositoryFactory
	WithConfigProvider          = core.WithConfigProvider
	WithOptionsResolver         = core.WithOptionsResolver
	WithRegistry                = core.WithRegistry
	WithFlowStateStore          = core.WithFlowStateStore
	WithCredentialStore         = core.WithCredentialStore
	WithIntegrationStore        = core.WithIntegrationStore
	WithOperationStore          = core.WithOperationStore
	WithCancellationStore       = core.WithCancellationStore
	WithAuthorizationSurface    = core.WithAuthorizationSurface
	WithExecutor                = core.WithExecutor
	WithCredentialLocker        = core.WithCredentialLocker
	WithRefreshBackoffScheduler = core.WithRefreshBackoffScheduler
	WithClock                   = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
