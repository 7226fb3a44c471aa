package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// AuthorizationURLRequest carries everything a provider needs to render its
// authorization endpoint URL. CodeChallenge is empty for non-PKCE flows.
type AuthorizationURLRequest struct {
	State               string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
}

type CodeExchangeRequest struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// TokenResponse is the raw token endpoint answer. ExpiresIn is kept untyped
// because it is untrusted input and goes through ExpiryMath.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    any
	Raw          map[string]any
}

// Provider is the per-service OAuth2 client.
type Provider interface {
	ID() string
	UsesPKCE() bool
	DefaultRedirectURI() string
	DefaultScopes() []string
	AuthorizationURL(req AuthorizationURLRequest) (string, error)
	ExchangeCode(ctx context.Context, req CodeExchangeRequest) (TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (TokenResponse, error)
}

type Registry interface {
	Register(provider Provider) error
	Get(serviceName string) (Provider, bool)
	List() []Provider
}

type CredentialStore interface {
	Store(ctx context.Context, key CredentialKey, tokens TokenMaterial) error
	Load(ctx context.Context, key CredentialKey) (TokenMaterial, bool, error)
	Clear(ctx context.Context, key CredentialKey) error
}

// FlowStateStore keeps at most one outstanding FlowState per user and
// service. Consume is atomic: the record is removed whatever the outcome.
type FlowStateStore interface {
	Save(ctx context.Context, state FlowState) error
	Consume(ctx context.Context, userID string, serviceName string, state string) (FlowState, error)
	// ConsumeByState finds the pending flow for serviceName whose state value
	// matches, without knowing the user. It has the same one-shot semantics
	// as Consume.
	ConsumeByState(ctx context.Context, serviceName string, state string) (FlowState, error)
	Discard(ctx context.Context, userID string, serviceName string) error
}

type IntegrationStore interface {
	Upsert(ctx context.Context, in UpsertIntegrationInput) (IntegrationRecord, error)
	Get(ctx context.Context, id string) (IntegrationRecord, error)
	FindByUserService(ctx context.Context, userID string, serviceName string) (IntegrationRecord, bool, error)
	ListByUser(ctx context.Context, userID string) ([]IntegrationRecord, error)
	UpdateStatus(ctx context.Context, id string, status IntegrationStatus, reason string) error
	UpdateConfiguration(ctx context.Context, id string, configuration map[string]any) (IntegrationRecord, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// OperationStore is the persistence boundary for long-running operations.
// Get reports absence through the bool, never through an error.
type OperationStore interface {
	Create(ctx context.Context, record OperationRecord) (OperationRecord, error)
	Get(ctx context.Context, id string) (OperationRecord, bool, error)
	Update(ctx context.Context, record OperationRecord) (OperationRecord, error)
	ListByUser(ctx context.Context, userID string, operationType string) ([]OperationRecord, error)
}

type CancellationStore interface {
	Create(ctx context.Context, record CancellationRecord) (CancellationRecord, error)
	FindByOperation(ctx context.Context, operationID string) ([]CancellationRecord, error)
}

type StoreProvider interface {
	IntegrationStore() IntegrationStore
	CredentialStore() CredentialStore
	OperationStore() OperationStore
	CancellationStore() CancellationStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// SurfaceHandle identifies an opened authorization surface.
type SurfaceHandle any

// AuthorizationSurface is the out-of-band window the user completes login in.
type AuthorizationSurface interface {
	Open(ctx context.Context, url string) (SurfaceHandle, error)
	IsClosed(ctx context.Context, handle SurfaceHandle) (bool, error)
}

// SurfaceCloser is implemented by surfaces that can be torn down on timeout.
type SurfaceCloser interface {
	Close(ctx context.Context, handle SurfaceHandle) error
}

// ExecutionRequest is what the core hands an external executor.
type ExecutionRequest struct {
	OperationID string
	UserID      string
	Type        string
	Payload     map[string]any
}

// Executor performs the long-running work. Implementations report progress by
// mutating the operation record, never through the return value.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) error
}

type ExecutorFunc func(ctx context.Context, req ExecutionRequest) error

func (f ExecutorFunc) Execute(ctx context.Context, req ExecutionRequest) error {
	return f(ctx, req)
}

type StatusReader interface {
	GetOperationStatus(ctx context.Context, id string) (OperationStatus, bool, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

// IntegrationService is the surface consumed by transports and command
// handlers.
type IntegrationService interface {
	BuildAuthorizationRequest(ctx context.Context, req AuthorizationRequest) (AuthorizationResponse, error)
	BeginInteractiveAuthorization(ctx context.Context, auth AuthorizationResponse) (InteractiveResult, error)
	CompleteExchange(ctx context.Context, req ExchangeRequest) (TokenMaterial, error)
	Refresh(ctx context.Context, key CredentialKey) (TokenMaterial, error)
	GetValidAccessToken(ctx context.Context, key CredentialKey) (string, bool, error)

	Connect(ctx context.Context, req ConnectRequest) (ConnectResult, error)
	CompleteConnect(ctx context.Context, req ExchangeRequest) (IntegrationRecord, error)
	Disconnect(ctx context.Context, userID string, integrationID string) error
	Reconnect(ctx context.Context, req ReconnectRequest) (ConnectResult, error)
	ListForUser(ctx context.Context, userID string) ([]IntegrationRecord, error)
	GetIntegration(ctx context.Context, userID string, integrationID string) (IntegrationRecord, error)
	RefreshIntegration(ctx context.Context, userID string, serviceName string) (IntegrationRecord, error)
	UpdateConfiguration(ctx context.Context, userID string, integrationID string, patch map[string]any) (IntegrationRecord, error)

	CreateOperation(ctx context.Context, req CreateOperationRequest) (OperationRecord, error)
	SetOperationStatus(ctx context.Context, update OperationStatusUpdate) (OperationRecord, error)
	GetOperationStatus(ctx context.Context, id string) (OperationStatus, bool, error)
	GetOperation(ctx context.Context, id string) (OperationRecord, bool, error)
	ListOperations(ctx context.Context, userID string, operationType string) ([]OperationRecord, error)
	DispatchOperation(ctx context.Context, id string, payload map[string]any) error
	TriggerAutomation(ctx context.Context, req TriggerAutomationRequest) (OperationRecord, error)
	RequestCancellation(ctx context.Context, userID string, operationID string) (CancellationResult, error)
	IsCancellationRequested(ctx context.Context, operationID string) (bool, error)
}
