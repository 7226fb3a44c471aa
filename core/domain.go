package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidIntegrationStatusTransition = errors.New("core: invalid integration status transition")
	ErrInvalidOperationStatus             = errors.New("core: invalid operation status")
	ErrInvalidFlowPhaseTransition         = errors.New("core: invalid flow phase transition")
	ErrInvalidCredentialKey               = errors.New("core: invalid credential key")
)

// TokenMaterial is owned by the CredentialStore once persisted. Replace it,
// never mutate a stored value in place.
type TokenMaterial struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scope        string
	TokenType    string
}

func (t TokenMaterial) Clone() TokenMaterial {
	cloned := t
	if t.ExpiresAt != nil {
		expiresAt := t.ExpiresAt.UTC()
		cloned.ExpiresAt = &expiresAt
	}
	return cloned
}

func (t TokenMaterial) HasRefreshToken() bool {
	return strings.TrimSpace(t.RefreshToken) != ""
}

// CredentialKey scopes token material to a user and service pair.
type CredentialKey struct {
	UserID      string
	ServiceName string
}

func NewCredentialKey(userID, serviceName string) CredentialKey {
	return CredentialKey{
		UserID:      strings.TrimSpace(userID),
		ServiceName: normalizeServiceName(serviceName),
	}
}

func (k CredentialKey) Validate() error {
	if strings.TrimSpace(k.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidCredentialKey)
	}
	if strings.TrimSpace(k.ServiceName) == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidCredentialKey)
	}
	return nil
}

func (k CredentialKey) String() string {
	return k.UserID + ":" + k.ServiceName
}

// FlowState lives for exactly one authorization attempt.
type FlowState struct {
	UserID        string
	ServiceName   string
	State         string
	CodeVerifier  string
	RedirectURI   string
	Reconnect     bool
	IntegrationID string
	Metadata      map[string]any
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

func (f FlowState) Key() CredentialKey {
	return NewCredentialKey(f.UserID, f.ServiceName)
}

func (f FlowState) UsesPKCE() bool {
	return strings.TrimSpace(f.CodeVerifier) != ""
}

func (f FlowState) Expired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && !now.Before(f.ExpiresAt)
}

type FlowPhase string

const (
	FlowPhaseIdle                  FlowPhase = "idle"
	FlowPhaseAwaitingAuthorization FlowPhase = "awaiting_authorization"
	FlowPhaseCodeReceived          FlowPhase = "code_received"
	FlowPhaseExchanging            FlowPhase = "exchanging"
	FlowPhaseActive                FlowPhase = "active"
	FlowPhaseFailed                FlowPhase = "failed"
	FlowPhaseCancelled             FlowPhase = "cancelled"
)

var flowPhaseTransitions = map[FlowPhase]map[FlowPhase]struct{}{
	FlowPhaseIdle: {
		FlowPhaseAwaitingAuthorization: {},
	},
	FlowPhaseAwaitingAuthorization: {
		FlowPhaseCodeReceived: {},
		FlowPhaseCancelled:    {},
	},
	FlowPhaseCodeReceived: {
		FlowPhaseExchanging: {},
		FlowPhaseFailed:     {},
	},
	FlowPhaseExchanging: {
		FlowPhaseActive: {},
		FlowPhaseFailed: {},
	},
}

func (p FlowPhase) Terminal() bool {
	switch p {
	case FlowPhaseActive, FlowPhaseFailed, FlowPhaseCancelled:
		return true
	default:
		return false
	}
}

// FlowAttempt tracks the phase of a single authorization attempt.
type FlowAttempt struct {
	ServiceName string
	UserID      string
	Phase       FlowPhase
	UpdatedAt   time.Time
}

func NewFlowAttempt(userID, serviceName string, now time.Time) *FlowAttempt {
	return &FlowAttempt{
		UserID:      strings.TrimSpace(userID),
		ServiceName: normalizeServiceName(serviceName),
		Phase:       FlowPhaseIdle,
		UpdatedAt:   now,
	}
}

func (a *FlowAttempt) TransitionTo(next FlowPhase, now time.Time) error {
	if a == nil {
		return nil
	}
	if _, ok := flowPhaseTransitions[a.Phase][next]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidFlowPhaseTransition, a.Phase, next)
	}
	a.Phase = next
	a.UpdatedAt = now
	return nil
}

type IntegrationStatus string

const (
	IntegrationStatusDisconnected IntegrationStatus = "disconnected"
	IntegrationStatusPending      IntegrationStatus = "pending"
	IntegrationStatusActive       IntegrationStatus = "active"
	IntegrationStatusFailed       IntegrationStatus = "failed"
)

func (s IntegrationStatus) Valid() bool {
	switch s {
	case IntegrationStatusDisconnected, IntegrationStatusPending, IntegrationStatusActive, IntegrationStatusFailed:
		return true
	default:
		return false
	}
}

func (s IntegrationStatus) CanTransitionTo(next IntegrationStatus) bool {
	if s == next {
		return true
	}
	allowed := map[IntegrationStatus]map[IntegrationStatus]struct{}{
		IntegrationStatusDisconnected: {
			IntegrationStatusPending: {},
			IntegrationStatusActive:  {},
		},
		IntegrationStatusPending: {
			IntegrationStatusActive:       {},
			IntegrationStatusFailed:       {},
			IntegrationStatusDisconnected: {},
		},
		IntegrationStatusActive: {
			IntegrationStatusPending:      {},
			IntegrationStatusFailed:       {},
			IntegrationStatusDisconnected: {},
		},
		IntegrationStatusFailed: {
			IntegrationStatusPending:      {},
			IntegrationStatusActive:       {},
			IntegrationStatusDisconnected: {},
		},
	}
	_, ok := allowed[s][next]
	return ok
}

type IntegrationRecord struct {
	ID            string
	UserID        string
	ServiceName   string
	Status        IntegrationStatus
	Credentials   CredentialKey
	Configuration map[string]any
	LastError     string
	LastUsedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *IntegrationRecord) TransitionTo(status IntegrationStatus, reason string, now time.Time) error {
	if r == nil {
		return nil
	}
	current := r.Status
	if current == "" {
		current = IntegrationStatusDisconnected
	}
	if !current.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidIntegrationStatusTransition, current, status)
	}
	r.Status = status
	r.UpdatedAt = now
	r.LastError = strings.TrimSpace(reason)
	return nil
}

type UpsertIntegrationInput struct {
	UserID        string
	ServiceName   string
	Status        IntegrationStatus
	Configuration map[string]any
	LastError     string
}

type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "pending"
	OperationStatusProcessing OperationStatus = "processing"
	OperationStatusCompleted  OperationStatus = "completed"
	OperationStatusFailed     OperationStatus = "failed"
	OperationStatusCancelled  OperationStatus = "cancelled"
)

func ParseOperationStatus(value string) (OperationStatus, error) {
	status := OperationStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOperationStatus, value)
	}
	return status, nil
}

func (s OperationStatus) Valid() bool {
	switch s {
	case OperationStatusPending, OperationStatusProcessing, OperationStatusCompleted,
		OperationStatusFailed, OperationStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is permitted.
func (s OperationStatus) Terminal() bool {
	switch s {
	case OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled:
		return true
	default:
		return false
	}
}

const (
	OperationTypeChat                  = "chat"
	OperationTypeIntegrationCompletion = "integration_completion"
	OperationTypeAutomationManual      = "automation_manual"
	OperationTypeHealthDataSync        = "health_data_sync"
)

type OperationRecord struct {
	ID        string
	UserID    string
	Type      string
	Status    OperationStatus
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r OperationRecord) Clone() OperationRecord {
	cloned := r
	cloned.Metadata = copyAnyMap(r.Metadata)
	return cloned
}

type CreateOperationRequest struct {
	ID       string
	UserID   string
	Type     string
	Metadata map[string]any
}

type OperationStatusUpdate struct {
	ID            string
	Status        OperationStatus
	MetadataPatch map[string]any
}

const (
	CancellationStatusPending   = "pending"
	CancellationStatusProcessed = "processed"

	CancellationRequestType = "cancellation"
)

// CancellationRecord is advisory evidence for the executor.
type CancellationRecord struct {
	ID          string
	UserID      string
	OperationID string
	RequestType string
	Status      string
	Metadata    map[string]any
	RequestedAt time.Time
}

func normalizeServiceName(serviceName string) string {
	return strings.ToLower(strings.TrimSpace(serviceName))
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func mergeAnyMap(base map[string]any, patch map[string]any) map[string]any {
	out := copyAnyMap(base)
	for key, value := range patch {
		out[key] = value
	}
	return out
}
