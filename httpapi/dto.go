package httpapi

import (
	"time"

	"github.com/goliatone/go-integrations/core"
)

type authorizeResponse struct {
	URL         string    `json:"url"`
	State       string    `json:"state"`
	ServiceName string    `json:"service_name"`
	UsesPKCE    bool      `json:"uses_pkce"`
	ExpiresAt   time.Time `json:"expires_at"`
	Phase       string    `json:"phase,omitempty"`
}

func toAuthorizeResponse(result core.ConnectResult) authorizeResponse {
	out := authorizeResponse{
		URL:         result.Authorization.URL,
		State:       result.Authorization.State,
		ServiceName: result.Authorization.ServiceName,
		UsesPKCE:    result.Authorization.UsesPKCE,
		ExpiresAt:   result.Authorization.ExpiresAt,
	}
	if result.Interactive != nil {
		out.Phase = string(result.Interactive.Phase)
	}
	return out
}

type integrationResponse struct {
	ID            string         `json:"id"`
	ServiceName   string         `json:"service_name"`
	Status        string         `json:"status"`
	Configuration map[string]any `json:"configuration,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	LastUsedAt    *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func toIntegrationResponse(record core.IntegrationRecord) integrationResponse {
	return integrationResponse{
		ID:            record.ID,
		ServiceName:   record.ServiceName,
		Status:        string(record.Status),
		Configuration: record.Configuration,
		LastError:     record.LastError,
		LastUsedAt:    record.LastUsedAt,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}

type operationResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toOperationResponse(record core.OperationRecord) operationResponse {
	return operationResponse{
		ID:        record.ID,
		Type:      record.Type,
		Status:    string(record.Status),
		Metadata:  record.Metadata,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

type statusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Final  bool   `json:"final"`
}

type cancellationResponse struct {
	CancellationID string            `json:"cancellation_id"`
	Operation      operationResponse `json:"operation"`
}

type reconnectRequest struct {
	RedirectURI string   `json:"redirect_uri" validate:"omitempty,url"`
	Scopes      []string `json:"scopes" validate:"max=32"`
	UsePKCE     *bool    `json:"use_pkce"`
}

type configurationRequest struct {
	Configuration map[string]any `json:"configuration" validate:"required,min=1"`
}

type createOperationRequest struct {
	ID       string         `json:"id" validate:"omitempty,max=128"`
	Type     string         `json:"type" validate:"required,oneof=chat integration_completion automation_manual health_data_sync"`
	Metadata map[string]any `json:"metadata"`
	// Dispatch hands the operation to the executor right after creation.
	Dispatch bool           `json:"dispatch"`
	Payload  map[string]any `json:"payload"`
}

type dispatchRequest struct {
	Payload map[string]any `json:"payload"`
}

type triggerRequest struct {
	Payload map[string]any `json:"payload"`
}
