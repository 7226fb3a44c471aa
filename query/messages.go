package query

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeListIntegrations        = "integrations.query.integrations.list"
	TypeGetIntegration          = "integrations.query.integration.get"
	TypeGetValidAccessToken     = "integrations.query.access_token.get"
	TypeGetOperation            = "integrations.query.operation.get"
	TypeGetOperationStatus      = "integrations.query.operation.status"
	TypeListOperations          = "integrations.query.operations.list"
	TypeIsCancellationRequested = "integrations.query.operation.cancellation_requested"
)

type ListIntegrationsMessage struct {
	UserID string
}

func (ListIntegrationsMessage) Type() string { return TypeListIntegrations }

func (m ListIntegrationsMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

type GetIntegrationMessage struct {
	UserID        string
	IntegrationID string
}

func (GetIntegrationMessage) Type() string { return TypeGetIntegration }

func (m GetIntegrationMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("integration_id", m.IntegrationID)
}

type GetValidAccessTokenMessage struct {
	UserID      string
	ServiceName string
}

func (GetValidAccessTokenMessage) Type() string { return TypeGetValidAccessToken }

func (m GetValidAccessTokenMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("service_name", m.ServiceName)
}

// AccessTokenResult is the query view of GetValidAccessToken. Token is empty
// when OK is false.
type AccessTokenResult struct {
	Token string
	OK    bool
}

type GetOperationMessage struct {
	OperationID string
}

func (GetOperationMessage) Type() string { return TypeGetOperation }

func (m GetOperationMessage) Validate() error {
	return requireField("operation_id", m.OperationID)
}

type GetOperationStatusMessage struct {
	OperationID string
}

func (GetOperationStatusMessage) Type() string { return TypeGetOperationStatus }

func (m GetOperationStatusMessage) Validate() error {
	return requireField("operation_id", m.OperationID)
}

type OperationStatusResult struct {
	Status core.OperationStatus
	Found  bool
}

type ListOperationsMessage struct {
	UserID        string
	OperationType string
}

func (ListOperationsMessage) Type() string { return TypeListOperations }

func (m ListOperationsMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

type IsCancellationRequestedMessage struct {
	OperationID string
}

func (IsCancellationRequestedMessage) Type() string { return TypeIsCancellationRequested }

func (m IsCancellationRequestedMessage) Validate() error {
	return requireField("operation_id", m.OperationID)
}

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return queryValidationError(field, field+" is required")
	}
	return nil
}
