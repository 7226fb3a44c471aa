package command

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeConnect             = "integrations.command.connect"
	TypeCompleteConnect     = "integrations.command.connect.complete"
	TypeReconnect           = "integrations.command.reconnect"
	TypeDisconnect          = "integrations.command.disconnect"
	TypeRefreshIntegration  = "integrations.command.refresh"
	TypeUpdateConfiguration = "integrations.command.configuration.update"
	TypeCreateOperation     = "integrations.command.operation.create"
	TypeSetOperationStatus  = "integrations.command.operation.set_status"
	TypeDispatchOperation   = "integrations.command.operation.dispatch"
	TypeTriggerAutomation   = "integrations.command.automation.trigger"
	TypeRequestCancellation = "integrations.command.operation.cancel"
)

type ConnectMessage struct {
	Request core.ConnectRequest
}

func (ConnectMessage) Type() string { return TypeConnect }

func (m ConnectMessage) Validate() error {
	if err := requireField("user_id", m.Request.UserID); err != nil {
		return err
	}
	return requireField("service_name", m.Request.ServiceName)
}

// CompleteConnectMessage carries the redirect callback parameters. Error is
// forwarded so the service can record a denied consent.
type CompleteConnectMessage struct {
	Request core.ExchangeRequest
}

func (CompleteConnectMessage) Type() string { return TypeCompleteConnect }

func (m CompleteConnectMessage) Validate() error {
	if err := requireField("user_id", m.Request.UserID); err != nil {
		return err
	}
	if err := requireField("service_name", m.Request.ServiceName); err != nil {
		return err
	}
	if err := requireField("state", m.Request.State); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.Error) == "" {
		return requireField("code", m.Request.Code)
	}
	return nil
}

type ReconnectMessage struct {
	Request core.ReconnectRequest
}

func (ReconnectMessage) Type() string { return TypeReconnect }

func (m ReconnectMessage) Validate() error {
	if err := requireField("user_id", m.Request.UserID); err != nil {
		return err
	}
	return requireField("integration_id", m.Request.IntegrationID)
}

type DisconnectMessage struct {
	UserID        string
	IntegrationID string
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("integration_id", m.IntegrationID)
}

type RefreshIntegrationMessage struct {
	UserID      string
	ServiceName string
}

func (RefreshIntegrationMessage) Type() string { return TypeRefreshIntegration }

func (m RefreshIntegrationMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("service_name", m.ServiceName)
}

type UpdateConfigurationMessage struct {
	UserID        string
	IntegrationID string
	Patch         map[string]any
}

func (UpdateConfigurationMessage) Type() string { return TypeUpdateConfiguration }

func (m UpdateConfigurationMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	if err := requireField("integration_id", m.IntegrationID); err != nil {
		return err
	}
	if len(m.Patch) == 0 {
		return commandValidationError("configuration", "patch must not be empty")
	}
	return nil
}

type CreateOperationMessage struct {
	Request core.CreateOperationRequest
}

func (CreateOperationMessage) Type() string { return TypeCreateOperation }

func (m CreateOperationMessage) Validate() error {
	if err := requireField("user_id", m.Request.UserID); err != nil {
		return err
	}
	return requireField("type", m.Request.Type)
}

type SetOperationStatusMessage struct {
	Update core.OperationStatusUpdate
}

func (SetOperationStatusMessage) Type() string { return TypeSetOperationStatus }

func (m SetOperationStatusMessage) Validate() error {
	if err := requireField("operation_id", m.Update.ID); err != nil {
		return err
	}
	if !m.Update.Status.Valid() {
		return commandValidationError("status", "unknown operation status")
	}
	return nil
}

type DispatchOperationMessage struct {
	OperationID string
	Payload     map[string]any
}

func (DispatchOperationMessage) Type() string { return TypeDispatchOperation }

func (m DispatchOperationMessage) Validate() error {
	return requireField("operation_id", m.OperationID)
}

type TriggerAutomationMessage struct {
	Request core.TriggerAutomationRequest
}

func (TriggerAutomationMessage) Type() string { return TypeTriggerAutomation }

func (m TriggerAutomationMessage) Validate() error {
	if err := requireField("user_id", m.Request.UserID); err != nil {
		return err
	}
	return requireField("automation_id", m.Request.AutomationID)
}

type RequestCancellationMessage struct {
	UserID      string
	OperationID string
}

func (RequestCancellationMessage) Type() string { return TypeRequestCancellation }

func (m RequestCancellationMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("operation_id", m.OperationID)
}

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return commandValidationError(field, field+" is required")
	}
	return nil
}
