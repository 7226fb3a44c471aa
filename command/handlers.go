package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

// MutatingService is the write half of core.IntegrationService.
type MutatingService interface {
	Connect(ctx context.Context, req core.ConnectRequest) (core.ConnectResult, error)
	CompleteConnect(ctx context.Context, req core.ExchangeRequest) (core.IntegrationRecord, error)
	Reconnect(ctx context.Context, req core.ReconnectRequest) (core.ConnectResult, error)
	Disconnect(ctx context.Context, userID string, integrationID string) error
	RefreshIntegration(ctx context.Context, userID string, serviceName string) (core.IntegrationRecord, error)
	UpdateConfiguration(ctx context.Context, userID string, integrationID string, patch map[string]any) (core.IntegrationRecord, error)
	CreateOperation(ctx context.Context, req core.CreateOperationRequest) (core.OperationRecord, error)
	SetOperationStatus(ctx context.Context, update core.OperationStatusUpdate) (core.OperationRecord, error)
	DispatchOperation(ctx context.Context, id string, payload map[string]any) error
	TriggerAutomation(ctx context.Context, req core.TriggerAutomationRequest) (core.OperationRecord, error)
	RequestCancellation(ctx context.Context, userID string, operationID string) (core.CancellationResult, error)
}

type ConnectCommand struct {
	service MutatingService
}

func NewConnectCommand(service MutatingService) *ConnectCommand {
	return &ConnectCommand{service: service}
}

func (c *ConnectCommand) Execute(ctx context.Context, msg ConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connect service is required")
	}
	out, err := c.service.Connect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteConnectCommand struct {
	service MutatingService
}

func NewCompleteConnectCommand(service MutatingService) *CompleteConnectCommand {
	return &CompleteConnectCommand{service: service}
}

func (c *CompleteConnectCommand) Execute(ctx context.Context, msg CompleteConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: complete connect service is required")
	}
	out, err := c.service.CompleteConnect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReconnectCommand struct {
	service MutatingService
}

func NewReconnectCommand(service MutatingService) *ReconnectCommand {
	return &ReconnectCommand{service: service}
}

func (c *ReconnectCommand) Execute(ctx context.Context, msg ReconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reconnect service is required")
	}
	out, err := c.service.Reconnect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: disconnect service is required")
	}
	return c.service.Disconnect(ctx, msg.UserID, msg.IntegrationID)
}

type RefreshIntegrationCommand struct {
	service MutatingService
}

func NewRefreshIntegrationCommand(service MutatingService) *RefreshIntegrationCommand {
	return &RefreshIntegrationCommand{service: service}
}

func (c *RefreshIntegrationCommand) Execute(ctx context.Context, msg RefreshIntegrationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.RefreshIntegration(ctx, msg.UserID, msg.ServiceName)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateConfigurationCommand struct {
	service MutatingService
}

func NewUpdateConfigurationCommand(service MutatingService) *UpdateConfigurationCommand {
	return &UpdateConfigurationCommand{service: service}
}

func (c *UpdateConfigurationCommand) Execute(ctx context.Context, msg UpdateConfigurationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: configuration service is required")
	}
	out, err := c.service.UpdateConfiguration(ctx, msg.UserID, msg.IntegrationID, msg.Patch)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateOperationCommand struct {
	service MutatingService
}

func NewCreateOperationCommand(service MutatingService) *CreateOperationCommand {
	return &CreateOperationCommand{service: service}
}

func (c *CreateOperationCommand) Execute(ctx context.Context, msg CreateOperationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: operation service is required")
	}
	out, err := c.service.CreateOperation(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SetOperationStatusCommand struct {
	service MutatingService
}

func NewSetOperationStatusCommand(service MutatingService) *SetOperationStatusCommand {
	return &SetOperationStatusCommand{service: service}
}

func (c *SetOperationStatusCommand) Execute(ctx context.Context, msg SetOperationStatusMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: operation service is required")
	}
	out, err := c.service.SetOperationStatus(ctx, msg.Update)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DispatchOperationCommand struct {
	service MutatingService
}

func NewDispatchOperationCommand(service MutatingService) *DispatchOperationCommand {
	return &DispatchOperationCommand{service: service}
}

func (c *DispatchOperationCommand) Execute(ctx context.Context, msg DispatchOperationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: operation service is required")
	}
	return c.service.DispatchOperation(ctx, msg.OperationID, msg.Payload)
}

type TriggerAutomationCommand struct {
	service MutatingService
}

func NewTriggerAutomationCommand(service MutatingService) *TriggerAutomationCommand {
	return &TriggerAutomationCommand{service: service}
}

func (c *TriggerAutomationCommand) Execute(ctx context.Context, msg TriggerAutomationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: automation service is required")
	}
	out, err := c.service.TriggerAutomation(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RequestCancellationCommand struct {
	service MutatingService
}

func NewRequestCancellationCommand(service MutatingService) *RequestCancellationCommand {
	return &RequestCancellationCommand{service: service}
}

func (c *RequestCancellationCommand) Execute(ctx context.Context, msg RequestCancellationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cancellation service is required")
	}
	out, err := c.service.RequestCancellation(ctx, msg.UserID, msg.OperationID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
