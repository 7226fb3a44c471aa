package integrations

import (
	"fmt"

	integrationscommand "github.com/goliatone/go-integrations/command"
	integrationsquery "github.com/goliatone/go-integrations/query"
)

type CommandQueryService interface {
	integrationscommand.MutatingService
	integrationsquery.ReadingService
}

type Commands struct {
	Connect             *integrationscommand.ConnectCommand
	CompleteConnect     *integrationscommand.CompleteConnectCommand
	Reconnect           *integrationscommand.ReconnectCommand
	Disconnect          *integrationscommand.DisconnectCommand
	RefreshIntegration  *integrationscommand.RefreshIntegrationCommand
	UpdateConfiguration *integrationscommand.UpdateConfigurationCommand
	CreateOperation     *integrationscommand.CreateOperationCommand
	SetOperationStatus  *integrationscommand.SetOperationStatusCommand
	DispatchOperation   *integrationscommand.DispatchOperationCommand
	TriggerAutomation   *integrationscommand.TriggerAutomationCommand
	RequestCancellation *integrationscommand.RequestCancellationCommand
}

type Queries struct {
	ListIntegrations        *integrationsquery.ListIntegrationsQuery
	GetIntegration          *integrationsquery.GetIntegrationQuery
	GetValidAccessToken     *integrationsquery.GetValidAccessTokenQuery
	GetOperation            *integrationsquery.GetOperationQuery
	GetOperationStatus      *integrationsquery.GetOperationStatusQuery
	ListOperations          *integrationsquery.ListOperationsQuery
	IsCancellationRequested *integrationsquery.IsCancellationRequestedQuery
}

// Facade bundles ready-made command and query handlers over one service for
// callers that invoke them directly instead of through a dispatcher.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Connect:             integrationscommand.NewConnectCommand(service),
		CompleteConnect:     integrationscommand.NewCompleteConnectCommand(service),
		Reconnect:           integrationscommand.NewReconnectCommand(service),
		Disconnect:          integrationscommand.NewDisconnectCommand(service),
		RefreshIntegration:  integrationscommand.NewRefreshIntegrationCommand(service),
		UpdateConfiguration: integrationscommand.NewUpdateConfigurationCommand(service),
		CreateOperation:     integrationscommand.NewCreateOperationCommand(service),
		SetOperationStatus:  integrationscommand.NewSetOperationStatusCommand(service),
		DispatchOperation:   integrationscommand.NewDispatchOperationCommand(service),
		TriggerAutomation:   integrationscommand.NewTriggerAutomationCommand(service),
		RequestCancellation: integrationscommand.NewRequestCancellationCommand(service),
	}
	facade.queries = Queries{
		ListIntegrations:        integrationsquery.NewListIntegrationsQuery(service),
		GetIntegration:          integrationsquery.NewGetIntegrationQuery(service),
		GetValidAccessToken:     integrationsquery.NewGetValidAccessTokenQuery(service),
		GetOperation:            integrationsquery.NewGetOperationQuery(service),
		GetOperationStatus:      integrationsquery.NewGetOperationStatusQuery(service),
		ListOperations:          integrationsquery.NewListOperationsQuery(service),
		IsCancellationRequested: integrationsquery.NewIsCancellationRequestedQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
