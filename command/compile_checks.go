package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Commander[ConnectMessage]             = (*ConnectCommand)(nil)
	_ gocmd.Commander[CompleteConnectMessage]     = (*CompleteConnectCommand)(nil)
	_ gocmd.Commander[ReconnectMessage]           = (*ReconnectCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]          = (*DisconnectCommand)(nil)
	_ gocmd.Commander[RefreshIntegrationMessage]  = (*RefreshIntegrationCommand)(nil)
	_ gocmd.Commander[UpdateConfigurationMessage] = (*UpdateConfigurationCommand)(nil)
	_ gocmd.Commander[CreateOperationMessage]     = (*CreateOperationCommand)(nil)
	_ gocmd.Commander[SetOperationStatusMessage]  = (*SetOperationStatusCommand)(nil)
	_ gocmd.Commander[DispatchOperationMessage]   = (*DispatchOperationCommand)(nil)
	_ gocmd.Commander[TriggerAutomationMessage]   = (*TriggerAutomationCommand)(nil)
	_ gocmd.Commander[RequestCancellationMessage] = (*RequestCancellationCommand)(nil)

	_ MutatingService = (core.IntegrationService)(nil)
)
