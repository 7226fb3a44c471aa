package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/query"
)

// Subscriptions groups the dispatcher subscriptions created for one service
// so they can be released together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterIntegrationHandlers wires every integrations command and query to
// svc. On error nothing stays subscribed.
func RegisterIntegrationHandlers(
	adapter *RegistryAdapter,
	svc core.IntegrationService,
	runnerOpts ...runner.Option,
) (subs Subscriptions, err error) {
	if svc == nil {
		return nil, fmt.Errorf("gocommand: integration service is required")
	}
	defer func() {
		if err != nil {
			subs.Unsubscribe()
			subs = nil
		}
	}()

	add := func(sub commanddispatcher.Subscription, regErr error) {
		if err != nil {
			return
		}
		if regErr != nil {
			err = regErr
			return
		}
		subs = append(subs, sub)
	}

	add(RegisterAndSubscribe(adapter, command.NewConnectCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, command.NewCompleteConnectCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, command.NewReconnectCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, command.NewDisconnectCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, command.NewRefreshIntegrationCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, command.NewUpdateConfigurationCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, command.NewCreateOperationCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, command.NewSetOperationStatusCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, command.NewDispatchOperationCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, command.NewTriggerAutomationCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, command.NewRequestCancellationCommand(svc), runnerOpts...))

	add(RegisterAndSubscribeQuery(adapter, query.NewListIntegrationsQuery(svc), runnerOpts...))
	add(RegisterAndSubscribeQuery(adapter, query.NewGetIntegrationQuery(svc), runnerOpts...))
	add(RegisterAndSubscribeQuery(adapter, query.NewGetValidAccessTokenQuery(svc), runnerOpts...))
	add(RegisterAndSubscribeQuery(adapter, query.NewGetOperationQuery(svc), runnerOpts...))
	add(RegisterAndSubscribeQuery(adapter, query.NewGetOperationStatusQuery(svc), runnerOpts...))
	add(RegisterAndSubscribeQuery(adapter, query.NewListOperationsQuery(svc), runnerOpts...))
	add(RegisterAndSubscribeQuery(adapter, query.NewIsCancellationRequestedQuery(svc), runnerOpts...))

	return subs, err
}
