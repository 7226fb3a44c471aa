package gocommand

import (
	"context"
	"testing"

	"github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/query"

	gocmd "github.com/goliatone/go-command"
)

func TestRegisterIntegrationHandlersRoutesToService(t *testing.T) {
	svc, err := core.NewService(core.DefaultConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	adapter := NewRegistryAdapter(gocmd.NewRegistry())
	subs, err := RegisterIntegrationHandlers(adapter, svc)
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	defer subs.Unsubscribe()
	if len(subs) != 18 {
		t.Fatalf("expected 18 subscriptions, got %d", len(subs))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	ctx := context.Background()
	collector := gocmd.NewResult[core.OperationRecord]()
	err = Dispatch(gocmd.ContextWithResult(ctx, collector), command.CreateOperationMessage{Request: core.CreateOperationRequest{
		ID:     "chat-op-1",
		UserID: "user-1",
		Type:   core.OperationTypeChat,
	}})
	if err != nil {
		t.Fatalf("dispatch create operation: %v", err)
	}
	created, ok := collector.Load()
	if !ok || created.Status != core.OperationStatusPending {
		t.Fatalf("expected pending operation result, got %#v", created)
	}

	status, err := Query[query.GetOperationStatusMessage, query.OperationStatusResult](ctx, query.GetOperationStatusMessage{OperationID: "chat-op-1"})
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if !status.Found || status.Status != core.OperationStatusPending {
		t.Fatalf("unexpected status: %#v", status)
	}

	if err := Dispatch(ctx, command.RequestCancellationMessage{UserID: "user-1", OperationID: "chat-op-1"}); err != nil {
		t.Fatalf("dispatch cancellation: %v", err)
	}
	requested, err := Query[query.IsCancellationRequestedMessage, bool](ctx, query.IsCancellationRequestedMessage{OperationID: "chat-op-1"})
	if err != nil {
		t.Fatalf("query cancellation: %v", err)
	}
	if !requested {
		t.Fatalf("expected cancellation to be recorded")
	}
}

func TestRegisterIntegrationHandlersRequiresService(t *testing.T) {
	if _, err := RegisterIntegrationHandlers(NewRegistryAdapter(gocmd.NewRegistry()), nil); err == nil {
		t.Fatalf("expected missing service error")
	}
}
