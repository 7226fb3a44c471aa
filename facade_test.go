package integrations

import (
	"context"
	"testing"
	"time"

	integrationscommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationsquery "github.com/goliatone/go-integrations/query"
)

func newFacadeService(t *testing.T) *core.Service {
	t.Helper()
	svc, err := NewService(DefaultConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return svc
}

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(newFacadeService(t))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.Connect == nil || commands.CreateOperation == nil || commands.RequestCancellation == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetOperationStatus == nil || queries.GetValidAccessToken == nil || queries.IsCancellationRequested == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.Service() == nil {
		t.Fatalf("expected service accessor")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected nil service error")
	}
	var facade *Facade
	if facade.Service() != nil || facade.Commands().Connect != nil {
		t.Fatalf("expected nil facade accessors to be empty")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	ctx := context.Background()
	facade, err := NewFacade(newFacadeService(t))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().CreateOperation.Execute(ctx, integrationscommand.CreateOperationMessage{
		Request: core.CreateOperationRequest{ID: "chat-1", UserID: "user-1", Type: core.OperationTypeChat},
	}); err != nil {
		t.Fatalf("create operation: %v", err)
	}

	status, err := facade.Queries().GetOperationStatus.Query(ctx, integrationsquery.GetOperationStatusMessage{OperationID: "chat-1"})
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if !status.Found || status.Status != core.OperationStatusPending {
		t.Fatalf("expected pending operation, got %#v", status)
	}

	if err := facade.Commands().RequestCancellation.Execute(ctx, integrationscommand.RequestCancellationMessage{
		UserID:      "user-1",
		OperationID: "chat-1",
	}); err != nil {
		t.Fatalf("request cancellation: %v", err)
	}
	cancelled, err := facade.Queries().IsCancellationRequested.Query(ctx, integrationsquery.IsCancellationRequestedMessage{OperationID: "chat-1"})
	if err != nil {
		t.Fatalf("query cancellation: %v", err)
	}
	if !cancelled {
		t.Fatalf("expected cancellation to be visible through the query")
	}
}
