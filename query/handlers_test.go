package query

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

func TestIntegrationQueriesDelegate(t *testing.T) {
	reader := &stubReader{
		integrations: []core.IntegrationRecord{{ID: "itg_1", UserID: "user-1", ServiceName: "github"}},
		token:        "access_1",
		tokenOK:      true,
	}

	list, err := NewListIntegrationsQuery(reader).Query(context.Background(), ListIntegrationsMessage{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list integrations: %v", err)
	}
	if len(list) != 1 || list[0].ServiceName != "github" {
		t.Fatalf("unexpected integrations: %#v", list)
	}

	record, err := NewGetIntegrationQuery(reader).Query(context.Background(), GetIntegrationMessage{UserID: "user-1", IntegrationID: "itg_1"})
	if err != nil {
		t.Fatalf("get integration: %v", err)
	}
	if record.ID != "itg_1" {
		t.Fatalf("expected itg_1, got %q", record.ID)
	}

	token, err := NewGetValidAccessTokenQuery(reader).Query(context.Background(), GetValidAccessTokenMessage{UserID: " user-1 ", ServiceName: "GitHub"})
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if !token.OK || token.Token != "access_1" {
		t.Fatalf("unexpected token result: %#v", token)
	}
	if reader.lastKey.UserID != "user-1" {
		t.Fatalf("expected normalized credential key, got %#v", reader.lastKey)
	}
}

func TestGetOperationQueryMapsAbsenceToNotFound(t *testing.T) {
	reader := &stubReader{}
	_, err := NewGetOperationQuery(reader).Query(context.Background(), GetOperationMessage{OperationID: "missing"})
	if err == nil {
		t.Fatalf("expected not found error")
	}
	if !errors.Is(err, core.ErrOperationNotFound) {
		t.Fatalf("expected ErrOperationNotFound in chain, got %v", err)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Code != http.StatusNotFound {
		t.Fatalf("expected 404 envelope, got %v", err)
	}
}

func TestOperationQueriesDelegate(t *testing.T) {
	reader := &stubReader{
		operation: core.OperationRecord{ID: "op_1", Status: core.OperationStatusProcessing},
		found:     true,
		operations: []core.OperationRecord{
			{ID: "op_1", Type: core.OperationTypeChat},
		},
		cancelled: true,
	}

	record, err := NewGetOperationQuery(reader).Query(context.Background(), GetOperationMessage{OperationID: "op_1"})
	if err != nil {
		t.Fatalf("get operation: %v", err)
	}
	if record.Status != core.OperationStatusProcessing {
		t.Fatalf("expected processing, got %q", record.Status)
	}

	status, err := NewGetOperationStatusQuery(reader).Query(context.Background(), GetOperationStatusMessage{OperationID: "op_1"})
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if !status.Found || status.Status != core.OperationStatusProcessing {
		t.Fatalf("unexpected status result: %#v", status)
	}

	ops, err := NewListOperationsQuery(reader).Query(context.Background(), ListOperationsMessage{UserID: "user-1", OperationType: core.OperationTypeChat})
	if err != nil {
		t.Fatalf("list operations: %v", err)
	}
	if len(ops) != 1 || reader.lastType != core.OperationTypeChat {
		t.Fatalf("expected type filter to be forwarded")
	}

	requested, err := NewIsCancellationRequestedQuery(reader).Query(context.Background(), IsCancellationRequestedMessage{OperationID: "op_1"})
	if err != nil {
		t.Fatalf("cancellation requested: %v", err)
	}
	if !requested {
		t.Fatalf("expected cancellation to be reported")
	}
}

func TestGetOperationStatusQueryReportsMissingWithoutError(t *testing.T) {
	status, err := NewGetOperationStatusQuery(&stubReader{}).Query(context.Background(), GetOperationStatusMessage{OperationID: "missing"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status.Found {
		t.Fatalf("expected not found")
	}
}

type stubReader struct {
	integrations []core.IntegrationRecord
	token        string
	tokenOK      bool
	lastKey      core.CredentialKey
	operation    core.OperationRecord
	found        bool
	operations   []core.OperationRecord
	lastType     string
	cancelled    bool
}

func (s *stubReader) ListForUser(context.Context, string) ([]core.IntegrationRecord, error) {
	return s.integrations, nil
}

func (s *stubReader) GetIntegration(_ context.Context, _ string, integrationID string) (core.IntegrationRecord, error) {
	for _, record := range s.integrations {
		if record.ID == integrationID {
			return record, nil
		}
	}
	return core.IntegrationRecord{}, core.ErrIntegrationNotFound
}

func (s *stubReader) GetValidAccessToken(_ context.Context, key core.CredentialKey) (string, bool, error) {
	s.lastKey = key
	return s.token, s.tokenOK, nil
}

func (s *stubReader) GetOperation(context.Context, string) (core.OperationRecord, bool, error) {
	return s.operation, s.found, nil
}

func (s *stubReader) GetOperationStatus(context.Context, string) (core.OperationStatus, bool, error) {
	return s.operation.Status, s.found, nil
}

func (s *stubReader) ListOperations(_ context.Context, _ string, operationType string) ([]core.OperationRecord, error) {
	s.lastType = operationType
	return s.operations, nil
}

func (s *stubReader) IsCancellationRequested(context.Context, string) (bool, error) {
	return s.cancelled, nil
}
