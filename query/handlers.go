package query

import (
	"context"

	"github.com/goliatone/go-integrations/core"
)

// ReadingService is the read half of core.IntegrationService.
type ReadingService interface {
	ListForUser(ctx context.Context, userID string) ([]core.IntegrationRecord, error)
	GetIntegration(ctx context.Context, userID string, integrationID string) (core.IntegrationRecord, error)
	GetValidAccessToken(ctx context.Context, key core.CredentialKey) (string, bool, error)
	GetOperation(ctx context.Context, id string) (core.OperationRecord, bool, error)
	GetOperationStatus(ctx context.Context, id string) (core.OperationStatus, bool, error)
	ListOperations(ctx context.Context, userID string, operationType string) ([]core.OperationRecord, error)
	IsCancellationRequested(ctx context.Context, operationID string) (bool, error)
}

type ListIntegrationsQuery struct {
	reader ReadingService
}

func NewListIntegrationsQuery(reader ReadingService) *ListIntegrationsQuery {
	return &ListIntegrationsQuery{reader: reader}
}

func (q *ListIntegrationsQuery) Query(ctx context.Context, msg ListIntegrationsMessage) ([]core.IntegrationRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: integration reader is required")
	}
	return q.reader.ListForUser(ctx, msg.UserID)
}

type GetIntegrationQuery struct {
	reader ReadingService
}

func NewGetIntegrationQuery(reader ReadingService) *GetIntegrationQuery {
	return &GetIntegrationQuery{reader: reader}
}

func (q *GetIntegrationQuery) Query(ctx context.Context, msg GetIntegrationMessage) (core.IntegrationRecord, error) {
	if q == nil || q.reader == nil {
		return core.IntegrationRecord{}, queryDependencyError("query: integration reader is required")
	}
	return q.reader.GetIntegration(ctx, msg.UserID, msg.IntegrationID)
}

type GetValidAccessTokenQuery struct {
	reader ReadingService
}

func NewGetValidAccessTokenQuery(reader ReadingService) *GetValidAccessTokenQuery {
	return &GetValidAccessTokenQuery{reader: reader}
}

func (q *GetValidAccessTokenQuery) Query(ctx context.Context, msg GetValidAccessTokenMessage) (AccessTokenResult, error) {
	if q == nil || q.reader == nil {
		return AccessTokenResult{}, queryDependencyError("query: token reader is required")
	}
	token, ok, err := q.reader.GetValidAccessToken(ctx, core.NewCredentialKey(msg.UserID, msg.ServiceName))
	if err != nil {
		return AccessTokenResult{}, err
	}
	return AccessTokenResult{Token: token, OK: ok}, nil
}

// GetOperationQuery turns absence into a not-found error.
type GetOperationQuery struct {
	reader ReadingService
}

func NewGetOperationQuery(reader ReadingService) *GetOperationQuery {
	return &GetOperationQuery{reader: reader}
}

func (q *GetOperationQuery) Query(ctx context.Context, msg GetOperationMessage) (core.OperationRecord, error) {
	if q == nil || q.reader == nil {
		return core.OperationRecord{}, queryDependencyError("query: operation reader is required")
	}
	record, ok, err := q.reader.GetOperation(ctx, msg.OperationID)
	if err != nil {
		return core.OperationRecord{}, err
	}
	if !ok {
		return core.OperationRecord{}, operationNotFoundError(msg.OperationID)
	}
	return record, nil
}

type GetOperationStatusQuery struct {
	reader ReadingService
}

func NewGetOperationStatusQuery(reader ReadingService) *GetOperationStatusQuery {
	return &GetOperationStatusQuery{reader: reader}
}

func (q *GetOperationStatusQuery) Query(ctx context.Context, msg GetOperationStatusMessage) (OperationStatusResult, error) {
	if q == nil || q.reader == nil {
		return OperationStatusResult{}, queryDependencyError("query: operation reader is required")
	}
	status, found, err := q.reader.GetOperationStatus(ctx, msg.OperationID)
	if err != nil {
		return OperationStatusResult{}, err
	}
	return OperationStatusResult{Status: status, Found: found}, nil
}

type ListOperationsQuery struct {
	reader ReadingService
}

func NewListOperationsQuery(reader ReadingService) *ListOperationsQuery {
	return &ListOperationsQuery{reader: reader}
}

func (q *ListOperationsQuery) Query(ctx context.Context, msg ListOperationsMessage) ([]core.OperationRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: operation reader is required")
	}
	return q.reader.ListOperations(ctx, msg.UserID, msg.OperationType)
}

type IsCancellationRequestedQuery struct {
	reader ReadingService
}

func NewIsCancellationRequestedQuery(reader ReadingService) *IsCancellationRequestedQuery {
	return &IsCancellationRequestedQuery{reader: reader}
}

func (q *IsCancellationRequestedQuery) Query(ctx context.Context, msg IsCancellationRequestedMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, queryDependencyError("query: cancellation reader is required")
	}
	return q.reader.IsCancellationRequested(ctx, msg.OperationID)
}
