package core

import (
	"context"
	"fmt"
	"time"
)

const (
	IntegrationCompletionPrefix = "integration-completion"
	HealthSyncPrefix            = "health-sync"
	HealthSyncBackfillDays      = 7
)

var healthServices = map[string]struct{}{
	"oura":   {},
	"fitbit": {},
}

func IsHealthService(serviceName string) bool {
	_, ok := healthServices[normalizeServiceName(serviceName)]
	return ok
}

// runPostConnect fires the side effects of a successful connection. They
// never fail the connection itself; problems are logged.
func (s *Service) runPostConnect(ctx context.Context, record IntegrationRecord, reconnect bool) {
	if reconnect {
		if _, err := s.integrationStore.UpdateConfiguration(ctx, record.ID, map[string]any{
			"reconnected_at": s.clock().Format(time.RFC3339),
		}); err != nil {
			s.logWarn(ctx, "record reconnect failed", map[string]any{
				"integration_id": record.ID, "error": err.Error(),
			})
		}
	} else {
		s.enqueueIntegrationCompletion(ctx, record)
	}
	if IsHealthService(record.ServiceName) {
		s.enqueueHealthSync(ctx, record)
	}
}

func (s *Service) enqueueIntegrationCompletion(ctx context.Context, record IntegrationRecord) {
	metadata := map[string]any{
		"message":                 fmt.Sprintf("Let's complete the integration for %s", record.ServiceName),
		"integration_in_progress": true,
		"service_name":            record.ServiceName,
		"integration_id":          record.ID,
	}
	s.createAndDispatch(ctx, CreateOperationRequest{
		ID:       NewOperationID(IntegrationCompletionPrefix),
		UserID:   record.UserID,
		Type:     OperationTypeIntegrationCompletion,
		Metadata: metadata,
	})
}

func (s *Service) enqueueHealthSync(ctx context.Context, record IntegrationRecord) {
	s.createAndDispatch(ctx, CreateOperationRequest{
		ID:     NewOperationID(HealthSyncPrefix),
		UserID: record.UserID,
		Type:   OperationTypeHealthDataSync,
		Metadata: map[string]any{
			"service_name": record.ServiceName,
			"days":         HealthSyncBackfillDays,
		},
	})
}

func (s *Service) createAndDispatch(ctx context.Context, req CreateOperationRequest) {
	record, err := s.createOperation(ctx, req)
	if err != nil {
		s.logWarn(ctx, "post-connect operation create failed", map[string]any{
			"operation_type": req.Type, "user_id": req.UserID, "error": err.Error(),
		})
		return
	}
	if err := s.dispatcher.Dispatch(ctx, record, record.Metadata); err != nil {
		s.logWarn(ctx, "post-connect operation dispatch failed", map[string]any{
			"operation_id": record.ID, "operation_type": record.Type, "error": err.Error(),
		})
	}
}
