package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type CancellationResult struct {
	Cancellation CancellationRecord
	Operation    OperationRecord
}

// RequestCancellation records the user's intent and forces the operation to
// cancelled. Terminal operations are reported with *AlreadyFinalError and
// nothing is written. The executor is expected to notice on its own side.
func (s *Service) RequestCancellation(ctx context.Context, userID string, operationID string) (result CancellationResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":      strings.TrimSpace(userID),
		"operation_id": strings.TrimSpace(operationID),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "request_cancellation", err, fields)
	}()

	result, err = s.requestCancellation(ctx, userID, operationID)
	if err != nil {
		return CancellationResult{}, s.mapError(err)
	}
	return result, nil
}

func (s *Service) requestCancellation(ctx context.Context, userID string, operationID string) (CancellationResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return CancellationResult{}, err
	}
	operationID = strings.TrimSpace(operationID)
	if operationID == "" {
		return CancellationResult{}, fmt.Errorf("core: operation id is required")
	}

	current, found, err := s.operationStore.Get(ctx, operationID)
	if err != nil {
		return CancellationResult{}, storageFailure("get_operation", err)
	}
	if !found || current.UserID != userID {
		return CancellationResult{}, fmt.Errorf("%w: id %q", ErrOperationNotFound, operationID)
	}
	if current.Status.Terminal() {
		return CancellationResult{}, &AlreadyFinalError{OperationID: operationID, CurrentStatus: current.Status}
	}

	// The operation is moved first so a lost race with the executor leaves
	// no cancellation record behind.
	now := s.clock()
	cancelledAt := now.Format(time.RFC3339)
	next := current.Clone()
	next.Status = OperationStatusCancelled
	next.Metadata = mergeAnyMap(current.Metadata, map[string]any{
		"cancelled_by":    userID,
		"cancelled_at":    cancelledAt,
		"previous_status": string(current.Status),
	})
	next.UpdatedAt = now
	updated, err := s.operationStore.Update(ctx, next)
	if err != nil {
		var finalErr *AlreadyFinalError
		if errors.As(err, &finalErr) {
			return CancellationResult{}, err
		}
		return CancellationResult{}, storageFailure("update_operation", err)
	}

	cancellation, err := s.cancellationStore.Create(ctx, CancellationRecord{
		UserID:      userID,
		OperationID: operationID,
		RequestType: CancellationRequestType,
		Status:      CancellationStatusPending,
		Metadata:    map[string]any{"cancelled_at": cancelledAt},
		RequestedAt: now,
	})
	if err != nil {
		// The operation is already cancelled, which executors also observe.
		s.logWarn(ctx, "record cancellation failed", map[string]any{
			"operation_id": operationID,
			"error":        err.Error(),
		})
		return CancellationResult{Operation: updated}, nil
	}
	return CancellationResult{Cancellation: cancellation, Operation: updated}, nil
}

// IsCancellationRequested lets executors check for cancellation intent.
func (s *Service) IsCancellationRequested(ctx context.Context, operationID string) (bool, error) {
	operationID = strings.TrimSpace(operationID)
	records, err := s.cancellationStore.FindByOperation(ctx, operationID)
	if err != nil {
		return false, s.mapError(storageFailure("find_cancellations", err))
	}
	if len(records) > 0 {
		return true, nil
	}
	status, found, err := s.GetOperationStatus(ctx, operationID)
	if err != nil {
		return false, err
	}
	return found && status == OperationStatusCancelled, nil
}
