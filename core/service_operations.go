package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// NewOperationID returns "<prefix>-<unix ms>-<9 random chars>".
func NewOperationID(prefix string) string {
	prefix = strings.Trim(strings.ReplaceAll(strings.TrimSpace(prefix), "_", "-"), "-")
	if prefix == "" {
		prefix = "op"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), suffix)
}

// CreateOperation registers a pending operation before any work is delegated.
func (s *Service) CreateOperation(ctx context.Context, req CreateOperationRequest) (record OperationRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":        strings.TrimSpace(req.UserID),
		"operation_type": strings.TrimSpace(req.Type),
	}
	defer func() {
		fields["operation_id"] = record.ID
		s.observeOperation(ctx, startedAt, "create_operation", err, fields)
	}()

	record, err = s.createOperation(ctx, req)
	if err != nil {
		return OperationRecord{}, s.mapError(err)
	}
	return record, nil
}

func (s *Service) createOperation(ctx context.Context, req CreateOperationRequest) (OperationRecord, error) {
	userID, err := requireUser(req.UserID)
	if err != nil {
		return OperationRecord{}, err
	}
	operationType := strings.TrimSpace(req.Type)
	if operationType == "" {
		return OperationRecord{}, s.errorFactory("operation type is required", goerrors.CategoryValidation).
			WithTextCode(ServiceErrorBadInput)
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = NewOperationID(operationType)
	}
	now := s.clock()
	record, err := s.operationStore.Create(ctx, OperationRecord{
		ID:        id,
		UserID:    userID,
		Type:      operationType,
		Status:    OperationStatusPending,
		Metadata:  copyAnyMap(req.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, ErrOperationExists) {
			return OperationRecord{}, err
		}
		return OperationRecord{}, storageFailure("create_operation", err)
	}
	return record, nil
}

// SetOperationStatus advances an operation and merges the metadata patch.
// Leaving a terminal state is rejected with *AlreadyFinalError and the record
// is left untouched.
func (s *Service) SetOperationStatus(ctx context.Context, update OperationStatusUpdate) (record OperationRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"operation_id": strings.TrimSpace(update.ID),
		"status":       string(update.Status),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "set_operation_status", err, fields)
	}()

	record, err = s.setOperationStatus(ctx, update)
	if err != nil {
		return OperationRecord{}, s.mapError(err)
	}
	return record, nil
}

func (s *Service) setOperationStatus(ctx context.Context, update OperationStatusUpdate) (OperationRecord, error) {
	id := strings.TrimSpace(update.ID)
	if id == "" {
		return OperationRecord{}, fmt.Errorf("core: operation id is required")
	}
	status, err := ParseOperationStatus(string(update.Status))
	if err != nil {
		return OperationRecord{}, err
	}
	current, found, err := s.operationStore.Get(ctx, id)
	if err != nil {
		return OperationRecord{}, storageFailure("get_operation", err)
	}
	if !found {
		return OperationRecord{}, fmt.Errorf("%w: id %q", ErrOperationNotFound, id)
	}
	if current.Status.Terminal() {
		return OperationRecord{}, &AlreadyFinalError{OperationID: id, CurrentStatus: current.Status}
	}

	next := current.Clone()
	next.Status = status
	next.Metadata = mergeAnyMap(current.Metadata, update.MetadataPatch)
	next.UpdatedAt = s.clock()
	updated, err := s.operationStore.Update(ctx, next)
	if err != nil {
		var finalErr *AlreadyFinalError
		if errors.As(err, &finalErr) {
			return OperationRecord{}, err
		}
		return OperationRecord{}, storageFailure("update_operation", err)
	}
	return updated, nil
}

// GetOperationStatus reports absence through ok rather than an error so
// pollers can tell "not yet visible" from a fault.
func (s *Service) GetOperationStatus(ctx context.Context, id string) (OperationStatus, bool, error) {
	record, found, err := s.operationStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return "", false, s.mapError(storageFailure("get_operation", err))
	}
	if !found {
		return "", false, nil
	}
	return record.Status, true, nil
}

func (s *Service) GetOperation(ctx context.Context, id string) (OperationRecord, bool, error) {
	record, found, err := s.operationStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return OperationRecord{}, false, s.mapError(storageFailure("get_operation", err))
	}
	return record, found, nil
}

func (s *Service) ListOperations(ctx context.Context, userID string, operationType string) ([]OperationRecord, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	records, err := s.operationStore.ListByUser(ctx, userID, operationType)
	if err != nil {
		return nil, s.mapError(storageFailure("list_operations", err))
	}
	return records, nil
}

// DispatchOperation hands an existing operation to the executor pool.
func (s *Service) DispatchOperation(ctx context.Context, id string, payload map[string]any) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"operation_id": strings.TrimSpace(id)}
	defer func() {
		s.observeOperation(ctx, startedAt, "dispatch_operation", err, fields)
	}()

	record, found, err := s.operationStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return s.mapError(storageFailure("get_operation", err))
	}
	if !found {
		return s.mapError(fmt.Errorf("%w: id %q", ErrOperationNotFound, id))
	}
	fields["operation_type"] = record.Type
	return s.mapError(s.dispatcher.Dispatch(ctx, record, payload))
}

type TriggerAutomationRequest struct {
	UserID       string
	AutomationID string
	Payload      map[string]any
}

// TriggerAutomation records a manual automation run and dispatches it.
func (s *Service) TriggerAutomation(ctx context.Context, req TriggerAutomationRequest) (record OperationRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":        strings.TrimSpace(req.UserID),
		"operation_type": OperationTypeAutomationManual,
	}
	defer func() {
		fields["operation_id"] = record.ID
		s.observeOperation(ctx, startedAt, "trigger_automation", err, fields)
	}()

	automationID := strings.TrimSpace(req.AutomationID)
	if automationID == "" {
		return OperationRecord{}, s.mapError(fmt.Errorf("core: automation id is required"))
	}
	userID := strings.TrimSpace(req.UserID)
	triggerData := map[string]any{
		"trigger_type": "manual",
		"triggered_at": s.clock().Format(time.RFC3339),
		"triggered_by": userID,
	}
	record, err = s.createOperation(ctx, CreateOperationRequest{
		ID:     NewOperationID("automation-" + automationID),
		UserID: userID,
		Type:   OperationTypeAutomationManual,
		Metadata: map[string]any{
			"automation_id": automationID,
			"trigger_data":  triggerData,
		},
	})
	if err != nil {
		return OperationRecord{}, s.mapError(err)
	}
	payload := copyAnyMap(req.Payload)
	payload["automation_id"] = automationID
	payload["trigger_data"] = triggerData
	if err := s.dispatcher.Dispatch(ctx, record, payload); err != nil {
		return record, s.mapError(err)
	}
	return record, nil
}

// MarkOperationFailed records an executor failure on a non-terminal
// operation. Operations already final are left alone.
func (s *Service) MarkOperationFailed(ctx context.Context, id string, cause error) error {
	message := "executor failed"
	if cause != nil {
		message = cause.Error()
	}
	_, err := s.setOperationStatus(ctx, OperationStatusUpdate{
		ID:     id,
		Status: OperationStatusFailed,
		MetadataPatch: map[string]any{
			"error":           truncateBody(message),
			"error_timestamp": s.clock().Format(time.RFC3339),
		},
	})
	if errors.Is(err, ErrAlreadyFinal) {
		return nil
	}
	return err
}
