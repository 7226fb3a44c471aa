package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryIntegrationStore is a process-local IntegrationStore keyed uniquely
// on user and service.
type MemoryIntegrationStore struct {
	mu        sync.RWMutex
	byID      map[string]IntegrationRecord
	byUserSvc map[CredentialKey]string
}

func NewMemoryIntegrationStore() *MemoryIntegrationStore {
	return &MemoryIntegrationStore{
		byID:      map[string]IntegrationRecord{},
		byUserSvc: map[CredentialKey]string{},
	}
}

func (s *MemoryIntegrationStore) Upsert(_ context.Context, in UpsertIntegrationInput) (IntegrationRecord, error) {
	key := NewCredentialKey(in.UserID, in.ServiceName)
	if err := key.Validate(); err != nil {
		return IntegrationRecord{}, err
	}
	status := in.Status
	if status == "" {
		status = IntegrationStatusActive
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byUserSvc[key]; ok {
		record := s.byID[id]
		record.Status = status
		record.LastError = strings.TrimSpace(in.LastError)
		if in.Configuration != nil {
			record.Configuration = copyAnyMap(in.Configuration)
		}
		record.UpdatedAt = now
		s.byID[id] = record
		return cloneIntegrationRecord(record), nil
	}
	record := IntegrationRecord{
		ID:            uuid.NewString(),
		UserID:        key.UserID,
		ServiceName:   key.ServiceName,
		Status:        status,
		Credentials:   key,
		Configuration: copyAnyMap(in.Configuration),
		LastError:     strings.TrimSpace(in.LastError),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.byID[record.ID] = record
	s.byUserSvc[key] = record.ID
	return cloneIntegrationRecord(record), nil
}

func (s *MemoryIntegrationStore) Get(_ context.Context, id string) (IntegrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return IntegrationRecord{}, fmt.Errorf("%w: id %q", ErrIntegrationNotFound, id)
	}
	return cloneIntegrationRecord(record), nil
}

func (s *MemoryIntegrationStore) FindByUserService(_ context.Context, userID string, serviceName string) (IntegrationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUserSvc[NewCredentialKey(userID, serviceName)]
	if !ok {
		return IntegrationRecord{}, false, nil
	}
	return cloneIntegrationRecord(s.byID[id]), true, nil
}

func (s *MemoryIntegrationStore) ListByUser(_ context.Context, userID string) ([]IntegrationRecord, error) {
	userID = strings.TrimSpace(userID)
	s.mu.RLock()
	out := make([]IntegrationRecord, 0)
	for _, record := range s.byID {
		if record.UserID == userID {
			out = append(out, cloneIntegrationRecord(record))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceName < out[j].ServiceName })
	return out, nil
}

func (s *MemoryIntegrationStore) UpdateStatus(_ context.Context, id string, status IntegrationStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("%w: id %q", ErrIntegrationNotFound, id)
	}
	record.Status = status
	record.LastError = strings.TrimSpace(reason)
	record.UpdatedAt = time.Now().UTC()
	s.byID[record.ID] = record
	return nil
}

func (s *MemoryIntegrationStore) UpdateConfiguration(_ context.Context, id string, configuration map[string]any) (IntegrationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return IntegrationRecord{}, fmt.Errorf("%w: id %q", ErrIntegrationNotFound, id)
	}
	record.Configuration = mergeAnyMap(record.Configuration, configuration)
	record.UpdatedAt = time.Now().UTC()
	s.byID[record.ID] = record
	return cloneIntegrationRecord(record), nil
}

func (s *MemoryIntegrationStore) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("%w: id %q", ErrIntegrationNotFound, id)
	}
	usedAt := at.UTC()
	record.LastUsedAt = &usedAt
	s.byID[record.ID] = record
	return nil
}

func (s *MemoryIntegrationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("%w: id %q", ErrIntegrationNotFound, id)
	}
	delete(s.byID, record.ID)
	delete(s.byUserSvc, NewCredentialKey(record.UserID, record.ServiceName))
	return nil
}

func cloneIntegrationRecord(record IntegrationRecord) IntegrationRecord {
	cloned := record
	cloned.Configuration = copyAnyMap(record.Configuration)
	if record.LastUsedAt != nil {
		usedAt := *record.LastUsedAt
		cloned.LastUsedAt = &usedAt
	}
	return cloned
}

// MemoryOperationStore enforces terminal-state finality on Update so the
// first terminal writer wins.
type MemoryOperationStore struct {
	mu      sync.RWMutex
	records map[string]OperationRecord
}

func NewMemoryOperationStore() *MemoryOperationStore {
	return &MemoryOperationStore{records: map[string]OperationRecord{}}
}

func (s *MemoryOperationStore) Create(_ context.Context, record OperationRecord) (OperationRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return OperationRecord{}, fmt.Errorf("core: operation id is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return OperationRecord{}, fmt.Errorf("%w: id %q", ErrOperationExists, record.ID)
	}
	s.records[record.ID] = record.Clone()
	return record.Clone(), nil
}

func (s *MemoryOperationStore) Get(_ context.Context, id string) (OperationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return OperationRecord{}, false, nil
	}
	return record.Clone(), true, nil
}

func (s *MemoryOperationStore) Update(_ context.Context, record OperationRecord) (OperationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[strings.TrimSpace(record.ID)]
	if !ok {
		return OperationRecord{}, fmt.Errorf("%w: id %q", ErrOperationNotFound, record.ID)
	}
	if current.Status.Terminal() {
		return OperationRecord{}, &AlreadyFinalError{OperationID: current.ID, CurrentStatus: current.Status}
	}
	record.CreatedAt = current.CreatedAt
	record.UserID = current.UserID
	record.Type = current.Type
	record.UpdatedAt = time.Now().UTC()
	s.records[current.ID] = record.Clone()
	return record.Clone(), nil
}

func (s *MemoryOperationStore) ListByUser(_ context.Context, userID string, operationType string) ([]OperationRecord, error) {
	userID = strings.TrimSpace(userID)
	operationType = strings.TrimSpace(operationType)
	s.mu.RLock()
	out := make([]OperationRecord, 0)
	for _, record := range s.records {
		if record.UserID != userID {
			continue
		}
		if operationType != "" && record.Type != operationType {
			continue
		}
		out = append(out, record.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type MemoryCancellationStore struct {
	mu      sync.RWMutex
	records []CancellationRecord
}

func NewMemoryCancellationStore() *MemoryCancellationStore {
	return &MemoryCancellationStore{}
}

func (s *MemoryCancellationStore) Create(_ context.Context, record CancellationRecord) (CancellationRecord, error) {
	if strings.TrimSpace(record.OperationID) == "" {
		return CancellationRecord{}, fmt.Errorf("core: cancellation operation id is required")
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.RequestedAt.IsZero() {
		record.RequestedAt = time.Now().UTC()
	}
	record.Metadata = copyAnyMap(record.Metadata)
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	return record, nil
}

func (s *MemoryCancellationStore) FindByOperation(_ context.Context, operationID string) ([]CancellationRecord, error) {
	operationID = strings.TrimSpace(operationID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CancellationRecord, 0)
	for _, record := range s.records {
		if record.OperationID == operationID {
			cloned := record
			cloned.Metadata = copyAnyMap(record.Metadata)
			out = append(out, cloned)
		}
	}
	return out, nil
}

var (
	_ IntegrationStore  = (*MemoryIntegrationStore)(nil)
	_ OperationStore    = (*MemoryOperationStore)(nil)
	_ CancellationStore = (*MemoryCancellationStore)(nil)
)
