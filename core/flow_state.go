package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryFlowStateStore keeps one FlowState per user and service in a
// size-bounded LRU whose entries expire after the configured TTL. A second
// index maps each outstanding state value back to its owner so callbacks can
// be completed without the caller's identity.
type MemoryFlowStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries *expirable.LRU[string, FlowState]

	indexMu sync.Mutex
	byState map[string]string
}

func NewMemoryFlowStateStore(ttl time.Duration, capacity int) *MemoryFlowStateStore {
	if ttl <= 0 {
		ttl = DefaultFlowStateTTL
	}
	if capacity <= 0 {
		capacity = DefaultFlowStateCapacity
	}
	store := &MemoryFlowStateStore{
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		byState: map[string]string{},
	}
	store.entries = expirable.NewLRU[string, FlowState](capacity, store.unindex, ttl)
	return store
}

func flowStateKey(userID, serviceName string) string {
	return NewCredentialKey(userID, serviceName).String()
}

func stateIndexKey(serviceName, state string) string {
	return normalizeServiceName(serviceName) + "::" + strings.TrimSpace(state)
}

// unindex runs on every removal from the LRU, including expiry and capacity
// eviction.
func (s *MemoryFlowStateStore) unindex(key string, record FlowState) {
	indexKey := stateIndexKey(record.ServiceName, record.State)
	s.indexMu.Lock()
	if s.byState[indexKey] == key {
		delete(s.byState, indexKey)
	}
	s.indexMu.Unlock()
}

// Save replaces any unconsumed FlowState for the same user and service.
func (s *MemoryFlowStateStore) Save(_ context.Context, state FlowState) error {
	if s == nil || s.entries == nil {
		return fmt.Errorf("core: flow state store is not configured")
	}
	if err := validateFlowState(state); err != nil {
		return err
	}
	now := s.now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	if state.ExpiresAt.IsZero() {
		state.ExpiresAt = state.CreatedAt.Add(s.ttl)
	}

	key := flowStateKey(state.UserID, state.ServiceName)
	record := cloneFlowState(state)

	s.mu.Lock()
	if previous, ok := s.entries.Peek(key); ok {
		s.unindex(key, previous)
	}
	s.entries.Add(key, record)
	s.indexMu.Lock()
	s.byState[stateIndexKey(record.ServiceName, record.State)] = key
	s.indexMu.Unlock()
	s.mu.Unlock()
	return nil
}

func (s *MemoryFlowStateStore) Consume(_ context.Context, userID string, serviceName string, state string) (FlowState, error) {
	if s == nil || s.entries == nil {
		return FlowState{}, fmt.Errorf("core: flow state store is not configured")
	}
	key := flowStateKey(userID, serviceName)

	s.mu.Lock()
	record, ok := s.entries.Get(key)
	if ok {
		s.entries.Remove(key)
	}
	s.mu.Unlock()

	return checkConsumedFlowState(record, ok, state, s.now())
}

// ConsumeByState resolves the owner of a pending flow from the state value
// alone and consumes it. Unknown states fail with ErrInvalidState.
func (s *MemoryFlowStateStore) ConsumeByState(_ context.Context, serviceName string, state string) (FlowState, error) {
	if s == nil || s.entries == nil {
		return FlowState{}, fmt.Errorf("core: flow state store is not configured")
	}
	if strings.TrimSpace(state) == "" {
		return checkConsumedFlowState(FlowState{}, false, state, s.now())
	}
	s.indexMu.Lock()
	key, ok := s.byState[stateIndexKey(serviceName, state)]
	s.indexMu.Unlock()
	if !ok {
		return checkConsumedFlowState(FlowState{}, false, state, s.now())
	}

	s.mu.Lock()
	record, found := s.entries.Get(key)
	if found {
		s.entries.Remove(key)
	}
	s.mu.Unlock()

	return checkConsumedFlowState(record, found, state, s.now())
}

func (s *MemoryFlowStateStore) Discard(_ context.Context, userID string, serviceName string) error {
	if s == nil || s.entries == nil {
		return fmt.Errorf("core: flow state store is not configured")
	}
	s.mu.Lock()
	s.entries.Remove(flowStateKey(userID, serviceName))
	s.mu.Unlock()
	return nil
}

func (s *MemoryFlowStateStore) Len() int {
	if s == nil || s.entries == nil {
		return 0
	}
	return s.entries.Len()
}

// CheckConsumedFlowState validates a record that has already been removed
// from its store. Shared by every FlowStateStore implementation.
func CheckConsumedFlowState(record FlowState, found bool, state string, now time.Time) (FlowState, error) {
	return checkConsumedFlowState(record, found, state, now)
}

func checkConsumedFlowState(record FlowState, found bool, state string, now time.Time) (FlowState, error) {
	if !found {
		return FlowState{}, fmt.Errorf("%w: %w", ErrInvalidState, ErrFlowStateNotFound)
	}
	if record.Expired(now) {
		return FlowState{}, fmt.Errorf("%w: flow state expired", ErrInvalidState)
	}
	if !statesEqual(record.State, state) {
		return FlowState{}, fmt.Errorf("%w: state mismatch", ErrInvalidState)
	}
	return cloneFlowState(record), nil
}

func validateFlowState(state FlowState) error {
	if strings.TrimSpace(state.UserID) == "" {
		return fmt.Errorf("core: flow state user id is required")
	}
	if strings.TrimSpace(state.ServiceName) == "" {
		return fmt.Errorf("core: flow state service name is required")
	}
	if strings.TrimSpace(state.State) == "" {
		return fmt.Errorf("core: flow state value is required")
	}
	return nil
}

func cloneFlowState(state FlowState) FlowState {
	cloned := state
	cloned.UserID = strings.TrimSpace(state.UserID)
	cloned.ServiceName = normalizeServiceName(state.ServiceName)
	cloned.Metadata = copyAnyMap(state.Metadata)
	return cloned
}

var _ FlowStateStore = (*MemoryFlowStateStore)(nil)
