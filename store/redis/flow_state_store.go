// Package redisstore keeps pending OAuth flow state in Redis so callbacks can
// land on any instance of the service.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "go-integrations::flow_state::v1"

// Client is the subset of redis.Cmdable the store needs.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type FlowStateStore struct {
	client    Client
	ttl       time.Duration
	keyPrefix string
	now       func() time.Time
}

type Option func(*FlowStateStore)

func WithKeyPrefix(prefix string) Option {
	return func(s *FlowStateStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *FlowStateStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewFlowStateStore(client Client, ttl time.Duration, opts ...Option) (*FlowStateStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: client is required")
	}
	if ttl <= 0 {
		ttl = core.DefaultFlowStateTTL
	}
	store := &FlowStateStore{
		client:    client,
		ttl:       ttl,
		keyPrefix: defaultKeyPrefix,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

type flowStatePayload struct {
	UserID        string         `json:"user_id"`
	ServiceName   string         `json:"service_name"`
	State         string         `json:"state"`
	CodeVerifier  string         `json:"code_verifier,omitempty"`
	RedirectURI   string         `json:"redirect_uri,omitempty"`
	Reconnect     bool           `json:"reconnect,omitempty"`
	IntegrationID string         `json:"integration_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

// Save overwrites any pending state for the same user and service. The key
// expires with the flow so abandoned attempts clean themselves up.
func (s *FlowStateStore) Save(ctx context.Context, state core.FlowState) error {
	key := core.NewCredentialKey(state.UserID, state.ServiceName)
	if err := key.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(state.State) == "" {
		return fmt.Errorf("redisstore: flow state value is required")
	}
	now := s.now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	if state.ExpiresAt.IsZero() {
		state.ExpiresAt = state.CreatedAt.Add(s.ttl)
	}
	expiration := state.ExpiresAt.Sub(now)
	if expiration <= 0 {
		return fmt.Errorf("redisstore: flow state already expired")
	}

	encoded, err := json.Marshal(flowStatePayload{
		UserID:        key.UserID,
		ServiceName:   key.ServiceName,
		State:         state.State,
		CodeVerifier:  state.CodeVerifier,
		RedirectURI:   state.RedirectURI,
		Reconnect:     state.Reconnect,
		IntegrationID: state.IntegrationID,
		Metadata:      state.Metadata,
		CreatedAt:     state.CreatedAt.UTC(),
		ExpiresAt:     state.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("redisstore: encode flow state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), encoded, expiration).Err(); err != nil {
		return err
	}
	return s.client.Set(ctx, s.stateKey(key.ServiceName, state.State), key.UserID, expiration).Err()
}

// Consume uses GETDEL so a state value is handed out at most once even when
// two callbacks race.
func (s *FlowStateStore) Consume(ctx context.Context, userID string, serviceName string, state string) (core.FlowState, error) {
	key := core.NewCredentialKey(userID, serviceName)
	if strings.TrimSpace(state) != "" {
		if err := s.client.Del(ctx, s.stateKey(key.ServiceName, state)).Err(); err != nil {
			return core.FlowState{}, fmt.Errorf("redisstore: consume flow state index: %w", err)
		}
	}
	raw, err := s.client.GetDel(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.CheckConsumedFlowState(core.FlowState{}, false, state, s.now())
		}
		return core.FlowState{}, fmt.Errorf("redisstore: consume flow state: %w", err)
	}

	payload := flowStatePayload{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return core.FlowState{}, fmt.Errorf("redisstore: decode flow state: %w", err)
	}
	record := core.FlowState{
		UserID:        payload.UserID,
		ServiceName:   payload.ServiceName,
		State:         payload.State,
		CodeVerifier:  payload.CodeVerifier,
		RedirectURI:   payload.RedirectURI,
		Reconnect:     payload.Reconnect,
		IntegrationID: payload.IntegrationID,
		Metadata:      payload.Metadata,
		CreatedAt:     payload.CreatedAt,
		ExpiresAt:     payload.ExpiresAt,
	}
	return core.CheckConsumedFlowState(record, true, state, s.now())
}

// ConsumeByState reads the owner from the state index key written by Save and
// then consumes the flow as Consume does. The index key is removed with
// GETDEL so only one callback can resolve it.
func (s *FlowStateStore) ConsumeByState(ctx context.Context, serviceName string, state string) (core.FlowState, error) {
	if strings.TrimSpace(state) == "" {
		return core.CheckConsumedFlowState(core.FlowState{}, false, state, s.now())
	}
	serviceName = core.NewCredentialKey("", serviceName).ServiceName
	userID, err := s.client.GetDel(ctx, s.stateKey(serviceName, state)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.CheckConsumedFlowState(core.FlowState{}, false, state, s.now())
		}
		return core.FlowState{}, fmt.Errorf("redisstore: resolve flow state: %w", err)
	}
	return s.Consume(ctx, userID, serviceName, state)
}

// Discard leaves the state index key to expire on its own; a stale index
// resolves to a missing flow and is rejected as an invalid state.
func (s *FlowStateStore) Discard(ctx context.Context, userID string, serviceName string) error {
	return s.client.Del(ctx, s.key(core.NewCredentialKey(userID, serviceName))).Err()
}

func (s *FlowStateStore) key(key core.CredentialKey) string {
	return s.keyPrefix + "::" + url.PathEscape(key.UserID) + "::" + url.PathEscape(key.ServiceName)
}

func (s *FlowStateStore) stateKey(serviceName, state string) string {
	return s.keyPrefix + "::state::" + url.PathEscape(serviceName) + "::" + url.PathEscape(strings.TrimSpace(state))
}

var _ core.FlowStateStore = (*FlowStateStore)(nil)
