package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
)

const (
	defaultRefreshMaxAttempts    = 3
	defaultRefreshInitialBackoff = 500 * time.Millisecond
	defaultRefreshMaxBackoff     = 10 * time.Second
	defaultRefreshLockTTL        = 30 * time.Second
)

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// CredentialLocker serializes background refreshes of one credential.
type CredentialLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

type RefreshBackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultRefreshInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultRefreshMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type RefreshRunResult struct {
	Attempts int
	// Failed is set when retries were exhausted or the error was not
	// retryable; the integration has been moved to failed.
	Failed bool
}

type RefreshRunOptions struct {
	MaxAttempts int
	LockTTL     time.Duration
}

// RunRefreshWithRetry is the background counterpart of GetValidAccessToken:
// it retries with backoff under a per-credential lock and moves the
// integration to failed once retries are exhausted.
func (s *Service) RunRefreshWithRetry(ctx context.Context, key CredentialKey, opts RefreshRunOptions) (RefreshRunResult, error) {
	if s == nil {
		return RefreshRunResult{}, fmt.Errorf("core: service is nil")
	}
	key = NewCredentialKey(key.UserID, key.ServiceName)
	if err := key.Validate(); err != nil {
		return RefreshRunResult{}, s.mapError(err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultRefreshMaxAttempts
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultRefreshLockTTL
	}

	unlock := func() {}
	if s.credentialLocker != nil {
		lockHandle, lockErr := s.credentialLocker.Acquire(ctx, key.String(), lockTTL)
		if lockErr != nil {
			return RefreshRunResult{}, s.mapError(lockErr)
		}
		unlock = func() {
			_ = lockHandle.Unlock(ctx)
		}
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := s.refreshTokens(ctx, key)
		if err == nil {
			return RefreshRunResult{Attempts: attempt}, nil
		}
		lastErr = err

		if isUnrecoverableRefreshError(err) || attempt == maxAttempts {
			s.markIntegrationFailed(ctx, key, err)
			return RefreshRunResult{Attempts: attempt, Failed: true}, s.mapError(err)
		}

		delay := defaultRefreshInitialBackoff
		if s.refreshScheduler != nil {
			delay = s.refreshScheduler.NextDelay(attempt)
		}
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return RefreshRunResult{Attempts: attempt}, s.mapError(waitErr)
		}
	}

	return RefreshRunResult{Attempts: maxAttempts}, s.mapError(lastErr)
}

// RefreshDue refreshes every active integration of the user whose token
// expires inside the refresh buffer. Failures are collected per service.
func (s *Service) RefreshDue(ctx context.Context, userID string, opts RefreshRunOptions) (map[string]RefreshRunResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	records, err := s.integrationStore.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapError(storageFailure("list_integrations", err))
	}
	results := map[string]RefreshRunResult{}
	var combined error
	for _, record := range records {
		if record.Status != IntegrationStatusActive {
			continue
		}
		key := NewCredentialKey(record.UserID, record.ServiceName)
		tokens, found, loadErr := s.credentialStore.Load(ctx, key)
		if loadErr != nil {
			combined = multierr.Append(combined, storageFailure("load_credentials", loadErr))
			continue
		}
		if !found || !tokens.HasRefreshToken() || !s.needsRefresh(tokens) {
			continue
		}
		result, runErr := s.RunRefreshWithRetry(ctx, key, opts)
		results[record.ServiceName] = result
		if runErr != nil {
			combined = multierr.Append(combined, runErr)
		}
	}
	return results, combined
}

// isUnrecoverableRefreshError reports token endpoint answers that retrying
// will not fix.
func isUnrecoverableRefreshError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCredentialsNotFound) || errors.Is(err, ErrProviderNotFound) {
		return true
	}
	var refreshErr *RefreshFailedError
	if errors.As(err, &refreshErr) {
		if refreshErr.Status == 400 || refreshErr.Status == 401 || refreshErr.Status == 403 {
			return true
		}
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "no refresh token") ||
		strings.Contains(msg, "invalid refresh token")
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type MemoryCredentialLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryCredentialLocker() *MemoryCredentialLocker {
	return &MemoryCredentialLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryCredentialLocker) Acquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: credential locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: credential key is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = defaultRefreshLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[key]; ok && now.Before(until) {
		return nil, fmt.Errorf("core: refresh lock already held for %q", key)
	}
	l.locks[key] = now.Add(ttl)
	return &memoryLockHandle{locker: l, key: key}, nil
}

type memoryLockHandle struct {
	locker *MemoryCredentialLocker
	key    string
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.key)
		h.locker.mu.Unlock()
	})
	return nil
}
