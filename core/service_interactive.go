package core

import (
	"context"
	"fmt"
	"time"
)

type InteractiveResult struct {
	Phase       FlowPhase
	Handle      SurfaceHandle
	UserID      string
	ServiceName string
	State       string
}

// BeginInteractiveAuthorization opens the authorization surface and waits
// until it closes. Closure is polled because the surface gives no push
// signal. Timeout or context cancellation abandons the attempt: the phase
// becomes cancelled, the FlowState is discarded and ErrAuthorizationTimeout
// is returned.
func (s *Service) BeginInteractiveAuthorization(ctx context.Context, auth AuthorizationResponse) (result InteractiveResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":      auth.UserID,
		"service_name": auth.ServiceName,
	}
	defer func() {
		fields["phase"] = string(result.Phase)
		s.observeOperation(ctx, startedAt, "interactive_authorization", err, fields)
	}()

	result, err = s.beginInteractiveAuthorization(ctx, auth)
	if err != nil {
		return result, s.mapError(err)
	}
	return result, nil
}

func (s *Service) beginInteractiveAuthorization(ctx context.Context, auth AuthorizationResponse) (InteractiveResult, error) {
	if s.surface == nil {
		return InteractiveResult{}, ErrSurfaceNotConfigured
	}
	if auth.URL == "" {
		return InteractiveResult{}, fmt.Errorf("core: authorization url is required")
	}
	attempt := NewFlowAttempt(auth.UserID, auth.ServiceName, s.clock())
	result := InteractiveResult{
		Phase:       attempt.Phase,
		UserID:      attempt.UserID,
		ServiceName: attempt.ServiceName,
		State:       auth.State,
	}

	handle, err := s.surface.Open(ctx, auth.URL)
	if err != nil {
		s.discardFlowState(ctx, attempt)
		return result, fmt.Errorf("core: open authorization surface: %w", err)
	}
	_ = attempt.TransitionTo(FlowPhaseAwaitingAuthorization, s.clock())
	result.Phase = attempt.Phase
	result.Handle = handle

	timeout := time.NewTimer(s.config.OAuth.InteractiveTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(s.config.OAuth.ClosePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.abandonAttempt(ctx, attempt, handle)
			result.Phase = attempt.Phase
			return result, fmt.Errorf("%w: %w", ErrAuthorizationTimeout, ctx.Err())
		case <-timeout.C:
			s.abandonAttempt(ctx, attempt, handle)
			result.Phase = attempt.Phase
			return result, fmt.Errorf("%w after %s", ErrAuthorizationTimeout, s.config.OAuth.InteractiveTimeout)
		case <-ticker.C:
			closed, err := s.surface.IsClosed(ctx, handle)
			if err != nil {
				s.abandonAttempt(ctx, attempt, handle)
				result.Phase = attempt.Phase
				return result, fmt.Errorf("core: poll authorization surface: %w", err)
			}
			if closed {
				_ = attempt.TransitionTo(FlowPhaseCodeReceived, s.clock())
				result.Phase = attempt.Phase
				return result, nil
			}
		}
	}
}

func (s *Service) abandonAttempt(ctx context.Context, attempt *FlowAttempt, handle SurfaceHandle) {
	_ = attempt.TransitionTo(FlowPhaseCancelled, s.clock())
	cleanupCtx := context.WithoutCancel(ctx)
	s.discardFlowState(cleanupCtx, attempt)
	if closer, ok := s.surface.(SurfaceCloser); ok {
		if err := closer.Close(cleanupCtx, handle); err != nil {
			s.logWarn(cleanupCtx, "close authorization surface failed", map[string]any{
				"service_name": attempt.ServiceName, "error": err.Error(),
			})
		}
	}
}

func (s *Service) discardFlowState(ctx context.Context, attempt *FlowAttempt) {
	if err := s.flowStateStore.Discard(ctx, attempt.UserID, attempt.ServiceName); err != nil {
		s.logWarn(ctx, "discard flow state failed", map[string]any{
			"user_id": attempt.UserID, "service_name": attempt.ServiceName, "error": err.Error(),
		})
	}
}
