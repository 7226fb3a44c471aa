package asynqjob

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/hibiken/asynq"
)

// CancellationChecker reports whether the user asked to stop an operation.
// core.Service satisfies it.
type CancellationChecker interface {
	IsCancellationRequested(ctx context.Context, operationID string) (bool, error)
}

// Handler runs operation tasks on a local executor.
type Handler struct {
	executor     core.Executor
	cancellation CancellationChecker
	logger       core.Logger
}

type HandlerOption func(*Handler)

// WithCancellationChecker makes the handler drop tasks whose operation was
// cancelled before the worker reached them.
func WithCancellationChecker(checker CancellationChecker) HandlerOption {
	return func(h *Handler) {
		h.cancellation = checker
	}
}

func WithLogger(logger core.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

func NewHandler(executor core.Executor, opts ...HandlerOption) *Handler {
	h := &Handler{executor: executor}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// ProcessTask implements asynq.Handler. Malformed tasks are not retried.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	if h == nil || h.executor == nil {
		return fmt.Errorf("asynqjob: handler executor is not configured")
	}
	req, err := DecodeOperationTask(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if h.cancellation != nil {
		cancelled, err := h.cancellation.IsCancellationRequested(ctx, req.OperationID)
		if err != nil {
			return err
		}
		if cancelled {
			h.log(ctx, "skipping cancelled operation", req)
			return nil
		}
	}
	return h.executor.Execute(ctx, req)
}

func (h *Handler) log(ctx context.Context, message string, req core.ExecutionRequest) {
	if h.logger == nil {
		return
	}
	h.logger.WithContext(ctx).Info(message, "operation_id", req.OperationID, "operation_type", req.Type)
}

func NewServeMux(handler *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeOperationExecute, handler)
	return mux
}

// RetryDelay backs off exponentially from one second, capped at max.
func RetryDelay(max time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		if n < 0 {
			n = 0
		}
		if n > 30 {
			n = 30
		}
		delay := time.Duration(1<<uint(n)) * time.Second
		if max > 0 && delay > max {
			delay = max
		}
		return delay
	}
}

var _ asynq.Handler = (*Handler)(nil)
