package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// OperationFailureRecorder marks an operation failed after its executor
// returned an error.
type OperationFailureRecorder interface {
	MarkOperationFailed(ctx context.Context, id string, cause error) error
}

type DispatchError struct {
	OperationID string
	Type        string
	Err         error
	At          time.Time
}

func (e DispatchError) Error() string {
	return fmt.Sprintf("operation %s (%s): %v", e.OperationID, e.Type, e.Err)
}

func (e DispatchError) Unwrap() error {
	return e.Err
}

type DispatcherOption func(*Dispatcher)

func WithDispatchWorkers(workers int) DispatcherOption {
	return func(d *Dispatcher) {
		if workers > 0 {
			d.workers = workers
		}
	}
}

func WithDispatchErrorBuffer(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size > 0 {
			d.bufferSize = size
		}
	}
}

func WithDispatchLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher runs executor calls on a bounded pool. Callers only wait for
// pool admission; failures are recorded on the operation and published on
// Errors.
type Dispatcher struct {
	executor   Executor
	recorder   OperationFailureRecorder
	logger     Logger
	workers    int
	bufferSize int

	group     errgroup.Group
	errs      chan DispatchError
	admission sync.RWMutex
	closed    bool
	failures  atomic.Int64
	mu        sync.Mutex
	draining  bool
	drainErr  error
	once      sync.Once
}

func NewDispatcher(executor Executor, recorder OperationFailureRecorder, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		executor:   executor,
		recorder:   recorder,
		logger:     glog.Nop(),
		workers:    DefaultDispatchWorkers,
		bufferSize: DefaultDispatchErrorBuffer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.group.SetLimit(d.workers)
	d.errs = make(chan DispatchError, d.bufferSize)
	return d
}

// Errors publishes executor failures. Events are dropped when the buffer is
// full; the operation record still carries the failure.
func (d *Dispatcher) Errors() <-chan DispatchError {
	return d.errs
}

func (d *Dispatcher) Dispatch(ctx context.Context, record OperationRecord, payload map[string]any) error {
	if d == nil || d.executor == nil {
		return ErrExecutorNotConfigured
	}
	d.admission.RLock()
	defer d.admission.RUnlock()
	if d.closed {
		return fmt.Errorf("core: dispatcher is closed")
	}

	req := ExecutionRequest{
		OperationID: record.ID,
		UserID:      record.UserID,
		Type:        record.Type,
		Payload:     copyAnyMap(payload),
	}
	taskCtx := context.WithoutCancel(ctx)
	d.group.Go(func() error {
		if err := d.executor.Execute(taskCtx, req); err != nil {
			d.fail(taskCtx, req, err)
		}
		return nil
	})
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, req ExecutionRequest, err error) {
	d.logger.Error("operation execution failed", "operation_id", req.OperationID, "operation_type", req.Type, "error", err)

	d.failures.Add(1)
	d.mu.Lock()
	if d.draining {
		d.drainErr = multierr.Append(d.drainErr, err)
	}
	d.mu.Unlock()

	if d.recorder != nil {
		if markErr := d.recorder.MarkOperationFailed(ctx, req.OperationID, err); markErr != nil {
			d.logger.Warn("mark operation failed", "operation_id", req.OperationID, "error", markErr)
		}
	}

	event := DispatchError{OperationID: req.OperationID, Type: req.Type, Err: err, At: time.Now().UTC()}
	select {
	case d.errs <- event:
	default:
		d.logger.Warn("dispatch error buffer full, dropping event", "operation_id", req.OperationID)
	}
}

// Failures counts executor failures since the dispatcher was created.
func (d *Dispatcher) Failures() int64 {
	if d == nil {
		return 0
	}
	return d.failures.Load()
}

// Close stops admission and waits for in-flight executions. It returns the
// executor failures observed while draining, or ctx's error if waiting is cut
// short. Earlier failures were already reported through Errors.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.admission.Lock()
	d.closed = true
	d.admission.Unlock()
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		d.once.Do(func() { close(d.errs) })
		close(waited)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waited:
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drainErr
}
