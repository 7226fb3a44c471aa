package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDOperationExecute = "integrations.operation.execute"
	JobIDRefreshDue       = "integrations.refresh.due"

	scriptPathPrefix = "integrations/operations/"
)

// RetryPolicy bounds how often a failed operation job is requeued.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt clamps the nack delay and stops requeueing at MaxAttempts.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// OperationMessage packs an execution request into a queue message keyed by
// the operation id so a redelivered request is recognisable.
func OperationMessage(req core.ExecutionRequest) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:      JobIDOperationExecute,
		ScriptPath: scriptPathPrefix + strings.TrimSpace(req.Type),
		Parameters: map[string]any{
			"operation_id": strings.TrimSpace(req.OperationID),
			"user_id":      strings.TrimSpace(req.UserID),
			"type":         strings.TrimSpace(req.Type),
			"payload":      copyAnyMap(req.Payload),
		},
		IdempotencyKey: strings.TrimSpace(req.OperationID),
	}
}

// ExecutionRequestFromMessage reverses OperationMessage.
func ExecutionRequestFromMessage(msg *core.JobExecutionMessage) (core.ExecutionRequest, error) {
	if msg == nil {
		return core.ExecutionRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	if msg.JobID != JobIDOperationExecute {
		return core.ExecutionRequest{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	req := core.ExecutionRequest{
		OperationID: stringParam(msg.Parameters, "operation_id"),
		UserID:      stringParam(msg.Parameters, "user_id"),
		Type:        stringParam(msg.Parameters, "type"),
	}
	if payload, ok := msg.Parameters["payload"].(map[string]any); ok {
		req.Payload = copyAnyMap(payload)
	} else {
		req.Payload = map[string]any{}
	}
	if req.OperationID == "" {
		return core.ExecutionRequest{}, fmt.Errorf("gojob: message %q has no operation id", msg.IdempotencyKey)
	}
	return req, nil
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

// Executor hands operations to a go-job queue instead of running them in
// process. Service.DispatchOperation returns once the message is enqueued.
type Executor struct {
	enqueuer core.JobEnqueuer
}

func NewExecutor(enqueuer core.JobEnqueuer) *Executor {
	return &Executor{enqueuer: enqueuer}
}

func (e *Executor) Execute(ctx context.Context, req core.ExecutionRequest) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: executor enqueuer is not configured")
	}
	return e.enqueuer.Enqueue(ctx, OperationMessage(req))
}

// Worker pulls operation messages and runs them on a local executor,
// acking on success and nacking through the retry policy otherwise.
type Worker struct {
	dequeuer queue.Dequeuer
	executor core.Executor
	policy   RetryPolicy
	hook     worker.Hook
	retry    time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

type WorkerOption func(*Worker)

func WithWorkerHook(hook worker.Hook) WorkerOption {
	return func(w *Worker) {
		w.hook = hook
	}
}

// WithRetryDelay sets the delay requested on each nack before the policy
// clamps it.
func WithRetryDelay(delay time.Duration) WorkerOption {
	return func(w *Worker) {
		w.retry = delay
	}
}

func NewWorker(dequeuer queue.Dequeuer, executor core.Executor, policy RetryPolicy, opts ...WorkerOption) *Worker {
	w := &Worker{
		dequeuer: dequeuer,
		executor: executor,
		policy:   policy,
		retry:    time.Second,
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// ProcessNext handles a single delivery. The returned error is the
// executor's; queue acknowledgement errors are joined to it.
func (w *Worker) ProcessNext(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.executor == nil {
		return fmt.Errorf("gojob: worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	msg := delivery.Message()
	key := ""
	if msg != nil {
		key = msg.IdempotencyKey
	}
	attempt := w.nextAttempt(key)
	startedAt := time.Now().UTC()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: startedAt}
	w.emit(func(h worker.Hook) { h.OnStart(ctx, event) })

	req, err := ExecutionRequestFromMessage(FromExecutionMessage(msg))
	if err == nil {
		err = w.executor.Execute(ctx, req)
	}
	event.Duration = time.Since(startedAt)

	if err == nil {
		w.clearAttempts(key)
		w.emit(func(h worker.Hook) { h.OnSuccess(ctx, event) })
		return delivery.Ack(ctx)
	}

	event.Err = err
	opts := w.policy.NormalizeAttempt(queue.NackOptions{
		Delay:   w.retry,
		Requeue: true,
		Reason:  err.Error(),
	}, attempt)
	event.Delay = opts.Delay
	if opts.Requeue {
		w.emit(func(h worker.Hook) { h.OnRetry(ctx, event) })
	} else {
		w.clearAttempts(key)
		w.emit(func(h worker.Hook) { h.OnFailure(ctx, event) })
	}
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return errors.Join(err, nackErr)
	}
	return err
}

// Run processes deliveries until ctx is cancelled. Execution failures are
// reported through the hook and do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

func (w *Worker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) clearAttempts(key string) {
	w.mu.Lock()
	delete(w.attempts, key)
	w.mu.Unlock()
}

func (w *Worker) emit(fn func(worker.Hook)) {
	if w.hook != nil {
		fn(w.hook)
	}
}

// WorkerHookAdapter forwards go-job worker events to a core.JobWorkerHook.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.Executor    = (*Executor)(nil)
	_ worker.Hook      = (*WorkerHookAdapter)(nil)
)
