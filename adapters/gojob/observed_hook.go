package gojob

import (
	"context"
	"strconv"

	"github.com/goliatone/go-integrations/core"
)

// ObservedHook logs worker lifecycle events and counts them as
// integrations.job.<event>.total.
type ObservedHook struct {
	logger  core.Logger
	metrics core.MetricsRecorder
}

func NewObservedHook(logger core.Logger, metrics core.MetricsRecorder) *ObservedHook {
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &ObservedHook{logger: logger, metrics: metrics}
}

func (h *ObservedHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.observe(ctx, "start", "info", event)
}

func (h *ObservedHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.observe(ctx, "success", "info", event)
	if h != nil {
		h.metrics.ObserveHistogram(ctx, "integrations.job.duration_ms", float64(event.Duration.Milliseconds()), eventTags(event))
	}
}

func (h *ObservedHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.observe(ctx, "failure", "error", event)
}

func (h *ObservedHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.observe(ctx, "retry", "warn", event)
}

func (h *ObservedHook) observe(ctx context.Context, name string, level string, event core.JobWorkerEvent) {
	if h == nil {
		return
	}
	h.metrics.IncCounter(ctx, "integrations.job."+name+".total", 1, eventTags(event))
	if h.logger == nil {
		return
	}
	logger := h.logger.WithContext(ctx)
	args := []any{"attempt", event.Attempt}
	if event.Message != nil {
		args = append(args,
			"job_id", event.Message.JobID,
			"operation_id", event.Message.IdempotencyKey,
		)
	}
	if event.Delay > 0 {
		args = append(args, "delay", event.Delay.String())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	message := "integrations job " + name
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func eventTags(event core.JobWorkerEvent) map[string]string {
	tags := map[string]string{"attempt": strconv.Itoa(event.Attempt)}
	if event.Message != nil {
		tags["job_id"] = event.Message.JobID
		if kind := stringParam(event.Message.Parameters, "type"); kind != "" {
			tags["type"] = kind
		}
	}
	return tags
}

var _ core.JobWorkerHook = (*ObservedHook)(nil)
