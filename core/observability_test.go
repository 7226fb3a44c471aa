package core

import (
	"context"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func TestServiceObservability_ConnectSuccess(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(testProvider{id: "github"}); err != nil {
		t.Fatalf("register provider: %v", err)
	}

	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	svc, err := NewService(DefaultConfig(),
		WithRegistry(registry),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Connect(context.Background(), ConnectRequest{
		UserID:      "usr_1",
		ServiceName: "github",
		RedirectURI: "https://app.example/callback",
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if !hasCounter(metrics.counters, "integrations.connect.total", "success") {
		t.Fatalf("expected integrations.connect.total success counter")
	}
	if !hasHistogram(metrics.histograms, "integrations.connect.duration_ms", "success") {
		t.Fatalf("expected integrations.connect.duration_ms histogram")
	}
	if !hasLog(logger.snapshot(), "info", "connect succeeded", "connect") {
		t.Fatalf("expected connect succeeded structured log")
	}
	for _, counter := range metrics.counters {
		if counter.name == "integrations.connect.total" && counter.tags["service_name"] != "github" {
			t.Fatalf("expected service_name tag, got %#v", counter.tags)
		}
	}
}

func TestServiceObservability_SetOperationStatusFailure(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	svc, err := NewService(DefaultConfig(),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.SetOperationStatus(context.Background(), OperationStatusUpdate{
		ID:     "missing",
		Status: OperationStatusCompleted,
	})
	if err == nil {
		t.Fatalf("expected set status error for missing operation")
	}
	if !hasCounter(metrics.counters, "integrations.set_operation_status.total", "failure") {
		t.Fatalf("expected set_operation_status failure counter")
	}
	if !hasLog(logger.snapshot(), "error", "set_operation_status failed", "set_operation_status") {
		t.Fatalf("expected set_operation_status failure log")
	}
	records := logger.snapshot()
	last := records[len(records)-1]
	if last.fields["error_text_code"] != ServiceErrorNotFound {
		t.Fatalf("expected not found text code, got %#v", last.fields["error_text_code"])
	}
}

func TestServiceObservability_EnrichesStructuredErrorFields(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	svc, err := NewService(DefaultConfig(),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	richErr := goerrors.New("token endpoint timeout", goerrors.CategoryExternal).
		WithCode(502).
		WithTextCode(ServiceErrorRefreshFailed).
		WithSeverity(goerrors.SeverityCritical).
		WithMetadata(map[string]any{
			"trace_id":      "trace_123",
			"request_id":    "req_123",
			"refresh_token": "secret_refresh_token",
		})
	svc.observeOperation(
		context.Background(),
		time.Now().UTC().Add(-100*time.Millisecond),
		"refresh",
		richErr,
		map[string]any{"service_name": "github", "access_token": "leak"},
	)

	records := logger.snapshot()
	if len(records) == 0 {
		t.Fatalf("expected logs to be emitted")
	}
	last := records[len(records)-1]
	if last.fields["error_category"] != "external" {
		t.Fatalf("expected error_category external, got %#v", last.fields["error_category"])
	}
	if last.fields["error_text_code"] != ServiceErrorRefreshFailed {
		t.Fatalf("expected error_text_code %q, got %#v", ServiceErrorRefreshFailed, last.fields["error_text_code"])
	}
	if last.fields["error_severity"] != goerrors.SeverityCritical.String() {
		t.Fatalf("expected critical severity, got %#v", last.fields["error_severity"])
	}
	if last.fields["request_id"] != "req_123" {
		t.Fatalf("expected request_id propagation, got %#v", last.fields["request_id"])
	}
	if last.fields["trace_id"] != "trace_123" {
		t.Fatalf("expected trace_id propagation, got %#v", last.fields["trace_id"])
	}
	if last.fields["access_token"] != RedactedValue {
		t.Fatalf("expected access_token field to be redacted, got %#v", last.fields["access_token"])
	}

	metadata, ok := last.fields["error_metadata"].(map[string]any)
	if !ok {
		t.Fatalf("expected redacted error_metadata map, got %#v", last.fields["error_metadata"])
	}
	if metadata["refresh_token"] != RedactedValue {
		t.Fatalf("expected refresh_token to be redacted, got %#v", metadata["refresh_token"])
	}
	if !hasCounter(metrics.counters, "integrations.refresh.total", "failure") {
		t.Fatalf("expected refresh failure counter")
	}
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level {
			continue
		}
		if item.msg != message {
			continue
		}
		if item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}

func TestServiceObservability_CompleteExchangeRecordsPhase(t *testing.T) {
	registry := NewProviderRegistry()
	failing := testProvider{id: "slack", exchange: func(context.Context, CodeExchangeRequest) (TokenResponse, error) {
		return TokenResponse{}, &TokenEndpointError{Status: 400, Body: "invalid_grant"}
	}}
	for _, provider := range []Provider{testProvider{id: "github"}, failing} {
		if err := registry.Register(provider); err != nil {
			t.Fatalf("register provider: %v", err)
		}
	}
	logger := newCaptureLogger()
	svc, err := NewService(DefaultConfig(),
		WithRegistry(registry),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	auth, err := svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "usr_1", ServiceName: "github"})
	if err != nil {
		t.Fatalf("build authorization request: %v", err)
	}
	if _, err := svc.CompleteExchange(ctx, ExchangeRequest{ServiceName: "github", Code: "c1", State: auth.State}); err != nil {
		t.Fatalf("complete exchange: %v", err)
	}
	auth, err = svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "usr_1", ServiceName: "slack"})
	if err != nil {
		t.Fatalf("build authorization request: %v", err)
	}
	if _, err := svc.CompleteExchange(ctx, ExchangeRequest{ServiceName: "slack", Code: "c1", State: auth.State}); err == nil {
		t.Fatalf("expected endpoint failure")
	}

	var succeeded, failed *capturedLog
	for _, record := range logger.snapshot() {
		record := record
		switch record.msg {
		case "complete_exchange succeeded":
			succeeded = &record
		case "complete_exchange failed":
			failed = &record
		}
	}
	if succeeded == nil || succeeded.fields["phase"] != string(FlowPhaseActive) {
		t.Fatalf("expected active phase on success, got %#v", succeeded)
	}
	if succeeded.fields["user_id"] != "usr_1" {
		t.Fatalf("expected user resolved from state in log fields, got %#v", succeeded.fields["user_id"])
	}
	if failed == nil || failed.fields["phase"] != string(FlowPhaseFailed) {
		t.Fatalf("expected failed phase on endpoint failure, got %#v", failed)
	}
}
