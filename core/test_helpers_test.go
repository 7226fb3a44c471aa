package core

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

type providerCalls struct {
	mu        sync.Mutex
	exchanges []CodeExchangeRequest
	refreshes []string
}

func (c *providerCalls) exchangeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exchanges)
}

func (c *providerCalls) refreshCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.refreshes)
}

func (c *providerCalls) lastExchange() CodeExchangeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.exchanges) == 0 {
		return CodeExchangeRequest{}
	}
	return c.exchanges[len(c.exchanges)-1]
}

type testProvider struct {
	id       string
	pkce     bool
	redirect string
	scopes   []string
	calls    *providerCalls
	exchange func(ctx context.Context, req CodeExchangeRequest) (TokenResponse, error)
	refresh  func(ctx context.Context, refreshToken string) (TokenResponse, error)
}

func (p testProvider) ID() string { return p.id }

func (p testProvider) UsesPKCE() bool { return p.pkce }

func (p testProvider) DefaultRedirectURI() string { return p.redirect }

func (p testProvider) DefaultScopes() []string { return append([]string(nil), p.scopes...) }

func (p testProvider) AuthorizationURL(req AuthorizationURLRequest) (string, error) {
	query := url.Values{}
	query.Set("client_id", "client-"+p.id)
	query.Set("response_type", "code")
	query.Set("state", req.State)
	if req.RedirectURI != "" {
		query.Set("redirect_uri", req.RedirectURI)
	}
	if len(req.Scopes) > 0 {
		query.Set("scope", strings.Join(req.Scopes, " "))
	}
	if req.CodeChallenge != "" {
		query.Set("code_challenge", req.CodeChallenge)
		query.Set("code_challenge_method", req.CodeChallengeMethod)
	}
	return "https://auth.example.test/" + p.id + "/authorize?" + query.Encode(), nil
}

func (p testProvider) ExchangeCode(ctx context.Context, req CodeExchangeRequest) (TokenResponse, error) {
	if p.calls != nil {
		p.calls.mu.Lock()
		p.calls.exchanges = append(p.calls.exchanges, req)
		p.calls.mu.Unlock()
	}
	if p.exchange != nil {
		return p.exchange(ctx, req)
	}
	return TokenResponse{
		AccessToken:  "access-" + req.Code,
		RefreshToken: "refresh-" + req.Code,
		TokenType:    "bearer",
		Scope:        "read",
		ExpiresIn:    3600,
	}, nil
}

func (p testProvider) RefreshToken(ctx context.Context, refreshToken string) (TokenResponse, error) {
	if p.calls != nil {
		p.calls.mu.Lock()
		p.calls.refreshes = append(p.calls.refreshes, refreshToken)
		p.calls.mu.Unlock()
	}
	if p.refresh != nil {
		return p.refresh(ctx, refreshToken)
	}
	return TokenResponse{AccessToken: "renewed-access", ExpiresIn: 3600}, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	return Config{
		ServiceName: "integrations-test",
		OAuth: OAuthConfig{
			FlowStateTTL:       10 * time.Minute,
			InteractiveTimeout: 200 * time.Millisecond,
			ClosePollInterval:  5 * time.Millisecond,
			RefreshBuffer:      300 * time.Second,
			RedirectBaseURL:    "https://app.example.test",
		},
		Operations: OperationsConfig{
			SettlingDelay: 5 * time.Millisecond,
			PollInterval:  10 * time.Millisecond,
		},
		Dispatch: DispatchConfig{Workers: 2, ErrorBuffer: 8},
	}
}

// newTestService wires a service around in-memory stores and the given
// providers.
func newTestService(t *testing.T, clock *testClock, providers []Provider, opts ...Option) *Service {
	t.Helper()
	registry := NewProviderRegistry()
	for _, provider := range providers {
		if err := registry.Register(provider); err != nil {
			t.Fatalf("register provider: %v", err)
		}
	}
	base := []Option{WithRegistry(registry), WithLogger(stubLogger{})}
	if clock != nil {
		base = append(base, WithClock(clock.Now))
	}
	svc, err := NewService(testConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return svc
}

func stateFromURL(t *testing.T, raw string) url.Values {
	t.Helper()
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse authorization url: %v", err)
	}
	return parsed.Query()
}

type recordingExecutor struct {
	mu       sync.Mutex
	requests []ExecutionRequest
	err      error
	done     chan ExecutionRequest
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{done: make(chan ExecutionRequest, 16)}
}

func (e *recordingExecutor) Execute(_ context.Context, req ExecutionRequest) error {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	err := e.err
	e.mu.Unlock()
	select {
	case e.done <- req:
	default:
	}
	return err
}

func (e *recordingExecutor) wait(t *testing.T) ExecutionRequest {
	t.Helper()
	select {
	case req := <-e.done:
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("expected executor to be called")
	}
	return ExecutionRequest{}
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}
