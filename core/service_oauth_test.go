package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestBuildAuthorizationRequest_PKCEUrl(t *testing.T) {
	ctx := context.Background()
	calls := &providerCalls{}
	svc := newTestService(t, newTestClock(), []Provider{testProvider{id: "twitter", pkce: true, calls: calls}})

	auth, err := svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "u1", ServiceName: "twitter"})
	if err != nil {
		t.Fatalf("build authorization request: %v", err)
	}
	if !auth.UsesPKCE {
		t.Fatalf("expected pkce to follow the provider default")
	}
	query := stateFromURL(t, auth.URL)
	if query.Get("state") != auth.State || auth.State == "" {
		t.Fatalf("expected state in url, got %q", query.Get("state"))
	}
	if query.Get("code_challenge") == "" {
		t.Fatalf("expected code_challenge in url")
	}
	if query.Get("code_challenge_method") != "S256" {
		t.Fatalf("expected S256 method, got %q", query.Get("code_challenge_method"))
	}
	if query.Get("redirect_uri") != "https://app.example.test/oauth/twitter/callback" {
		t.Fatalf("expected redirect derived from base url, got %q", query.Get("redirect_uri"))
	}

	if _, err := svc.CompleteExchange(ctx, ExchangeRequest{UserID: "u1", ServiceName: "twitter", Code: "c1", State: auth.State}); err != nil {
		t.Fatalf("complete exchange: %v", err)
	}
	verifier := calls.lastExchange().CodeVerifier
	if verifier == "" {
		t.Fatalf("expected verifier to be sent to the token endpoint")
	}
	if strings.Contains(auth.URL, verifier) {
		t.Fatalf("expected verifier never to appear in the authorization url")
	}
	if CodeChallengeS256(verifier) != query.Get("code_challenge") {
		t.Fatalf("expected challenge to match the stored verifier")
	}
}

func TestBuildAuthorizationRequest_NonPKCE(t *testing.T) {
	ctx := context.Background()
	calls := &providerCalls{}
	svc := newTestService(t, newTestClock(), []Provider{testProvider{id: "github", redirect: "https://cb.example.test/github", calls: calls}})

	auth, err := svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "u1", ServiceName: "github", Scopes: []string{"repo"}})
	if err != nil {
		t.Fatalf("build authorization request: %v", err)
	}
	query := stateFromURL(t, auth.URL)
	if query.Get("code_challenge") != "" {
		t.Fatalf("expected no challenge for non-pkce provider")
	}
	if query.Get("redirect_uri") != "https://cb.example.test/github" {
		t.Fatalf("expected provider redirect, got %q", query.Get("redirect_uri"))
	}
	if query.Get("scope") != "repo" {
		t.Fatalf("expected requested scopes, got %q", query.Get("scope"))
	}

	if _, err := svc.CompleteExchange(ctx, ExchangeRequest{UserID: "u1", ServiceName: "github", Code: "c1", State: auth.State}); err != nil {
		t.Fatalf("complete exchange: %v", err)
	}
	exchange := calls.lastExchange()
	if exchange.CodeVerifier != "" {
		t.Fatalf("expected no verifier for non-pkce exchange")
	}
	if exchange.RedirectURI != "https://cb.example.test/github" {
		t.Fatalf("expected exchange to reuse the flow redirect, got %q", exchange.RedirectURI)
	}
}

func TestBuildAuthorizationRequest_UnknownProvider(t *testing.T) {
	svc := newTestService(t, nil, nil)
	_, err := svc.BuildAuthorizationRequest(context.Background(), AuthorizationRequest{UserID: "u1", ServiceName: "nope"})
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}
}

func TestCompleteExchange_StoresTokens(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	svc := newTestService(t, clock, []Provider{testProvider{id: "github"}})

	auth, err := svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "u1", ServiceName: "github"})
	if err != nil {
		t.Fatalf("build authorization request: %v", err)
	}
	tokens, err := svc.CompleteExchange(ctx, ExchangeRequest{UserID: "u1", ServiceName: "github", Code: "c1", State: auth.State})
	if err != nil {
		t.Fatalf("complete exchange: %v", err)
	}
	if tokens.AccessToken != "access-c1" || tokens.RefreshToken != "refresh-c1" {
		t.Fatalf("unexpected tokens %#v", tokens)
	}
	if tokens.ExpiresAt == nil || !tokens.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("expected expiry one hour out, got %v", tokens.ExpiresAt)
	}
	stored, found, err := svc.credentialStore.Load(ctx, NewCredentialKey("u1", "github"))
	if err != nil || !found {
		t.Fatalf("expected stored credentials, found=%v err=%v", found, err)
	}
	if stored.AccessToken != "access-c1" {
		t.Fatalf("expected stored access token, got %q", stored.AccessToken)
	}
}

func TestCompleteExchange_StateMismatchNeverCallsTokenEndpoint(t *testing.T) {
	ctx := context.Background()
	calls := &providerCalls{}
	svc := newTestService(t, newTestClock(), []Provider{testProvider{id: "github", calls: calls}})

	auth, err := svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "u1", ServiceName: "github"})
	if err != nil {
		t.Fatalf("build authorization request: %v", err)
	}
	_, err = svc.CompleteExchange(ctx, ExchangeRequest{UserID: "u1", ServiceName: "github", Code: "c1", State: "forged"})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if calls.exchangeCount() != 0 {
		t.Fatalf("expected no token endpoint call, got %d", calls.exchangeCount())
	}

	// The mismatched attempt consumed the state, so the real one fails too.
	_, err = svc.CompleteExchange(ctx, ExchangeRequest{UserID: "u1", ServiceName: "github", Code: "c1", State: auth.State})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected consumed state to be rejected, got %v", err)
	}
	if calls.exchangeCount() != 0 {
		t.Fatalf("expected no token endpoint call, got %d", calls.exchangeCount())
	}
}

func TestCompleteExchange_ReplayRejected(t *testing.T) {
	ctx := context.Background()
	calls := &providerCalls{}
	svc := newTestService(t, newTestClock(), []Provider{testProvider{id: "github", calls: calls}})

	auth, err := svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "u1", ServiceName: "github"})
	if err != nil {
		t.Fatalf("build authorization request: %v", err)
	}
	req := ExchangeRequest{UserID: "u1", ServiceName: "github", Code: "c1", State: auth.State}
	if _, err := svc.CompleteExchange(ctx, req); err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	if _, err := svc.CompleteExchange(ctx, req); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected replay to fail with invalid state, got %v", err)
	}
	if calls.exchangeCount() != 1 {
		t.Fatalf("expected exactly one token endpoint call, got %d", calls.exchangeCount())
	}
}

func TestCompleteExchange_ResolvesUserFromState(t *testing.T) {
	ctx := context.Background()
	calls := &providerCalls{}
	svc := newTestService(t, newTestClock(), []Provider{testProvider{id: "github", calls: calls}})

	auth, err := svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "u1", ServiceName: "github"})
	if err != nil {
		t.Fatalf("build authorization request: %v", err)
	}
	if _, err := svc.CompleteExchange(ctx, ExchangeRequest{ServiceName: "github", Code: "c1", State: "forged"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected unknown state to be rejected, got %v", err)
	}
	if _, err := svc.CompleteExchange(ctx, ExchangeRequest{ServiceName: "github", Code: "c1", State: auth.State}); err != nil {
		t.Fatalf("complete exchange without user: %v", err)
	}
	if _, found, _ := svc.credentialStore.Load(ctx, NewCredentialKey("u1", "github")); !found {
		t.Fatalf("expected credentials stored for the state owner")
	}
	if _, err := svc.CompleteExchange(ctx, ExchangeRequest{ServiceName: "github", Code: "c1", State: auth.State}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected replay to be rejected, got %v", err)
	}
	if calls.exchangeCount() != 1 {
		t.Fatalf("expected exactly one token endpoint call, got %d", calls.exchangeCount())
	}
}

func TestCompleteExchange_SecondAuthorizationInvalidatesFirst(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestClock(), []Provider{testProvider{id: "github"}})

	first, err := svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "u1", ServiceName: "github"})
	if err != nil {
		t.Fatalf("build first: %v", err)
	}
	second, err := svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "u1", ServiceName: "github"})
	if err != nil {
		t.Fatalf("build second: %v", err)
	}
	if first.State == second.State {
		t.Fatalf("expected fresh state per request")
	}
	if _, err := svc.CompleteExchange(ctx, ExchangeRequest{UserID: "u1", ServiceName: "github", Code: "c1", State: first.State}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected superseded state to be rejected, got %v", err)
	}
}

func TestCompleteExchange_CallbackErrorAndEndpointFailure(t *testing.T) {
	ctx := context.Background()
	calls := &providerCalls{}
	provider := testProvider{id: "slack", calls: calls, exchange: func(context.Context, CodeExchangeRequest) (TokenResponse, error) {
		return TokenResponse{}, &TokenEndpointError{Status: 400, Body: `{"error":"invalid_grant"}`}
	}}
	svc := newTestService(t, newTestClock(), []Provider{provider})

	auth, err := svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "u1", ServiceName: "slack"})
	if err != nil {
		t.Fatalf("build authorization request: %v", err)
	}
	_, err = svc.CompleteExchange(ctx, ExchangeRequest{UserID: "u1", ServiceName: "slack", State: auth.State, Error: "access_denied", ErrorDescription: "user said no"})
	var exchangeErr *TokenExchangeFailedError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("expected token exchange failure, got %v", err)
	}
	if exchangeErr.Body != "user said no" {
		t.Fatalf("expected callback description as body, got %q", exchangeErr.Body)
	}
	if calls.exchangeCount() != 0 {
		t.Fatalf("expected callback error to skip the token endpoint")
	}

	auth, err = svc.BuildAuthorizationRequest(ctx, AuthorizationRequest{UserID: "u1", ServiceName: "slack"})
	if err != nil {
		t.Fatalf("build authorization request: %v", err)
	}
	_, err = svc.CompleteExchange(ctx, ExchangeRequest{UserID: "u1", ServiceName: "slack", Code: "c1", State: auth.State})
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("expected token exchange failure, got %v", err)
	}
	if exchangeErr.Status != 400 || !strings.Contains(exchangeErr.Body, "invalid_grant") {
		t.Fatalf("expected endpoint status and body, got %d %q", exchangeErr.Status, exchangeErr.Body)
	}
	if _, found, _ := svc.credentialStore.Load(ctx, NewCredentialKey("u1", "slack")); found {
		t.Fatalf("expected no credentials after failed exchange")
	}
}

func TestRefresh_CarriesForwardRefreshToken(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	provider := testProvider{id: "google", refresh: func(context.Context, string) (TokenResponse, error) {
		return TokenResponse{AccessToken: "a2", ExpiresIn: 1800}, nil
	}}
	svc := newTestService(t, clock, []Provider{provider})
	key := NewCredentialKey("u1", "google")
	if err := svc.credentialStore.Store(ctx, key, TokenMaterial{AccessToken: "a1", RefreshToken: "r1", Scope: "email", TokenType: "Bearer"}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}

	tokens, err := svc.Refresh(ctx, key)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tokens.AccessToken != "a2" || tokens.RefreshToken != "r1" {
		t.Fatalf("expected a2 with carried-forward r1, got %#v", tokens)
	}
	if tokens.Scope != "email" || tokens.TokenType != "Bearer" {
		t.Fatalf("expected scope and token type to carry forward, got %#v", tokens)
	}
	if !tokens.ExpiresAt.Equal(clock.Now().Add(30 * time.Minute)) {
		t.Fatalf("expected new expiry, got %v", tokens.ExpiresAt)
	}
}

func TestRefresh_ReplacesRotatedRefreshToken(t *testing.T) {
	ctx := context.Background()
	provider := testProvider{id: "google", refresh: func(_ context.Context, refreshToken string) (TokenResponse, error) {
		if refreshToken != "r1" {
			return TokenResponse{}, errors.New("unexpected refresh token")
		}
		return TokenResponse{AccessToken: "a2", RefreshToken: "r2"}, nil
	}}
	svc := newTestService(t, newTestClock(), []Provider{provider})
	key := NewCredentialKey("u1", "google")
	if err := svc.credentialStore.Store(ctx, key, TokenMaterial{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
	tokens, err := svc.Refresh(ctx, key)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tokens.RefreshToken != "r2" {
		t.Fatalf("expected rotated refresh token, got %q", tokens.RefreshToken)
	}
}

func TestRefresh_WithoutStoredCredentials(t *testing.T) {
	svc := newTestService(t, newTestClock(), []Provider{testProvider{id: "google"}})
	_, err := svc.Refresh(context.Background(), NewCredentialKey("u1", "google"))
	if !errors.Is(err, ErrRefreshFailed) || !errors.Is(err, ErrCredentialsNotFound) {
		t.Fatalf("expected refresh failure for missing credentials, got %v", err)
	}
}

func TestGetValidAccessToken_RefreshBuffer(t *testing.T) {
	cases := []struct {
		name        string
		expiresIn   time.Duration
		wantToken   string
		wantRefresh int
	}{
		{name: "inside buffer", expiresIn: 200 * time.Second, wantToken: "renewed-access", wantRefresh: 1},
		{name: "outside buffer", expiresIn: 1000 * time.Second, wantToken: "a1", wantRefresh: 0},
		{name: "already expired", expiresIn: -time.Minute, wantToken: "renewed-access", wantRefresh: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newTestClock()
			calls := &providerCalls{}
			svc := newTestService(t, clock, []Provider{testProvider{id: "google", calls: calls}})
			key := NewCredentialKey("u1", "google")
			expiresAt := clock.Now().Add(tc.expiresIn)
			if err := svc.credentialStore.Store(ctx, key, TokenMaterial{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: &expiresAt}); err != nil {
				t.Fatalf("seed credentials: %v", err)
			}

			token, ok, err := svc.GetValidAccessToken(ctx, key)
			if err != nil {
				t.Fatalf("get valid access token: %v", err)
			}
			if !ok || token != tc.wantToken {
				t.Fatalf("expected %q, got %q ok=%v", tc.wantToken, token, ok)
			}
			if calls.refreshCount() != tc.wantRefresh {
				t.Fatalf("expected %d refresh calls, got %d", tc.wantRefresh, calls.refreshCount())
			}
		})
	}
}

func TestGetValidAccessToken_NoExpiryAndAbsent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestClock(), []Provider{testProvider{id: "notion"}})
	key := NewCredentialKey("u1", "notion")

	if _, ok, err := svc.GetValidAccessToken(ctx, key); ok || err != nil {
		t.Fatalf("expected absent token without error, ok=%v err=%v", ok, err)
	}
	if err := svc.credentialStore.Store(ctx, key, TokenMaterial{AccessToken: "forever"}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
	token, ok, err := svc.GetValidAccessToken(ctx, key)
	if err != nil || !ok || token != "forever" {
		t.Fatalf("expected token without expiry to be returned, got %q ok=%v err=%v", token, ok, err)
	}
}

func TestGetValidAccessToken_RefreshFailureMarksIntegrationFailed(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	provider := testProvider{id: "google", refresh: func(context.Context, string) (TokenResponse, error) {
		return TokenResponse{}, &TokenEndpointError{Status: 400, Body: "invalid_grant"}
	}}
	svc := newTestService(t, clock, []Provider{provider})
	key := NewCredentialKey("u1", "google")
	record, err := svc.integrationStore.Upsert(ctx, UpsertIntegrationInput{UserID: "u1", ServiceName: "google", Status: IntegrationStatusActive})
	if err != nil {
		t.Fatalf("seed integration: %v", err)
	}
	expiresAt := clock.Now().Add(10 * time.Second)
	if err := svc.credentialStore.Store(ctx, key, TokenMaterial{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: &expiresAt}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}

	token, ok, err := svc.GetValidAccessToken(ctx, key)
	if err != nil {
		t.Fatalf("expected refresh failure to report absence, got %v", err)
	}
	if ok || token != "" {
		t.Fatalf("expected no token, got %q", token)
	}
	updated, err := svc.integrationStore.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get integration: %v", err)
	}
	if updated.Status != IntegrationStatusFailed {
		t.Fatalf("expected integration to be failed, got %s", updated.Status)
	}
	if !strings.Contains(updated.LastError, "invalid_grant") {
		t.Fatalf("expected failure reason, got %q", updated.LastError)
	}
}

func TestGetValidAccessToken_ConcurrentCallersShareRefresh(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	calls := &providerCalls{}
	release := make(chan struct{})
	provider := testProvider{id: "google", calls: calls, refresh: func(context.Context, string) (TokenResponse, error) {
		<-release
		return TokenResponse{AccessToken: "shared", ExpiresIn: 3600}, nil
	}}
	svc := newTestService(t, clock, []Provider{provider})
	key := NewCredentialKey("u1", "google")
	expiresAt := clock.Now().Add(-time.Minute)
	if err := svc.credentialStore.Store(ctx, key, TokenMaterial{AccessToken: "old", RefreshToken: "r1", ExpiresAt: &expiresAt}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}

	const callers = 5
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	for idx := 0; idx < callers; idx++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			token, _, _ := svc.GetValidAccessToken(ctx, key)
			tokens[idx] = token
		}(idx)
	}
	for calls.refreshCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for idx, token := range tokens {
		if token != "shared" {
			t.Fatalf("caller %d expected shared token, got %q", idx, token)
		}
	}
	if calls.refreshCount() != 1 {
		t.Fatalf("expected a single refresh for concurrent callers, got %d", calls.refreshCount())
	}
}
