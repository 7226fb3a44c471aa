package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

type AuthorizationRequest struct {
	UserID      string
	ServiceName string
	// UsePKCE overrides the provider default when set.
	UsePKCE       *bool
	RedirectURI   string
	Scopes        []string
	Reconnect     bool
	IntegrationID string
	Metadata      map[string]any
}

type AuthorizationResponse struct {
	URL         string
	State       string
	UserID      string
	ServiceName string
	UsesPKCE    bool
	ExpiresAt   time.Time
}

// ExchangeRequest is the callback intake payload.
type ExchangeRequest struct {
	UserID           string
	ServiceName      string
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// BuildAuthorizationRequest persists a fresh FlowState for the user and
// service, replacing any unconsumed one, and returns the provider URL.
func (s *Service) BuildAuthorizationRequest(ctx context.Context, req AuthorizationRequest) (response AuthorizationResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":      strings.TrimSpace(req.UserID),
		"service_name": normalizeServiceName(req.ServiceName),
	}
	defer func() {
		fields["uses_pkce"] = response.UsesPKCE
		s.observeOperation(ctx, startedAt, "build_authorization_request", err, fields)
	}()

	response, err = s.buildAuthorizationRequest(ctx, req)
	if err != nil {
		return AuthorizationResponse{}, s.mapError(err)
	}
	return response, nil
}

func (s *Service) buildAuthorizationRequest(ctx context.Context, req AuthorizationRequest) (AuthorizationResponse, error) {
	userID, err := requireUser(req.UserID)
	if err != nil {
		return AuthorizationResponse{}, err
	}
	provider, err := s.resolveProvider(req.ServiceName)
	if err != nil {
		return AuthorizationResponse{}, err
	}
	serviceName := normalizeServiceName(req.ServiceName)

	usePKCE := provider.UsesPKCE()
	if req.UsePKCE != nil {
		usePKCE = *req.UsePKCE
	}
	state, err := GenerateState()
	if err != nil {
		return AuthorizationResponse{}, err
	}
	var pkce PKCEPair
	if usePKCE {
		pkce, err = GeneratePKCE()
		if err != nil {
			return AuthorizationResponse{}, err
		}
	}

	redirectURI := s.resolveRedirectURI(provider, serviceName, req.RedirectURI)
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = provider.DefaultScopes()
	}
	authURL, err := provider.AuthorizationURL(AuthorizationURLRequest{
		State:               state,
		RedirectURI:         redirectURI,
		Scopes:              append([]string(nil), scopes...),
		CodeChallenge:       pkce.Challenge,
		CodeChallengeMethod: pkce.Method,
	})
	if err != nil {
		return AuthorizationResponse{}, err
	}

	now := s.clock()
	flow := FlowState{
		UserID:        userID,
		ServiceName:   serviceName,
		State:         state,
		CodeVerifier:  pkce.Verifier,
		RedirectURI:   redirectURI,
		Reconnect:     req.Reconnect,
		IntegrationID: strings.TrimSpace(req.IntegrationID),
		Metadata:      copyAnyMap(req.Metadata),
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.config.OAuth.FlowStateTTL),
	}
	if err := s.flowStateStore.Save(ctx, flow); err != nil {
		return AuthorizationResponse{}, storageFailure("save_flow_state", err)
	}

	return AuthorizationResponse{
		URL:         authURL,
		State:       state,
		UserID:      userID,
		ServiceName: serviceName,
		UsesPKCE:    usePKCE,
		ExpiresAt:   flow.ExpiresAt,
	}, nil
}

func (s *Service) resolveRedirectURI(provider Provider, serviceName string, requested string) string {
	if redirectURI := strings.TrimSpace(requested); redirectURI != "" {
		return redirectURI
	}
	if redirectURI := strings.TrimSpace(provider.DefaultRedirectURI()); redirectURI != "" {
		return redirectURI
	}
	base := strings.TrimRight(strings.TrimSpace(s.config.OAuth.RedirectBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/oauth/" + serviceName + "/callback"
}

// CompleteExchange validates the callback against the stored FlowState and
// trades the code for tokens. The FlowState is consumed whatever the outcome.
func (s *Service) CompleteExchange(ctx context.Context, req ExchangeRequest) (tokens TokenMaterial, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":      strings.TrimSpace(req.UserID),
		"service_name": normalizeServiceName(req.ServiceName),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "complete_exchange", err, fields)
	}()

	out, err := s.completeExchange(ctx, req)
	recordExchangeFields(fields, out)
	if err != nil {
		return TokenMaterial{}, s.mapError(err)
	}
	return out.tokens, nil
}

// exchangeOutcome carries what a callback produced, successful or not. The
// flow is zero when the state could not be consumed.
type exchangeOutcome struct {
	tokens TokenMaterial
	flow   FlowState
	phase  FlowPhase
}

// consumeFlowState consumes the pending flow for a callback. Without a user
// id the owner is resolved from the state value, which is how provider
// redirects arrive.
func (s *Service) consumeFlowState(ctx context.Context, req ExchangeRequest, serviceName string) (FlowState, error) {
	var (
		flow FlowState
		err  error
	)
	if strings.TrimSpace(req.UserID) == "" {
		flow, err = s.flowStateStore.ConsumeByState(ctx, serviceName, req.State)
	} else {
		flow, err = s.flowStateStore.Consume(ctx, strings.TrimSpace(req.UserID), serviceName, req.State)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			return FlowState{}, err
		}
		return FlowState{}, storageFailure("consume_flow_state", err)
	}
	return flow, nil
}

func recordExchangeFields(fields map[string]any, out exchangeOutcome) {
	fields["phase"] = string(out.phase)
	if out.flow.UserID != "" {
		fields["user_id"] = out.flow.UserID
	}
}

func (s *Service) completeExchange(ctx context.Context, req ExchangeRequest) (exchangeOutcome, error) {
	out := exchangeOutcome{phase: FlowPhaseAwaitingAuthorization}
	provider, err := s.resolveProvider(req.ServiceName)
	if err != nil {
		return out, err
	}
	serviceName := normalizeServiceName(req.ServiceName)

	flow, err := s.consumeFlowState(ctx, req, serviceName)
	if err != nil {
		return out, err
	}
	out.flow = flow
	userID := flow.UserID

	attempt := &FlowAttempt{UserID: userID, ServiceName: serviceName, Phase: FlowPhaseAwaitingAuthorization, UpdatedAt: flow.CreatedAt}
	fail := func(cause error) (exchangeOutcome, error) {
		if transitionErr := attempt.TransitionTo(FlowPhaseFailed, s.clock()); transitionErr != nil {
			cause = multierr.Append(cause, transitionErr)
		}
		out.phase = attempt.Phase
		return out, cause
	}
	if err := attempt.TransitionTo(FlowPhaseCodeReceived, s.clock()); err != nil {
		return out, err
	}

	if callbackErr := strings.TrimSpace(req.Error); callbackErr != "" {
		body := strings.TrimSpace(req.ErrorDescription)
		if body == "" {
			body = callbackErr
		}
		return fail(newTokenExchangeFailed(&TokenEndpointError{Status: 400, Body: body}))
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return fail(newTokenExchangeFailed(fmt.Errorf("core: authorization code is required")))
	}

	if err := attempt.TransitionTo(FlowPhaseExchanging, s.clock()); err != nil {
		return fail(err)
	}
	resp, err := provider.ExchangeCode(ctx, CodeExchangeRequest{
		Code:         code,
		RedirectURI:  flow.RedirectURI,
		CodeVerifier: flow.CodeVerifier,
	})
	if err != nil {
		return fail(newTokenExchangeFailed(err))
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return fail(newTokenExchangeFailed(&TokenEndpointError{Status: 200, Body: "missing access_token"}))
	}

	expiresAt := s.expiry.ResolveExpiry(resp)
	tokens := TokenMaterial{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    &expiresAt,
		Scope:        resp.Scope,
		TokenType:    resp.TokenType,
	}
	if err := s.credentialStore.Store(ctx, NewCredentialKey(userID, serviceName), tokens); err != nil {
		return fail(storageFailure("store_credentials", err))
	}
	if err := attempt.TransitionTo(FlowPhaseActive, s.clock()); err != nil {
		return fail(err)
	}
	out.phase = attempt.Phase
	out.tokens = tokens.Clone()
	return out, nil
}

// Refresh trades the stored refresh token for new token material. An omitted
// refresh_token in the response keeps the previous one.
func (s *Service) Refresh(ctx context.Context, key CredentialKey) (tokens TokenMaterial, err error) {
	startedAt := time.Now().UTC()
	key = NewCredentialKey(key.UserID, key.ServiceName)
	fields := map[string]any{
		"user_id":      key.UserID,
		"service_name": key.ServiceName,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh", err, fields)
	}()

	tokens, err = s.refreshTokens(ctx, key)
	if err != nil {
		return TokenMaterial{}, s.mapError(err)
	}
	return tokens, nil
}

func (s *Service) refreshTokens(ctx context.Context, key CredentialKey) (TokenMaterial, error) {
	if err := key.Validate(); err != nil {
		return TokenMaterial{}, err
	}
	provider, err := s.resolveProvider(key.ServiceName)
	if err != nil {
		return TokenMaterial{}, err
	}
	current, found, err := s.credentialStore.Load(ctx, key)
	if err != nil {
		return TokenMaterial{}, storageFailure("load_credentials", err)
	}
	if !found {
		return TokenMaterial{}, newRefreshFailed(fmt.Errorf("%w: %s", ErrCredentialsNotFound, key))
	}
	if !current.HasRefreshToken() {
		return TokenMaterial{}, newRefreshFailed(fmt.Errorf("core: no refresh token stored for %s", key))
	}

	resp, err := provider.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		return TokenMaterial{}, newRefreshFailed(err)
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return TokenMaterial{}, newRefreshFailed(&TokenEndpointError{Status: 200, Body: "missing access_token"})
	}

	expiresAt := s.expiry.ResolveExpiry(resp)
	next := TokenMaterial{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    &expiresAt,
		Scope:        resp.Scope,
		TokenType:    resp.TokenType,
	}
	if !next.HasRefreshToken() {
		next.RefreshToken = current.RefreshToken
	}
	if strings.TrimSpace(next.Scope) == "" {
		next.Scope = current.Scope
	}
	if strings.TrimSpace(next.TokenType) == "" {
		next.TokenType = current.TokenType
	}
	if err := s.credentialStore.Store(ctx, key, next); err != nil {
		return TokenMaterial{}, storageFailure("store_credentials", err)
	}
	return next.Clone(), nil
}

// GetValidAccessToken returns a token that will not expire within the refresh
// buffer. At most one refresh is attempted per call and concurrent callers for
// the same key share it. A failed refresh reports absence and marks the
// owning integration failed; storage faults are returned.
func (s *Service) GetValidAccessToken(ctx context.Context, key CredentialKey) (token string, ok bool, err error) {
	startedAt := time.Now().UTC()
	key = NewCredentialKey(key.UserID, key.ServiceName)
	fields := map[string]any{
		"user_id":      key.UserID,
		"service_name": key.ServiceName,
	}
	defer func() {
		fields["found"] = ok
		s.observeOperation(ctx, startedAt, "get_valid_access_token", err, fields)
	}()

	if err := key.Validate(); err != nil {
		return "", false, s.mapError(err)
	}
	current, found, err := s.credentialStore.Load(ctx, key)
	if err != nil {
		return "", false, s.mapError(storageFailure("load_credentials", err))
	}
	if !found || strings.TrimSpace(current.AccessToken) == "" {
		return "", false, nil
	}
	if !s.needsRefresh(current) {
		s.touchLastUsed(ctx, key)
		return current.AccessToken, true, nil
	}

	fields["renewed"] = true
	value, refreshErr, _ := s.refreshes.Do(key.String(), func() (any, error) {
		return s.refreshTokens(ctx, key)
	})
	if refreshErr != nil {
		if errors.Is(refreshErr, ErrStorageFailure) {
			return "", false, s.mapError(refreshErr)
		}
		s.markIntegrationFailed(ctx, key, refreshErr)
		return "", false, nil
	}
	refreshed, _ := value.(TokenMaterial)
	s.touchLastUsed(ctx, key)
	return refreshed.AccessToken, true, nil
}

func (s *Service) needsRefresh(tokens TokenMaterial) bool {
	if tokens.ExpiresAt == nil {
		return false
	}
	return !tokens.ExpiresAt.Add(-s.config.OAuth.RefreshBuffer).After(s.clock())
}

func (s *Service) markIntegrationFailed(ctx context.Context, key CredentialKey, cause error) {
	record, found, err := s.integrationStore.FindByUserService(ctx, key.UserID, key.ServiceName)
	if err != nil {
		s.logWarn(ctx, "lookup integration after refresh failure failed", map[string]any{
			"user_id": key.UserID, "service_name": key.ServiceName, "error": err.Error(),
		})
		return
	}
	if !found || record.Status == IntegrationStatusFailed {
		return
	}
	if err := s.integrationStore.UpdateStatus(ctx, record.ID, IntegrationStatusFailed, truncateBody(cause.Error())); err != nil {
		s.logWarn(ctx, "mark integration failed", map[string]any{
			"integration_id": record.ID, "service_name": key.ServiceName, "error": err.Error(),
		})
	}
}

func (s *Service) touchLastUsed(ctx context.Context, key CredentialKey) {
	record, found, err := s.integrationStore.FindByUserService(ctx, key.UserID, key.ServiceName)
	if err != nil || !found {
		return
	}
	if err := s.integrationStore.TouchLastUsed(ctx, record.ID, s.clock()); err != nil {
		s.logWarn(ctx, "touch integration last_used failed", map[string]any{
			"integration_id": record.ID, "error": err.Error(),
		})
	}
}
