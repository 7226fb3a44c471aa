package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OAuth2Config describes one service's authorization-code client.
type OAuth2Config struct {
	ID           string
	AuthURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURI  string

	DefaultScopes []string
	// ScopeSeparator joins scopes in the authorization URL. Defaults to a
	// single space.
	ScopeSeparator string
	UsePKCE        bool
	// UseBasicAuth sends the client credentials as an HTTP Basic header
	// instead of form fields.
	UseBasicAuth      bool
	ExtraAuthParams   map[string]string
	ExtraTokenHeaders map[string]string
	// ResponseTransform rewrites the decoded token payload before it is read,
	// for services that nest the token.
	ResponseTransform func(raw map[string]any) map[string]any

	TokenRequestTimeout time.Duration
	HTTPClient          HTTPDoer
}

type OAuth2Provider struct {
	cfg        OAuth2Config
	httpClient HTTPDoer
}

func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	cfg.ID = strings.TrimSpace(strings.ToLower(cfg.ID))
	if cfg.ID == "" {
		return nil, fmt.Errorf("providers: provider id is required")
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return nil, fmt.Errorf("providers: auth url is required for provider %q", cfg.ID)
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("providers: token url is required for provider %q", cfg.ID)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("providers: client id is required for provider %q", cfg.ID)
	}

	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	cfg.DefaultScopes = normalizeScopes(cfg.DefaultScopes)
	if cfg.ScopeSeparator == "" {
		cfg.ScopeSeparator = " "
	}
	cfg.ExtraAuthParams = cloneStringMap(cfg.ExtraAuthParams)
	cfg.ExtraTokenHeaders = cloneStringMap(cfg.ExtraTokenHeaders)
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}

	return &OAuth2Provider{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

func (p *OAuth2Provider) ID() string {
	if p == nil {
		return ""
	}
	return p.cfg.ID
}

func (p *OAuth2Provider) UsesPKCE() bool {
	return p != nil && p.cfg.UsePKCE
}

func (p *OAuth2Provider) DefaultRedirectURI() string {
	if p == nil {
		return ""
	}
	return p.cfg.RedirectURI
}

func (p *OAuth2Provider) DefaultScopes() []string {
	if p == nil {
		return []string{}
	}
	return append([]string(nil), p.cfg.DefaultScopes...)
}

// AuthorizationURL never sees the code verifier, only its challenge.
func (p *OAuth2Provider) AuthorizationURL(req core.AuthorizationURLRequest) (string, error) {
	if p == nil {
		return "", fmt.Errorf("providers: oauth2 provider is nil")
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		return "", fmt.Errorf("providers: state is required")
	}
	scopes := normalizeScopes(req.Scopes)
	if len(scopes) == 0 {
		scopes = append([]string(nil), p.cfg.DefaultScopes...)
	}

	values := url.Values{}
	for key, value := range p.cfg.ExtraAuthParams {
		values.Set(key, value)
	}
	values.Set("response_type", "code")
	values.Set("client_id", p.cfg.ClientID)
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = p.cfg.RedirectURI
	}
	if redirectURI != "" {
		values.Set("redirect_uri", redirectURI)
	}
	if len(scopes) > 0 {
		values.Set("scope", strings.Join(scopes, p.cfg.ScopeSeparator))
	}
	values.Set("state", state)
	if challenge := strings.TrimSpace(req.CodeChallenge); challenge != "" {
		method := strings.TrimSpace(req.CodeChallengeMethod)
		if method == "" {
			method = core.PKCEMethodS256
		}
		values.Set("code_challenge", challenge)
		values.Set("code_challenge_method", method)
	}

	authURL := p.cfg.AuthURL
	if strings.Contains(authURL, "?") {
		authURL += "&" + values.Encode()
	} else {
		authURL += "?" + values.Encode()
	}
	return authURL, nil
}

func (p *OAuth2Provider) ExchangeCode(ctx context.Context, req core.CodeExchangeRequest) (core.TokenResponse, error) {
	if p == nil {
		return core.TokenResponse{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.TokenResponse{}, fmt.Errorf("providers: auth code is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = p.cfg.RedirectURI
	}
	if redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}
	if verifier := strings.TrimSpace(req.CodeVerifier); verifier != "" {
		form.Set("code_verifier", verifier)
	}
	return p.fetchToken(ctx, form)
}

func (p *OAuth2Provider) RefreshToken(ctx context.Context, refreshToken string) (core.TokenResponse, error) {
	if p == nil {
		return core.TokenResponse{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenResponse{}, fmt.Errorf("providers: refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return p.fetchToken(ctx, form)
}

func (p *OAuth2Provider) fetchToken(ctx context.Context, form url.Values) (core.TokenResponse, error) {
	if p.httpClient == nil {
		return core.TokenResponse{}, fmt.Errorf("providers: oauth2 http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	// client_id always travels in the body; PKCE token endpoints require it
	// even when the secret goes in the Authorization header.
	values.Set("client_id", p.cfg.ClientID)
	useBasic := p.cfg.UseBasicAuth && p.cfg.ClientSecret != ""
	if !useBasic && p.cfg.ClientSecret != "" {
		values.Set("client_secret", p.cfg.ClientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.cfg.TokenRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		p.cfg.TokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return core.TokenResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	for key, value := range p.cfg.ExtraTokenHeaders {
		httpReq.Header.Set(key, value)
	}
	if useBasic {
		httpReq.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	}

	response, err := p.httpClient.Do(httpReq)
	if err != nil {
		return core.TokenResponse{}, fmt.Errorf("providers: token request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return core.TokenResponse{}, fmt.Errorf("providers: read token response: %w", readErr)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return core.TokenResponse{}, fmt.Errorf("providers: token response exceeds %d bytes", maxTokenResponseBodyBytes)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return core.TokenResponse{}, &core.TokenEndpointError{Status: response.StatusCode, Body: string(body)}
	}

	raw, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if parseErr != nil {
		return core.TokenResponse{}, &core.TokenEndpointError{
			Status: response.StatusCode,
			Body:   fmt.Sprintf("decode token response: %v", parseErr),
		}
	}
	if p.cfg.ResponseTransform != nil {
		raw = p.cfg.ResponseTransform(raw)
	}
	if code := readAnyString(raw["error"]); code != "" {
		return core.TokenResponse{}, &core.TokenEndpointError{Status: response.StatusCode, Body: string(body)}
	}
	token := core.TokenResponse{
		AccessToken:  readAnyString(raw["access_token"]),
		RefreshToken: readAnyString(raw["refresh_token"]),
		TokenType:    readAnyString(raw["token_type"]),
		Scope:        readAnyString(raw["scope"]),
		ExpiresIn:    raw["expires_in"],
		Raw:          raw,
	}
	if token.AccessToken == "" {
		return core.TokenResponse{}, &core.TokenEndpointError{Status: response.StatusCode, Body: "missing access_token"}
	}
	return token, nil
}

// parseTokenPayload accepts JSON and form-encoded token responses. JSON
// numbers are kept as json.Number so lifetimes are not rounded.
func parseTokenPayload(body []byte, contentType string) (map[string]any, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (map[string]any, error) {
	if strings.TrimSpace(string(body)) == "" {
		return nil, fmt.Errorf("empty payload")
	}
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.UseNumber()
	var decoded map[string]any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func parseTokenPayloadForm(body []byte) (map[string]any, error) {
	if strings.TrimSpace(string(body)) == "" {
		return nil, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	decoded := make(map[string]any, len(values))
	for key := range values {
		decoded[key] = strings.TrimSpace(values.Get(key))
	}
	return decoded, nil
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func normalizeScopes(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	values := make([]string, 0, len(input))
	seen := map[string]struct{}{}
	for _, value := range input {
		normalized := strings.TrimSpace(value)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		values = append(values, normalized)
	}
	return values
}

func cloneStringMap(input map[string]string) map[string]string {
	if len(input) == 0 {
		return map[string]string{}
	}
	output := make(map[string]string, len(input))
	for key, value := range input {
		if strings.TrimSpace(key) == "" {
			continue
		}
		output[strings.TrimSpace(key)] = value
	}
	return output
}

var _ core.Provider = (*OAuth2Provider)(nil)
