package providers

import (
	"strings"
	"time"
)

// ClientConfig is the deployment-specific half of a built-in provider:
// credentials, redirect, and optional endpoint overrides for tests or
// regional hosts.
type ClientConfig struct {
	ClientID      string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret  string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI   string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	AuthURL       string   `koanf:"auth_url" mapstructure:"auth_url"`
	TokenURL      string   `koanf:"token_url" mapstructure:"token_url"`
	DefaultScopes []string `koanf:"scopes" mapstructure:"scopes"`
	// UsePKCE overrides the service default when set.
	UsePKCE             *bool         `koanf:"use_pkce" mapstructure:"use_pkce"`
	TokenRequestTimeout time.Duration `koanf:"token_request_timeout" mapstructure:"token_request_timeout"`
	HTTPClient          HTTPDoer      `koanf:"-" mapstructure:"-"`
}

// NewBuiltin overlays client settings on a service's defaults.
func NewBuiltin(defaults OAuth2Config, client ClientConfig) (*OAuth2Provider, error) {
	cfg := defaults
	cfg.ClientID = client.ClientID
	cfg.ClientSecret = client.ClientSecret
	if strings.TrimSpace(client.RedirectURI) != "" {
		cfg.RedirectURI = client.RedirectURI
	}
	if strings.TrimSpace(client.AuthURL) != "" {
		cfg.AuthURL = client.AuthURL
	}
	if strings.TrimSpace(client.TokenURL) != "" {
		cfg.TokenURL = client.TokenURL
	}
	if len(client.DefaultScopes) > 0 {
		cfg.DefaultScopes = append([]string(nil), client.DefaultScopes...)
	}
	if client.UsePKCE != nil {
		cfg.UsePKCE = *client.UsePKCE
	}
	if client.TokenRequestTimeout > 0 {
		cfg.TokenRequestTimeout = client.TokenRequestTimeout
	}
	if client.HTTPClient != nil {
		cfg.HTTPClient = client.HTTPClient
	}
	return NewOAuth2Provider(cfg)
}
