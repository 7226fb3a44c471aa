package slack

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "slack"
	AuthURL    = "https://slack.com/oauth/v2/authorize"
	TokenURL   = "https://slack.com/api/oauth.v2.access"
)

type Config = providers.ClientConfig

func Defaults() providers.OAuth2Config {
	return providers.OAuth2Config{
		ID:                ProviderID,
		AuthURL:           AuthURL,
		TokenURL:          TokenURL,
		ScopeSeparator:    ",",
		DefaultScopes:     []string{"channels:read", "chat:write", "users:read"},
		ResponseTransform: normalizeTokenResponse,
	}
}

func New(cfg Config) (core.Provider, error) {
	provider, err := providers.NewBuiltin(Defaults(), cfg)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// normalizeTokenResponse maps Slack's envelope onto the standard fields:
// failures come back as 200 with ok=false, and user tokens are nested under
// authed_user.
func normalizeTokenResponse(raw map[string]any) map[string]any {
	if ok, present := raw["ok"].(bool); present && !ok {
		if _, hasError := raw["error"]; !hasError {
			raw["error"] = "slack_error"
		}
		return raw
	}
	if _, hasToken := raw["access_token"]; hasToken {
		return raw
	}
	user, ok := raw["authed_user"].(map[string]any)
	if !ok {
		return raw
	}
	for _, key := range []string{"access_token", "refresh_token", "token_type", "scope", "expires_in"} {
		if value, exists := user[key]; exists {
			raw[key] = value
		}
	}
	if _, hasType := raw["token_type"]; !hasType {
		raw["token_type"] = "user"
	}
	return raw
}
