package todoist

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "todoist"
	AuthURL    = "https://todoist.com/oauth/authorize"
	TokenURL   = "https://todoist.com/oauth/access_token"
)

type Config = providers.ClientConfig

// Todoist tokens do not expire and carry no refresh token; expiry falls back
// to the default lifetime.
func Defaults() providers.OAuth2Config {
	return providers.OAuth2Config{
		ID:             ProviderID,
		AuthURL:        AuthURL,
		TokenURL:       TokenURL,
		ScopeSeparator: ",",
		DefaultScopes:  []string{"data:read_write"},
	}
}

func New(cfg Config) (core.Provider, error) {
	provider, err := providers.NewBuiltin(Defaults(), cfg)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
