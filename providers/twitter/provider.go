package twitter

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "twitter"
	AuthURL    = "https://twitter.com/i/oauth2/authorize"
	TokenURL   = "https://api.twitter.com/2/oauth2/token"
)

type Config = providers.ClientConfig

func Defaults() providers.OAuth2Config {
	return providers.OAuth2Config{
		ID:            ProviderID,
		AuthURL:       AuthURL,
		TokenURL:      TokenURL,
		UsePKCE:       true,
		UseBasicAuth:  true,
		DefaultScopes: []string{"tweet.read", "users.read", "offline.access"},
	}
}

func New(cfg Config) (core.Provider, error) {
	provider, err := providers.NewBuiltin(Defaults(), cfg)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
