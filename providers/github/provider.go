package github

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "github"
	AuthURL    = "https://github.com/login/oauth/authorize"
	TokenURL   = "https://github.com/login/oauth/access_token"
)

type Config = providers.ClientConfig

func Defaults() providers.OAuth2Config {
	return providers.OAuth2Config{
		ID:            ProviderID,
		AuthURL:       AuthURL,
		TokenURL:      TokenURL,
		DefaultScopes: []string{"repo", "read:user"},
	}
}

func New(cfg Config) (core.Provider, error) {
	provider, err := providers.NewBuiltin(Defaults(), cfg)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
