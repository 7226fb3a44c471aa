package oura

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "oura"
	AuthURL    = "https://cloud.ouraring.com/oauth/authorize"
	TokenURL   = "https://api.ouraring.com/oauth/token"
)

type Config = providers.ClientConfig

func Defaults() providers.OAuth2Config {
	return providers.OAuth2Config{
		ID:            ProviderID,
		AuthURL:       AuthURL,
		TokenURL:      TokenURL,
		DefaultScopes: []string{"daily", "heartrate", "personal"},
	}
}

func New(cfg Config) (core.Provider, error) {
	provider, err := providers.NewBuiltin(Defaults(), cfg)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
