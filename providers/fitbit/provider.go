package fitbit

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "fitbit"
	AuthURL    = "https://www.fitbit.com/oauth2/authorize"
	TokenURL   = "https://api.fitbit.com/oauth2/token"
)

type Config = providers.ClientConfig

func Defaults() providers.OAuth2Config {
	return providers.OAuth2Config{
		ID:            ProviderID,
		AuthURL:       AuthURL,
		TokenURL:      TokenURL,
		UsePKCE:       true,
		UseBasicAuth:  true,
		DefaultScopes: []string{"activity", "heartrate", "sleep", "profile"},
	}
}

func New(cfg Config) (core.Provider, error) {
	provider, err := providers.NewBuiltin(Defaults(), cfg)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
