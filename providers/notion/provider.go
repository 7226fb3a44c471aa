package notion

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "notion"
	AuthURL    = "https://api.notion.com/v1/oauth/authorize"
	TokenURL   = "https://api.notion.com/v1/oauth/token"
	APIVersion = "2022-06-28"
)

type Config = providers.ClientConfig

// Defaults has no scopes: Notion grants access per page at consent time.
func Defaults() providers.OAuth2Config {
	return providers.OAuth2Config{
		ID:                ProviderID,
		AuthURL:           AuthURL,
		TokenURL:          TokenURL,
		UseBasicAuth:      true,
		ExtraAuthParams:   map[string]string{"owner": "user"},
		ExtraTokenHeaders: map[string]string{"Notion-Version": APIVersion},
	}
}

func New(cfg Config) (core.Provider, error) {
	provider, err := providers.NewBuiltin(Defaults(), cfg)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
