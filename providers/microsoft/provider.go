package microsoft

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "microsoft"
	AuthURL    = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	TokenURL   = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
)

type Config = providers.ClientConfig

func Defaults() providers.OAuth2Config {
	return providers.OAuth2Config{
		ID:       ProviderID,
		AuthURL:  AuthURL,
		TokenURL: TokenURL,
		UsePKCE:  true,
		DefaultScopes: []string{
			"offline_access",
			"User.Read",
			"Mail.ReadWrite",
			"Calendars.ReadWrite",
			"Files.ReadWrite",
			"ChannelMessage.Send",
		},
		ExtraAuthParams: map[string]string{"response_mode": "query"},
	}
}

func New(cfg Config) (core.Provider, error) {
	provider, err := providers.NewBuiltin(Defaults(), cfg)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
