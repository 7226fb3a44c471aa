package dropbox

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "dropbox"
	AuthURL    = "https://www.dropbox.com/oauth2/authorize"
	TokenURL   = "https://api.dropboxapi.com/oauth2/token"
)

type Config = providers.ClientConfig

func Defaults() providers.OAuth2Config {
	return providers.OAuth2Config{
		ID:              ProviderID,
		AuthURL:         AuthURL,
		TokenURL:        TokenURL,
		UsePKCE:         true,
		DefaultScopes:   []string{"files.content.read", "files.content.write", "account_info.read"},
		ExtraAuthParams: map[string]string{"token_access_type": "offline"},
	}
}

func New(cfg Config) (core.Provider, error) {
	provider, err := providers.NewBuiltin(Defaults(), cfg)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
