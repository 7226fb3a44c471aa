// Package google covers the Google Workspace services (Sheets, Docs, Gmail,
// Calendar, Meet) under a single offline-access client.
package google

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "google"
	AuthURL    = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL   = "https://oauth2.googleapis.com/token"
)

const (
	ScopeOpenID   = "openid"
	ScopeEmail    = "https://www.googleapis.com/auth/userinfo.email"
	ScopeSheets   = "https://www.googleapis.com/auth/spreadsheets"
	ScopeDocs     = "https://www.googleapis.com/auth/documents"
	ScopeGmail    = "https://www.googleapis.com/auth/gmail.modify"
	ScopeCalendar = "https://www.googleapis.com/auth/calendar"
)

type Config = providers.ClientConfig

func Defaults() providers.OAuth2Config {
	return providers.OAuth2Config{
		ID:       ProviderID,
		AuthURL:  AuthURL,
		TokenURL: TokenURL,
		UsePKCE:  true,
		DefaultScopes: []string{
			ScopeOpenID,
			ScopeEmail,
			ScopeSheets,
			ScopeDocs,
			ScopeGmail,
			ScopeCalendar,
		},
		// offline + consent is what makes Google return a refresh token on
		// every grant.
		ExtraAuthParams: map[string]string{
			"access_type":            "offline",
			"prompt":                 "consent",
			"include_granted_scopes": "true",
		},
	}
}

func New(cfg Config) (core.Provider, error) {
	provider, err := providers.NewBuiltin(Defaults(), cfg)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
