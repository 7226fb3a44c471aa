package integrations

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/providers/dropbox"
	"github.com/goliatone/go-integrations/providers/fitbit"
	"github.com/goliatone/go-integrations/providers/github"
	"github.com/goliatone/go-integrations/providers/google"
	"github.com/goliatone/go-integrations/providers/microsoft"
	"github.com/goliatone/go-integrations/providers/notion"
	"github.com/goliatone/go-integrations/providers/oura"
	"github.com/goliatone/go-integrations/providers/slack"
	"github.com/goliatone/go-integrations/providers/todoist"
	"github.com/goliatone/go-integrations/providers/twitter"
)

type ProviderFactory func(cfg providers.ClientConfig) (core.Provider, error)

func GitHubProvider(cfg github.Config) (core.Provider, error) {
	return github.New(cfg)
}

func GoogleProvider(cfg google.Config) (core.Provider, error) {
	return google.New(cfg)
}

func SlackProvider(cfg slack.Config) (core.Provider, error) {
	return slack.New(cfg)
}

func NotionProvider(cfg notion.Config) (core.Provider, error) {
	return notion.New(cfg)
}

func MicrosoftProvider(cfg microsoft.Config) (core.Provider, error) {
	return microsoft.New(cfg)
}

func DropboxProvider(cfg dropbox.Config) (core.Provider, error) {
	return dropbox.New(cfg)
}

func TodoistProvider(cfg todoist.Config) (core.Provider, error) {
	return todoist.New(cfg)
}

func TwitterProvider(cfg twitter.Config) (core.Provider, error) {
	return twitter.New(cfg)
}

func FitbitProvider(cfg fitbit.Config) (core.Provider, error) {
	return fitbit.New(cfg)
}

func OuraProvider(cfg oura.Config) (core.Provider, error) {
	return oura.New(cfg)
}

// BuiltinProviderFactories maps each built-in provider id to its factory.
func BuiltinProviderFactories() map[string]ProviderFactory {
	return map[string]ProviderFactory{
		github.ProviderID:    GitHubProvider,
		google.ProviderID:    GoogleProvider,
		slack.ProviderID:     SlackProvider,
		notion.ProviderID:    NotionProvider,
		microsoft.ProviderID: MicrosoftProvider,
		dropbox.ProviderID:   DropboxProvider,
		todoist.ProviderID:   TodoistProvider,
		twitter.ProviderID:   TwitterProvider,
		fitbit.ProviderID:    FitbitProvider,
		oura.ProviderID:      OuraProvider,
	}
}

// RegisterBuiltinProviders builds and registers the built-in providers that
// have client settings in configs. It returns the registered ids, sorted.
func RegisterBuiltinProviders(registry core.Registry, configs map[string]providers.ClientConfig) ([]string, error) {
	if registry == nil {
		return nil, fmt.Errorf("integrations: registry is required")
	}
	factories := BuiltinProviderFactories()
	ids := make([]string, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	registered := make([]string, 0, len(ids))
	for _, id := range ids {
		key := strings.ToLower(strings.TrimSpace(id))
		factory, ok := factories[key]
		if !ok {
			return registered, fmt.Errorf("integrations: unknown built-in provider %q", id)
		}
		provider, err := factory(configs[id])
		if err != nil {
			return registered, fmt.Errorf("integrations: build provider %q: %w", key, err)
		}
		if err := registry.Register(provider); err != nil {
			return registered, err
		}
		registered = append(registered, provider.ID())
	}
	return registered, nil
}
