package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	integrations "github.com/goliatone/go-integrations"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/security"
)

const envPrefix = "INTEGRATIONS_"

type appConfig struct {
	Addr            string
	DBDriver        string
	DBDSN           string
	RedisAddr       string
	Executor        string
	QueueConcurrent int
	LogLevel        string
	Interactive     bool
	Headless        bool
	ShutdownTimeout time.Duration
	CredentialKeys  []security.Key
	Providers       map[string]providers.ClientConfig
}

func loadAppConfig(getenv func(string) string) (appConfig, error) {
	cfg := appConfig{
		Addr:            envOr(getenv, "ADDR", ":8080"),
		DBDriver:        strings.ToLower(envOr(getenv, "DB_DRIVER", "")),
		DBDSN:           env(getenv, "DB_DSN"),
		RedisAddr:       env(getenv, "REDIS_ADDR"),
		Executor:        strings.ToLower(envOr(getenv, "EXECUTOR", "local")),
		LogLevel:        envOr(getenv, "LOG_LEVEL", "info"),
		ShutdownTimeout: 15 * time.Second,
		Providers:       map[string]providers.ClientConfig{},
	}

	var err error
	if cfg.Interactive, err = envBool(getenv, "INTERACTIVE", false); err != nil {
		return appConfig{}, err
	}
	if cfg.Headless, err = envBool(getenv, "HEADLESS", true); err != nil {
		return appConfig{}, err
	}
	if cfg.QueueConcurrent, err = envInt(getenv, "QUEUE_CONCURRENCY", 10); err != nil {
		return appConfig{}, err
	}
	if raw := env(getenv, "SHUTDOWN_TIMEOUT"); raw != "" {
		if cfg.ShutdownTimeout, err = time.ParseDuration(raw); err != nil {
			return appConfig{}, fmt.Errorf("%sSHUTDOWN_TIMEOUT: %w", envPrefix, err)
		}
	}

	if cfg.CredentialKeys, err = credentialKeys(getenv); err != nil {
		return appConfig{}, err
	}

	switch cfg.DBDriver {
	case "", "postgres", "pgx", "sqlite3":
	default:
		return appConfig{}, fmt.Errorf("%sDB_DRIVER: unsupported driver %q", envPrefix, cfg.DBDriver)
	}
	if cfg.DBDriver != "" && cfg.DBDSN == "" {
		return appConfig{}, fmt.Errorf("%sDB_DSN is required with driver %q", envPrefix, cfg.DBDriver)
	}
	switch cfg.Executor {
	case "local":
	case "asynq":
		if cfg.RedisAddr == "" {
			return appConfig{}, fmt.Errorf("%sREDIS_ADDR is required by the asynq executor", envPrefix)
		}
	default:
		return appConfig{}, fmt.Errorf("%sEXECUTOR: unsupported executor %q", envPrefix, cfg.Executor)
	}

	for id := range integrations.BuiltinProviderFactories() {
		client, ok, err := providerConfig(getenv, id)
		if err != nil {
			return appConfig{}, err
		}
		if ok {
			cfg.Providers[id] = client
		}
	}
	return cfg, nil
}

// providerConfig reads INTEGRATIONS_<ID>_CLIENT_ID and friends. A provider
// without a client id is not registered.
func providerConfig(getenv func(string) string, id string) (providers.ClientConfig, bool, error) {
	prefix := strings.ToUpper(id) + "_"
	clientID := env(getenv, prefix+"CLIENT_ID")
	if clientID == "" {
		return providers.ClientConfig{}, false, nil
	}
	client := providers.ClientConfig{
		ClientID:     clientID,
		ClientSecret: env(getenv, prefix+"CLIENT_SECRET"),
		RedirectURI:  env(getenv, prefix+"REDIRECT_URI"),
	}
	if scopes := env(getenv, prefix+"SCOPES"); scopes != "" {
		client.DefaultScopes = strings.FieldsFunc(scopes, func(r rune) bool { return r == ',' || r == ' ' })
	}
	if raw := env(getenv, prefix+"USE_PKCE"); raw != "" {
		usePKCE, err := strconv.ParseBool(raw)
		if err != nil {
			return providers.ClientConfig{}, false, fmt.Errorf("%s%sUSE_PKCE: %w", envPrefix, prefix, err)
		}
		client.UsePKCE = &usePKCE
	}
	return client, true, nil
}

// credentialKeys reads the active sealing key and any retired keys given as
// INTEGRATIONS_CREDENTIAL_RETIRED_KEYS=id=material,id=material.
func credentialKeys(getenv func(string) string) ([]security.Key, error) {
	material := env(getenv, "CREDENTIAL_KEY")
	retired := env(getenv, "CREDENTIAL_RETIRED_KEYS")
	if material == "" {
		if retired != "" {
			return nil, fmt.Errorf("%sCREDENTIAL_RETIRED_KEYS requires %sCREDENTIAL_KEY", envPrefix, envPrefix)
		}
		return nil, nil
	}
	keys := []security.Key{{
		ID:       envOr(getenv, "CREDENTIAL_KEY_ID", "primary"),
		Material: []byte(material),
	}}
	for _, entry := range strings.Split(retired, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, secret, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(id) == "" || strings.TrimSpace(secret) == "" {
			return nil, fmt.Errorf("%sCREDENTIAL_RETIRED_KEYS: malformed entry %q", envPrefix, entry)
		}
		keys = append(keys, security.Key{ID: strings.TrimSpace(id), Material: []byte(strings.TrimSpace(secret))})
	}
	return keys, nil
}

func (c appConfig) providerIDs() []string {
	ids := make([]string, 0, len(c.Providers))
	for id := range c.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// envConfigLoader feeds core.Config keys from the environment into the
// cfgx-backed config provider. Durations are parsed here.
type envConfigLoader struct {
	getenv func(string) string
}

var durationKeys = map[string][2]string{
	"OAUTH_FLOW_STATE_TTL":        {"oauth", "flow_state_ttl"},
	"OAUTH_INTERACTIVE_TIMEOUT":   {"oauth", "interactive_timeout"},
	"OAUTH_CLOSE_POLL_INTERVAL":   {"oauth", "close_poll_interval"},
	"OAUTH_REFRESH_BUFFER":        {"oauth", "refresh_buffer"},
	"OPERATIONS_SETTLING_DELAY":   {"operations", "settling_delay"},
	"OPERATIONS_POLL_INTERVAL":    {"operations", "poll_interval"},
	"OPERATIONS_STATUS_CACHE_TTL": {"operations", "status_cache_ttl"},
}

var intKeys = map[string][2]string{
	"OAUTH_FLOW_STATE_CAPACITY": {"oauth", "flow_state_capacity"},
	"DISPATCH_WORKERS":          {"dispatch", "workers"},
	"DISPATCH_ERROR_BUFFER":     {"dispatch", "error_buffer"},
}

func (l envConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}
	if name := env(l.getenv, "SERVICE_NAME"); name != "" {
		raw["service_name"] = name
	}
	if base := env(l.getenv, "OAUTH_REDIRECT_BASE_URL"); base != "" {
		section(raw, "oauth")["redirect_base_url"] = base
	}
	for key, path := range durationKeys {
		value := env(l.getenv, key)
		if value == "" {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		section(raw, path[0])[path[1]] = parsed
	}
	for key, path := range intKeys {
		value := env(l.getenv, key)
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		section(raw, path[0])[path[1]] = parsed
	}
	return raw, nil
}

func section(raw map[string]any, name string) map[string]any {
	if existing, ok := raw[name].(map[string]any); ok {
		return existing
	}
	created := map[string]any{}
	raw[name] = created
	return created
}

func env(getenv func(string) string, key string) string {
	return strings.TrimSpace(getenv(envPrefix + key))
}

func envOr(getenv func(string) string, key string, fallback string) string {
	if value := env(getenv, key); value != "" {
		return value
	}
	return fallback
}

func envBool(getenv func(string) string, key string, fallback bool) (bool, error) {
	value := env(getenv, key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return parsed, nil
}

func envInt(getenv func(string) string, key string, fallback int) (int, error) {
	value := env(getenv, key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return parsed, nil
}
