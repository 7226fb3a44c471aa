package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultFlowStateTTL        = 15 * time.Minute
	DefaultFlowStateCapacity   = 10000
	DefaultInteractiveTimeout  = 10 * time.Minute
	DefaultClosePollInterval   = time.Second
	DefaultRefreshBuffer       = 300 * time.Second
	DefaultSettlingDelay       = 2 * time.Second
	DefaultPollInterval        = 5 * time.Second
	DefaultStatusCacheTTL      = 30 * time.Second
	DefaultDispatchWorkers     = 8
	DefaultDispatchErrorBuffer = 64
)

type OAuthConfig struct {
	FlowStateTTL       time.Duration `koanf:"flow_state_ttl" mapstructure:"flow_state_ttl"`
	FlowStateCapacity  int           `koanf:"flow_state_capacity" mapstructure:"flow_state_capacity"`
	InteractiveTimeout time.Duration `koanf:"interactive_timeout" mapstructure:"interactive_timeout"`
	ClosePollInterval  time.Duration `koanf:"close_poll_interval" mapstructure:"close_poll_interval"`
	RefreshBuffer      time.Duration `koanf:"refresh_buffer" mapstructure:"refresh_buffer"`
	RedirectBaseURL    string        `koanf:"redirect_base_url" mapstructure:"redirect_base_url"`
}

type OperationsConfig struct {
	SettlingDelay  time.Duration `koanf:"settling_delay" mapstructure:"settling_delay"`
	PollInterval   time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	StatusCacheTTL time.Duration `koanf:"status_cache_ttl" mapstructure:"status_cache_ttl"`
}

type DispatchConfig struct {
	Workers     int `koanf:"workers" mapstructure:"workers"`
	ErrorBuffer int `koanf:"error_buffer" mapstructure:"error_buffer"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig      `koanf:"oauth" mapstructure:"oauth"`
	Operations  OperationsConfig `koanf:"operations" mapstructure:"operations"`
	Dispatch    DispatchConfig   `koanf:"dispatch" mapstructure:"dispatch"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "integrations",
		OAuth: OAuthConfig{
			FlowStateTTL:       DefaultFlowStateTTL,
			FlowStateCapacity:  DefaultFlowStateCapacity,
			InteractiveTimeout: DefaultInteractiveTimeout,
			ClosePollInterval:  DefaultClosePollInterval,
			RefreshBuffer:      DefaultRefreshBuffer,
		},
		Operations: OperationsConfig{
			SettlingDelay:  DefaultSettlingDelay,
			PollInterval:   DefaultPollInterval,
			StatusCacheTTL: DefaultStatusCacheTTL,
		},
		Dispatch: DispatchConfig{
			Workers:     DefaultDispatchWorkers,
			ErrorBuffer: DefaultDispatchErrorBuffer,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OAuth.FlowStateTTL < 0 {
		return fmt.Errorf("core: oauth.flow_state_ttl must be >= 0")
	}
	if c.OAuth.InteractiveTimeout < 0 {
		return fmt.Errorf("core: oauth.interactive_timeout must be >= 0")
	}
	if c.OAuth.ClosePollInterval < 0 {
		return fmt.Errorf("core: oauth.close_poll_interval must be >= 0")
	}
	if c.OAuth.RefreshBuffer < 0 {
		return fmt.Errorf("core: oauth.refresh_buffer must be >= 0")
	}
	if c.Operations.SettlingDelay < 0 || c.Operations.PollInterval < 0 {
		return fmt.Errorf("core: operations delays must be >= 0")
	}
	if c.Dispatch.Workers < 0 || c.Dispatch.ErrorBuffer < 0 {
		return fmt.Errorf("core: dispatch sizes must be >= 0")
	}
	return nil
}

// withDefaults fills zero values so partially specified runtime configs
// still behave.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = defaults.ServiceName
	}
	if c.OAuth.FlowStateTTL == 0 {
		c.OAuth.FlowStateTTL = defaults.OAuth.FlowStateTTL
	}
	if c.OAuth.FlowStateCapacity == 0 {
		c.OAuth.FlowStateCapacity = defaults.OAuth.FlowStateCapacity
	}
	if c.OAuth.InteractiveTimeout == 0 {
		c.OAuth.InteractiveTimeout = defaults.OAuth.InteractiveTimeout
	}
	if c.OAuth.ClosePollInterval == 0 {
		c.OAuth.ClosePollInterval = defaults.OAuth.ClosePollInterval
	}
	if c.OAuth.RefreshBuffer == 0 {
		c.OAuth.RefreshBuffer = defaults.OAuth.RefreshBuffer
	}
	if c.Operations.SettlingDelay == 0 {
		c.Operations.SettlingDelay = defaults.Operations.SettlingDelay
	}
	if c.Operations.PollInterval == 0 {
		c.Operations.PollInterval = defaults.Operations.PollInterval
	}
	if c.Operations.StatusCacheTTL == 0 {
		c.Operations.StatusCacheTTL = defaults.Operations.StatusCacheTTL
	}
	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = defaults.Dispatch.Workers
	}
	if c.Dispatch.ErrorBuffer == 0 {
		c.Dispatch.ErrorBuffer = defaults.Dispatch.ErrorBuffer
	}
	return c
}
