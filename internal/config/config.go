// Package config loads the service configuration from an optional TOML file
// and PINWALLET_ environment variables layered over defaults.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load
const EnvPrefix = "PINWALLET_"

// Config is the complete service configuration
type Config struct {
	Log        LoggingConfig    `koanf:"log"`
	HTTP       HTTPConfig       `koanf:"http"`
	Custody    CustodyConfig    `koanf:"custody"`
	Signer     SignerConfig     `koanf:"signer"`
	Chain      ChainConfig      `koanf:"chain"`
	Onboarding OnboardingConfig `koanf:"onboarding"`
	Store      StoreConfig      `koanf:"store"`
	Events     EventsConfig     `koanf:"events"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// HTTPConfig holds the UI-facing HTTP server settings
type HTTPConfig struct {
	Address string `koanf:"address"`

	// AccessToken, when set, is required as a bearer token on wallet routes
	AccessToken string `koanf:"access_token"`
}

// CustodyConfig holds the remote custody service settings
type CustodyConfig struct {
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	IssueTokenTimeout time.Duration `koanf:"issue_token_timeout"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	AccountType       string        `koanf:"account_type"`
	Blockchains       []string      `koanf:"blockchains"`
}

// SignerConfig holds the PIN enclave settings
type SignerConfig struct {
	AppID string `koanf:"app_id"`
}

// ChainConfig describes the single chain exposed to the connector
type ChainConfig struct {
	ID   uint64 `koanf:"id"`
	Name string `koanf:"name"`
}

// OnboardingConfig tunes wallet discovery after a signed challenge
type OnboardingConfig struct {
	SettleInitialDelay time.Duration `koanf:"settle_initial_delay"`
	SettleMultiplier   float64       `koanf:"settle_multiplier"`
	SettleMaxAttempts  int           `koanf:"settle_max_attempts"`
}

// StoreConfig selects the session backend: memory, file or redis
type StoreConfig struct {
	Backend  string `koanf:"backend"`
	Path     string `koanf:"path"`
	RedisURL string `koanf:"redis_url"`
	Prefix   string `koanf:"prefix"`
}

// EventsConfig selects the event backend: gochannel or redis
type EventsConfig struct {
	Backend       string `koanf:"backend"`
	RedisURL      string `koanf:"redis_url"`
	ConsumerGroup string `koanf:"consumer_group"`
}

// MetricsConfig toggles the /metrics route
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Load reads configPath (optional) and the environment over the defaults.
//
// Environment keys drop the prefix, lower-case, and map "_" to nesting;
// "__" keeps a literal underscore: PINWALLET_CUSTODY_API__KEY -> custody.api_key.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
		s = strings.ReplaceAll(s, "_", ".")
		s = strings.ReplaceAll(s, "%UNDERSCORE%", "_")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration defaults
func Default() *Config {
	return &Config{
		Log: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Address: ":9000",
		},
		Custody: CustodyConfig{
			BaseURL:           "https://api.circle.com",
			IssueTokenTimeout: 30 * time.Second,
			RequestTimeout:    15 * time.Second,
			AccountType:       "SCA",
			Blockchains:       []string{"ARC-TESTNET"},
		},
		Chain: ChainConfig{
			ID:   5042002,
			Name: "Arc Testnet",
		},
		Onboarding: OnboardingConfig{
			SettleInitialDelay: 2500 * time.Millisecond,
			SettleMultiplier:   2,
			SettleMaxAttempts:  3,
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    "pinwallet-session.json",
			Prefix:  "pinwallet:",
		},
		Events: EventsConfig{
			Backend:       "gochannel",
			ConsumerGroup: "pinwallet",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	u, err := url.Parse(c.Custody.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("custody.base_url must be an absolute URL, got %q", c.Custody.BaseURL)
	}
	if c.Custody.IssueTokenTimeout <= 0 {
		return fmt.Errorf("custody.issue_token_timeout must be positive")
	}
	if c.Custody.RequestTimeout <= 0 {
		return fmt.Errorf("custody.request_timeout must be positive")
	}
	if c.Chain.ID == 0 {
		return fmt.Errorf("chain.id must be set")
	}
	if c.Onboarding.SettleMaxAttempts < 1 {
		return fmt.Errorf("onboarding.settle_max_attempts must be at least 1")
	}
	if c.Onboarding.SettleMultiplier < 1 {
		return fmt.Errorf("onboarding.settle_multiplier must be at least 1")
	}
	if c.Onboarding.SettleInitialDelay < 0 {
		return fmt.Errorf("onboarding.settle_initial_delay must not be negative")
	}

	switch c.Store.Backend {
	case "memory":
	case "file":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the file backend")
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	switch c.Events.Backend {
	case "gochannel":
	case "redis":
		if c.Events.RedisURL == "" {
			return fmt.Errorf("events.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown events.backend %q", c.Events.Backend)
	}
	return nil
}
