package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RaghavSood/crosswap/lifi"
	"github.com/RaghavSood/crosswap/swaps"
)

const envPrefix = "CROSSWAP"

type LiFi struct {
	BaseURL    string  `mapstructure:"base_url"`
	APIKey     string  `mapstructure:"api_key"`
	Integrator string  `mapstructure:"integrator"`
	Referrer   string  `mapstructure:"referrer"`
	RateLimit  float64 `mapstructure:"rate_limit"`
}

type Quote struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type Swap struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	InfiniteApproval bool          `mapstructure:"infinite_approval"`
	DefaultSlippage  float64       `mapstructure:"default_slippage"`
}

type Telegram struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type Config struct {
	// BIP39 mnemonic for the signing account
	Mnemonic string `mapstructure:"mnemonic"`

	// Derivation index under m/44'/60'/0'/0
	AccountIndex uint32 `mapstructure:"account_index"`

	// RPC endpoints keyed by EVM chain id
	RPCEndpoints map[uint64]string `mapstructure:"-"`

	LiFi     LiFi     `mapstructure:"lifi"`
	Quote    Quote    `mapstructure:"quote"`
	Swap     Swap     `mapstructure:"swap"`
	Telegram Telegram `mapstructure:"telegram"`

	// Path to SQLite database; empty disables journaling and request logs
	DatabasePath string `mapstructure:"database_path"`

	// HTTP server port
	Port int `mapstructure:"port"`
}

// Load reads configuration from path (or crosswap.{yaml,json,toml} in the working
// directory and $HOME/.crosswap when path is empty), then CROSSWAP_* environment
// variables. Nested keys use underscores: CROSSWAP_LIFI_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("account_index", 0)
	v.SetDefault("lifi.base_url", lifi.DefaultBaseURL)
	v.SetDefault("lifi.referrer", lifi.DefaultReferrer)
	v.SetDefault("lifi.rate_limit", lifi.DefaultRateLimit)
	v.SetDefault("quote.ttl", swaps.DefaultQuoteTTL)
	v.SetDefault("swap.poll_interval", swaps.DefaultPollInterval)
	v.SetDefault("swap.infinite_approval", false)
	v.SetDefault("swap.default_slippage", swaps.DefaultSlippage)
	v.SetDefault("port", 8080)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"mnemonic", "rpc_endpoints", "lifi.api_key", "lifi.integrator", "database_path", "telegram.token", "telegram.chat_id"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		v.SetConfigName("crosswap")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.crosswap")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	endpoints, err := parseEndpoints(v.Get("rpc_endpoints"))
	if err != nil {
		return nil, fmt.Errorf("parsing rpc_endpoints: %w", err)
	}
	cfg.RPCEndpoints = endpoints

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// parseEndpoints accepts a map from a config file or "1=https://…,10=https://…" from the environment.
func parseEndpoints(raw interface{}) (map[uint64]string, error) {
	out := make(map[uint64]string)

	add := func(key string, url interface{}) error {
		id, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid chain id %q", key)
		}
		s, ok := url.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("chain %d: endpoint must be a non-empty string", id)
		}
		out[id] = strings.TrimSpace(s)
		return nil
	}

	switch m := raw.(type) {
	case nil:
	case map[string]interface{}:
		for k, u := range m {
			if err := add(k, u); err != nil {
				return nil, err
			}
		}
	case map[string]string:
		for k, u := range m {
			if err := add(k, u); err != nil {
				return nil, err
			}
		}
	case string:
		for _, pair := range strings.Split(m, ",") {
			if strings.TrimSpace(pair) == "" {
				continue
			}
			k, u, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("expected CHAINID=URL, got %q", pair)
			}
			if err := add(k, u); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported type %T", raw)
	}
	return out, nil
}

func (c *Config) validate() error {
	if c.Mnemonic == "" {
		return fmt.Errorf("mnemonic is required")
	}
	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one rpc_endpoints entry is required")
	}
	if c.Swap.DefaultSlippage <= 0 || c.Swap.DefaultSlippage > swaps.MaxSlippage {
		return fmt.Errorf("swap.default_slippage must be in (0, %g]", swaps.MaxSlippage)
	}
	if c.Quote.TTL <= 0 {
		return fmt.Errorf("quote.ttl must be positive")
	}
	if c.Swap.PollInterval <= 0 {
		return fmt.Errorf("swap.poll_interval must be positive")
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required when telegram.token is set")
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	return nil
}

// SwapConfig returns the engine tuning derived from the configuration.
func (c *Config) SwapConfig() swaps.Config {
	return swaps.Config{
		QuoteTTL:         c.Quote.TTL,
		PollInterval:     c.Swap.PollInterval,
		DefaultSlippage:  c.Swap.DefaultSlippage,
		InfiniteApproval: c.Swap.InfiniteApproval,
	}
}

// LiFiOptions returns the aggregator client options.
func (c *Config) LiFiOptions() lifi.Options {
	return lifi.Options{
		BaseURL:    c.LiFi.BaseURL,
		APIKey:     c.LiFi.APIKey,
		Integrator: c.LiFi.Integrator,
		Referrer:   c.LiFi.Referrer,
		RateLimit:  c.LiFi.RateLimit,
	}
}
