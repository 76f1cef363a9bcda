package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"omnibridge/pkg/chain"
	"omnibridge/pkg/storage"
)

// NetworkConfig configures one EVM network.
type NetworkConfig struct {
	RPCUrl          string  `mapstructure:"rpc_url"`
	ChainID         int64   `mapstructure:"chain_id"`
	EndpointID      uint32  `mapstructure:"endpoint_id"`
	EndpointAddress string  `mapstructure:"endpoint_address"`
	NativeSymbol    string  `mapstructure:"native_symbol"`
	PrivateKey      string  `mapstructure:"private_key"`
	GasLimit        uint64  `mapstructure:"gas_limit"`
	RateLimit       float64 `mapstructure:"rate_limit"`
}

// TokenConfig describes one token's decimals and per-network deployments.
type TokenConfig struct {
	Decimals  int32             `mapstructure:"decimals"`
	Addresses map[string]string `mapstructure:"addresses"`
}

// HistoryConfig selects where transfer history is persisted.
type HistoryConfig struct {
	Backend    string `mapstructure:"backend"` // "file" or "redis"
	FilePath   string `mapstructure:"file_path"`
	MaxRecords int    `mapstructure:"max_records"`
}

// RedisConfig configures the optional Redis history backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// KafkaConfig configures the optional event mirror.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ChannelConfig configures the live-update websocket channel.
type ChannelConfig struct {
	URL string `mapstructure:"url"`
}

// Config holds the full application configuration.
type Config struct {
	Networks map[string]NetworkConfig `mapstructure:"networks"`
	Tokens   map[string]TokenConfig   `mapstructure:"tokens"`
	History  HistoryConfig            `mapstructure:"history"`
	Redis    RedisConfig              `mapstructure:"redis"`
	Kafka    KafkaConfig              `mapstructure:"kafka"`
	Channel  ChannelConfig            `mapstructure:"channel"`

	// NativePrices and TokenPrices are static USD rates for fee reporting.
	NativePrices map[string]float64 `mapstructure:"native_prices"`
	TokenPrices  map[string]float64 `mapstructure:"token_prices"`
}

// Load reads configuration from the .omnibridge.yaml config file and
// OMNIBRIDGE_* environment variables. A .env file is honored if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName(".omnibridge")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	v.SetDefault("history.backend", "file")
	v.SetDefault("history.max_records", 100)
	v.SetDefault("redis.prefix", "omnibridge")
	v.SetDefault("kafka.topic", "omnibridge.events")

	v.SetEnvPrefix("OMNIBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can carry everything
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if len(cfg.Networks) == 0 {
		return nil, fmt.Errorf("no networks configured. Create a .omnibridge.yaml config file or set OMNIBRIDGE_* environment variables")
	}
	for name, n := range cfg.Networks {
		if n.RPCUrl == "" {
			return nil, fmt.Errorf("network %s has no rpc_url configured", name)
		}
	}
	return cfg, nil
}

// Adapters builds one connected EVM adapter per configured network, keyed by
// lowercased network name.
func (c *Config) Adapters(log zerolog.Logger) (map[string]chain.Adapter, error) {
	adapters := make(map[string]chain.Adapter, len(c.Networks))
	for name, n := range c.Networks {
		adapter, err := chain.NewEVMAdapter(chain.EVMConfig{
			Name:            name,
			RPCUrl:          n.RPCUrl,
			ChainID:         n.ChainID,
			EndpointAddress: n.EndpointAddress,
			PrivateKey:      n.PrivateKey,
			GasLimit:        n.GasLimit,
			RateLimit:       n.RateLimit,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to build adapter for network %s: %w", name, err)
		}
		adapters[strings.ToLower(name)] = adapter
	}
	return adapters, nil
}

// Registry builds the static network/token registry from configuration.
func (c *Config) Registry() *chain.StaticRegistry {
	networks := make(map[string]chain.NetworkInfo, len(c.Networks))
	for name, n := range c.Networks {
		networks[name] = chain.NetworkInfo{
			EndpointID:   n.EndpointID,
			NativeSymbol: n.NativeSymbol,
		}
	}
	tokens := make(map[string]chain.TokenInfo, len(c.Tokens))
	for symbol, t := range c.Tokens {
		tokens[symbol] = chain.TokenInfo{
			Decimals:  t.Decimals,
			Addresses: t.Addresses,
		}
	}
	return chain.NewStaticRegistry(networks, tokens)
}

// Oracle builds the static price oracle from the configured USD rates.
func (c *Config) Oracle() *chain.StaticOracle {
	return chain.NewStaticOracle(c.TokenPrices, c.NativePrices)
}

// KVStore opens the configured history backend.
func (c *Config) KVStore(ctx context.Context) (storage.Store, error) {
	switch strings.ToLower(c.History.Backend) {
	case "", "file":
		return storage.NewFileStore(c.History.FilePath)
	case "redis":
		if c.Redis.Addr == "" {
			return nil, fmt.Errorf("history backend is redis but redis.addr is not configured")
		}
		return storage.NewRedisStore(ctx, c.Redis.Addr, c.Redis.Password, c.Redis.DB, c.Redis.Prefix)
	default:
		return nil, fmt.Errorf("unknown history backend %q (expected file or redis)", c.History.Backend)
	}
}
