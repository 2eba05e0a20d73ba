// Package config loads the gateway configuration from the environment.
// Absent credentials narrow capability instead of failing startup.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full configuration surface of the gateway process.
type Config struct {
	HTTPAddr string `env:"ZKV_HTTP_ADDR,default=:8080"`
	LogLevel string `env:"ZKV_LOG_LEVEL,default=info"`

	PostgresDSN string        `env:"ZKV_POSTGRES_DSN"`
	RedisAddr   string        `env:"ZKV_REDIS_ADDR"`
	RedisTTL    time.Duration `env:"ZKV_REDIS_TTL,default=5m"`

	ExchangeAPIURL string `env:"ZKV_EXCHANGE_API_URL"`
	ExchangeAPIKey string `env:"ZKV_EXCHANGE_API_KEY"`

	MCPGatewayURL string `env:"ZKV_MCP_GATEWAY_URL"`

	DEXRPCURL     string `env:"ZKV_DEX_RPC_URL"`
	DEXRouterAddr string `env:"ZKV_DEX_ROUTER_ADDR"`

	SignerKey string `env:"ZKV_SIGNER_KEY"`

	PriceMaxAge     time.Duration `env:"ZKV_PRICE_MAX_AGE,default=30s"`
	SourceTimeout   time.Duration `env:"ZKV_SOURCE_TIMEOUT,default=5s"`
	BusCapacity     int           `env:"ZKV_BUS_CAPACITY,default=1000"`
	RefreshSchedule string        `env:"ZKV_REFRESH_SCHEDULE,default=@every 30s"`
	SeedSymbols     []string      `env:"ZKV_SEED_SYMBOLS,default=BTC;ETH;LINK"`

	RateLimitPerSecond float64  `env:"ZKV_RATE_LIMIT_RPS,default=20"`
	RateLimitBurst     int      `env:"ZKV_RATE_LIMIT_BURST,default=40"`
	AllowedOrigins     []string `env:"ZKV_ALLOWED_ORIGINS,default=*"`

	SourcesFile string `env:"ZKV_SOURCES_FILE"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if cfg.BusCapacity <= 0 {
		cfg.BusCapacity = 1000
	}
	if cfg.PriceMaxAge <= 0 {
		cfg.PriceMaxAge = 30 * time.Second
	}
	return cfg, nil
}

// SignerAvailable reports whether a transaction-signing credential is
// configured. It is a presence check, not a network probe.
func (c Config) SignerAvailable() bool {
	return c.SignerKey != ""
}

// Integrations reports which external integrations are enabled, derived
// from credential presence.
func (c Config) Integrations() map[string]bool {
	return map[string]bool{
		"exchange": c.ExchangeAPIURL != "",
		"mcp":      c.MCPGatewayURL != "",
		"dex":      c.DEXRPCURL != "" && c.DEXRouterAddr != "",
		"postgres": c.PostgresDSN != "",
		"redis":    c.RedisAddr != "",
		"signer":   c.SignerAvailable(),
	}
}
