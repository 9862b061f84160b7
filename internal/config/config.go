// Package config defines the top-level configuration for the InfoFi
// coordinator and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by INFOFID_* environment variables.
type Config struct {
	NetworkKey string                    `toml:"network_key"`
	Networks   map[string]NetworkProfile `toml:"networks"`
	Wallet     WalletConfig              `toml:"wallet"`
	Postgres   PostgresConfig            `toml:"postgres"`
	Redis      RedisConfig               `toml:"redis"`
	S3         S3Config                  `toml:"s3"`
	Server     ServerConfig              `toml:"server"`
	Notify     NotifyConfig              `toml:"notify"`
	Engine     EngineConfig              `toml:"engine"`
	LogLevel   string                    `toml:"log_level"`
}

// NetworkProfile describes one chain deployment (LOCAL, TESTNET, MAINNET).
// Profiles are loaded at startup and never mutated afterwards.
type NetworkProfile struct {
	RpcURL                string    `toml:"rpc_url"`
	WsURL                 string    `toml:"ws_url"`
	ChainID               int64     `toml:"chain_id"`
	AvgBlockTimeSec       int       `toml:"avg_block_time_sec"`
	DefaultLookbackBlocks uint64    `toml:"default_lookback_blocks"`
	Addresses             Addresses `toml:"addresses"`
}

// Addresses holds the deployed contract addresses for one network.
type Addresses struct {
	Raffle      string `toml:"raffle"`
	Curve       string `toml:"curve"`
	Factory     string `toml:"factory"`
	Oracle      string `toml:"oracle"`
	FPMMManager string `toml:"fpmm_manager"`
	SOF         string `toml:"sof"`
}

// WalletConfig holds the backend account credentials. The account must hold
// the backend role on the factory and the price-updater role on the oracle.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds optional Redis connection parameters. When Addr is empty
// the coordinator runs without the price mirror and distributed dedup.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds optional S3-compatible object storage parameters for
// arbitrage history archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP/WebSocket server configuration.
type ServerConfig struct {
	Port int `toml:"port"`
}

// NotifyConfig holds operator notification settings.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	DiscordWebhook string   `toml:"discord_webhook"`
	Events         []string `toml:"events"`
}

// EngineConfig holds the coordination engine tunables.
type EngineConfig struct {
	PollIntervalMs             int    `toml:"poll_interval_ms"`
	LogChunkMax                uint64 `toml:"log_chunk_max"`
	LogChunkMin                uint64 `toml:"log_chunk_min"`
	RPCTimeoutSec              int    `toml:"rpc_timeout_sec"`
	ConfirmTimeoutSec          int    `toml:"confirm_timeout_sec"`
	MarketThresholdBps         int    `toml:"market_threshold_bps"`
	HybridRaffleWeightBps      int    `toml:"hybrid_raffle_weight_bps"`
	HybridMarketWeightBps      int    `toml:"hybrid_market_weight_bps"`
	ArbitrageThresholdBps      int    `toml:"arbitrage_threshold_bps"`
	ArbitrageDedupWindowSec    int    `toml:"arbitrage_dedup_window_sec"`
	MarketCreationGasLimit     uint64 `toml:"market_creation_gas_limit"`
	CreateMarketRetryDelaysSec []int  `toml:"create_market_retry_delays_sec"`
	PositionHandlerBatchSize   int    `toml:"position_handler_batch_size"`
	MonitorIntervalSec         int    `toml:"monitor_interval_sec"`
	HeartbeatSec               int    `toml:"heartbeat_sec"`
	PaymasterURL               string `toml:"paymaster_url"`
	ArchiveEnabled             bool   `toml:"archive_enabled"`
	ArchiveAfterDays           int    `toml:"archive_after_days"`
}

// Defaults returns a Config populated with the documented default values.
// Load merges the TOML file and environment overrides on top of this.
func Defaults() Config {
	return Config{
		NetworkKey: "LOCAL",
		Networks: map[string]NetworkProfile{
			"LOCAL": {
				RpcURL:                "http://127.0.0.1:8545",
				ChainID:               31337,
				AvgBlockTimeSec:       1,
				DefaultLookbackBlocks: 1000,
			},
		},
		Postgres: PostgresConfig{
			Host:          "127.0.0.1",
			Port:          5432,
			Database:      "infofid",
			User:          "infofid",
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Server: ServerConfig{Port: 8787},
		Engine: EngineConfig{
			PollIntervalMs:             3000,
			LogChunkMax:                10000,
			LogChunkMin:                500,
			RPCTimeoutSec:              10,
			ConfirmTimeoutSec:          60,
			MarketThresholdBps:         100,
			HybridRaffleWeightBps:      domainDefaultRaffleWeight,
			HybridMarketWeightBps:      domainDefaultMarketWeight,
			ArbitrageThresholdBps:      200,
			ArbitrageDedupWindowSec:    300,
			MarketCreationGasLimit:     5_000_000,
			CreateMarketRetryDelaysSec: []int{5, 15, 45},
			PositionHandlerBatchSize:   10,
			MonitorIntervalSec:         10,
			HeartbeatSec:               30,
			ArchiveAfterDays:           30,
		},
		LogLevel: "info",
	}
}

// Mirrors domain.DefaultRaffleWeightBps / DefaultMarketWeightBps without an
// import cycle risk from future domain growth.
const (
	domainDefaultRaffleWeight = 7000
	domainDefaultMarketWeight = 3000
)

// Network returns the selected network profile.
func (c *Config) Network() (NetworkProfile, error) {
	key := strings.ToUpper(strings.TrimSpace(c.NetworkKey))
	p, ok := c.Networks[key]
	if !ok {
		return NetworkProfile{}, fmt.Errorf("config: unknown network key %q", c.NetworkKey)
	}
	return p, nil
}

// PollInterval returns the listener poll interval as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMs) * time.Millisecond
}

// RetryDelays returns the market creator's backoff schedule as Durations.
func (c *Config) RetryDelays() []time.Duration {
	out := make([]time.Duration, 0, len(c.Engine.CreateMarketRetryDelaysSec))
	for _, s := range c.Engine.CreateMarketRetryDelaysSec {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

// Validate checks cross-field invariants. It must be called after Load and
// before wiring dependencies.
func (c *Config) Validate() error {
	net, err := c.Network()
	if err != nil {
		return err
	}
	if strings.TrimSpace(net.RpcURL) == "" {
		return fmt.Errorf("config: networks.%s.rpc_url is required", c.NetworkKey)
	}
	if net.ChainID == 0 {
		return fmt.Errorf("config: networks.%s.chain_id is required", c.NetworkKey)
	}

	e := c.Engine
	if e.HybridRaffleWeightBps+e.HybridMarketWeightBps != 10000 {
		return fmt.Errorf("config: hybrid weights must sum to 10000, got %d+%d",
			e.HybridRaffleWeightBps, e.HybridMarketWeightBps)
	}
	if e.LogChunkMin == 0 || e.LogChunkMax < e.LogChunkMin {
		return fmt.Errorf("config: log chunk bounds invalid (min=%d max=%d)", e.LogChunkMin, e.LogChunkMax)
	}
	if e.MarketThresholdBps < 0 || e.MarketThresholdBps > 10000 {
		return fmt.Errorf("config: market_threshold_bps out of range: %d", e.MarketThresholdBps)
	}
	if e.PositionHandlerBatchSize <= 0 {
		return fmt.Errorf("config: position_handler_batch_size must be positive")
	}
	if e.PollIntervalMs <= 0 {
		return fmt.Errorf("config: poll_interval_ms must be positive")
	}

	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		return fmt.Errorf("config: wallet private_key or encrypted_key_path is required")
	}
	return nil
}
