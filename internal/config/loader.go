package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies INFOFID_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known INFOFID_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.NetworkKey, "INFOFID_NETWORK_KEY")
	setStr(&cfg.LogLevel, "INFOFID_LOG_LEVEL")

	// Wallet
	setStr(&cfg.Wallet.PrivateKey, "INFOFID_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "INFOFID_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "INFOFID_WALLET_KEY_PASSWORD")

	// Postgres
	setStr(&cfg.Postgres.DSN, "INFOFID_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "INFOFID_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "INFOFID_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "INFOFID_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "INFOFID_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "INFOFID_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "INFOFID_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "INFOFID_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setStr(&cfg.Redis.Addr, "INFOFID_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "INFOFID_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "INFOFID_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "INFOFID_REDIS_TLS_ENABLED")

	// S3
	setStr(&cfg.S3.Endpoint, "INFOFID_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "INFOFID_S3_REGION")
	setStr(&cfg.S3.Bucket, "INFOFID_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "INFOFID_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "INFOFID_S3_SECRET_KEY")

	// Server
	setInt(&cfg.Server.Port, "INFOFID_SERVER_PORT")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "INFOFID_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "INFOFID_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "INFOFID_NOTIFY_DISCORD_WEBHOOK")

	// Engine
	setInt(&cfg.Engine.PollIntervalMs, "INFOFID_POLL_INTERVAL_MS")
	setUint64(&cfg.Engine.LogChunkMax, "INFOFID_LOG_CHUNK_MAX")
	setUint64(&cfg.Engine.LogChunkMin, "INFOFID_LOG_CHUNK_MIN")
	setInt(&cfg.Engine.MarketThresholdBps, "INFOFID_MARKET_THRESHOLD_BPS")
	setInt(&cfg.Engine.HybridRaffleWeightBps, "INFOFID_HYBRID_RAFFLE_WEIGHT_BPS")
	setInt(&cfg.Engine.HybridMarketWeightBps, "INFOFID_HYBRID_MARKET_WEIGHT_BPS")
	setInt(&cfg.Engine.ArbitrageThresholdBps, "INFOFID_ARBITRAGE_THRESHOLD_BPS")
	setInt(&cfg.Engine.ArbitrageDedupWindowSec, "INFOFID_ARBITRAGE_DEDUP_WINDOW_SEC")
	setUint64(&cfg.Engine.MarketCreationGasLimit, "INFOFID_MARKET_CREATION_GAS_LIMIT")
	setInt(&cfg.Engine.PositionHandlerBatchSize, "INFOFID_POSITION_HANDLER_BATCH_SIZE")
	setStr(&cfg.Engine.PaymasterURL, "INFOFID_PAYMASTER_URL")

	// Per-network RPC overrides, e.g. INFOFID_RPC_URL_TESTNET.
	for key, profile := range cfg.Networks {
		suffix := strings.ToUpper(key)
		if v := os.Getenv("INFOFID_RPC_URL_" + suffix); v != "" {
			profile.RpcURL = v
			cfg.Networks[key] = profile
		}
	}
}

func setStr(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
