package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	s3blob "github.com/sofmarkets/infofid/internal/blob/s3"
	"github.com/sofmarkets/infofid/internal/cache/memory"
	"github.com/sofmarkets/infofid/internal/cache/redis"
	"github.com/sofmarkets/infofid/internal/chain"
	"github.com/sofmarkets/infofid/internal/config"
	"github.com/sofmarkets/infofid/internal/crypto"
	"github.com/sofmarkets/infofid/internal/domain"
	"github.com/sofmarkets/infofid/internal/notify"
	"github.com/sofmarkets/infofid/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the coordinator needs.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Pool     *pgxpool.Pool
	Markets  domain.MarketStore
	Pricing  domain.PricingStore
	Arbs     domain.ArbStore
	Cursors  domain.CursorStore
	Players  domain.PlayerStore
	Attempts domain.AttemptStore

	// Caches. Mirror is nil without Redis; Dedup always resolves, falling
	// back to the in-process guard.
	Mirror domain.PriceMirror
	Dedup  domain.DedupGuard

	// Chain
	Network   config.NetworkProfile
	Chain     *chain.Client
	Sender    *chain.Sender
	Raffle    *chain.Raffle
	Factory   *chain.Factory
	Oracle    *chain.Oracle
	Paymaster *chain.Paymaster // nil when no paymaster URL is configured

	// Blob storage. Nil without an S3 bucket.
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	net, err := cfg.Network()
	if err != nil {
		return nil, nil, err
	}
	deps.Network = net

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Pool = pool
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Pricing = postgres.NewPricingStore(pool)
	deps.Arbs = postgres.NewArbStore(pool)
	deps.Cursors = postgres.NewCursorStore(pool)
	deps.Players = postgres.NewPlayerStore(pool)
	deps.Attempts = postgres.NewAttemptStore(pool)

	// --- Redis (optional) ---
	deps.Dedup = memory.NewDedupGuard()
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Mirror = redis.NewPriceMirror(redisClient)
		deps.Dedup = redis.NewDedupGuard(redisClient)
	}

	// --- Chain ---
	chainClient, err := chain.Dial(ctx, net.RpcURL,
		time.Duration(cfg.Engine.RPCTimeoutSec)*time.Second, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)
	deps.Chain = chainClient

	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}

	deps.Sender = chain.NewSender(chainClient, key, net.ChainID,
		time.Duration(cfg.Engine.ConfirmTimeoutSec)*time.Second, logger)
	deps.Raffle = chain.NewRaffle(chainClient, common.HexToAddress(net.Addresses.Raffle))
	deps.Factory = chain.NewFactory(chainClient, deps.Sender, common.HexToAddress(net.Addresses.Factory))
	deps.Oracle = chain.NewOracle(deps.Sender, common.HexToAddress(net.Addresses.Oracle))

	if cfg.Engine.PaymasterURL != "" {
		deps.Paymaster = chain.NewPaymaster(chainClient, cfg.Engine.PaymasterURL, deps.Sender.From())
	}

	// --- S3 archival (optional) ---
	if cfg.Engine.ArchiveEnabled && cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		retention := time.Duration(cfg.Engine.ArchiveAfterDays) * 24 * time.Hour
		deps.Archiver = s3blob.NewArchiver(s3Client, deps.Arbs, retention, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
