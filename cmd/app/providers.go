package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/shim-server/internal/domain/auth"
	"github.com/yanqian/shim-server/internal/domain/shim"
	"github.com/yanqian/shim-server/internal/infra/accountrepo"
	"github.com/yanqian/shim-server/internal/infra/archive"
	"github.com/yanqian/shim-server/internal/infra/config"
	"github.com/yanqian/shim-server/internal/infra/responsecache"
	"github.com/yanqian/shim-server/internal/infra/scheduler"
	"github.com/yanqian/shim-server/internal/infra/transport"
	"github.com/yanqian/shim-server/internal/infra/withings"
)

func provideAuthConfig(cfg *config.Config) auth.Config {
	clients := make([]auth.Client, 0, len(cfg.Auth.Clients))
	for _, c := range cfg.Auth.Clients {
		clients = append(clients, auth.Client{ID: c.ID, SecretHash: c.SecretHash})
	}
	return auth.Config{
		Secret:   cfg.Auth.Secret,
		TokenTTL: cfg.Auth.TokenTTL,
		Clients:  clients,
	}
}

func provideShimConfig(cfg *config.Config) shim.Config {
	return shim.Config{TokenEncryptionKey: cfg.Accounts.TokenEncryptionKey}
}

func provideAccountRepository(cfg *config.Config, logger *slog.Logger) shim.Repository {
	fallback := accountrepo.NewMemoryRepository()
	dsn := strings.TrimSpace(cfg.Accounts.Postgres.DSN)
	if dsn == "" {
		logger.Info("accounts postgres dsn not set, using memory repository")
		return fallback
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory repository", "error", err)
		return fallback
	}
	if cfg.Accounts.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Accounts.Postgres.MaxConns
	}
	if cfg.Accounts.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Accounts.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory repository", "error", err)
		return fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory repository", "error", err)
		pool.Close()
		return fallback
	}
	repo := accountrepo.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure accounts schema, using memory repository", "error", err)
		pool.Close()
		return fallback
	}
	logger.Info("accounts postgres repository enabled")
	return repo
}

func provideResponseCache(cfg *config.Config, logger *slog.Logger) transport.Cache {
	if cfg.Cache.Redis.Enabled {
		opt, err := buildValkeyOptions(cfg.Cache.Redis.Addr)
		if err != nil {
			logger.Error("invalid valkey configuration, falling back to memory cache", "error", err)
			return responsecache.NewMemoryStore(cfg.Cache.MemoryMaxEntries)
		}
		client, err := valkey.NewClient(opt)
		if err != nil {
			logger.Error("failed to create valkey client, falling back to memory cache", "error", err)
			return responsecache.NewMemoryStore(cfg.Cache.MemoryMaxEntries)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
			logger.Error("valkey ping failed, falling back to memory cache", "error", err)
			client.Close()
		} else {
			logger.Info("response cache valkey store enabled", "addr", cfg.Cache.Redis.Addr)
			return responsecache.NewValkeyStore(client, cfg.Cache.Prefix)
		}
	}
	return responsecache.NewMemoryStore(cfg.Cache.MemoryMaxEntries)
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

// provideArchive returns nil when archiving is off so the transport keeps no copies.
func provideArchive(cfg *config.Config, logger *slog.Logger) transport.Archive {
	if !cfg.Archive.Enabled {
		logger.Info("object archive disabled")
		return nil
	}
	store, err := archive.NewObjectArchive(cfg.Archive.Endpoint, cfg.Archive.AccessKey, cfg.Archive.SecretKey, cfg.Archive.Bucket, cfg.Archive.Region, logger)
	if err != nil {
		logger.Error("failed to initialize object archive, archiving disabled", "error", err)
		return nil
	}
	logger.Info("object archive enabled", "bucket", cfg.Archive.Bucket)
	return store
}

func provideTransportClient(cfg *config.Config, cache transport.Cache, store transport.Archive, logger *slog.Logger) *transport.Client {
	return transport.NewClient(transport.Config{
		Timeout:      cfg.Transport.Timeout,
		MaxBodyBytes: cfg.Transport.MaxBodyBytes,
		CacheTTL:     cfg.Transport.CacheTTL,
		Backoff: transport.BackoffConfig{
			MaxRetries:      cfg.Transport.MaxRetries,
			InitialInterval: cfg.Transport.InitialBackoff,
			MaxInterval:     cfg.Transport.MaxBackoff,
		},
		Breaker: transport.BreakerConfig{
			MaxRequests:         cfg.Transport.Breaker.MaxRequests,
			Interval:            cfg.Transport.Breaker.Interval,
			Timeout:             cfg.Transport.Breaker.Timeout,
			ConsecutiveFailures: cfg.Transport.Breaker.ConsecutiveFailures,
		},
		Consumers: map[string]transport.Consumer{
			withings.Key: {Key: cfg.Withings.ConsumerKey, Secret: cfg.Withings.ConsumerSecret},
		},
	}, nil, cache, store, logger)
}

func provideWithingsShim(cfg *config.Config, fetcher shim.Fetcher, logger *slog.Logger) (*withings.Shim, error) {
	return withings.NewShim(withings.Config{
		BaseURL:               cfg.Withings.BaseURL,
		IntradayDataAvailable: cfg.Withings.IntradayDataAvailable,
	}, fetcher, logger)
}

func provideShims(w *withings.Shim) []shim.Shim {
	return []shim.Shim{w}
}

func provideSyncer(cfg *config.Config, svc shim.Service, logger *slog.Logger) *scheduler.Syncer {
	return scheduler.New(scheduler.Config{
		Enabled:     cfg.Sync.Enabled,
		Interval:    cfg.Sync.Interval,
		Lookback:    cfg.Sync.Lookback,
		Timeout:     cfg.Sync.Timeout,
		Concurrency: cfg.Sync.Concurrency,
	}, svc, logger)
}
