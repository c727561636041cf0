package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/threatwire/threatwire/config"
	"github.com/threatwire/threatwire/internal/data/connmanager"
	"github.com/threatwire/threatwire/internal/migrate"
	"github.com/threatwire/threatwire/internal/observability/statsd"
)

// DatabaseOptions groups dependencies for database bootstrap.
type DatabaseOptions struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// ConnectDB constructs and initializes the connection manager. A connect
// failure is logged but not fatal: the manager keeps retrying in the
// background, so the process comes up and serves once the database returns.
func ConnectDB(ctx context.Context, opts DatabaseOptions) (*connmanager.Manager, error) {
	manager := connmanager.New(connmanager.Options{
		Config:  opts.DBConfig,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})

	if err := manager.Init(ctx); err != nil {
		if opts.Logger != nil {
			opts.Logger.WarnContext(ctx, "database not reachable at startup, reconnecting in background",
				"error", err,
			)
		}
		return manager, nil
	}

	if opts.DBConfig.RunMigrationsOnStart {
		if err := migrate.Run(ctx, manager.DB()); err != nil {
			shutdownErr := manager.Shutdown(ctx)
			return nil, errors.Join(fmt.Errorf("run migrations: %w", err), shutdownErr)
		}
	}

	return manager, nil
}

// ConnectRedis establishes a connection to Redis, or returns (nil, nil) when
// the dedup cache is disabled.
//
//nolint:ireturn // redis.UniversalClient lets us pick direct or sentinel clients at runtime.
func ConnectRedis(opts DatabaseOptions) (redis.UniversalClient, error) {
	if !opts.RedisConfig.Enabled {
		return nil, nil
	}

	var client redis.UniversalClient
	var addrDesc string
	if opts.RedisConfig.UseSentinel {
		addrs := normalizeAddrs(opts.RedisConfig.SentinelNodes)
		if len(addrs) == 0 {
			return nil, errors.New("sentinel mode requires REDIS_SENTINEL_NODES")
		}
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       opts.RedisConfig.SentinelMasterName,
			SentinelAddrs:    addrs,
			SentinelPassword: opts.RedisConfig.SentinelPassword,
			Password:         opts.RedisConfig.Password,
		})
		addrDesc = strings.Join(addrs, ",")
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     opts.RedisConfig.URI,
			Password: opts.RedisConfig.Password,
		})
		addrDesc = opts.RedisConfig.URI
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if opts.Logger != nil {
		opts.Logger.Info("redis connected", "addr", addrDesc)
	}
	return client, nil
}

func normalizeAddrs(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if trimmed := strings.TrimSpace(a); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
