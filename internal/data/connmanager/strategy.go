package connmanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	// Register the pgx driver for database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/threatwire/threatwire/config"
)

// Strategy opens a *sql.DB pool for a deployment mode. The manager owns the
// returned handle and closes it on reconnect or shutdown.
type Strategy interface {
	Name() string
	Open(ctx context.Context) (*sql.DB, error)
}

// StrategyFor selects the connection strategy configured in cfg.
//
//nolint:ireturn // strategy selection is the point of this constructor.
func StrategyFor(cfg config.DBConfig) Strategy {
	if cfg.PoolMode == config.PoolModeProxy {
		return &ProxyStrategy{cfg: cfg}
	}
	return &PooledStrategy{cfg: cfg}
}

// PooledStrategy connects directly to Postgres with a full-size pool.
type PooledStrategy struct {
	cfg config.DBConfig
}

// Name identifies the strategy in logs.
func (s *PooledStrategy) Name() string { return string(config.PoolModePooled) }

// Open establishes and verifies the pool.
func (s *PooledStrategy) Open(ctx context.Context) (*sql.DB, error) {
	db, err := openAndPing(ctx, buildDSN(s.cfg, nil), s.cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(s.cfg.MaxConnections)
	db.SetMaxIdleConns(s.cfg.MaxIdleConnections)
	db.SetConnMaxIdleTime(s.cfg.IdleTimeout)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
	return db, nil
}

// ProxyStrategy connects through PgBouncer or a comparable edge proxy.
// Transaction-pooling proxies break prepared statements, so it forces the
// simple query protocol and keeps the local pool small; the proxy does the
// real pooling.
type ProxyStrategy struct {
	cfg config.DBConfig
}

// Name identifies the strategy in logs.
func (s *ProxyStrategy) Name() string { return string(config.PoolModeProxy) }

// Open establishes and verifies the pool.
func (s *ProxyStrategy) Open(ctx context.Context) (*sql.DB, error) {
	params := map[string]string{
		"default_query_exec_mode": "simple_protocol",
	}
	db, err := openAndPing(ctx, buildDSN(s.cfg, params), s.cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	local := s.cfg.MaxConnections
	if local > 5 {
		local = 5
	}
	db.SetMaxOpenConns(local)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// buildDSN assembles a postgres URL, using url.URL to safely handle special
// characters in credentials.
func buildDSN(cfg config.DBConfig, extraParams map[string]string) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	for k, v := range extraParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func openAndPing(ctx context.Context, dsn string, connectTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	return db, nil
}
