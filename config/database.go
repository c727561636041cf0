package config

import "time"

// PoolMode selects the connection strategy used to reach PostgreSQL.
type PoolMode string

const (
	// PoolModePooled connects directly to Postgres with a full-size pool.
	PoolModePooled PoolMode = "pooled"
	// PoolModeProxy connects through PgBouncer or an edge proxy: simple
	// query protocol, no statement caching, conservative pool sizing.
	PoolModeProxy PoolMode = "proxy"
)

// Valid returns true if the PoolMode is recognized.
func (m PoolMode) Valid() bool {
	return m == PoolModePooled || m == PoolModeProxy
}

// DBConfig contains PostgreSQL database and reconnect configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"threatwire"`
	Password string `env:"PASSWORD" envDefault:"threatwire"`
	Name     string `env:"NAME"     envDefault:"threatwire"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production

	// PoolMode selects the connection strategy: pooled or proxy.
	PoolMode PoolMode `env:"POOL_MODE" envDefault:"pooled"`

	// MaxConnections bounds the pool in pooled mode.
	MaxConnections int `env:"MAX_CONNECTIONS" envDefault:"25"`
	// MaxIdleConnections bounds idle connections kept in the pool.
	MaxIdleConnections int `env:"MAX_IDLE_CONNECTIONS" envDefault:"5"`
	// IdleTimeout is how long an idle connection may live before being closed.
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"1m"`
	// ConnMaxLifetime recycles connections after this age.
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	// ConnectTimeout bounds the initial dial/ping of the pool.
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`

	// QueryTimeout is the default bound applied by ExecuteQuery.
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" envDefault:"5s"`

	// ReconnectBase is the initial backoff delay between reconnect attempts.
	ReconnectBase time.Duration `env:"RECONNECT_BASE" envDefault:"1s"`
	// ReconnectMax caps the backoff delay.
	ReconnectMax time.Duration `env:"RECONNECT_MAX" envDefault:"30s"`
	// MaxReconnectAttempts is the number of consecutive failures before the
	// manager gives up permanently.
	MaxReconnectAttempts int `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"10"`

	// RunMigrationsOnStart controls whether migrations apply during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// Sanitize applies guardrails to database configuration values.
func (c *DBConfig) Sanitize() {
	if !c.PoolMode.Valid() {
		c.PoolMode = PoolModePooled
	}
	if c.MaxConnections < 1 {
		c.MaxConnections = 1
	}
	if c.MaxIdleConnections < 0 {
		c.MaxIdleConnections = 0
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectMax < c.ReconnectBase {
		c.ReconnectMax = 30 * time.Second
	}
	if c.MaxReconnectAttempts < 1 {
		c.MaxReconnectAttempts = 10
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5 * time.Second
	}
}

// RedisConfig contains Redis configuration for the enqueue dedup cache.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:""`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	// Enabled gates the dedup cache entirely; the queue works without Redis.
	Enabled bool `env:"ENABLED" envDefault:"false"`
}

// QueueConfig contains scan queue configuration.
type QueueConfig struct {
	// DedupTTL is how long a target is considered recently enqueued.
	// Zero disables de-duplication even when Redis is available.
	DedupTTL time.Duration `env:"QUEUE_DEDUP_TTL" envDefault:"10m"`
}
