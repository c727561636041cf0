// Package connmanager owns the live handle to the relational store and keeps
// the process alive through transient network failures. Every other data
// component reaches Postgres through a Manager.
package connmanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/threatwire/threatwire/config"
	"github.com/threatwire/threatwire/internal/observability/statsd"
)

// ErrNotConnected is returned when no live pool handle is available.
var ErrNotConnected = errors.New("database connection is not established")

// ErrShutdown is returned after Shutdown has been called.
var ErrShutdown = errors.New("connection manager is shut down")

// QueryTimeoutError reports that an operation lost the race against its timer.
type QueryTimeoutError struct {
	Timeout time.Duration
}

// Error implements the error interface.
func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("query timed out after %s", e.Timeout)
}

// State is a snapshot of the manager's reconnect bookkeeping.
type State struct {
	ReconnectAttempts    int
	ReconnectInterval    time.Duration
	LastReconnectAttempt time.Time
	Reconnecting         bool
	PermanentlyFailed    bool
	Connected            bool
}

// Options groups dependencies for constructing a Manager.
type Options struct {
	Config config.DBConfig
	// Strategy overrides the config-selected connection strategy. Used by
	// tests and by callers embedding the manager in unusual topologies.
	Strategy Strategy
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// Manager provides a live *sql.DB handle and recovers it in the background
// when the connection dies. It is an explicitly constructed, owned component:
// callers receive it by reference and pair Init with Shutdown.
//
// Recovery never rescues an in-flight query: a query on a dying connection
// fails and is surfaced to its caller; reconnection proceeds independently.
type Manager struct {
	cfg      config.DBConfig
	strategy Strategy
	logger   *slog.Logger
	metrics  statsd.Sink

	mu                sync.Mutex
	db                *sql.DB
	reconnectAttempts int
	reconnectInterval time.Duration
	lastAttemptAt     time.Time
	reconnecting      bool
	permanentFailure  bool
	closed            bool
	timer             *time.Timer
}

// New constructs a Manager. Call Init before issuing queries.
func New(opts Options) *Manager {
	cfg := opts.Config
	cfg.Sanitize()

	strategy := opts.Strategy
	if strategy == nil {
		strategy = StrategyFor(cfg)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:               cfg,
		strategy:          strategy,
		logger:            logger.With("component", "connmanager"),
		metrics:           opts.Metrics,
		reconnectInterval: cfg.ReconnectBase,
	}
}

// Init establishes the pool via the configured strategy. On failure it
// schedules a background reconnect and returns the error; it never treats a
// connect failure as fatal to the process.
func (m *Manager) Init(ctx context.Context) error {
	db, err := m.strategy.Open(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		if db != nil {
			_ = db.Close()
		}
		return ErrShutdown
	}

	if err != nil {
		m.logger.WarnContext(ctx, "initial database connect failed",
			"strategy", m.strategy.Name(),
			"error", err,
		)
		m.scheduleReconnectLocked(false)
		return fmt.Errorf("connect database: %w", err)
	}

	m.db = db
	m.resetBackoffLocked()
	m.logger.InfoContext(ctx, "database connected",
		"strategy", m.strategy.Name(),
		"host", m.cfg.Host,
		"database", m.cfg.Name,
	)
	return nil
}

// DB returns the current pool handle, or nil while disconnected.
func (m *Manager) DB() *sql.DB {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db
}

// Snapshot returns the current reconnect state for health reporting.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		ReconnectAttempts:    m.reconnectAttempts,
		ReconnectInterval:    m.reconnectInterval,
		LastReconnectAttempt: m.lastAttemptAt,
		Reconnecting:         m.reconnecting,
		PermanentlyFailed:    m.permanentFailure,
		Connected:            m.db != nil,
	}
}

// Observe classifies an error seen by a caller. A transient connection
// failure triggers a debounced background reconnect and Observe reports true;
// anything else is left for the caller to handle and Observe reports false.
//
// This is the wrapper seam every query path funnels errors through; nothing
// patches driver internals.
func (m *Manager) Observe(err error) bool {
	if !IsTransient(err) {
		return false
	}

	m.logger.Warn("transient database error observed", "error", err)
	m.count("db.transient_error", nil)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduleReconnectLocked(false)
	return true
}

// ExecuteQuery runs op against the current pool bounded by the configured
// default query timeout.
func (m *Manager) ExecuteQuery(ctx context.Context, op func(context.Context, *sql.DB) error) error {
	return m.ExecuteQueryTimeout(ctx, m.cfg.QueryTimeout, op)
}

// ExecuteQueryTimeout races op against a timer. If the timer wins the call
// fails with *QueryTimeoutError; if op fails first its error is classified
// (possibly triggering reconnection) and returned to the caller unchanged.
// The manager never retries op; retry policy belongs to the caller.
func (m *Manager) ExecuteQueryTimeout(
	ctx context.Context,
	timeout time.Duration,
	op func(context.Context, *sql.DB) error,
) error {
	if timeout <= 0 {
		timeout = m.cfg.QueryTimeout
	}

	m.mu.Lock()
	db := m.db
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrShutdown
	}
	if db == nil {
		return ErrNotConnected
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx, db)
	}()

	select {
	case err := <-done:
		if err != nil {
			m.Observe(err)
		}
		return err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			// Caller cancellation, not a timer win.
			return ctx.Err()
		}
		timeoutErr := &QueryTimeoutError{Timeout: timeout}
		m.count("db.query_timeout", nil)
		// The op goroutine keeps running until it honors opCtx; the slot is
		// surrendered to the caller regardless.
		m.Observe(timeoutErr)
		return timeoutErr
	}
}

// Shutdown stops pending reconnects and closes the pool.
func (m *Manager) Shutdown(_ context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	db := m.db
	m.db = nil
	m.mu.Unlock()

	if db != nil {
		if err := db.Close(); err != nil {
			return fmt.Errorf("close database pool: %w", err)
		}
	}
	m.logger.Info("connection manager shut down")
	return nil
}

// scheduleReconnectLocked arms a reconnect timer. Debounced: a pending
// reconnect, or an attempt within the current backoff window, makes it a
// no-op unless force is set (the internal failure chain bypasses the window
// so backoff keeps progressing). Callers hold m.mu.
func (m *Manager) scheduleReconnectLocked(force bool) {
	if m.closed || m.permanentFailure || m.reconnecting {
		return
	}
	if !force && !m.lastAttemptAt.IsZero() && time.Since(m.lastAttemptAt) < m.reconnectInterval {
		return
	}

	if m.reconnectAttempts >= m.cfg.MaxReconnectAttempts {
		m.permanentFailure = true
		m.logger.Error("giving up on database reconnection; manual restart required",
			"attempts", m.reconnectAttempts,
		)
		m.count("db.reconnect_gave_up", nil)
		return
	}

	m.reconnectAttempts++
	m.reconnecting = true
	m.lastAttemptAt = time.Now()
	delay := m.reconnectInterval

	m.logger.Warn("scheduling database reconnect",
		"attempt", m.reconnectAttempts,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", delay,
	)
	m.count("db.reconnect_scheduled", nil)

	// Double the window for the next attempt, up to the ceiling.
	m.reconnectInterval *= 2
	if m.reconnectInterval > m.cfg.ReconnectMax {
		m.reconnectInterval = m.cfg.ReconnectMax
	}

	m.timer = time.AfterFunc(delay, m.reconnect)
}

// reconnect closes the dead pool (best-effort) and re-opens via the
// strategy. Success resets the backoff chain; failure continues it.
func (m *Manager) reconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.reconnecting = false
	old := m.db
	m.db = nil
	attempt := m.reconnectAttempts
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()

	db, err := m.strategy.Open(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		if db != nil {
			_ = db.Close()
		}
		return
	}

	if err != nil {
		m.logger.Warn("database reconnect failed",
			"attempt", attempt,
			"error", err,
		)
		m.count("db.reconnect", map[string]string{"result": "error"})
		m.scheduleReconnectLocked(true)
		return
	}

	m.db = db
	m.resetBackoffLocked()
	m.logger.Info("database reconnected", "strategy", m.strategy.Name(), "attempt", attempt)
	m.count("db.reconnect", map[string]string{"result": "success"})
}

func (m *Manager) resetBackoffLocked() {
	m.reconnectAttempts = 0
	m.reconnectInterval = m.cfg.ReconnectBase
	m.reconnecting = false
	m.permanentFailure = false
}

func (m *Manager) count(name string, tags map[string]string) {
	if m.metrics == nil {
		return
	}
	m.metrics.Count(name, 1, tags)
}
