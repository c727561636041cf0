package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatwire/threatwire/config"
)

// mockLeaseRepo scripts TryStart outcomes by attempt number.
type mockLeaseRepo struct {
	mu       sync.Mutex
	attempts int
	// winOn is the attempt number on which TryStart succeeds; 0 never wins.
	winOn int
	err   error

	heartbeatOK bool
}

func (m *mockLeaseRepo) TryStart(context.Context, string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.err != nil {
		return false, m.err
	}
	return m.winOn > 0 && m.attempts >= m.winOn, nil
}

func (m *mockLeaseRepo) Heartbeat(context.Context, string) (bool, error) {
	return m.heartbeatOK, m.err
}

func (m *mockLeaseRepo) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func fastLeaseConfig() config.ScanRunnerConfig {
	return config.ScanRunnerConfig{
		Interval:          10 * time.Millisecond,
		LeasePollInterval: 10 * time.Millisecond,
		LeaseWaitTimeout:  100 * time.Millisecond,
	}
}

func TestLeaseService_TryStart(t *testing.T) {
	t.Run("wins on first attempt", func(t *testing.T) {
		repo := &mockLeaseRepo{winOn: 1}
		svc, err := NewLeaseService(LeaseServiceOptions{Repo: repo, Config: fastLeaseConfig()})
		require.NoError(t, err)

		started, err := svc.TryStart(context.Background(), validJobID)
		require.NoError(t, err)
		assert.True(t, started)
	})

	t.Run("contended slot reports false without error", func(t *testing.T) {
		repo := &mockLeaseRepo{winOn: 0}
		svc, err := NewLeaseService(LeaseServiceOptions{Repo: repo, Config: fastLeaseConfig()})
		require.NoError(t, err)

		started, err := svc.TryStart(context.Background(), validJobID)
		require.NoError(t, err)
		assert.False(t, started)
	})

	t.Run("malformed id rejected", func(t *testing.T) {
		svc, err := NewLeaseService(LeaseServiceOptions{Repo: &mockLeaseRepo{}, Config: fastLeaseConfig()})
		require.NoError(t, err)

		_, err = svc.TryStart(context.Background(), "nope")
		require.Error(t, err)
	})
}

func TestLeaseService_WaitForTurn(t *testing.T) {
	t.Run("returns immediately when the slot is free", func(t *testing.T) {
		repo := &mockLeaseRepo{winOn: 1}
		svc, err := NewLeaseService(LeaseServiceOptions{Repo: repo, Config: fastLeaseConfig()})
		require.NoError(t, err)

		require.NoError(t, svc.WaitForTurn(context.Background(), validJobID))
		assert.Equal(t, 1, repo.attemptCount())
	})

	t.Run("polls until the slot frees", func(t *testing.T) {
		repo := &mockLeaseRepo{winOn: 3}
		svc, err := NewLeaseService(LeaseServiceOptions{Repo: repo, Config: fastLeaseConfig()})
		require.NoError(t, err)

		start := time.Now()
		require.NoError(t, svc.WaitForTurn(context.Background(), validJobID))
		assert.GreaterOrEqual(t, repo.attemptCount(), 3)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("gives up after the wait budget", func(t *testing.T) {
		repo := &mockLeaseRepo{winOn: 0}
		svc, err := NewLeaseService(LeaseServiceOptions{Repo: repo, Config: fastLeaseConfig()})
		require.NoError(t, err)

		err = svc.WaitForTurn(context.Background(), validJobID)
		require.Error(t, err)

		var waitErr *LeaseWaitTimeoutError
		require.ErrorAs(t, err, &waitErr)
		assert.Equal(t, validJobID, waitErr.JobID)
		assert.GreaterOrEqual(t, waitErr.Waited, 100*time.Millisecond)
	})

	t.Run("caller cancellation wins over the wait budget", func(t *testing.T) {
		repo := &mockLeaseRepo{winOn: 0}
		svc, err := NewLeaseService(LeaseServiceOptions{Repo: repo, Config: config.ScanRunnerConfig{
			Interval:          10 * time.Millisecond,
			LeasePollInterval: 10 * time.Millisecond,
			LeaseWaitTimeout:  10 * time.Second,
		}})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(30 * time.Millisecond)
			cancel()
		}()

		err = svc.WaitForTurn(ctx, validJobID)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("repo errors stop the poll loop", func(t *testing.T) {
		repo := &mockLeaseRepo{err: errors.New("db exploded")}
		svc, err := NewLeaseService(LeaseServiceOptions{Repo: repo, Config: fastLeaseConfig()})
		require.NoError(t, err)

		err = svc.WaitForTurn(context.Background(), validJobID)
		require.Error(t, err)
		var waitErr *LeaseWaitTimeoutError
		assert.False(t, errors.As(err, &waitErr))
	})
}

func TestLeaseService_Heartbeat(t *testing.T) {
	repo := &mockLeaseRepo{heartbeatOK: true}
	svc, err := NewLeaseService(LeaseServiceOptions{Repo: repo, Config: fastLeaseConfig()})
	require.NoError(t, err)

	ok, err := svc.Heartbeat(context.Background(), validJobID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewLeaseService_RequiresRepo(t *testing.T) {
	_, err := NewLeaseService(LeaseServiceOptions{})
	require.Error(t, err)
}
