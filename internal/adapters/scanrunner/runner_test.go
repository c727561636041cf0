package scanrunner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/threatwire/threatwire/config"
	"github.com/threatwire/threatwire/internal/domain/model"
	"github.com/threatwire/threatwire/internal/mocks"
)

const testJobID = "b3c9d3a8-0f6e-4f7a-8f43-3a3c0d1e2f45"

func testRunnerConfig() config.ScanRunnerConfig {
	return config.ScanRunnerConfig{
		Interval:          10 * time.Millisecond,
		LeasePollInterval: 10 * time.Millisecond,
		LeaseWaitTimeout:  50 * time.Millisecond,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func queuedJob() *model.Job {
	return &model.Job{
		ID:     testJobID,
		Status: model.JobStatusQueued,
		Target: "https://feeds.example.com/advisories.xml",
	}
}

func newRunnerForTest(
	t *testing.T,
	queueRepo *mocks.MockQueueRepository,
	leaseRepo *mocks.MockLeaseRepository,
	worker *mocks.MockScanWorker,
) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerOptions{
		Config:    testRunnerConfig(),
		Logger:    quietLogger(),
		Worker:    worker,
		QueueRepo: queueRepo,
		LeaseRepo: leaseRepo,
	})
	require.NoError(t, err)
	return r
}

func TestRunner_RunOnceEmptyQueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	queueRepo := mocks.NewMockQueueRepository(ctrl)
	leaseRepo := mocks.NewMockLeaseRepository(ctrl)
	worker := mocks.NewMockScanWorker(ctrl)

	queueRepo.EXPECT().NextQueued(gomock.Any()).Return(nil, model.ErrNoJobsQueued)

	r := newRunnerForTest(t, queueRepo, leaseRepo, worker)
	require.NoError(t, r.runOnce(context.Background()))
}

func TestRunner_RunOnceHappyPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	queueRepo := mocks.NewMockQueueRepository(ctrl)
	leaseRepo := mocks.NewMockLeaseRepository(ctrl)
	worker := mocks.NewMockScanWorker(ctrl)

	job := queuedJob()
	output := json.RawMessage(`{"findings": []}`)

	queueRepo.EXPECT().NextQueued(gomock.Any()).Return(job, nil)
	leaseRepo.EXPECT().TryStart(gomock.Any(), testJobID).Return(true, nil)
	worker.EXPECT().Scan(gomock.Any(), job).Return(output, nil)
	queueRepo.EXPECT().MarkDone(gomock.Any(), testJobID, output).Return(true, nil)

	r := newRunnerForTest(t, queueRepo, leaseRepo, worker)
	require.NoError(t, r.runOnce(context.Background()))
}

func TestRunner_RunOnceScanFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	queueRepo := mocks.NewMockQueueRepository(ctrl)
	leaseRepo := mocks.NewMockLeaseRepository(ctrl)
	worker := mocks.NewMockScanWorker(ctrl)

	job := queuedJob()
	queueRepo.EXPECT().NextQueued(gomock.Any()).Return(job, nil)
	leaseRepo.EXPECT().TryStart(gomock.Any(), testJobID).Return(true, nil)
	worker.EXPECT().Scan(gomock.Any(), job).Return(nil, errors.New("browser crashed"))
	queueRepo.EXPECT().MarkFailed(gomock.Any(), testJobID, "browser crashed").Return(true, nil)

	r := newRunnerForTest(t, queueRepo, leaseRepo, worker)
	require.NoError(t, r.runOnce(context.Background()))
}

func TestRunner_RunOnceLeaseWaitTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	queueRepo := mocks.NewMockQueueRepository(ctrl)
	leaseRepo := mocks.NewMockLeaseRepository(ctrl)
	worker := mocks.NewMockScanWorker(ctrl)

	job := queuedJob()
	queueRepo.EXPECT().NextQueued(gomock.Any()).Return(job, nil)
	// Another job holds the slot for the whole wait budget.
	leaseRepo.EXPECT().TryStart(gomock.Any(), testJobID).Return(false, nil).MinTimes(1)

	r := newRunnerForTest(t, queueRepo, leaseRepo, worker)
	// The timeout is absorbed: the job stays queued for a later cycle and
	// the worker never runs.
	require.NoError(t, r.runOnce(context.Background()))
}

func TestRunner_RunOnceLeaseLostMidScan(t *testing.T) {
	ctrl := gomock.NewController(t)
	queueRepo := mocks.NewMockQueueRepository(ctrl)
	leaseRepo := mocks.NewMockLeaseRepository(ctrl)
	worker := mocks.NewMockScanWorker(ctrl)

	job := queuedJob()
	queueRepo.EXPECT().NextQueued(gomock.Any()).Return(job, nil)
	leaseRepo.EXPECT().TryStart(gomock.Any(), testJobID).Return(true, nil)
	worker.EXPECT().Scan(gomock.Any(), job).Return(json.RawMessage(`{}`), nil)
	// The reaper already failed the job; MarkDone reports no rows touched.
	queueRepo.EXPECT().MarkDone(gomock.Any(), testJobID, gomock.Any()).Return(false, nil)

	r := newRunnerForTest(t, queueRepo, leaseRepo, worker)
	require.NoError(t, r.runOnce(context.Background()))
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	queueRepo := mocks.NewMockQueueRepository(ctrl)
	leaseRepo := mocks.NewMockLeaseRepository(ctrl)
	worker := mocks.NewMockScanWorker(ctrl)

	queueRepo.EXPECT().NextQueued(gomock.Any()).Return(nil, model.ErrNoJobsQueued).AnyTimes()

	r := newRunnerForTest(t, queueRepo, leaseRepo, worker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "graceful shutdown returns nil")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancellation")
	}
}

func TestNewRunner_RequiresExecutorOrRepos(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Logger: quietLogger()})
	require.Error(t, err)
}
