// Package mocks provides generated mock implementations for testing.
//
// Mocks are generated with go.uber.org/mock (gomock) from the interfaces in
// internal/core. To regenerate after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	worker := mocks.NewMockScanWorker(ctrl)
//	worker.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(result, nil)
package mocks

// MockQueueRepository: Enqueue, GetByID, NextQueued, Stats, MarkDone, MarkFailed.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=queue_repository_mock.go github.com/threatwire/threatwire/internal/core QueueRepository

// MockLeaseRepository: TryStart, Heartbeat.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=lease_repository_mock.go github.com/threatwire/threatwire/internal/core LeaseRepository

// MockScanWorker: Scan.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=scan_worker_mock.go github.com/threatwire/threatwire/internal/core ScanWorker
