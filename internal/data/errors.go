package data

import (
	"errors"
)

var (
	// ErrJobNotFound is returned when a scan job is not found.
	ErrJobNotFound = errors.New("scan job not found")
	// ErrJobNotRunning is returned when a terminal transition targets a job
	// that no longer holds the run slot.
	ErrJobNotRunning = errors.New("scan job is not running")
)
