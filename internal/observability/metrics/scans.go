// Package metrics standardizes scan lifecycle metric emission.
package metrics

import (
	"time"

	obserrors "github.com/threatwire/threatwire/internal/observability/errors"
	"github.com/threatwire/threatwire/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// ScanMetric captures details about a scan job lifecycle event.
type ScanMetric struct {
	// Transition is the lifecycle edge being recorded, e.g. "enqueue",
	// "lease_acquire", "done", "failed", "reaped".
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitScanLifecycle emits the standard counter (and timing, when a duration
// is present) for a scan lifecycle event.
func EmitScanLifecycle(sink statsd.Sink, in ScanMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("scan.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("scan.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
