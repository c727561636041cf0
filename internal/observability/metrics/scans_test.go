package metrics

import (
	"errors"
	"testing"
	"time"
)

type recordedMetric struct {
	name  string
	value int64
	tags  map[string]string
}

type recordingSink struct {
	counts  []recordedMetric
	timings []recordedMetric
}

func (s *recordingSink) Count(name string, value int64, tags map[string]string) {
	s.counts = append(s.counts, recordedMetric{name, value, tags})
}

func (s *recordingSink) Gauge(string, float64, map[string]string) {}

func (s *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.timings = append(s.timings, recordedMetric{name: name, tags: tags})
}

func TestEmitScanLifecycle(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	EmitScanLifecycle(sink, ScanMetric{
		Transition: "done",
		Result:     ResultSuccess,
		Duration:   250 * time.Millisecond,
	})

	if len(sink.counts) != 1 {
		t.Fatalf("expected 1 count, got %d", len(sink.counts))
	}
	c := sink.counts[0]
	if c.name != "scan.transition" || c.value != 1 {
		t.Fatalf("unexpected count %+v", c)
	}
	if c.tags["transition"] != "done" || c.tags["result"] != ResultSuccess {
		t.Fatalf("unexpected tags %+v", c.tags)
	}
	if _, ok := c.tags["error_class"]; ok {
		t.Fatal("success must not carry error_class")
	}

	if len(sink.timings) != 1 || sink.timings[0].name != "scan.duration" {
		t.Fatalf("expected scan.duration timing, got %+v", sink.timings)
	}
}

func TestEmitScanLifecycleErrorClass(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	EmitScanLifecycle(sink, ScanMetric{
		Transition: "failed",
		Result:     ResultError,
		Err:        errors.New("scan blew up"),
	})

	if len(sink.counts) != 1 {
		t.Fatalf("expected 1 count, got %d", len(sink.counts))
	}
	if sink.counts[0].tags["error_class"] == "" {
		t.Fatal("error result must carry error_class tag")
	}
	if len(sink.timings) != 0 {
		t.Fatal("no timing expected without a duration")
	}
}

func TestEmitScanLifecycleNilSink(t *testing.T) {
	t.Parallel()

	// Must not panic.
	EmitScanLifecycle(nil, ScanMetric{Transition: "enqueue", Result: ResultNoop})
}
