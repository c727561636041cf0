package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" db/query ":     "db_query",
		"scan..duration": "scan.duration",
		"two  words":     "two__words",
		".trimmed.":      "trimmed",
	}

	for input, want := range tests {
		if got := normalizeMetricName(input); got != want {
			t.Fatalf("normalizeMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env":       "prod",
		" service ": " scan-runner ",
	}
	local := map[string]string{
		"result": " success ",
		"":       "ignored",
		"env":    "stage",
	}

	got := formatTags(global, local)
	want := "|#env:stage,result:success,service:scan-runner"

	if got != want {
		t.Fatalf("formatTags mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatTagsEmpty(t *testing.T) {
	t.Parallel()

	if got := formatTags(nil, nil); got != "" {
		t.Fatalf("formatTags(nil, nil) = %q, want empty string", got)
	}
}

func TestClientDisabledIsInert(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Enabled() {
		t.Fatal("disabled client reports enabled")
	}

	// Emission on a disabled client must not panic or dial anything.
	client.Count("db.reconnect", 1, nil)
	client.Gauge("queue.depth", 4, nil)
	client.Timing("scan.duration", time.Second, nil)
	if closeErr := client.Close(); closeErr != nil {
		t.Fatalf("Close: %v", closeErr)
	}
}

func TestClientEmitsOverUDP(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = pc.Close() }()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     "threatwire.",
		GlobalTags: map[string]string{"env": "test"},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	if !client.Enabled() {
		t.Fatal("client should be enabled")
	}

	client.Count("scan.transition", 1, map[string]string{"result": "success"})

	buf := make([]byte, 512)
	if deadlineErr := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); deadlineErr != nil {
		t.Fatalf("set deadline: %v", deadlineErr)
	}
	n, _, readErr := pc.ReadFrom(buf)
	if readErr != nil {
		t.Fatalf("read: %v", readErr)
	}

	line := string(buf[:n])
	want := "threatwire.scan.transition:1|c|#env:test,result:success"
	if line != want {
		t.Fatalf("metric line mismatch\n got: %q\nwant: %q", line, want)
	}
	if !strings.HasPrefix(line, "threatwire.") {
		t.Fatalf("missing prefix in %q", line)
	}
}
