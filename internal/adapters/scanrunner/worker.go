package scanrunner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/threatwire/threatwire/internal/core"
	"github.com/threatwire/threatwire/internal/domain/model"
)

// maxBodySampleBytes bounds how much of the response body is retained in the
// scan output.
const maxBodySampleBytes = 4 * 1024

// HTTPWorkerOptions configures the HTTP fetch worker.
type HTTPWorkerOptions struct {
	Client  *http.Client
	Logger  *slog.Logger
	Timeout time.Duration
}

// HTTPWorker is the built-in ScanWorker: it fetches the target over HTTP and
// records status, headers of interest, and a bounded body sample. Deployments
// with a browser fleet swap in their own worker.
type HTTPWorker struct {
	client *http.Client
	logger *slog.Logger
}

var _ core.ScanWorker = (*HTTPWorker)(nil)

// NewHTTPWorker creates the HTTP fetch worker.
func NewHTTPWorker(opts HTTPWorkerOptions) *HTTPWorker {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPWorker{
		client: client,
		logger: logger.With("component", "http_worker"),
	}
}

// fetchResult is the output document produced for a fetched target.
type fetchResult struct {
	StatusCode    int    `json:"status_code"`
	ContentType   string `json:"content_type,omitempty"`
	ContentLength int    `json:"content_length"`
	Truncated     bool   `json:"truncated"`
	BodySHA256    string `json:"body_sha256"`
	BodySample    string `json:"body_sample"`
	FetchedAt     string `json:"fetched_at"`
}

// Scan implements core.ScanWorker.
func (w *HTTPWorker) Scan(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.Target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "threatwire-scanner/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", job.Target, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			w.logger.DebugContext(ctx, "response body close failed", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySampleBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", job.Target, err)
	}

	truncated := len(body) > maxBodySampleBytes
	if truncated {
		body = body[:maxBodySampleBytes]
	}

	sum := sha256.Sum256(body)
	result := fetchResult{
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: len(body),
		Truncated:     truncated,
		BodySHA256:    hex.EncodeToString(sum[:]),
		BodySample:    string(body),
		FetchedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal scan result: %w", err)
	}
	return out, nil
}
