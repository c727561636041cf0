package scanrunner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatwire/threatwire/internal/domain/model"
)

func TestHTTPWorker_Scan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "threatwire-scanner/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>advisory feed</html>"))
	}))
	defer srv.Close()

	worker := NewHTTPWorker(HTTPWorkerOptions{Logger: quietLogger()})
	out, err := worker.Scan(context.Background(), &model.Job{ID: testJobID, Target: srv.URL})
	require.NoError(t, err)

	var result fetchResult
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "text/html", result.ContentType)
	assert.False(t, result.Truncated)
	assert.Contains(t, result.BodySample, "advisory feed")
	assert.Len(t, result.BodySHA256, 64)
}

func TestHTTPWorker_ScanTruncatesLargeBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", maxBodySampleBytes*3)))
	}))
	defer srv.Close()

	worker := NewHTTPWorker(HTTPWorkerOptions{Logger: quietLogger()})
	out, err := worker.Scan(context.Background(), &model.Job{ID: testJobID, Target: srv.URL})
	require.NoError(t, err)

	var result fetchResult
	require.NoError(t, json.Unmarshal(out, &result))
	assert.True(t, result.Truncated)
	assert.Equal(t, maxBodySampleBytes, result.ContentLength)
}

func TestHTTPWorker_ScanConnectionFailure(t *testing.T) {
	worker := NewHTTPWorker(HTTPWorkerOptions{Logger: quietLogger()})

	_, err := worker.Scan(context.Background(), &model.Job{
		ID:     testJobID,
		Target: "http://127.0.0.1:1/unreachable",
	})
	require.Error(t, err)
}
