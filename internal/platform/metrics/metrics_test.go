package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics, update func()) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler(update))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_recording_counters(t *testing.T) {
	m := New()
	m.IncRecordingsStarted()
	m.IncRecordingsCompleted()
	m.IncFailures("permission_denied")
	m.IncFailures("permission_denied")
	m.AddChunk(10)
	m.AddChunk(20)
	m.IncChunksDropped()

	out := scrape(t, m, nil)
	assert.Contains(t, out, "screenrec_recordings_started_total 1")
	assert.Contains(t, out, "screenrec_recordings_completed_total 1")
	assert.Contains(t, out, `screenrec_recording_failures_total{reason="permission_denied"} 2`)
	assert.Contains(t, out, "screenrec_chunks_total 2")
	assert.Contains(t, out, "screenrec_chunk_bytes_total 30")
	assert.Contains(t, out, "screenrec_chunks_dropped_total 1")
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/", "/missing", "/"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := scrape(t, m, nil)
	assert.Contains(t, out, "screenrec_requests_total 3")
	assert.Contains(t, out, "screenrec_errors_total 1")
}

func TestHandler_refreshes_gauges(t *testing.T) {
	m := New()
	var called atomic.Bool
	out := scrape(t, m, func() {
		called.Store(true)
		m.SetLiveArtifacts(3)
	})

	assert.True(t, called.Load())
	assert.Contains(t, out, "screenrec_live_artifacts 3")

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
