package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenrec/internal/notify"
)

func newTestHandler(t *testing.T) (*Handler, *testSession) {
	t.Helper()
	s := newTestSession(Options{})
	return NewHandler(s.Session, NewFileSaver(t.TempDir()), testLogger()), s
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/diagnostics", h.Diagnostics)
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/start", h.Start)
		r.Post("/stop", h.Stop)
		r.Post("/source-ended", h.SourceEnded)
		r.Post("/reset", h.Reset)
		r.Post("/chunks", h.AppendChunk)
		r.Put("/settings", h.UpdateSettings)
		r.Get("/artifact", h.Download)
		r.Post("/artifact/save", h.Save)
	})
	return r
}

func do(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) View {
	t.Helper()
	var v View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body %q", rec.Body.String())
	return v
}

func TestHandler_record_and_download(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	rec := do(r, http.MethodPost, "/session/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, "start")
	assert.Equal(t, StateRecording, decodeView(t, rec).State)

	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/session/chunks", []byte("hello ")).Code)
	rec = do(r, http.MethodPost, "/session/chunks", []byte{})
	assert.Equal(t, http.StatusNoContent, rec.Code, "empty chunk")
	assert.Equal(t, "empty", rec.Header().Get("X-Chunk-Dropped"))
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/session/chunks", []byte("world")).Code)

	rec = do(r, http.MethodPost, "/session/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code, "stop")
	v := decodeView(t, rec)
	assert.Equal(t, StateReady, v.State)
	assert.True(t, v.ArtifactAvailable)
	require.NotNil(t, v.Artifact)
	assert.Equal(t, 11, v.Artifact.Size)

	rec = do(r, http.MethodGet, "/session/artifact", nil)
	require.Equal(t, http.StatusOK, rec.Code, "download")
	assert.Equal(t, "hello world", rec.Body.String())
	assert.Equal(t, "video/webm", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="screen-recording-2024-05-01T12-00-00.000Z.webm"`,
		rec.Header().Get("Content-Disposition"))
}

func TestHandler_start_conflict_while_recording(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	do(r, http.MethodPost, "/session/start", nil)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/session/start", nil).Code)
}

func TestHandler_start_failure_reports_reason(t *testing.T) {
	h, s := newTestHandler(t)
	r := newTestRouter(h)
	s.acq.err = ErrPermissionDenied

	rec := do(r, http.MethodPost, "/session/start", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ReasonPermissionDenied, body.Reason)
	assert.NotEmpty(t, body.Message)
}

func TestHandler_chunk_conflict_when_not_recording(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/session/chunks", []byte("x")).Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/session/stop", nil).Code, "stop")
}

func TestHandler_chunk_conflict_when_recorder_owns_stream(t *testing.T) {
	h, s := newTestHandler(t)
	r := newTestRouter(h)
	s.acq.ownsChunks = true

	require.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/session/start", nil).Code)
	require.NoError(t, s.acq.Source(0).Recorder().sink.HandleDataAvailable([]byte("AAA")))
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/session/chunks", []byte("xx")).Code)

	rec := do(r, http.MethodPost, "/session/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAA", do(r, http.MethodGet, "/session/artifact", nil).Body.String())
}

func TestHandler_stop_after_source_ended(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	do(r, http.MethodPost, "/session/start", nil)
	do(r, http.MethodPost, "/session/chunks", []byte("x"))
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/session/source-ended", nil).Code)

	rec := do(r, http.MethodPost, "/session/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StateReady, decodeView(t, rec).State)
}

func TestHandler_settings(t *testing.T) {
	h, s := newTestHandler(t)
	r := newTestRouter(h)

	rec := do(r, http.MethodPut, "/session/settings", []byte(`{"quality":"medium","include_audio":false}`))
	require.Equal(t, http.StatusOK, rec.Code)
	got := s.Settings()
	assert.Equal(t, QualityMedium, got.Quality)
	assert.False(t, got.IncludeAudio)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/session/settings", []byte(`{"quality":"ultra"}`)).Code, "unknown quality")
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/session/settings", []byte(`not json`)).Code, "bad body")

	do(r, http.MethodPost, "/session/start", nil)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPut, "/session/settings", []byte(`{"include_audio":true}`)).Code, "locked")
}

func TestHandler_download_not_found(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/session/artifact", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/session/artifact/save", nil).Code, "save")
}

func TestHandler_save(t *testing.T) {
	dir := t.TempDir()
	s := newTestSession(Options{})
	h := NewHandler(s.Session, NewFileSaver(dir), testLogger())
	r := newTestRouter(h)

	do(r, http.MethodPost, "/session/start", nil)
	do(r, http.MethodPost, "/session/chunks", []byte("payload"))
	do(r, http.MethodPost, "/session/stop", nil)

	rec := do(r, http.MethodPost, "/session/artifact/save", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, dir, filepath.Dir(body["path"]), "saved outside output dir")

	data, err := os.ReadFile(body["path"])
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestHandler_save_disabled(t *testing.T) {
	s := newTestSession(Options{})
	r := newTestRouter(NewHandler(s.Session, nil, testLogger()))
	assert.Equal(t, http.StatusNotImplemented, do(r, http.MethodPost, "/session/artifact/save", nil).Code)
}

type failingSaver struct{}

func (failingSaver) Save(ctx context.Context, name string, a *Artifact) (string, error) {
	return "", errors.New("disk full at /var/lib/screenrec")
}

func TestHandler_save_failure_notifies(t *testing.T) {
	s := newTestSession(Options{})
	r := newTestRouter(NewHandler(s.Session, failingSaver{}, testLogger()))

	do(r, http.MethodPost, "/session/start", nil)
	do(r, http.MethodPost, "/session/chunks", []byte("x"))
	do(r, http.MethodPost, "/session/stop", nil)
	before := s.notes.total()

	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/session/artifact/save", nil).Code)
	require.Equal(t, before+1, s.notes.total(), "one notification for the failed save")

	note := s.notes.last()
	assert.Equal(t, notify.LevelError, note.Level)
	assert.Equal(t, LookupCatalog("en").Text(MsgSaveFailed), note.Message)
	assert.NotContains(t, note.Message, "disk full")
}

func TestHandler_source_ended_and_reset(t *testing.T) {
	h, s := newTestHandler(t)
	r := newTestRouter(h)

	do(r, http.MethodPost, "/session/start", nil)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/session/reset", nil).Code, "reset while recording")

	rec := do(r, http.MethodPost, "/session/source-ended", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, StateReady, decodeView(t, rec).State)

	rec = do(r, http.MethodPost, "/session/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StateIdle, decodeView(t, rec).State)
	assert.Zero(t, s.store.Live())
}

func TestHandler_get_session_and_diagnostics(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	rec := do(r, http.MethodGet, "/session/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StateIdle, decodeView(t, rec).State)

	rec = do(r, http.MethodGet, "/diagnostics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body diagnosticsBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Version)
	assert.Equal(t, StateIdle, body.State)
	assert.Equal(t, "unknown", body.Backend)
}
