package recording

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"screenrec/internal/version"
)

// maxChunkBytes bounds a single pushed chunk.
const maxChunkBytes = 64 << 20

// Handler exposes session HTTP endpoints using go-chi.
type Handler struct {
	session *Session
	saver   Saver
	log     *slog.Logger
}

// NewHandler returns a Handler for session. saver may be nil to disable
// server-side saving.
func NewHandler(session *Session, saver Saver, log *slog.Logger) *Handler {
	return &Handler{session: session, saver: saver, log: log}
}

type errorBody struct {
	Error   string `json:"error"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// GetSession handles GET /session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.View())
}

// Start handles POST /session/start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	err := h.session.RequestStart(r.Context())
	if err == nil {
		writeJSON(w, http.StatusAccepted, h.session.View())
		return
	}

	var ce *CaptureError
	switch {
	case errors.Is(err, ErrSessionActive):
		h.log.Info("start rejected recording active")
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &ce):
		body := errorBody{Error: ce.Error(), Reason: ce.Reason}
		if v := h.session.View(); v.Error != nil {
			body.Message = v.Error.Message
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
	default:
		h.log.Error("start failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
	}
}

// Stop handles POST /session/stop.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RequestStop(); err != nil {
		switch err {
		case ErrNotRecording:
			writeError(w, http.StatusConflict, err)
		default:
			h.log.Error("stop failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, h.session.View())
}

// SourceEnded handles POST /session/source-ended. The client reports that
// the user stopped sharing outside the recorder controls.
func (h *Handler) SourceEnded(w http.ResponseWriter, r *http.Request) {
	h.session.OnExternalSourceEnded()
	writeJSON(w, http.StatusOK, h.session.View())
}

// Reset handles POST /session/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Reset(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.View())
}

// AppendChunk handles POST /session/chunks. The body is one raw chunk.
func (h *Handler) AppendChunk(w http.ResponseWriter, r *http.Request) {
	chunk, err := io.ReadAll(io.LimitReader(r.Body, maxChunkBytes+1))
	if err != nil {
		h.log.Debug("invalid chunk body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(chunk) > maxChunkBytes {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	switch err := h.session.HandleDataAvailable(chunk); err {
	case nil:
		w.WriteHeader(http.StatusCreated)
	case ErrEmptyChunk:
		w.Header().Set("X-Chunk-Dropped", "empty")
		w.WriteHeader(http.StatusNoContent)
	case ErrNotRecording:
		h.log.Info("chunk rejected no active recording", slog.Int("size", len(chunk)))
		writeError(w, http.StatusConflict, err)
	default:
		h.log.Error("append chunk failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
	}
}

type settingsRequest struct {
	Quality      *string `json:"quality"`
	IncludeAudio *bool   `json:"include_audio"`
}

// UpdateSettings handles PUT /session/settings.
// Body: { "quality": "medium", "include_audio": false }, both optional.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid settings body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var q Quality
	if req.Quality != nil {
		var err error
		if q, err = ParseQuality(*req.Quality); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	// Both setters share the same state check.
	if req.Quality != nil {
		if err := h.session.SetQuality(q); err != nil {
			h.settingsError(w, err)
			return
		}
	}
	if req.IncludeAudio != nil {
		if err := h.session.SetIncludeAudio(*req.IncludeAudio); err != nil {
			h.settingsError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.session.View())
}

func (h *Handler) settingsError(w http.ResponseWriter, err error) {
	switch err {
	case ErrSettingsLocked:
		writeError(w, http.StatusConflict, err)
	case ErrUnknownQuality:
		writeError(w, http.StatusBadRequest, err)
	default:
		h.log.Error("update settings failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
	}
}

// Download handles GET /session/artifact.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	a, name, ok := h.session.Artifact()
	if !ok {
		writeError(w, http.StatusNotFound, ErrNoArtifact)
		return
	}

	w.Header().Set("Content-Type", ContainerType(a.MediaType))
	w.Header().Set("Content-Length", strconv.Itoa(a.Size()))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(a.Data)
	h.log.Info("download started", slog.String("name", name), slog.Int("size", a.Size()))
}

// Save handles POST /session/artifact/save.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if h.saver == nil {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	path, err := h.session.Save(r.Context(), h.saver)
	if err != nil {
		if errors.Is(err, ErrNoArtifact) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

type diagnosticsBody struct {
	Version string `json:"version"`
	Diagnostics
}

// Diagnostics handles GET /diagnostics.
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, diagnosticsBody{
		Version:     version.Full(),
		Diagnostics: h.session.Diagnostics(),
	})
}
