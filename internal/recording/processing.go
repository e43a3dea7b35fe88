package recording

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"screenrec/internal/notify"
)

func (s *Session) recorderStopped(id uint64) {
	s.mu.Lock()
	if (id != 0 && id != s.attempt) || s.state != StateStopping {
		s.mu.Unlock()
		return
	}

	s.state = StateProcessing
	s.progress = 0

	if s.opts.ProgressInterval <= 0 {
		e := s.finishLocked()
		s.mu.Unlock()
		s.apply(e)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelProcessing = cancel
	view := s.changedLocked()
	attempt := s.attempt
	s.mu.Unlock()

	s.apply(effects{view: view})
	go s.simulateProgress(ctx, attempt)
}

// simulateProgress advances the displayed progress in fixed steps and then
// assembles the artifact. The number of ticks is fixed so processing always
// completes unless the session is closed or faults first.
func (s *Session) simulateProgress(ctx context.Context, attempt uint64) {
	ticker := time.NewTicker(s.opts.ProgressInterval)
	defer ticker.Stop()

	steps := s.opts.ProgressSteps
	for i := 1; i < steps; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if attempt != s.attempt || s.state != StateProcessing {
			s.mu.Unlock()
			return
		}
		s.progress = i * 100 / steps
		view := s.changedLocked()
		s.mu.Unlock()
		s.apply(effects{view: view})
	}

	select {
	case <-ctx.Done():
		return
	case <-ticker.C:
	}
	if err := s.finish(attempt); err != nil {
		s.log.Debug("processing finished elsewhere", slog.String("error", err.Error()))
	}
}

// FinishProcessing assembles the recorded chunks into the artifact and
// moves the session to Ready. It is only valid while Processing.
func (s *Session) FinishProcessing() error {
	return s.finish(0)
}

func (s *Session) finish(id uint64) error {
	s.mu.Lock()
	if (id != 0 && id != s.attempt) || s.state != StateProcessing {
		s.mu.Unlock()
		return ErrInvalidState
	}
	e := s.finishLocked()
	s.mu.Unlock()
	s.apply(e)
	return nil
}

func (s *Session) finishLocked() effects {
	if s.cancelProcessing != nil {
		s.cancelProcessing()
		s.cancelProcessing = nil
	}

	a := &Artifact{
		ID:        uuid.NewString(),
		MediaType: s.mediaType,
		Data:      bytes.Join(s.chunks, nil),
		Chunks:    len(s.chunks),
		Duration:  s.stoppedAt.Sub(s.startedAt),
		CreatedAt: s.opts.Now().UTC(),
	}

	s.releaseArtifactLocked()
	s.store.Put(a)
	s.artifact = a
	s.chunks = nil
	s.progress = 100
	s.state = StateReady

	s.log.Info("recording ready",
		slog.String("artifact_id", a.ID),
		slog.String("media_type", a.MediaType),
		slog.Int("size", a.Size()),
		slog.Int("chunks", a.Chunks),
		slog.Duration("duration", a.Duration))
	if s.metrics != nil {
		s.metrics.IncRecordingsCompleted()
		s.metrics.SetLiveArtifacts(s.store.Live())
	}

	return effects{
		view:  s.changedLocked(),
		notes: []notify.Notification{notify.New(notify.LevelSuccess, s.opts.Catalog.Text(MsgRecordingReady))},
	}
}
