// Package capture provides the live media sources a recording session can
// acquire.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"screenrec/internal/recording"
)

// DefaultPushMediaTypes are the containers a browser client is expected to
// produce with MediaRecorder.
var DefaultPushMediaTypes = []string{
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm",
}

// PushConfig configures a Push backend.
type PushConfig struct {
	MediaTypes []string
	MaxWidth   int
	MaxHeight  int
	Disabled   bool
}

// Push is a capture backend whose encoding happens in a remote client. The
// client delivers chunks and source-ended events through the session API,
// so the source and recorder here only track ownership.
type Push struct {
	cfg PushConfig
	log *slog.Logger
}

// NewPush returns a Push backend.
func NewPush(cfg PushConfig, log *slog.Logger) *Push {
	if len(cfg.MediaTypes) == 0 {
		cfg.MediaTypes = DefaultPushMediaTypes
	}
	return &Push{cfg: cfg, log: log}
}

func (p *Push) Name() string { return "push" }

func (p *Push) SupportedMediaTypes() []string {
	return append([]string(nil), p.cfg.MediaTypes...)
}

// Acquire implements recording.Acquirer.
func (p *Push) Acquire(ctx context.Context, c recording.Constraints) (recording.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.cfg.Disabled {
		return nil, fmt.Errorf("push capture disabled: %w", recording.ErrNoSourceAvailable)
	}
	if err := checkResolution(c.Profile, p.cfg.MaxWidth, p.cfg.MaxHeight); err != nil {
		return nil, err
	}
	mt := Negotiate(c.MediaTypes, p.cfg.MediaTypes)
	if mt == "" {
		return nil, fmt.Errorf("no common media type: %w", recording.ErrNotSupported)
	}

	p.log.Debug("push source acquired", slog.String("media_type", mt))
	return &pushSource{mediaType: mt}, nil
}

type pushSource struct {
	mediaType string
	released  atomic.Bool
}

func (s *pushSource) NewRecorder(sink recording.Sink) (recording.Recorder, error) {
	if s.released.Load() {
		return nil, fmt.Errorf("source already released: %w", recording.ErrRecorderFault)
	}
	return &pushRecorder{sink: sink, mediaType: s.mediaType}, nil
}

func (s *pushSource) Release() {
	s.released.Store(true)
}

type pushRecorder struct {
	sink      recording.Sink
	mediaType string
	once      sync.Once
}

func (r *pushRecorder) MediaType() string { return r.mediaType }

// AcceptsPushedChunks marks the client as the producer of this stream.
func (r *pushRecorder) AcceptsPushedChunks() bool { return true }

// Stop acknowledges immediately; the client has already delivered whatever
// it is going to deliver.
func (r *pushRecorder) Stop() {
	r.once.Do(r.sink.RecorderStopped)
}

// Negotiate returns the first preferred media type that is supported.
// An empty supported list accepts the first preference.
func Negotiate(preferred, supported []string) string {
	if len(supported) == 0 {
		if len(preferred) == 0 {
			return ""
		}
		return preferred[0]
	}
	for _, p := range preferred {
		for _, s := range supported {
			if p == s {
				return p
			}
		}
	}
	return ""
}

func checkResolution(p recording.Profile, maxWidth, maxHeight int) error {
	if (maxWidth > 0 && p.Width > maxWidth) || (maxHeight > 0 && p.Height > maxHeight) {
		return fmt.Errorf("%dx%d exceeds %dx%d: %w",
			p.Width, p.Height, maxWidth, maxHeight, recording.ErrConstraintsUnsatisfiable)
	}
	return nil
}
