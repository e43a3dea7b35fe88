package recording

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"screenrec/internal/notify"
	"screenrec/internal/platform/metrics"
)

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	Profiles       Profiles
	Settings       Settings
	Catalog        *Catalog
	ArtifactPrefix string

	// AcquireTimeout bounds how long RequestStart waits for a source.
	AcquireTimeout time.Duration

	// ProgressSteps and ProgressInterval drive the cosmetic progress shown
	// while processing. With a zero interval the artifact is assembled as
	// soon as the recorder acknowledges the stop.
	ProgressSteps    int
	ProgressInterval time.Duration

	Now func() time.Time
}

const defaultProgressSteps = 5

// Session is the recording state machine. It owns the live source, the
// recorder and the finished artifact; all mutation goes through its methods.
// Collaborators are always invoked without the session lock held.
type Session struct {
	mu sync.Mutex

	acquirer Acquirer
	store    ArtifactStore
	notifier notify.Notifier
	log      *slog.Logger
	metrics  *metrics.Metrics
	opts     Options

	state     State
	settings  Settings
	chunks    [][]byte
	artifact  *Artifact
	failure   *CaptureError
	mediaType string
	startedAt time.Time
	stoppedAt time.Time
	progress  int

	source   Source
	recorder Recorder
	// pushed reports whether the current recorder takes chunks from
	// HandleDataAvailable.
	pushed bool

	// attempt identifies the current capture attempt; events from
	// recorders of earlier attempts are ignored.
	attempt          uint64
	cancelProcessing context.CancelFunc

	version   uint64
	pubMu     sync.Mutex
	published uint64
	listeners []Listener
}

// NewSession returns an idle session. notifier and m may be nil.
func NewSession(acq Acquirer, store ArtifactStore, notifier notify.Notifier, log *slog.Logger, m *metrics.Metrics, opts Options) *Session {
	if opts.Profiles == nil {
		opts.Profiles = DefaultProfiles()
	}
	if opts.Settings.Quality == "" {
		opts.Settings = DefaultSettings()
	}
	if opts.Catalog == nil {
		opts.Catalog = LookupCatalog("en")
	}
	if opts.ProgressSteps <= 0 {
		opts.ProgressSteps = defaultProgressSteps
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notifier == nil {
		notifier = notify.Multi{}
	}
	return &Session{
		acquirer: acq,
		store:    store,
		notifier: notifier,
		log:      log,
		metrics:  m,
		opts:     opts,
		state:    StateIdle,
		settings: opts.Settings,
	}
}

// Subscribe registers l for every future View. Views are delivered in
// transition order; a stale view is never delivered after a newer one.
func (s *Session) Subscribe(l Listener) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// effects are the side effects of a transition, run after the lock is released.
type effects struct {
	view    *View
	notes   []notify.Notification
	cleanup []func()
}

func (s *Session) apply(e effects) {
	if e.view != nil {
		s.publish(*e.view)
	}
	for _, n := range e.notes {
		s.notifier.Notify(n)
	}
	for _, f := range e.cleanup {
		f()
	}
}

func (s *Session) publish(v View) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if v.Version <= s.published {
		return
	}
	s.published = v.Version
	for _, l := range s.listeners {
		l.SessionChanged(v)
	}
}

// changedLocked bumps the version and snapshots the view.
func (s *Session) changedLocked() *View {
	s.version++
	v := s.viewLocked()
	return &v
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Settings returns the current recording settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Failure returns the classified failure while the session is in Error.
func (s *Session) Failure() *CaptureError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// View returns the current view projection.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{
		State:      s.state,
		StatusText: s.opts.Catalog.status(s.state),
		Progress:   s.progress,
		Settings:   s.settings,
		Controls:   ControlsFor(s.state),
		Version:    s.version,
	}

	var elapsed time.Duration
	switch s.state {
	case StateRecording:
		elapsed = s.opts.Now().Sub(s.startedAt)
	case StateStopping, StateProcessing, StateReady:
		elapsed = s.stoppedAt.Sub(s.startedAt)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	v.ElapsedSeconds = int64(elapsed / time.Second)
	v.Timer = FormatTimer(elapsed)

	if s.state == StateReady && s.artifact != nil {
		v.ArtifactAvailable = true
		v.Artifact = &ArtifactInfo{
			Name:      s.artifactNameLocked(),
			Size:      s.artifact.Size(),
			MediaType: s.artifact.MediaType,
			Chunks:    s.artifact.Chunks,
		}
	}
	if s.state == StateError && s.failure != nil {
		v.Error = &FailureInfo{
			Reason:  s.failure.Reason,
			Message: s.opts.Catalog.Failure(s.failure),
		}
	}
	return v
}

func (s *Session) constraintsLocked() Constraints {
	return Constraints{
		Quality:      s.settings.Quality,
		Profile:      s.opts.Profiles[s.settings.Quality],
		IncludeAudio: s.settings.IncludeAudio,
		MediaTypes:   append([]string(nil), PreferredMediaTypes...),
	}
}

// RequestStart acquires a live source and starts recording it. It is
// rejected with ErrSessionActive while another attempt is in flight. From
// Ready the previous artifact is discarded first. Acquisition failures move
// the session to Error and are returned as *CaptureError.
func (s *Session) RequestStart(ctx context.Context) error {
	s.mu.Lock()
	if s.state.active() {
		s.mu.Unlock()
		return ErrSessionActive
	}
	if s.state == StateReady || s.state == StateError {
		s.resetLocked()
	}
	s.attempt++
	id := s.attempt
	c := s.constraintsLocked()
	s.state = StateRequesting
	view := s.changedLocked()
	s.mu.Unlock()
	s.apply(effects{view: view})

	s.log.Info("acquiring capture source",
		slog.String("quality", string(c.Quality)),
		slog.Bool("include_audio", c.IncludeAudio))

	actx := ctx
	if s.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.opts.AcquireTimeout)
		defer cancel()
	}
	src, err := s.acquirer.Acquire(actx, c)

	s.mu.Lock()
	if id != s.attempt || s.state != StateRequesting {
		// Closed while acquiring.
		s.mu.Unlock()
		if src != nil {
			src.Release()
		}
		return ErrInvalidState
	}
	if err != nil {
		ce := Classify(err)
		e := s.failLocked(ce)
		s.mu.Unlock()
		s.apply(e)
		return ce
	}

	rec, err := src.NewRecorder(attemptSink{s: s, id: id})
	if err != nil {
		ce := Classify(err)
		if ce.Reason == ReasonUnknown {
			ce = &CaptureError{Reason: ReasonRecorderFault, Err: err}
		}
		s.source = src
		e := s.failLocked(ce)
		s.mu.Unlock()
		s.apply(e)
		return ce
	}

	s.source = src
	s.recorder = rec
	s.pushed = false
	if p, ok := rec.(PushedRecorder); ok {
		s.pushed = p.AcceptsPushedChunks()
	}
	s.mediaType = rec.MediaType()
	s.startedAt = s.opts.Now()
	s.state = StateRecording
	e := effects{
		view:  s.changedLocked(),
		notes: []notify.Notification{notify.New(notify.LevelSuccess, s.opts.Catalog.Text(MsgRecordingStarted))},
	}
	s.mu.Unlock()

	s.log.Info("recording started", slog.String("media_type", rec.MediaType()))
	if s.metrics != nil {
		s.metrics.IncRecordingsStarted()
	}
	s.apply(e)
	return nil
}

// failLocked moves the session to Error, dropping chunks and detaching the
// live source and recorder. The returned effects stop and release them.
func (s *Session) failLocked(ce *CaptureError) effects {
	e := effects{cleanup: s.detachLocked()}
	s.chunks = nil
	s.failure = ce
	s.state = StateError
	s.progress = 0
	e.view = s.changedLocked()
	e.notes = []notify.Notification{notify.New(notify.LevelError, s.opts.Catalog.Failure(ce))}

	s.log.Error("recording failed",
		slog.String("reason", string(ce.Reason)),
		slog.String("error", ce.Error()))
	if s.metrics != nil {
		s.metrics.IncFailures(string(ce.Reason))
	}
	return e
}

// detachLocked hands the recorder and source over to cleanup functions.
// The recorder is always stopped together with the source release.
func (s *Session) detachLocked() []func() {
	var out []func()
	if s.cancelProcessing != nil {
		s.cancelProcessing()
		s.cancelProcessing = nil
	}
	if rec := s.recorder; rec != nil {
		out = append(out, rec.Stop)
	}
	if src := s.source; src != nil {
		out = append(out, src.Release)
	}
	s.recorder = nil
	s.source = nil
	return out
}

// HandleDataAvailable appends a chunk pushed by a remote client to the
// current recording. It is refused with ErrNotRecording unless the current
// recorder is a PushedRecorder; other recorders deliver through their own
// sink. Empty chunks are dropped and reported with ErrEmptyChunk. The
// session takes ownership of chunk.
func (s *Session) HandleDataAvailable(chunk []byte) error {
	return s.dataAvailable(0, chunk)
}

func (s *Session) dataAvailable(id uint64, chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != 0 && id != s.attempt {
		return ErrNotRecording
	}
	if s.state != StateRecording && s.state != StateStopping {
		return ErrNotRecording
	}
	if id == 0 && !s.pushed {
		s.log.Warn("external chunk refused, recorder owns its stream", slog.Int("size", len(chunk)))
		return ErrNotRecording
	}
	if len(chunk) == 0 {
		s.log.Debug("empty chunk dropped", slog.Int("chunks", len(s.chunks)))
		if s.metrics != nil {
			s.metrics.IncChunksDropped()
		}
		return ErrEmptyChunk
	}

	s.chunks = append(s.chunks, chunk)
	if s.metrics != nil {
		s.metrics.AddChunk(len(chunk))
	}
	return nil
}

// RequestStop ends the recording. A stop arriving after the current
// recording was already stopped or ended externally (Stopping, Processing
// or Ready) is a no-op.
func (s *Session) RequestStop() error {
	return s.stop(0, "user")
}

// OnExternalSourceEnded handles the live source being terminated outside the
// session, such as the user revoking screen sharing. It behaves exactly like
// RequestStop.
func (s *Session) OnExternalSourceEnded() {
	s.sourceEnded(0)
}

func (s *Session) sourceEnded(id uint64) {
	if err := s.stop(id, "source_ended"); err != nil {
		s.log.Debug("source ended outside recording", slog.String("error", err.Error()))
	}
}

func (s *Session) stop(id uint64, cause string) error {
	s.mu.Lock()
	if id != 0 && id != s.attempt {
		s.mu.Unlock()
		return ErrNotRecording
	}
	switch s.state {
	case StateStopping, StateProcessing, StateReady:
		// Ready is only reached through a stop of the current recording.
		s.mu.Unlock()
		return nil
	case StateRecording:
	default:
		s.mu.Unlock()
		return ErrNotRecording
	}

	s.state = StateStopping
	s.stoppedAt = s.opts.Now()
	e := effects{cleanup: s.detachLocked()}
	e.view = s.changedLocked()
	chunks := len(s.chunks)
	s.mu.Unlock()

	s.log.Info("stopping recording", slog.String("cause", cause), slog.Int("chunks", chunks))
	s.apply(e)
	return nil
}

// RecorderStopped acknowledges that the recorder delivered its last chunk.
func (s *Session) RecorderStopped() {
	s.recorderStopped(0)
}

// RecorderFault moves a recording straight to Error, releasing the source.
func (s *Session) RecorderFault(err error) {
	s.recorderFault(0, err)
}

func (s *Session) recorderFault(id uint64, err error) {
	s.mu.Lock()
	if (id != 0 && id != s.attempt) || !s.state.active() || s.state == StateRequesting {
		s.mu.Unlock()
		return
	}
	ce := Classify(err)
	if ce.Reason == ReasonUnknown {
		ce = &CaptureError{Reason: ReasonRecorderFault, Err: err}
	}
	e := s.failLocked(ce)
	s.mu.Unlock()
	s.apply(e)
}

// Reset returns a Ready or Error session to Idle, releasing the artifact.
func (s *Session) Reset() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return nil
	case StateReady, StateError:
	default:
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.resetLocked()
	view := s.changedLocked()
	s.mu.Unlock()

	s.apply(effects{view: view})
	return nil
}

func (s *Session) resetLocked() {
	s.releaseArtifactLocked()
	s.chunks = nil
	s.failure = nil
	s.pushed = false
	s.mediaType = ""
	s.startedAt = time.Time{}
	s.stoppedAt = time.Time{}
	s.progress = 0
	s.state = StateIdle
}

func (s *Session) releaseArtifactLocked() {
	if s.artifact == nil {
		return
	}
	s.store.Release(s.artifact.Handle)
	s.log.Debug("artifact released", slog.String("handle", string(s.artifact.Handle)))
	s.artifact = nil
	if s.metrics != nil {
		s.metrics.SetLiveArtifacts(s.store.Live())
	}
}

// SetQuality selects the quality preset used by the next recording.
func (s *Session) SetQuality(q Quality) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateReady {
		s.mu.Unlock()
		return ErrSettingsLocked
	}
	if _, ok := s.opts.Profiles[q]; !ok {
		s.mu.Unlock()
		return ErrUnknownQuality
	}
	s.settings.Quality = q
	view := s.changedLocked()
	s.mu.Unlock()

	s.apply(effects{view: view})
	return nil
}

// SetIncludeAudio selects whether the next recording captures audio.
func (s *Session) SetIncludeAudio(include bool) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateReady {
		s.mu.Unlock()
		return ErrSettingsLocked
	}
	s.settings.IncludeAudio = include
	view := s.changedLocked()
	s.mu.Unlock()

	s.apply(effects{view: view})
	return nil
}

// Artifact returns the finished recording while the session is Ready.
func (s *Session) Artifact() (*Artifact, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.artifact == nil {
		return nil, "", false
	}
	return s.artifact, s.artifactNameLocked(), true
}

func (s *Session) artifactNameLocked() string {
	return FileName(s.opts.ArtifactPrefix, s.artifact.CreatedAt, s.artifact.MediaType)
}

// Save hands the finished recording to saver and reports the outcome to the
// user.
func (s *Session) Save(ctx context.Context, saver Saver) (string, error) {
	a, name, ok := s.Artifact()
	if !ok {
		return "", ErrNoArtifact
	}

	path, err := saver.Save(ctx, name, a)
	if err != nil {
		s.log.Error("save recording failed", slog.String("name", name), slog.String("error", err.Error()))
		s.notifier.Notify(notify.New(notify.LevelError, s.opts.Catalog.Text(MsgSaveFailed)))
		return "", err
	}
	s.log.Info("recording saved", slog.String("path", path), slog.Int("size", a.Size()))
	s.notifier.Notify(notify.New(notify.LevelSuccess, s.opts.Catalog.Text(MsgSaved)))
	return path, nil
}

// Diagnostics summarizes the session and capture backend.
type Diagnostics struct {
	State               State    `json:"state"`
	HasArtifact         bool     `json:"has_artifact"`
	Chunks              int      `json:"chunks"`
	LiveArtifacts       int      `json:"live_artifacts"`
	Backend             string   `json:"backend"`
	SupportedMediaTypes []string `json:"supported_media_types"`
}

func (s *Session) Diagnostics() Diagnostics {
	s.mu.Lock()
	d := Diagnostics{
		State:       s.state,
		HasArtifact: s.artifact != nil,
		Chunks:      len(s.chunks),
	}
	s.mu.Unlock()

	d.LiveArtifacts = s.store.Live()
	d.Backend = "unknown"
	if b, ok := s.acquirer.(Backend); ok {
		d.Backend = b.Name()
		d.SupportedMediaTypes = b.SupportedMediaTypes()
	}
	return d
}

// Close abandons any capture in progress and releases every resource the
// session holds. Late recorder events are ignored afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	s.attempt++
	cleanup := s.detachLocked()
	s.releaseArtifactLocked()
	s.chunks = nil
	s.state = StateIdle
	s.mu.Unlock()

	for _, f := range cleanup {
		f()
	}
}

// attemptSink binds recorder events to the attempt that created the recorder.
type attemptSink struct {
	s  *Session
	id uint64
}

func (a attemptSink) HandleDataAvailable(chunk []byte) error { return a.s.dataAvailable(a.id, chunk) }
func (a attemptSink) RecorderStopped()                       { a.s.recorderStopped(a.id) }
func (a attemptSink) RecorderFault(err error)                { a.s.recorderFault(a.id, err) }
func (a attemptSink) OnExternalSourceEnded()                 { a.s.sourceEnded(a.id) }
