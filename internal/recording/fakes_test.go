package recording

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"screenrec/internal/notify"
)

type fakeAcquirer struct {
	mu       sync.Mutex
	err      error
	calls    int
	last     Constraints
	sources  []*fakeSource
	block    chan struct{}
	entered  chan struct{}
	asyncAck bool

	// ownsChunks makes recorders produce their own stream, like ffmpeg.
	ownsChunks bool
}

func (a *fakeAcquirer) Acquire(ctx context.Context, c Constraints) (Source, error) {
	a.mu.Lock()
	a.calls++
	a.last = c
	block, entered := a.block, a.entered
	a.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	src := &fakeSource{mediaType: "video/webm;codecs=vp9,opus", asyncAck: a.asyncAck, ownsChunks: a.ownsChunks}
	a.sources = append(a.sources, src)
	return src, nil
}

func (a *fakeAcquirer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *fakeAcquirer) Last() Constraints {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *fakeAcquirer) Source(i int) *fakeSource {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sources[i]
}

type fakeSource struct {
	mu         sync.Mutex
	mediaType  string
	asyncAck   bool
	ownsChunks bool
	released   int
	rec        *fakeRecorder
	recErr     error
}

func (s *fakeSource) NewRecorder(sink Sink) (Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recErr != nil {
		return nil, s.recErr
	}
	s.rec = &fakeRecorder{sink: sink, mediaType: s.mediaType, asyncAck: s.asyncAck, ownsChunks: s.ownsChunks}
	return s.rec, nil
}

func (s *fakeSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
}

func (s *fakeSource) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *fakeSource) Recorder() *fakeRecorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

// fakeRecorder acknowledges Stop synchronously unless asyncAck is set, in
// which case the test acknowledges through the session. It accepts pushed
// chunks unless ownsChunks is set.
type fakeRecorder struct {
	mu         sync.Mutex
	sink       Sink
	mediaType  string
	asyncAck   bool
	ownsChunks bool
	stops      int
}

func (r *fakeRecorder) MediaType() string { return r.mediaType }

func (r *fakeRecorder) AcceptsPushedChunks() bool { return !r.ownsChunks }

func (r *fakeRecorder) Stop() {
	r.mu.Lock()
	r.stops++
	first := r.stops == 1
	r.mu.Unlock()
	if first && !r.asyncAck {
		r.sink.RecorderStopped()
	}
}

func (r *fakeRecorder) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

type recordedNotes struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (n *recordedNotes) Notify(note notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *recordedNotes) count(level notify.Level) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, note := range n.notes {
		if note.Level == level {
			c++
		}
	}
	return c
}

func (n *recordedNotes) last() notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notes) == 0 {
		return notify.Notification{}
	}
	return n.notes[len(n.notes)-1]
}

func (n *recordedNotes) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testSession struct {
	*Session
	acq   *fakeAcquirer
	store *InMemoryStore
	notes *recordedNotes
	clock *fakeClock
}

func newTestSession(opts Options) *testSession {
	ts := &testSession{
		acq:   &fakeAcquirer{},
		store: NewInMemoryStore(),
		notes: &recordedNotes{},
		clock: &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	if opts.Now == nil {
		opts.Now = ts.clock.Now
	}
	ts.Session = NewSession(ts.acq, ts.store, ts.notes, testLogger(), nil, opts)
	return ts
}
