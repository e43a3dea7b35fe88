package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"screenrec/internal/recording"
)

const (
	DefaultChunkSize = 256 << 10
	ffmpegMediaType  = "video/webm;codecs=vp8,opus"
	releaseGrace     = 5 * time.Second
	stderrTail       = 4 << 10
)

// FFmpegConfig configures local screen capture through ffmpeg.
type FFmpegConfig struct {
	// Path is the ffmpeg binary, resolved through PATH when not absolute.
	Path string

	// Display selects the screen: an X11 display such as ":0.0" on Linux,
	// a device index on macOS, "desktop" on Windows. Empty uses the
	// platform default; on Linux that is $DISPLAY.
	Display string

	// AudioDevice is the input used when audio is requested.
	AudioDevice string

	MaxWidth  int
	MaxHeight int
	ChunkSize int

	// GOOS overrides the platform used to build input arguments.
	GOOS string
}

// FFmpeg captures the local screen into WebM chunks read from ffmpeg's stdout.
type FFmpeg struct {
	cfg      FFmpegConfig
	log      *slog.Logger
	lookPath func(string) (string, error)
}

// NewFFmpeg returns an ffmpeg capture backend.
func NewFFmpeg(cfg FFmpegConfig, log *slog.Logger) *FFmpeg {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	if cfg.AudioDevice == "" {
		cfg.AudioDevice = "default"
	}
	return &FFmpeg{cfg: cfg, log: log, lookPath: exec.LookPath}
}

func (f *FFmpeg) Name() string { return "ffmpeg" }

func (f *FFmpeg) SupportedMediaTypes() []string {
	return []string{ffmpegMediaType, "video/webm"}
}

// Acquire implements recording.Acquirer. It resolves the binary and the
// display and validates the constraints; the process starts in NewRecorder.
func (f *FFmpeg) Acquire(ctx context.Context, c recording.Constraints) (recording.Source, error) {
	bin, err := f.lookPath(f.cfg.Path)
	if err != nil {
		return nil, classifyExec(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkResolution(c.Profile, f.cfg.MaxWidth, f.cfg.MaxHeight); err != nil {
		return nil, err
	}

	mt := Negotiate(c.MediaTypes, f.SupportedMediaTypes())
	if mt == "" {
		return nil, fmt.Errorf("ffmpeg produces webm only: %w", recording.ErrNotSupported)
	}

	args, err := f.Args(c)
	if err != nil {
		return nil, err
	}

	f.log.Debug("ffmpeg source acquired", slog.String("binary", bin), slog.Any("args", args))
	return &ffmpegSource{
		bin:       bin,
		args:      args,
		mediaType: mt,
		chunkSize: f.cfg.ChunkSize,
		log:       f.log,
	}, nil
}

// Args builds the ffmpeg command line for c.
func (f *FFmpeg) Args(c recording.Constraints) ([]string, error) {
	p := c.Profile
	fps := strconv.Itoa(p.FrameRate)
	args := []string{"-hide_banner", "-loglevel", "error"}

	display := f.cfg.Display
	switch f.cfg.GOOS {
	case "linux":
		if display == "" {
			display = os.Getenv("DISPLAY")
		}
		if display == "" {
			return nil, fmt.Errorf("no X11 display: %w", recording.ErrNoSourceAvailable)
		}
		args = append(args, "-f", "x11grab", "-framerate", fps, "-i", display)
		if c.IncludeAudio {
			args = append(args, "-f", "pulse", "-i", f.cfg.AudioDevice)
		}
	case "darwin":
		if display == "" {
			display = "1"
		}
		audio := "none"
		if c.IncludeAudio {
			audio = f.cfg.AudioDevice
		}
		args = append(args, "-f", "avfoundation", "-framerate", fps, "-i", display+":"+audio)
	case "windows":
		if display == "" {
			display = "desktop"
		}
		args = append(args, "-f", "gdigrab", "-framerate", fps, "-i", display)
		if c.IncludeAudio {
			args = append(args, "-f", "dshow", "-i", "audio="+f.cfg.AudioDevice)
		}
	default:
		return nil, fmt.Errorf("screen capture on %s: %w", f.cfg.GOOS, recording.ErrNotSupported)
	}

	args = append(args,
		"-vf", fmt.Sprintf("scale=%d:%d", p.Width, p.Height),
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-b:v", strconv.Itoa(p.VideoBitrate),
	)
	if c.IncludeAudio {
		args = append(args, "-c:a", "libopus", "-b:a", strconv.Itoa(p.AudioBitrate))
	} else {
		args = append(args, "-an")
	}
	return append(args, "-f", "webm", "pipe:1"), nil
}

// classifyExec maps process start errors onto the capture taxonomy.
func classifyExec(err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("ffmpeg unavailable: %v: %w", err, recording.ErrNotSupported)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("ffmpeg not executable: %v: %w", err, recording.ErrPermissionDenied)
	default:
		return fmt.Errorf("starting ffmpeg: %v: %w", err, recording.ErrHardware)
	}
}

type ffmpegSource struct {
	bin       string
	args      []string
	mediaType string
	chunkSize int
	log       *slog.Logger

	mu  sync.Mutex
	rec *ffmpegRecorder
}

func (s *ffmpegSource) NewRecorder(sink recording.Sink) (recording.Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec != nil {
		return nil, fmt.Errorf("ffmpeg already running: %w", recording.ErrRecorderFault)
	}
	r, err := startRecorder(exec.Command(s.bin, s.args...), s.mediaType, s.chunkSize, sink, s.log)
	if err != nil {
		return nil, err
	}
	s.rec = r
	return r, nil
}

// Release terminates the capture process if it has not exited within a
// grace period after Stop.
func (s *ffmpegSource) Release() {
	s.mu.Lock()
	r := s.rec
	s.mu.Unlock()
	if r != nil {
		r.release(releaseGrace)
	}
}

type ffmpegRecorder struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    *tailBuffer
	mediaType string
	chunkSize int
	sink      recording.Sink
	log       *slog.Logger

	done     chan struct{}
	stopping atomic.Bool
	released atomic.Bool
}

func startRecorder(cmd *exec.Cmd, mediaType string, chunkSize int, sink recording.Sink, log *slog.Logger) (*ffmpegRecorder, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %v: %w", err, recording.ErrRecorderFault)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %v: %w", err, recording.ErrRecorderFault)
	}
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, classifyExec(err)
	}

	r := &ffmpegRecorder{
		cmd:       cmd,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		mediaType: mediaType,
		chunkSize: chunkSize,
		sink:      sink,
		log:       log,
		done:      make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func (r *ffmpegRecorder) MediaType() string { return r.mediaType }

func (r *ffmpegRecorder) run() {
	buf := make([]byte, r.chunkSize)
	for {
		n, err := r.stdout.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if err := r.sink.HandleDataAvailable(chunk); err != nil && !errors.Is(err, recording.ErrEmptyChunk) {
				r.log.Debug("chunk not accepted", slog.String("error", err.Error()))
			}
		}
		if err != nil {
			break
		}
	}

	waitErr := r.cmd.Wait()
	close(r.done)
	if r.stopping.Load() {
		return
	}

	var ee *exec.ExitError
	if waitErr != nil && !(errors.As(waitErr, &ee) && ee.ExitCode() == -1) {
		r.log.Error("ffmpeg exited unexpectedly",
			slog.String("error", waitErr.Error()),
			slog.String("stderr", r.stderr.String()))
		r.sink.RecorderFault(fmt.Errorf("ffmpeg: %v: %s: %w", waitErr, r.stderr.String(), recording.ErrRecorderFault))
		return
	}
	r.log.Info("capture source ended")
	r.sink.OnExternalSourceEnded()
}

// Stop asks ffmpeg to finish the file and acknowledges once it has exited
// and every chunk has been delivered.
func (r *ffmpegRecorder) Stop() {
	if !r.stopping.CompareAndSwap(false, true) {
		return
	}
	if _, err := r.stdin.Write([]byte("q")); err != nil {
		r.log.Debug("ffmpeg stdin closed", slog.String("error", err.Error()))
	}
	_ = r.stdin.Close()

	go func() {
		<-r.done
		r.sink.RecorderStopped()
	}()
}

func (r *ffmpegRecorder) release(grace time.Duration) {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	go func() {
		select {
		case <-r.done:
		case <-time.After(grace):
			r.log.Warn("ffmpeg did not exit, killing")
			_ = r.cmd.Process.Kill()
		}
	}()
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
