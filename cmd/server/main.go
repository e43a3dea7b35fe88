package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"screenrec/internal/capture"
	"screenrec/internal/notify"
	"screenrec/internal/platform/config"
	"screenrec/internal/platform/logger"
	"screenrec/internal/platform/metrics"
	"screenrec/internal/recording"
	"screenrec/internal/version"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	logFile := config.GetEnv("LOG_FILE", "")
	backend := config.GetEnv("CAPTURE_BACKEND", "push")
	outputDir := config.GetEnv("OUTPUT_DIR", "recordings")

	log := logger.New(logLevel, logFormat)
	if logFile != "" {
		log = logger.NewWithFile(logFile, logLevel, logFormat)
	}

	profiles, err := recording.LoadProfiles(config.GetEnv("PROFILES_FILE", ""))
	if err != nil {
		log.Error("load profiles failed", "error", err)
		os.Exit(1)
	}

	settings := recording.DefaultSettings()
	if q, err := recording.ParseQuality(config.GetEnv("DEFAULT_QUALITY", string(settings.Quality))); err == nil {
		settings.Quality = q
	} else {
		log.Warn("ignoring DEFAULT_QUALITY", "error", err)
	}
	settings.IncludeAudio = config.GetEnvBool("DEFAULT_INCLUDE_AUDIO", settings.IncludeAudio)

	acq := newAcquirer(backend, log)

	met := metrics.New()
	store := recording.NewInMemoryStore()

	var session *recording.Session
	hub := notify.NewHub(log, func() notify.Envelope {
		return notify.Envelope{Type: notify.EventSession, Data: session.View()}
	})
	notifier := notify.Multi{notify.NewLogNotifier(log), hub}

	session = recording.NewSession(acq, store, notifier, log, met, recording.Options{
		Profiles:         profiles,
		Settings:         settings,
		Catalog:          recording.LookupCatalog(config.GetEnv("LOCALE", "en")),
		ArtifactPrefix:   config.GetEnv("ARTIFACT_PREFIX", recording.DefaultArtifactPrefix),
		AcquireTimeout:   config.GetEnvDuration("ACQUIRE_TIMEOUT", time.Minute),
		ProgressSteps:    config.GetEnvInt("PROGRESS_STEPS", 5),
		ProgressInterval: config.GetEnvDuration("PROGRESS_INTERVAL", 200*time.Millisecond),
	})
	session.Subscribe(recording.ListenerFunc(func(v recording.View) {
		hub.Broadcast(notify.EventSession, v)
	}))

	h := recording.NewHandler(session, recording.NewFileSaver(outputDir), log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetLiveArtifacts(store.Live()) }).ServeHTTP(w, r)
	})
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
		r.Get("/events", hub.ServeHTTP)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"version", version.Full(),
		"capture_backend", backend,
		"quality", settings.Quality,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, releasing capture")
	session.Close()
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func newAcquirer(backend string, log *slog.Logger) recording.Acquirer {
	maxW := config.GetEnvInt("CAPTURE_MAX_WIDTH", 0)
	maxH := config.GetEnvInt("CAPTURE_MAX_HEIGHT", 0)

	switch backend {
	case "ffmpeg":
		return capture.NewFFmpeg(capture.FFmpegConfig{
			Path:        config.GetEnv("FFMPEG_PATH", "ffmpeg"),
			Display:     config.GetEnv("CAPTURE_DISPLAY", ""),
			AudioDevice: config.GetEnv("CAPTURE_AUDIO_DEVICE", "default"),
			MaxWidth:    maxW,
			MaxHeight:   maxH,
			ChunkSize:   config.GetEnvInt("CHUNK_SIZE", capture.DefaultChunkSize),
		}, log)
	case "push":
	default:
		log.Warn("unknown capture backend, using push", "backend", backend)
	}
	return capture.NewPush(capture.PushConfig{MaxWidth: maxW, MaxHeight: maxH}, log)
}
