package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reelsmith/internal/api"
	"reelsmith/internal/compose"
	"reelsmith/internal/config"
	"reelsmith/internal/deps"
	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffmpeg"
	"reelsmith/internal/notifications"
	"reelsmith/internal/services/imagegen"
	"reelsmith/internal/services/llm"
	"reelsmith/internal/services/tts"
	"reelsmith/internal/speech"
	"reelsmith/internal/storage"
	"reelsmith/internal/store"
)

// Daemon owns the HTTP server and enforces single-instance execution via a
// file lock in the data directory.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	api    *api.Server

	lockPath string
	lock     *flock.Flock

	listener net.Listener
	server   *http.Server

	running atomic.Bool
}

// New constructs a daemon with its service clients. A missing API key leaves
// that client nil; the affected stages report unhealthy instead of blocking
// startup, so projects can still be inspected.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	var llmClient llm.Client
	if client, err := llm.New(cfg.LLM); err != nil {
		logger.Warn("llm client unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set the [llm] api_key in config.toml"),
		)
	} else {
		llmClient = client
	}
	var ttsClient tts.Client
	if client, err := tts.NewHTTP(cfg.TTS); err != nil {
		logger.Warn("tts client unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set the [tts] api_key in config.toml"),
		)
	} else {
		ttsClient = client
	}
	var imageClient imagegen.Client
	if client, err := imagegen.NewHTTP(cfg.Images); err != nil {
		logger.Warn("image client unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set the [images] api_key in config.toml"),
		)
	} else {
		imageClient = client
	}

	artifacts, err := storage.NewLocal(cfg.Paths.MediaDir, cfg.Paths.MediaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	renderer := ffmpeg.New(cfg.Compose.FFmpegBinary, cfg.Compose.FPS)

	apiServer, err := api.New(api.Options{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		Notifier:  notifications.NewService(cfg),
		LLM:       llmClient,
		TTS:       ttsClient,
		Images:    imageClient,
		Artifacts: artifacts,
		Renderer:  renderer,
		Prober:    compose.FFProber{Binary: cfg.Compose.FFprobeBinary},
		Audio:     speech.NewFFAudioProcessor(cfg.Compose.FFprobeBinary, renderer),
	})
	if err != nil {
		return nil, err
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "reelsmith.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		api:      apiServer,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and begins serving. It returns once the
// listener is bound; Stop or context cancellation shuts the server down.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelsmith daemon instance is already running")
	}

	for _, status := range deps.CheckBinaries(deps.Requirements(d.cfg)) {
		if !status.Available {
			d.logger.Warn("missing external dependency",
				logging.String("dependency", status.Name),
				logging.String("detail", status.Detail),
			)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", d.api.Handler())
	mux.Handle("/media/", http.StripPrefix("/media/", http.FileServer(http.Dir(d.cfg.Paths.MediaDir))))

	// No WriteTimeout: progress streams stay open for the length of a stage.
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	d.server = server

	listener, err := net.Listen("tcp", d.cfg.Paths.APIBind)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("listen on %s: %w", d.cfg.Paths.APIBind, err)
	}
	d.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("http server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		d.Stop()
	}()

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("address", listener.Addr().String()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Addr returns the bound listen address, empty before Start.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Stop drains in-flight requests and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("http server shutdown", logging.Error(err))
		}
		d.server = nil
	}
	d.listener = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
