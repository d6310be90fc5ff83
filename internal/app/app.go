// Package app wires all captrail subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the observer API until the context is canceled,
// and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithArchive, WithSummarizer, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/captrail/captrail/internal/config"
	"github.com/captrail/captrail/internal/health"
	"github.com/captrail/captrail/internal/ingest"
	"github.com/captrail/captrail/internal/noise"
	"github.com/captrail/captrail/internal/observe"
	"github.com/captrail/captrail/internal/resilience"
	"github.com/captrail/captrail/internal/summarize"
	"github.com/captrail/captrail/pkg/provider/embeddings"
	"github.com/captrail/captrail/pkg/provider/llm"
	"github.com/captrail/captrail/pkg/transcript"
	"github.com/captrail/captrail/pkg/transcript/postgres"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// serverStopTimeout bounds the graceful drain of the HTTP listeners once
// the run context is canceled.
const serverStopTimeout = 5 * time.Second

// sessionDrainTimeout bounds stopping the remaining sessions at shutdown,
// including their final summary calls and sink writes.
const sessionDrainTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and serves the caption capture pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New, torn down in Shutdown.
	classifier *noise.Classifier
	summarizer Summarizer
	archive    transcript.Archive
	pg         *postgres.Store
	sessions   *SessionManager
	srv        *http.Server
	metricsSrv *http.Server
	watcher    *config.Watcher
	met        *observe.Metrics

	level     *slog.LevelVar
	watchPath string

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithArchive injects an archive instead of connecting Postgres from config.
func WithArchive(s transcript.Archive) Option {
	return func(a *App) { a.archive = s }
}

// WithSummarizer injects a summarizer instead of building one from the LLM
// provider.
func WithSummarizer(s Summarizer) Option {
	return func(a *App) { a.summarizer = s }
}

// WithMetrics injects metric instruments instead of the no-op default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.met = m }
}

// WithLogLevelVar hands the App the level var behind the process logger so
// config reloads can change verbosity at runtime.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithConfigWatch enables hot reload by polling the config file at path.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.watchPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		met:       observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Noise classifier ──────────────────────────────────────────────
	classifier, err := noise.New(cfg.Noise.AllPatterns())
	if err != nil {
		return nil, fmt.Errorf("app: init classifier: %w", err)
	}
	a.classifier = classifier

	// ── 2. Summarizer ────────────────────────────────────────────────────
	a.initSummarizer()

	// ── 3. Archive ───────────────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 4. Session manager ───────────────────────────────────────────────
	a.initSessions()

	// ── 5. HTTP servers ──────────────────────────────────────────────────
	a.initServers()

	// ── 6. Config watcher ────────────────────────────────────────────────
	if err := a.initWatcher(); err != nil {
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	return a, nil
}

// Sessions returns the session manager driving all capture sessions.
func (a *App) Sessions() *SessionManager {
	return a.sessions
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSummarizer builds the chunk summarizer from the LLM provider, or a
// no-op one when no provider is configured.
func (a *App) initSummarizer() {
	if a.summarizer != nil {
		return // injected
	}
	if a.providers.LLM == nil {
		slog.Warn("no LLM provider configured; sessions will finish without summaries")
		a.summarizer = noopSummarizer{}
		return
	}
	a.summarizer = summarize.NewChunkSummarizer(
		a.providers.LLM,
		summarize.WithProviderName(a.cfg.Providers.LLM.Name),
	)
}

// initArchive connects the Postgres archive when a DSN is configured.
func (a *App) initArchive(ctx context.Context) error {
	if a.archive != nil {
		return nil // injected
	}

	dsn := a.cfg.Archive.PostgresDSN
	if dsn == "" {
		slog.Info("archive disabled; finished sessions are kept as notes only")
		return nil
	}
	if a.providers.Embeddings == nil {
		return fmt.Errorf("archive.postgres_dsn is set but no embeddings provider is configured")
	}

	store, err := postgres.NewStore(ctx, dsn, a.providers.Embeddings)
	if err != nil {
		return err
	}
	a.pg = store
	a.archive = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	slog.Info("archive connected", "embedding_dims", a.providers.Embeddings.Dimensions())
	return nil
}

// initSessions creates the session manager and registers its drain closer.
func (a *App) initSessions() {
	notesDir := a.cfg.Notes.Dir
	if notesDir == "" {
		notesDir = "notes"
	}

	a.sessions = NewSessionManager(SessionManagerConfig{
		Config:     a.cfg,
		Classifier: a.classifier,
		Summarizer: a.summarizer,
		Archive:    a.archive,
		NotesDir:   notesDir,
		Metrics:    a.met,
	})

	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), sessionDrainTimeout)
		defer cancel()
		return a.sessions.Close(ctx)
	})
}

// initServers builds the observer-facing server (ingest API plus health
// endpoints) and the metrics listener.
func (a *App) initServers() {
	var checkers []health.Checker
	if a.pg != nil {
		checkers = append(checkers, health.Checker{Name: "archive", Check: a.pg.Ping})
	}
	if bs, ok := a.providers.LLM.(breakerStates); ok {
		checkers = append(checkers, health.Checker{Name: "summarizer", Check: summarizerCheck(bs)})
	}

	mux := http.NewServeMux()
	srv := ingest.NewServer(a.sessions,
		ingest.WithDebounceWindow(a.cfg.Capture.DebounceWindow.Std()),
	)
	// The ingest handler carries its own /v1 patterns; no prefix strip.
	mux.Handle("/v1/", srv.Handler())
	health.New(checkers...).Register(mux)

	a.srv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.met)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		a.metricsSrv = &http.Server{
			Addr:              addr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
}

// initWatcher starts polling the config file when watching is enabled.
func (a *App) initWatcher() error {
	if a.watchPath == "" {
		return nil
	}
	w, err := config.NewWatcher(a.watchPath, a.applyConfig)
	if err != nil {
		return err
	}
	a.watcher = w
	slog.Info("config hot reload enabled", "path", a.watchPath)
	return nil
}

// applyConfig applies a hot-reloaded config. Chrome patterns and the log
// level take effect immediately, for running sessions too; chunking and
// speaker tuning reach sessions started after the reload.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Any() {
		return
	}

	if d.NoiseChanged {
		if err := a.classifier.Reload(new.Noise.AllPatterns()); err != nil {
			slog.Error("noise pattern reload failed, keeping previous patterns", "err", err)
		} else {
			slog.Info("noise patterns reloaded", "patterns", len(new.Noise.AllPatterns()))
		}
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.ChunkingChanged || d.SpeakersChanged {
		a.sessions.UpdateConfig(new)
		slog.Info("session tuning updated", "applies", "new sessions")
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the listeners and blocks until ctx is canceled or a listener
// fails. On cancellation both servers drain gracefully before Run returns.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tls := a.cfg.Server.TLS
		slog.Info("observer API listening", "addr", a.srv.Addr, "tls", tls != nil)
		var err error
		if tls != nil {
			err = a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: observer server: %w", err)
	})

	if a.metricsSrv != nil {
		g.Go(func() error {
			slog.Info("metrics listening", "addr", a.metricsSrv.Addr)
			if err := a.metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), serverStopTimeout)
		defer cancel()
		if err := a.srv.Shutdown(sctx); err != nil {
			slog.Warn("observer server shutdown error", "err", err)
		}
		if a.metricsSrv != nil {
			if err := a.metricsSrv.Shutdown(sctx); err != nil {
				slog.Warn("metrics server shutdown error", "err", err)
			}
		}
		return nil
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order, so the session
// drain still sees a connected archive. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.watcher != nil {
			a.watcher.Stop()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// breakerStates is implemented by LLM providers wrapped in a resilience
// fallback group.
type breakerStates interface {
	States() map[string]resilience.State
}

// summarizerCheck reports the summarizer unready only when every provider
// breaker is open.
func summarizerCheck(bs breakerStates) func(context.Context) error {
	return func(context.Context) error {
		states := bs.States()
		if len(states) == 0 {
			return nil
		}
		open := 0
		for _, s := range states {
			if s == resilience.StateOpen {
				open++
			}
		}
		if open == len(states) {
			return fmt.Errorf("all %d llm provider breakers are open", open)
		}
		return nil
	}
}

// noopSummarizer keeps the pipeline running when no LLM provider is
// configured. Chunks record empty summaries; the transcript itself is
// unaffected.
type noopSummarizer struct{}

func (noopSummarizer) SummarizeChunk(context.Context, int, string, string) (string, error) {
	return "", nil
}

func (noopSummarizer) FinalSummary(context.Context, string, []transcript.Chunk) (string, error) {
	return "", nil
}
