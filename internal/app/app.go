// Package app wires all Parley subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore). When an
// option is not provided, New creates real implementations from the config.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/gateway"
	"github.com/parley-ai/parley/internal/health"
	"github.com/parley-ai/parley/internal/kbctx"
	"github.com/parley-ai/parley/internal/mcpbridge"
	"github.com/parley-ai/parley/internal/observe"
	"github.com/parley-ai/parley/internal/resilience"
	"github.com/parley-ai/parley/internal/session"
	"github.com/parley-ai/parley/internal/store"
	"github.com/parley-ai/parley/internal/store/postgres"
	"github.com/parley-ai/parley/internal/suggest"
	"github.com/parley-ai/parley/internal/transcribe"
	"github.com/parley-ai/parley/internal/vault"
	"github.com/parley-ai/parley/pkg/provider/embeddings"
	"github.com/parley-ai/parley/pkg/provider/llm"
	"github.com/parley-ai/parley/pkg/provider/stt"
	sttopenai "github.com/parley-ai/parley/pkg/provider/stt/openai"
	"github.com/parley-ai/parley/pkg/types"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and serves the Parley meeting API.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	stores   store.Store
	keychain *vault.Keychain
	orch     *session.Orchestrator
	handler  http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.stores = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Credential vault ──────────────────────────────────────────────
	if err := a.initVault(); err != nil {
		return nil, fmt.Errorf("app: init vault: %w", err)
	}

	// ── 3. Session orchestrator ──────────────────────────────────────────
	a.initOrchestrator()

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.initHandler()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore sets up the PostgreSQL store, or the in-memory store when no DSN
// is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.stores != nil {
		return nil // injected
	}

	dsn := a.cfg.Database.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured; using in-memory store")
		a.stores = store.NewMemory()
		return nil
	}

	dims := a.cfg.Database.EmbeddingDimensions
	if dims == 0 {
		dims = 1536 // sensible default for OpenAI text-embedding-3-small
	}

	st, err := postgres.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	a.stores = st
	a.closers = append(a.closers, func() error {
		st.Close()
		return nil
	})
	return nil
}

// initVault decodes the master key and builds the tenant keychain. A missing
// master key is not fatal: tenant key management is simply unavailable.
func (a *App) initVault() error {
	if a.cfg.Vault.MasterKey == "" {
		return nil
	}
	master, err := base64.StdEncoding.DecodeString(a.cfg.Vault.MasterKey)
	if err != nil {
		return fmt.Errorf("vault.master_key is not valid base64: %w", err)
	}
	v, err := vault.New(master)
	if err != nil {
		return err
	}
	a.keychain = vault.NewKeychain(v, a.stores, 0)
	return nil
}

// initOrchestrator assembles the live-session pipeline: knowledge-base
// context, suggestion engine, summarizer, and the transcription factories.
func (a *App) initOrchestrator() {
	// The suggestion engine and the summarizer share one fallback group so
	// a flapping LLM backend is bypassed for both.
	var generator llm.Provider
	if a.providers.LLM != nil {
		generator = resilience.NewGeneratorFallback(a.providers.LLM, resilience.FallbackConfig{})
	}

	asmOpts := []kbctx.Option{}
	if a.providers.Embeddings != nil {
		asmOpts = append(asmOpts, kbctx.WithEmbeddings(a.providers.Embeddings))
	}
	assembler := kbctx.NewAssembler(a.stores, a.stores, a.stores, a.stores, asmOpts...)

	deps := session.Deps{
		Registry:        session.NewRegistry(),
		Sessions:        a.stores,
		LiveTranscripts: store.NewTranscriptGuard(a.stores),
		Transcripts:     a.stores,
		Assembler:       assembler,
		NewStreamer:     a.streamerFactory(),
	}
	if generator != nil {
		deps.Engine = suggest.NewEngine(generator)
		deps.Summarizer = session.NewSummarizer(generator)
	}
	if a.providers.STT != nil {
		deps.Full = transcribe.NewFull(a.providers.STT)
	}

	sc := a.cfg.Session
	a.orch = session.NewOrchestrator(session.Config{
		SampleRate:         sc.SampleRate,
		Language:           sc.Language,
		WatchdogInterval:   sc.WatchdogInterval.Std(),
		InactivityTimeout:  sc.InactivityTimeout.Std(),
		SuggestionInterval: sc.SuggestionInterval.Std(),
		SuggestionWindow:   sc.SuggestionWindow.Std(),
		SuggestionMinWords: sc.SuggestionMinWords,
		FinalizeTimeout:    sc.FinalizeTimeout.Std(),
	}, deps)
}

// streamerFactory builds the per-session streaming transcriber constructor.
// It prefers the globally configured speech provider; without one it falls
// back to a tenant-scoped key from the vault. Returns nil when neither
// source can ever produce a provider.
func (a *App) streamerFactory() func(string, func(types.Transcript), func(error)) session.Streamer {
	if a.providers.STT == nil && a.keychain == nil {
		return nil
	}
	scfg := transcribe.StreamingConfig{
		SampleRate: a.cfg.Session.SampleRate,
		Language:   a.cfg.Session.Language,
	}
	return func(sessionID string, onResult func(types.Transcript), onError func(error)) session.Streamer {
		prov := a.providers.STT
		if prov == nil {
			p, err := a.tenantSTT(sessionID)
			if err != nil {
				slog.Warn("no speech provider available for session",
					"session_id", sessionID,
					"error", err)
				return nil
			}
			prov = p
		}
		return transcribe.NewStreaming(prov, scfg, onResult, onError)
	}
}

// tenantSTT builds a speech provider from the session tenant's vaulted key.
func (a *App) tenantSTT(sessionID string) (stt.Provider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := a.stores.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	key, err := a.keychain.Resolve(ctx, sess.TenantID, "openai")
	if err != nil {
		return nil, err
	}
	model := a.cfg.Providers.STT.Model
	if model == "" {
		model = "whisper-1"
	}
	return sttopenai.New(key, model)
}

// initHandler assembles the HTTP mux: REST control API, websocket ingest,
// health probes, Prometheus metrics, and the optional MCP bridge.
func (a *App) initHandler() {
	mux := http.NewServeMux()

	control := gateway.NewControl(a.stores, a.stores, a.stores, a.orch)
	if a.keychain != nil {
		control.SetKeychain(a.keychain)
	}
	control.Register(mux)

	mux.Handle("GET /ws", gateway.NewSocketHandler(a.orch))

	health.New(a.healthCheckers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	if a.cfg.MCP.Enabled {
		bridge := mcpbridge.New(a.stores, a.stores)
		mux.Handle("/mcp", bridge.Handler())
		slog.Info("mcp bridge enabled", "path", "/mcp")
	}

	a.handler = observe.Middleware(observe.DefaultMetrics())(mux)
}

// healthCheckers lists the readiness probes.
func (a *App) healthCheckers() []health.Checker {
	return []health.Checker{
		{
			Name:  "database",
			Check: a.stores.Ping,
		},
		{
			Name: "speech",
			Check: func(context.Context) error {
				if a.providers.STT == nil && a.keychain == nil {
					return errors.New("no speech provider configured")
				}
				return nil
			},
		},
		{
			Name: "generation",
			Check: func(context.Context) error {
				if a.providers.LLM == nil {
					return errors.New("no llm provider configured")
				}
				return nil
			},
		},
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the fully assembled HTTP handler. Useful for tests.
func (a *App) Handler() http.Handler { return a.handler }

// Orchestrator returns the live session orchestrator.
func (a *App) Orchestrator() *session.Orchestrator { return a.orch }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured listen address and blocks until ctx is
// cancelled or the server fails. On cancellation the server is drained with
// a 10 second grace period.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("listening", "addr", addr, "tls", true)
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", addr, "tls", false)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			slog.Warn("http drain error", "error", err)
		}
		return ctx.Err()
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
