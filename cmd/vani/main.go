// Command vani is the live audio session server: it bridges a microphone
// stream to a remote speech model, plays the model's voice back gaplessly,
// and exposes an HTTP surface for session control, agent profiles, and
// finished session records.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/vanivoice/vani/internal/agent"
	"github.com/vanivoice/vani/internal/agent/profilestore"
	"github.com/vanivoice/vani/internal/api"
	"github.com/vanivoice/vani/internal/config"
	"github.com/vanivoice/vani/internal/health"
	"github.com/vanivoice/vani/internal/observe"
	"github.com/vanivoice/vani/internal/record"
	"github.com/vanivoice/vani/internal/session"
	"github.com/vanivoice/vani/pkg/audio/stdio"
	"github.com/vanivoice/vani/pkg/provider/analysis"
	anyllmanalysis "github.com/vanivoice/vani/pkg/provider/analysis/anyllm"
	openaianalysis "github.com/vanivoice/vani/pkg/provider/analysis/openai"
	"github.com/vanivoice/vani/pkg/provider/live"
	geminilive "github.com/vanivoice/vani/pkg/provider/live/gemini"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "vani: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vani: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vani: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("vani starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderCfg{ServiceName: "vani"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Storage ───────────────────────────────────────────────────────────────
	stores, err := buildStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise storage", "err", err)
		return 1
	}
	defer stores.close()

	if err := profilestore.Seed(ctx, stores.profiles); err != nil {
		slog.Error("failed to seed agent profiles", "err", err)
		return 1
	}
	for i := range cfg.Agents {
		if err := stores.profiles.Upsert(ctx, &cfg.Agents[i]); err != nil {
			slog.Error("failed to import configured agent", "agent_id", cfg.Agents[i].ID, "err", err)
			return 1
		}
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	liveProvider, err := reg.CreateLive(cfg.Live)
	if err != nil {
		slog.Error("failed to create live provider", "name", cfg.Live.Provider, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "live", "name", cfg.Live.Provider, "model", cfg.Live.Model)

	var analyzer analysis.Analyzer
	if cfg.Analysis.Provider != "" {
		analyzer, err = reg.CreateAnalysis(cfg.Analysis)
		if err != nil {
			slog.Error("failed to create analysis provider", "name", cfg.Analysis.Provider, "err", err)
			return 1
		}
		slog.Info("provider created", "kind", "analysis", "name", cfg.Analysis.Provider, "model", cfg.Analysis.Model)
	} else {
		slog.Warn("no analysis provider configured — sessions will end without reports")
	}

	// ── Audio ─────────────────────────────────────────────────────────────────
	// Raw PCM in on stdin, raw PCM out on stdout; logs go to stderr.
	mic := stdio.NewSource(os.Stdin)
	speaker := stdio.NewDevice(os.Stdout, stdio.WithLogger(logger))

	// ── Sessions and HTTP surface ─────────────────────────────────────────────
	factory := func(p agent.Profile) (*session.Controller, error) {
		return session.New(session.Config{
			Provider: liveProvider,
			Source:   mic,
			Device:   speaker,
			Analyzer: analyzer,
			Store:    stores.records,
			Profile:  p,
			Live:     live.Config{Model: cfg.Live.Model, Voice: cfg.Live.Voice},
		},
			session.WithLogger(logger),
			session.WithMetrics(metrics),
			session.WithMaxDuration(cfg.Session.MaxDuration()),
			session.WithSilenceThreshold(cfg.Session.SilenceTimeout()),
			session.WithGate(cfg.Audio.GateThreshold, cfg.Audio.Gain),
		)
	}
	manager := api.NewManager(factory, api.WithManagerLogger(logger))

	server := api.New(manager, stores.profiles, stores.records,
		api.WithLogger(logger),
		api.WithMetrics(metrics),
		api.WithHealth(health.New(stores.checkers...)),
	)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(ctx, old, new, stores.profiles)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg, os.Stderr)
	slog.Info("server ready — press Ctrl+C to shut down")

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if tls := cfg.Server.TLS; tls != nil {
			return server.StartTLS(cfg.Server.ListenAddr, tls.CertFile, tls.KeyFile)
		}
		return server.Start(cfg.Server.ListenAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			slog.Warn("session shutdown error", "err", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// stores bundles the persistence layer and its health checks.
type stores struct {
	records  record.Store
	profiles profilestore.Store
	checkers []health.Checker
	pool     *pgxpool.Pool
}

func (s *stores) close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// buildStores wires Postgres-backed stores when a DSN is configured and
// falls back to memory otherwise. With Postgres, records additionally get a
// memory fallback so a database outage never loses a finished session.
func buildStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	memRecords := record.NewMemory()
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("no postgres_dsn configured — profiles and records are in-memory only")
		return &stores{
			records:  memRecords,
			profiles: profilestore.NewMemory(),
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	profiles := profilestore.NewPostgres(pool)
	if err := profiles.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate agent profiles: %w", err)
	}
	pgRecords := record.NewPostgres(pool)
	if err := pgRecords.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate session records: %w", err)
	}
	slog.Info("postgres storage ready")

	return &stores{
		records:  record.NewFallback("postgres", pgRecords).AddFallback("memory", memRecords),
		profiles: profiles,
		checkers: []health.Checker{{Name: "database", Check: pool.Ping}},
		pool:     pool,
	}, nil
}

// registerBuiltinProviders wires the provider factories that ship with vani.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLive("gemini-live", func(cfg config.LiveConfig) (live.Provider, error) {
		var opts []geminilive.Option
		if cfg.Model != "" {
			opts = append(opts, geminilive.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(cfg.BaseURL))
		}
		return geminilive.New(cfg.APIKey, opts...), nil
	})

	// openai, anthropic, gemini share the any-llm pattern: optional APIKey
	// plus optional BaseURL.
	for _, providerName := range []string{"openai", "anthropic", "gemini"} {
		name := providerName
		reg.RegisterAnalysis(name, func(cfg config.AnalysisConfig) (analysis.Analyzer, error) {
			if name == "openai" && cfg.BaseURL == "" {
				// Prefer the native client with its JSON response format.
				return openaianalysis.New(cfg.APIKey, cfg.Model)
			}
			var opts []anyllmlib.Option
			if cfg.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
			}
			if cfg.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
			}
			return anyllmanalysis.New(name, cfg.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterAnalysis("ollama", func(cfg config.AnalysisConfig) (analysis.Analyzer, error) {
		var opts []anyllmlib.Option
		if cfg.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
		}
		return anyllmanalysis.New("ollama", cfg.Model, opts...)
	})
}

// applyConfigChange reacts to a reloaded config file: agent profile edits
// are pushed into the store so new sessions pick them up. Live sessions keep
// the profile they started with.
func applyConfigChange(ctx context.Context, old, new *config.Config, profiles profilestore.Store) {
	diff := config.Diff(old, new)
	if diff.LogLevelChanged {
		slog.Warn("log_level changed on disk — restart to apply", "new_level", diff.NewLogLevel)
	}
	if !diff.AgentsChanged {
		return
	}
	for _, change := range diff.AgentChanges {
		if change.Removed {
			if err := profiles.Delete(ctx, change.ID); err != nil {
				slog.Warn("failed to remove agent after reload", "agent_id", change.ID, "err", err)
			}
			continue
		}
		for i := range new.Agents {
			if new.Agents[i].ID != change.ID {
				continue
			}
			if err := profiles.Upsert(ctx, &new.Agents[i]); err != nil {
				slog.Warn("failed to apply agent after reload", "agent_id", change.ID, "err", err)
			}
		}
	}
	slog.Info("agent profiles reloaded", "changes", len(diff.AgentChanges))
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, w *os.File) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║           vani — startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "Live", cfg.Live.Provider, cfg.Live.Model)
	printProvider(w, "Analysis", cfg.Analysis.Provider, cfg.Analysis.Model)
	if cfg.Storage.PostgresDSN != "" {
		fmt.Fprintf(w, "║  Storage         : %-19s ║\n", "postgres+memory")
	} else {
		fmt.Fprintf(w, "║  Storage         : %-19s ║\n", "memory")
	}
	fmt.Fprintf(w, "║  Agents          : %-19d ║\n", len(cfg.Agents))
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w *os.File, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
