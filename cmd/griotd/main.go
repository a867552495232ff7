// Command griotd is the main entry point for the Griot storytelling server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/griotlabs/griot/internal/a2a"
	"github.com/griotlabs/griot/internal/agent"
	"github.com/griotlabs/griot/internal/config"
	"github.com/griotlabs/griot/internal/gateway"
	"github.com/griotlabs/griot/internal/health"
	"github.com/griotlabs/griot/internal/media"
	"github.com/griotlabs/griot/internal/observe"
	"github.com/griotlabs/griot/internal/orchestrator"
	"github.com/griotlabs/griot/internal/schema"
	"github.com/griotlabs/griot/internal/session"
	"github.com/griotlabs/griot/internal/stream"
	"github.com/griotlabs/griot/pkg/memory"
	"github.com/griotlabs/griot/pkg/memory/inmem"
	"github.com/griotlabs/griot/pkg/memory/postgres"
	"github.com/griotlabs/griot/pkg/provider/image"
	"github.com/griotlabs/griot/pkg/provider/image/imagen"
	"github.com/griotlabs/griot/pkg/provider/live"
	geminilive "github.com/griotlabs/griot/pkg/provider/live/gemini"
	"github.com/griotlabs/griot/pkg/provider/text"
	textgemini "github.com/griotlabs/griot/pkg/provider/text/gemini"
	textopenai "github.com/griotlabs/griot/pkg/provider/text/openai"
	"github.com/griotlabs/griot/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "griotd: config file %q not found; create one or pass -config\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "griotd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("griot starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "griot",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		octx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(octx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	liveProvider, err := reg.CreateLive(ctx, cfg.Model)
	if err != nil {
		slog.Error("failed to create live provider", "err", err)
		return 1
	}
	textProvider, err := reg.CreateText(ctx, cfg.Model)
	if err != nil {
		slog.Error("failed to create text provider", "err", err)
		return 1
	}
	imageProvider, err := reg.CreateImage(ctx, cfg.Model)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("no image provider for this backend; scene illustration disabled",
			"provider", cfg.Model.Provider)
		imageProvider = nil
	} else if err != nil {
		slog.Error("failed to create image provider", "err", err)
		return 1
	}

	// ── Session store ─────────────────────────────────────────────────────────
	var store memory.Store
	if cfg.Store.PostgresDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect session store", "err", err)
			return 1
		}
		slog.Info("session store connected", "backend", "postgres")
	} else {
		store = inmem.NewStore()
		slog.Info("session store created", "backend", "inmem")
	}
	defer store.Close()

	// ── Sub-agents and dispatcher ─────────────────────────────────────────────
	uploader := &media.Memory{Bucket: cfg.Store.MediaBucket}
	dispatcher, err := buildDispatcher(cfg, textProvider, imageProvider, uploader)
	if err != nil {
		slog.Error("failed to build dispatcher", "err", err)
		return 1
	}

	// ── Gateway ───────────────────────────────────────────────────────────────
	factory := func(sessionID string, out chan types.ServerMessage) (gateway.ConversationHandler, error) {
		controller := stream.NewController(out, sessionID, logger)
		manager := session.NewManager(sessionID, store, logger)
		orch := orchestrator.NewOrchestrator(sessionID, liveProvider, dispatcher, manager, controller,
			orchestrator.Config{
				Model: cfg.Model.LiveModel,
				Voice: cfg.Model.Voice,
			}, logger)
		if err := orch.Start(ctx); err != nil {
			return nil, err
		}
		return orch, nil
	}

	gw := gateway.NewServer(factory,
		gateway.WithQueueSize(cfg.Stream.HighWatermark),
		gateway.WithMaxSessions(cfg.Session.MaxConcurrent),
		gateway.WithLogger(logger),
	)

	// ── HTTP routes ───────────────────────────────────────────────────────────
	healthHandler := health.New(
		health.Checker{Name: "store", Check: func(ctx context.Context) error {
			_, err := store.GetSession(ctx, "healthcheck")
			if errors.Is(err, memory.ErrNotFound) {
				return nil
			}
			return err
		}},
		health.Checker{Name: "model", Check: func(context.Context) error {
			if cfg.Model.APIKey == "" && cfg.Model.ProjectID == "" {
				return errors.New("no model credentials configured")
			}
			return nil
		}},
	)
	healthHandler.AddStats(
		health.StatsSource{Name: "sessions", Collect: func() any {
			return map[string]int{
				"active": gw.SessionCount(),
				"limit":  cfg.Session.MaxConcurrent,
			}
		}},
		health.StatsSource{Name: "breakers", Collect: func() any {
			return dispatcher.BreakerStatus()
		}},
	)

	mux := http.NewServeMux()
	gw.Register(mux)

	// Health and metrics share the mux with the gateway but go through the
	// HTTP middleware; the WebSocket route stays unwrapped so the hijack
	// still works.
	obs := http.NewServeMux()
	healthHandler.Register(obs)
	obs.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", observe.Middleware(observe.DefaultMetrics())(obs))

	printStartupSummary(cfg)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("server ready, press Ctrl+C to shut down")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
		srv.Close()
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the model backends that ship with Griot into
// reg. The duplex live session always runs on Gemini Live; the provider
// setting selects the backend for the text sub-agents.
func registerBuiltinProviders(reg *config.Registry) {
	liveFactory := func(_ context.Context, mc config.ModelConfig) (live.Provider, error) {
		return geminilive.New(mc.APIKey), nil
	}
	reg.RegisterLive(config.ProviderGemini, liveFactory)
	reg.RegisterLive(config.ProviderOpenAI, liveFactory)

	reg.RegisterText(config.ProviderGemini, func(ctx context.Context, mc config.ModelConfig) (text.Provider, error) {
		return textgemini.New(ctx, textgemini.Config{
			ProjectID: mc.ProjectID,
			Region:    mc.Region,
			APIKey:    mc.APIKey,
			Model:     mc.TextModel,
		})
	})
	reg.RegisterText(config.ProviderOpenAI, func(_ context.Context, mc config.ModelConfig) (text.Provider, error) {
		return textopenai.New(mc.APIKey, mc.TextModel)
	})

	reg.RegisterImage(config.ProviderGemini, func(ctx context.Context, mc config.ModelConfig) (image.Provider, error) {
		return imagen.New(ctx, imagen.Config{
			ProjectID: mc.ProjectID,
			Region:    mc.Region,
			APIKey:    mc.APIKey,
			Model:     mc.ImageModel,
		})
	})
}

// buildDispatcher assembles the sub-agents behind the A2A router.
func buildDispatcher(cfg *config.Config, textProvider text.Provider, imageProvider image.Provider, uploader media.Uploader) (*agent.Dispatcher, error) {
	logger := slog.Default()
	router := a2a.NewRouter(schema.Default())

	story := agent.NewStoryAgent(textProvider, logger)
	riddle := agent.NewRiddleAgent(textProvider, logger)
	cultural := agent.NewCulturalValidator(textProvider,
		agent.WithThresholds(cfg.Agents.CulturalConfidenceThreshold, cfg.Agents.CulturalRejectThreshold),
	)
	visual := agent.NewVisualAgent(imageProvider, uploader, logger)

	timeout := time.Duration(cfg.Agents.TimeoutSeconds) * time.Second
	return agent.NewDispatcher(router, story, riddle, cultural, visual,
		agent.WithTimeouts(timeout, timeout, 30*time.Second),
	)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Griot · startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Provider", string(cfg.Model.Provider))
	printRow("Live model", cfg.Model.LiveModel)
	printRow("Text model", cfg.Model.TextModel)
	printRow("Image model", cfg.Model.ImageModel)
	if cfg.Store.PostgresDSN != "" {
		printRow("Store", "postgres")
	} else {
		printRow("Store", "inmem")
	}
	printRow("Sessions max", fmt.Sprintf("%d", cfg.Session.MaxConcurrent))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(name, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
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
