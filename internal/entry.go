// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/verho/replayd/internal/api"
	"github.com/verho/replayd/internal/history"
	"github.com/verho/replayd/internal/hook"
	"github.com/verho/replayd/internal/hostinput"
	"github.com/verho/replayd/internal/mcpserver"
	"github.com/verho/replayd/internal/player"
	"github.com/verho/replayd/internal/recorder"
	"github.com/verho/replayd/internal/registry"
	"github.com/verho/replayd/internal/simulate"
	"github.com/verho/replayd/internal/sse"
	"github.com/verho/replayd/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. The MCP stdio transport owns
	// stdout, so logs go to stderr in that mode.
	logOut := os.Stdout
	if app.mcpStdio {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_path", cfg.Data.Path),
		slog.String("history_path", cfg.History.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize the collection store.
	provider, err := store.NewJSONFile(cfg.Data.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	// Initialize the run-history database.
	hist, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	defer hist.Close()

	// Host surfaces. The suppressor is shared between the injector and
	// the capture hook so the engine's own input is never recorded.
	sup := &hostinput.Suppressor{}
	backend := app.backend
	if backend == nil {
		backend = hostinput.NewRobotgo()
	}
	source := app.source
	if source == nil {
		source = hook.NewGohook(sup)
	}
	sim := simulate.New(backend, sup)
	displays := registry.DisplaysFunc(backend.Displays)

	// Core engine services.
	targets := registry.NewTargetService(provider, sim, displays, logger)
	macros := registry.NewMacroService(provider, logger)
	rec := recorder.New(targets, macros, source, displays, logger)
	pl := player.New(targets, sim, displays, historySink(hist), logger)

	// MCP stdio mode replaces the HTTP surface entirely.
	if app.mcpStdio {
		logger.Info("Starting MCP stdio server")
		return mcpserver.New(targets, macros, pl).ServeStdio()
	}

	// SSE broker with a throttled engine-state summary.
	broker := sse.NewBroker(2*time.Second, func() any {
		return map[string]any{
			"recording": rec.State(),
			"playback":  pl.State(),
		}
	})
	defer broker.Close()

	// Forward playback progress to SSE clients.
	playSub := pl.Subscribe(func(ev player.Event) {
		broker.PublishEngineEvent("playback."+string(ev.Type), ev)
	})
	defer playSub.Close()

	// Global hotkeys.
	if acc := cfg.Hotkeys.RecordToggle; acc != "" {
		sub, err := source.RegisterHotkey(acc, func() {
			if rec.State().Active {
				if res, err := rec.Stop(); err == nil {
					broker.PublishEngineEvent("recording.stopped", map[string]any{
						"macro_id": res.Macro.ID,
						"steps":    len(res.Macro.Steps),
						"empty":    res.Empty,
					})
				}
				return
			}
			if state, err := rec.Start(recorder.StartOptions{}); err == nil {
				broker.PublishEngineEvent("recording.started", state)
			}
		})
		if err != nil {
			logger.Warn("record hotkey registration failed",
				slog.String("accelerator", acc), slog.String("error", err.Error()))
		} else {
			defer sub.Close()
		}
	}
	if acc := cfg.Hotkeys.Cancel; acc != "" {
		sub, err := source.RegisterHotkey(acc, func() {
			if err := rec.Cancel(); err == nil {
				broker.PublishEngineEvent("recording.cancelled", map[string]string{})
			}
			_ = pl.Stop()
		})
		if err != nil {
			logger.Warn("cancel hotkey registration failed",
				slog.String("accelerator", acc), slog.String("error", err.Error()))
		} else {
			defer sub.Close()
		}
	}

	// Build API handler and router.
	h := api.NewHandler(targets, macros, rec, pl, hist, displays, broker)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Pump the global input hook when the source has a run loop (the
	// real gohook source does; test fakes do not).
	if runner, ok := source.(interface{ Run(context.Context) error }); ok {
		g.Go(func() error {
			return runner.Run(gCtx)
		})
	}

	// Watch the data directory so external edits reload the collections.
	g.Go(func() error {
		return store.Watch(gCtx, provider, logger, func(collection string) {
			switch collection {
			case store.TargetsCollection:
				if err := targets.Reload(); err != nil {
					logger.Warn("targets reload failed", slog.String("error", err.Error()))
					return
				}
				broker.PublishEngineEvent("target.reloaded", map[string]string{})
			case store.MacrosCollection:
				if err := macros.Reload(); err != nil {
					logger.Warn("macros reload failed", slog.String("error", err.Error()))
					return
				}
				broker.PublishEngineEvent("macro.reloaded", map[string]string{})
			}
		})
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// A live playback must not outlast the process with a held
		// button or key.
		_ = pl.Stop()
		_ = rec.Cancel()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// historySink bridges finished playback runs into the history store.
func historySink(db *history.DB) player.RunSink {
	return player.RunSinkFunc(func(r player.Run) error {
		return db.RecordRun(history.Run{
			MacroID:       r.MacroID,
			MacroName:     r.MacroName,
			StartedAt:     r.StartedAt,
			FinishedAt:    r.FinishedAt,
			Iterations:    r.Iterations,
			StepsExecuted: r.StepsExecuted,
			Outcome:       r.Outcome,
			Error:         r.Error,
		})
	})
}
