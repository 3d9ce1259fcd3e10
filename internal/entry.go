// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/ntoes/internal/api"
	"github.com/starford/ntoes/internal/engine"
	"github.com/starford/ntoes/internal/index"
	"github.com/starford/ntoes/internal/journal"
	"github.com/starford/ntoes/internal/mcpserver"
	"github.com/starford/ntoes/internal/models"
	"github.com/starford/ntoes/internal/noteservice"
	"github.com/starford/ntoes/internal/sse"
	"github.com/starford/ntoes/internal/storage"
	"github.com/starford/ntoes/internal/syncer"
	pkgconfig "github.com/starford/ntoes/pkg/config"
)

// readyResponse is the body of /health/ready.
type readyResponse struct {
	Status   string          `json:"status"`
	LastScan *models.ScanRun `json:"last_scan,omitempty"`
}

// components is everything built from the configuration.
type components struct {
	logger  *slog.Logger
	journal *journal.DB
	broker  *sse.Broker
	engine  *engine.Engine
	svc     *noteservice.Service
	logFile io.Closer
}

func (c *components) close() {
	c.broker.Close()
	if err := c.engine.Shutdown(); err != nil {
		c.logger.Error("engine shutdown error", slog.String("error", err.Error()))
	}
	if err := c.journal.Close(); err != nil {
		c.logger.Error("journal close error", slog.String("error", err.Error()))
	}
	if c.logFile != nil {
		_ = c.logFile.Close()
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger. With log.file set, records also go to a
// size-rotated file.
func newLogger(cfg *Config, out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer
	if cfg.Log.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}
		out = io.MultiWriter(out, lj)
		closer = lj
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	return logger, closer
}

func (a *application) build() (*components, error) {
	cfg := a.config

	logger, logFile := newLogger(cfg, a.logOutput)
	slog.SetDefault(logger)

	baseDir, err := engine.PrepareBaseDir(cfg.Notes.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("notes dir: %w", err)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("base_dir", baseDir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("sync_enabled", cfg.Sync.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := journal.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}
	if cfg.SQLite.Retention > 0 {
		if n, err := db.Prune(time.Now().Add(-cfg.SQLite.Retention)); err != nil {
			logger.Warn("journal prune failed", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("journal pruned", slog.Int64("rows", n))
		}
	}

	store := storage.NewFS(cfg.Notes.Extension)
	broker := sse.NewBroker(cfg.Surface.AlwaysObserved)

	gitSync := syncer.New(
		syncer.GitRunner{Binary: cfg.Sync.GitBinary, Timeout: cfg.Sync.Timeout},
		syncer.Options{LocalMessage: cfg.Sync.LocalMessage, ConflictMessage: cfg.Sync.ConflictMessage},
		logger,
	)

	eng := engine.New(engine.Config{
		BaseDir:      baseDir,
		Extension:    cfg.Notes.Extension,
		ScanInterval: cfg.Scan.Interval,
		SyncInterval: cfg.Sync.Interval,
		SyncEnabled:  cfg.Sync.Enabled,
		Watch:        cfg.Scan.Watch,
		Debounce:     cfg.Scan.Debounce,
	}, engine.Deps{
		Index:           index.New(store),
		Syncer:          gitSync,
		Journal:         db,
		Surface:         broker,
		Logger:          logger,
		OnBaseDirChange: a.persistBaseDir,
	})

	return &components{
		logger:  logger,
		journal: db,
		broker:  broker,
		engine:  eng,
		svc:     noteservice.NewService(eng, store, db, cfg.Notes.Extension, logger),
		logFile: logFile,
	}, nil
}

// persistBaseDir writes a new base directory back to the config file, when
// the configuration came from one.
func (a *application) persistBaseDir(dir string) error {
	if a.configPath == "" {
		return nil
	}
	a.config.Notes.BaseDir = dir
	return pkgconfig.Save(a.configPath, a.config)
}

// Run starts the HTTP server and the background engine and blocks until a
// shutdown signal arrives or ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := app.build()
	if err != nil {
		return err
	}
	defer c.close()

	cfg := app.config
	logger := c.logger

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

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
		if info, err := os.Stat(c.engine.BaseDirectory()); err != nil || !info.IsDir() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"notes directory unavailable"}`))
			return
		}
		last, err := c.journal.LastScan()
		if err != nil {
			c.logger.Warn("ready: read last scan", "error", err)
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(readyResponse{Status: "ok", LastScan: last})
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	c.engine.Start(gCtx)

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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Open SSE streams end when the broker closes.
		c.broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return c.engine.Shutdown()
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout with the engine running in the
// background. Logs go to stderr unless WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	c, err := app.build()
	if err != nil {
		return err
	}
	defer c.close()

	c.engine.Start(ctx)
	c.logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.svc).ServeStdio()
}

// Exec builds the application without starting background work, runs fn and
// tears everything down. CLI one-shot commands use it.
func Exec(ctx context.Context, fn func(ctx context.Context, svc *noteservice.Service) error, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	c, err := app.build()
	if err != nil {
		return err
	}
	defer c.close()
	return fn(ctx, c.svc)
}
