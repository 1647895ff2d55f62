// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
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

	"github.com/starford/mdcards/internal/api"
	"github.com/starford/mdcards/internal/apkg"
	"github.com/starford/mdcards/internal/compiler"
	"github.com/starford/mdcards/internal/deckservice"
	"github.com/starford/mdcards/internal/mapper"
	"github.com/starford/mdcards/internal/mcpserver"
	"github.com/starford/mdcards/internal/models"
	"github.com/starford/mdcards/internal/schema"
	"github.com/starford/mdcards/internal/sse"
	"github.com/starford/mdcards/internal/storage"
	"github.com/starford/mdcards/internal/watch"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{mode: ModeBuild, logOut: os.Stderr}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	if err := app.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cfg := app.config
	logger := newLogger(app.logOut, cfg.App)
	slog.SetDefault(logger)

	if cfg.Scan.Root == "" {
		return fmt.Errorf("notes directory is required")
	}

	// The model is validated before anything is scanned.
	model, err := loadModel(cfg.Model.Path)
	if err != nil {
		return err
	}

	logger.Debug("Configuration loaded",
		slog.String("mode", string(app.mode)),
		slog.String("root", cfg.Scan.Root),
		slog.String("model", model.Name),
		slog.String("output", cfg.Output.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c := newCompiler(cfg, model, logger)

	switch app.mode {
	case ModeBuild:
		return runBuild(ctx, cfg, c, logger)
	case ModeWatch:
		return runWatch(ctx, cfg, c, logger)
	case ModeServe:
		return runServe(ctx, cfg, c, logger)
	case ModeMCP:
		return runMCP(ctx, cfg, c, model, logger)
	default:
		return fmt.Errorf("unknown mode %q", app.mode)
	}
}

func newLogger(w io.Writer, cfg ApplicationConfig) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func loadModel(path string) (*schema.Model, error) {
	if path == "" {
		return schema.Default(), nil
	}
	return schema.Load(path)
}

func newCompiler(cfg *Config, model *schema.Model, logger *slog.Logger) *compiler.Compiler {
	opts := []compiler.Option{
		compiler.WithLogger(logger),
		compiler.WithWorkers(cfg.Scan.Workers),
		compiler.WithFilters(cfg.Scan.Include, cfg.Scan.Exclude),
		compiler.WithDeckRoot(cfg.Deck.RootName),
		compiler.WithFilenameDecks(cfg.Deck.IncludeFilename),
		compiler.WithMissingPolicy(cfg.Media.Policy()),
		compiler.WithVerbose(cfg.App.LogLevel <= slog.LevelDebug),
	}
	if cfg.Markdown.Render {
		opts = append(opts, compiler.WithRenderer(mapper.NewMarkdown(cfg.Markdown.Extensions)))
	}
	return compiler.New(model, opts...)
}

// packageWriter returns a publish hook writing the graph to the output path.
func packageWriter(cfg *Config, logger *slog.Logger) deckservice.PublishFunc {
	return func(ctx context.Context, g *models.Graph) error {
		if err := apkg.Write(ctx, cfg.Output.Path, g); err != nil {
			return err
		}
		logger.Info("package written",
			slog.String("path", cfg.Output.Path),
			slog.Int("notes", g.NoteCount()),
			slog.Int("decks", len(g.Decks)),
			slog.Int("assets", len(g.Assets)))
		return nil
	}
}

func runBuild(ctx context.Context, cfg *Config, c *compiler.Compiler, logger *slog.Logger) error {
	res, err := c.Compile(ctx, cfg.Scan.Root)
	if err != nil {
		return err
	}
	return packageWriter(cfg, logger)(ctx, res.Graph)
}

func newService(cfg *Config, c *compiler.Compiler, logger *slog.Logger, opts ...deckservice.Option) *deckservice.Service {
	build := func(ctx context.Context) (*compiler.Result, error) {
		return c.Compile(ctx, cfg.Scan.Root)
	}
	return deckservice.New(build, append([]deckservice.Option{deckservice.WithLogger(logger)}, opts...)...)
}

func runWatch(ctx context.Context, cfg *Config, c *compiler.Compiler, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := newService(cfg, c, logger, deckservice.WithPublish(packageWriter(cfg, logger)))
	// A failed first build is reported by the service; the next change retries.
	_, _ = svc.Rebuild(ctx)

	return watch.Run(ctx, cfg.Scan.Root, logger, func(paths []string) {
		logger.Info("change detected", slog.Int("paths", len(paths)))
		_, _ = svc.Rebuild(ctx)
	})
}

func runServe(ctx context.Context, cfg *Config, c *compiler.Compiler, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := newService(cfg, c, logger,
		deckservice.WithPublish(packageWriter(cfg, logger)),
		deckservice.OnBuild(func(st deckservice.Status) {
			broker.PublishBuild(st.Error == "", st)
		}))
	_, _ = svc.Rebuild(ctx)

	apiRouter := api.NewRouter(svc, cfg.Serve.Auth.AuthEnabled(), cfg.Serve.Auth.Token, broker)

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
		if !svc.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"building"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.Serve.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		return watch.Run(gCtx, cfg.Scan.Root, logger, func(paths []string) {
			broker.PublishChanges(paths)
			_, _ = svc.Rebuild(gCtx)
		})
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.Serve.HTTP.Address()))
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
		broker.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		cancel()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func runMCP(ctx context.Context, cfg *Config, c *compiler.Compiler, model *schema.Model, logger *slog.Logger) error {
	store, err := storage.NewFS(cfg.Scan.Root,
		storage.WithInclude(cfg.Scan.Include...),
		storage.WithExclude(cfg.Scan.Exclude...))
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	svc := newService(cfg, c, logger)
	_, _ = svc.Rebuild(ctx)

	logger.Info("MCP server starting on stdio", slog.String("root", store.Root()))
	return mcpserver.New(svc, store, model).ServeStdio()
}
