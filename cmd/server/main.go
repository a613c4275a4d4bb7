// Virtual companion chat server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/virtual-companion/internal/api"
	"github.com/ashureev/virtual-companion/internal/chatlog"
	"github.com/ashureev/virtual-companion/internal/companion"
	"github.com/ashureev/virtual-companion/internal/config"
	"github.com/ashureev/virtual-companion/internal/gateway"
	"github.com/ashureev/virtual-companion/internal/middleware"
	"github.com/ashureev/virtual-companion/internal/store"
	"github.com/ashureev/virtual-companion/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

// flagOverrides binds command-line flags that take precedence over the
// environment. Only flags the user actually set are applied.
func flagOverrides(flagSet *pflag.FlagSet) config.Option {
	port := flagSet.String("port", "", "listen port (overrides PORT)")
	statePath := flagSet.String("state-path", "", "persona state file (overrides STATE_PATH)")
	driver := flagSet.String("store", "", "store driver: file, sqlite or memory (overrides STORE_DRIVER)")
	seed := flagSet.String("seed", "", "persona seed file, JSON/JSONC or YAML (overrides PERSONA_SEED_PATH)")
	mock := flagSet.Bool("mock", false, "use the canned mock model instead of Gemini")

	return func(c *config.Config) {
		if flagSet.Changed("port") {
			c.Port = *port
		}
		if flagSet.Changed("state-path") {
			c.StatePath = *statePath
		}
		if flagSet.Changed("store") {
			c.StoreDriver = *driver
		}
		if flagSet.Changed("seed") {
			c.PersonaSeedPath = *seed
		}
		if flagSet.Changed("mock") {
			c.UseMockGateway = *mock
		}
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("companion", pflag.ContinueOnError)
	overrides := flagOverrides(flagSet)
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "store", cfg.StoreDriver, "mock_gateway", cfg.UseMockGateway)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	slog.Info("Store ready", "driver", cfg.StoreDriver)

	seed, err := store.LoadSeed(cfg.PersonaSeedPath)
	if err != nil {
		return fmt.Errorf("load persona seed: %w", err)
	}

	mgr, err := companion.NewManager(ctx, repo, seed, logger)
	if err != nil {
		return fmt.Errorf("initialize companion: %w", err)
	}

	gw, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}

	transcript, err := chatlog.New(chatlog.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Path:      cfg.ConversationLog.Path,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation log: %w", err)
	}
	defer func() {
		if closeErr := transcript.Close(); closeErr != nil {
			slog.Error("Failed to close conversation log", "error", closeErr)
		}
	}()

	uploads, err := api.NewUploadStore(cfg.UploadDir)
	if err != nil {
		return err
	}

	// Initialize handlers.
	svc := companion.NewService(mgr, gw, transcript, logger)
	handler, err := api.NewHandler(svc, uploads, api.Options{
		MaxBodyBytes:   cfg.MaxBodyBytes,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)
	if err != nil {
		return err
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	handler.RegisterRoutes(r)
	r.Handle("/static/*", http.StripPrefix("/static/", web.StaticHandler()))

	// WriteTimeout stays 0 because model calls have no upper bound by default.
	srv := &http.Server{
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ln, err := listen(cfg.Port)
	if err != nil {
		return err
	}

	// Start server.
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal.
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}

func openStore(cfg *config.Config) (store.Repository, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		repo, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize database: %w", err)
		}
		return repo, nil
	case config.StoreDriverMemory:
		slog.Warn("Memory store selected, persona state will not survive a restart")
		return store.NewMemory(), nil
	default:
		repo, err := store.NewFileStore(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("initialize state file: %w", err)
		}
		return repo, nil
	}
}

func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (gateway.Gateway, error) {
	if cfg.UseMockGateway {
		slog.Warn("Using mock model gateway")
		return gateway.NewMock(), nil
	}
	gw, err := gateway.NewGeminiClient(ctx, gateway.GeminiConfig{
		APIKey:    cfg.GeminiAPIKey,
		ModelName: cfg.GeminiModel,
		Timeout:   cfg.GatewayTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize Gemini client: %w", err)
	}
	return gw, nil
}

// listen binds the configured port and falls back to an ephemeral port when
// it is already taken.
func listen(port string) (net.Listener, error) {
	ln, err := net.Listen("tcp", ":"+port)
	if err == nil {
		return ln, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, fmt.Errorf("listen on port %s: %w", port, err)
	}

	slog.Warn("Port in use, retrying on a free port", "port", port)
	ln, err = net.Listen("tcp", ":0")
	if err != nil {
		return nil, fmt.Errorf("listen on fallback port: %w", err)
	}
	return ln, nil
}
