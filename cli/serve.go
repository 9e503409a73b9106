package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/toolbridge/mcpserver"
	bridgeotel "github.com/petal-labs/toolbridge/otel"
	"github.com/petal-labs/toolbridge/tool"
)

// Version is stamped via ldflags at build time.
var Version = "dev"

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve registered tools over MCP on stdio",
		RunE:  runServe,
	}
	cmd.Flags().String("config", "", "Path to toolbridge.yaml (default: discover)")
	cmd.Flags().String("manifest-dir", "", "Directory of tool manifests")
	cmd.Flags().String("store-path", "", "Path to SQLite store (default: ~/.toolbridge/toolbridge.db)")
	cmd.Flags().Int("max-concurrent", 0, "Max concurrent tool processes")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadMergedConfig(cmd)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	// stdout is the MCP transport; everything else goes to stderr.
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := bridgeotel.InitTracing(ctx, bridgeotel.TracingConfig{
			Endpoint: cfg.Tracing.Endpoint,
			Insecure: cfg.Tracing.Insecure,
		})
		if err != nil {
			return exitError(exitRuntime, "initializing tracing: %v", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	registry, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}

	observer, err := bridgeotel.NewInvokeObserver(
		otelapi.GetMeterProvider().Meter("toolbridge/tool"),
		otelapi.GetTracerProvider().Tracer("toolbridge/tool"),
	)
	if err != nil {
		return exitError(exitRuntime, "initializing observability: %v", err)
	}

	engine := tool.NewEngine(registry,
		tool.WithLogger(logger),
		tool.WithObserver(observer),
		tool.WithMaxConcurrent(cfg.MaxConcurrent),
	)

	server := mcpserver.New(engine,
		mcpserver.ServerInfo{Name: "toolbridge", Version: Version},
		mcpserver.WithLogger(logger),
		mcpserver.WithIO(os.Stdin, os.Stdout),
	)

	logger.Info("serving MCP on stdio", "tools", registry.Len())
	if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
		return exitError(exitRuntime, "serving: %v", err)
	}
	return nil
}

// loadMergedConfig loads toolbridge.yaml and applies flag overrides.
func loadMergedConfig(cmd *cobra.Command) (Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	if dir, _ := cmd.Flags().GetString("manifest-dir"); dir != "" {
		cfg.ManifestDir = dir
	}
	if path, _ := cmd.Flags().GetString("store-path"); path != "" {
		cfg.StorePath = path
	}
	if n, _ := cmd.Flags().GetInt("max-concurrent"); n > 0 {
		cfg.MaxConcurrent = n
	}
	return cfg, nil
}

// buildRegistry loads manifests from the manifest directory and definitions
// from the SQLite store into a fresh registry.
func buildRegistry(ctx context.Context, cfg Config, logger *slog.Logger) (*tool.Registry, error) {
	registry := tool.NewRegistry(cfg.duplicatePolicy())

	result, err := tool.LoadDirectory(cfg.ManifestDir)
	if err != nil {
		return nil, exitError(exitRuntime, "loading manifests from %s: %v", cfg.ManifestDir, err)
	}
	for _, diag := range result.Diagnostics {
		logger.Warn("manifest diagnostic", "field", diag.Field, "code", diag.Code, "error", diag.Message)
	}
	for _, manifest := range result.Manifests {
		if err := registry.RegisterManifest(manifest); err != nil {
			return nil, exitError(exitValidation, "registering manifest tools: %v", err)
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = store.Close()
	}()

	defs, err := store.List(ctx)
	if err != nil {
		return nil, exitError(exitRuntime, "listing stored tools: %v", err)
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			logger.Warn("skipping stored tool", "tool", def.Name, "error", err)
		}
	}
	return registry, nil
}

func openStore(cfg Config) (tool.Store, error) {
	if cfg.StorePath != "" {
		store, err := tool.NewSQLiteStore(cfg.StorePath)
		if err != nil {
			return nil, exitError(exitRuntime, "opening store: %v", err)
		}
		return store, nil
	}
	store, err := tool.NewDefaultSQLiteStore()
	if err != nil {
		return nil, exitError(exitRuntime, "opening store: %v", err)
	}
	return store, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
