// Package main is the entry point for the shibbolizer server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/shibbolizer/internal/auth"
	"github.com/vyrodovalexey/shibbolizer/internal/config"
	"github.com/vyrodovalexey/shibbolizer/internal/server"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	var code int

	cmd := newRootCmd(&code)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		return 1
	}
	return code
}

func newRootCmd(code *int) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "shibbolizer",
		Short: "Authenticate requests from identity headers set by an SSO proxy",
		Long: `Run an HTTP server that trusts the identity headers asserted by a
Shibboleth (or similar) SSO reverse proxy and turns them into an
authenticated identity with claims.

Configuration is read from a YAML file (--config, APP_CONFIG_FILE or
shibbolizer.yaml) and APP_-prefixed environment variables.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Run: func(_ *cobra.Command, _ []string) {
			*code = run(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")

	rootCmd.AddCommand(newValidateCmd(&configPath))

	return rootCmd
}

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			authenticator, err := createAuthenticator(cfg, zap.NewNop())
			if err != nil {
				return err
			}

			opts := authenticator.Options()
			out := cmd.OutOrStdout()
			if cfg.File != "" {
				_, _ = fmt.Fprintf(out, "config file: %s\n", cfg.File)
			}
			_, _ = fmt.Fprintf(out, "username header: %s\n", opts.UsernameHeader)
			_, _ = fmt.Fprintf(out, "claim headers: %d, multi claim headers: %d\n",
				len(opts.ClaimHeaders), len(opts.MultiClaimHeaders))
			_, _ = fmt.Fprintf(out, "issuer: %s, scheme: %s\n", opts.Issuer, opts.Scheme)
			_, _ = fmt.Fprintln(out, "configuration OK")
			return nil
		},
	}
}

func run(configPath string) int {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		// Use a basic logger for startup errors
		basicLogger, _ := zap.NewProduction()
		basicLogger.Error("failed to load configuration", zap.Error(err))
		return 1
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Error("failed to initialize logger", zap.Error(err))
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.String("config_file", cfg.File),
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.Bool("trust_proxy_headers", cfg.TrustProxyHeaders),
		zap.Bool("watch_config", cfg.WatchConfig),
		zap.Bool("challenge", cfg.Challenge),
	)

	authenticator, err := createAuthenticator(cfg, logger)
	if err != nil {
		logger.Error("failed to create authenticator", zap.Error(err))
		return 1
	}
	reloadable, err := auth.NewReloadableAuthenticator(authenticator)
	if err != nil {
		logger.Error("failed to create authenticator", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.WatchConfig {
		watcher, err := config.NewWatcher(cfg.File, logger)
		if err != nil {
			logger.Error("failed to watch config file", zap.Error(err))
			return 1
		}
		go func() {
			_ = watcher.Run(ctx, reloadAuthenticator(cfg, reloadable, logger))
		}()
	}

	srv := server.New(cfg, logger, reloadable)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return 1
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Create shutdown context with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		// Graceful shutdown
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return 1
		}
	}

	logger.Info("server stopped")
	return 0
}

// reloadAuthenticator returns the config watcher callback. Only the header
// settings take effect without a restart; the previous authenticator stays
// in place when the new settings cannot build one.
func reloadAuthenticator(
	current *config.Config,
	reloadable *auth.ReloadableAuthenticator,
	logger *zap.Logger,
) func(*config.Config) {
	return func(next *config.Config) {
		authenticator, err := createAuthenticator(next, logger)
		if err != nil {
			logger.Error("reloaded configuration rejected, keeping previous authenticator", zap.Error(err))
			return
		}
		reloadable.Swap(authenticator)

		if next.ServerPort != current.ServerPort ||
			next.Challenge != current.Challenge ||
			next.MetricsEnabled != current.MetricsEnabled ||
			next.TrustProxyHeaders != current.TrustProxyHeaders {
			logger.Warn("server settings changed, restart to apply them")
		}
	}
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}

// createAuthenticator builds the header authenticator from the config.
func createAuthenticator(
	cfg *config.Config,
	logger *zap.Logger,
) (*auth.HeaderAuthenticator, error) {
	opts, err := cfg.HeaderOptions()
	if err != nil {
		return nil, fmt.Errorf("building header options: %w", err)
	}

	authenticator, err := auth.NewHeaderAuthenticator(opts)
	if err != nil {
		return nil, fmt.Errorf("creating header authenticator: %w", err)
	}

	effective := authenticator.Options()
	logger.Info("header authentication configured",
		zap.String("username_header", effective.UsernameHeader),
		zap.Strings("claim_headers", effective.ClaimHeaders),
		zap.Int("multi_claim_headers", len(effective.MultiClaimHeaders)),
		zap.String("issuer", effective.Issuer),
		zap.String("scheme", effective.Scheme),
	)

	return authenticator, nil
}
