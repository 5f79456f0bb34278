// Command rebeld is the protocol node. It loads configuration, validates it,
// sets up signal handling, and starts the application in the configured
// mode (node, server, or archive).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/app"
	"github.com/alanyoungcy/mevrebels/internal/config"
	"github.com/alanyoungcy/mevrebels/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (node, server, archive)")
	encryptKey := flag.String("encrypt-key", "", "write the operator key, encrypted with operator.key_password, to this path and exit; a new key is generated when none is configured")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if *encryptKey != "" {
		if err := writeEncryptedKey(cfg, *encryptKey, logger); err != nil {
			logger.Error("encrypt key failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("rebel node starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)
	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("rebel node stopped")
}

// writeEncryptedKey encrypts the configured operator key, or a freshly
// generated one, into a key file LoadOperatorKey can read.
func writeEncryptedKey(cfg *config.Config, path string, logger *slog.Logger) error {
	if cfg.Operator.KeyPassword == "" {
		return errors.New("operator.key_password is required")
	}
	var key solana.PrivateKey
	if cfg.Operator.PrivateKey != "" {
		k, err := crypto.LoadOperatorKey(crypto.KeyConfig{RawPrivateKey: cfg.Operator.PrivateKey})
		if err != nil {
			return err
		}
		key = k
	} else {
		k, err := solana.NewRandomPrivateKey()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		key = k
	}
	blob, err := crypto.EncryptKey(key, cfg.Operator.KeyPassword)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Info("operator key written",
		slog.String("path", path),
		slog.String("public_key", key.PublicKey().String()),
	)
	return nil
}
