package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"kalshi-edge/config"
	"kalshi-edge/internal/adapters/kalshi"
	"kalshi-edge/internal/adapters/oddsapi"
	"kalshi-edge/internal/adapters/storage"
)

var (
	flagConfig  string
	flagVerbose bool
	flagFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "kalshi-edge",
	Short:         "Prediction-market scanner and trading bot",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config/config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "set log level to debug")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "log-format", "", "log format: text|json (overrides config)")

	rootCmd.AddCommand(syncMarketsCmd, syncOddsCmd, scanCmd, runCmd, detailCmd, executeCmd, showCmd, runnerCmd)
}

// loadConfig reads the config and installs the default logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, err
	}
	if flagVerbose {
		cfg.Log.Level = "debug"
	}
	if flagFormat != "" {
		cfg.Log.Format = flagFormat
	}

	logger := setupLogger(cfg.Log)
	return cfg, logger, nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// newExchange builds the exchange client, signed when credentials are
// configured.
func newExchange(cfg *config.Config, logger *slog.Logger) (*kalshi.Client, error) {
	var signer *kalshi.Signer
	if cfg.Exchange.Configured() {
		var err error
		signer, err = kalshi.NewSigner(cfg.Exchange.APIKeyID, cfg.Exchange.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("exchange credentials: %w", err)
		}
	}
	return kalshi.NewClient(cfg.Exchange.BaseURL, signer, logger), nil
}

func newOdds(cfg *config.Config, logger *slog.Logger) *oddsapi.Client {
	return oddsapi.NewClient(cfg.OddsAPI, logger)
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	store, err := storage.New(cfg.Storage.DSN, cfg.Storage.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}
