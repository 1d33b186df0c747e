package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docreg/internal/config"
	"docreg/internal/storage/sqlite"
)

var version = "dev"

// app carries state shared by every subcommand
type app struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:          "docreg",
		Short:        "User self-registration with administrator review",
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ./config.yaml, ./configs/config.yaml, /etc/docreg/config.yaml)")
	root.PersistentFlags().String("db", "", "path to the SQLite database")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	// Bind flags to viper
	_ = a.v.BindPFlag("database.path", root.PersistentFlags().Lookup("db"))
	_ = a.v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newRequestsCmd(a),
	)
	return root
}

func (a *app) loadConfig() (*config.Config, error) {
	return config.LoadFrom(a.v, a.cfgFile)
}

func (a *app) openDB(cfg *config.Config, logger *slog.Logger) (*sqlite.DB, error) {
	db, err := sqlite.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Debug("database opened", "path", cfg.Database.Path)
	return db, nil
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
