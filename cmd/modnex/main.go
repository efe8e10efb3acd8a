package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/modnex/modnex/internal/bot"
	"github.com/modnex/modnex/internal/config"
	"github.com/modnex/modnex/internal/modules"
)

// Version information - set at build time via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "modnex",
		Short:         "Modular IRC bot with hot-reloadable script modules",
		RunE:          runBot,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().StringP("config", "c", "./config.yaml", "path to the configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("modnex version %s\n", version)
			fmt.Printf("Built: %s\n", buildDate)
			fmt.Printf("Commit: %s\n", gitCommit)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	logger.SetLevel(parseLevel(cfg.LogLevel))

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	b := bot.New(cfg, logger)
	if err := b.Register(modules.Admin()); err != nil {
		return err
	}
	for _, name := range cfg.Modules {
		if err := b.Load(name); err != nil {
			logger.Error("could not load module", "module", name, "err", err)
		}
	}

	var watcher *bot.Watcher
	if len(cfg.Scripts) > 0 {
		watcher, err = bot.NewWatcher(b)
		if err != nil {
			return fmt.Errorf("start script watcher: %w", err)
		}
		defer watcher.Close()
	}
	for _, script := range cfg.Scripts {
		m, err := b.LoadScript(script)
		if err != nil {
			logger.Error("could not load script", "script", script, "err", err)
			continue
		}
		if err := watcher.Watch(script, m.Name); err != nil {
			logger.Warn("could not watch script", "script", script, "err", err)
		}
	}

	logger.Info("starting", "server", cfg.Server, "port", cfg.Port, "nick", cfg.Nick)
	b.Run()
	return nil
}

func parseLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
