package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"harvest-deck/internal/app"
	"harvest-deck/internal/config"
)

func main() {
	// Flags passed by the Stream Deck host.
	port := flag.Int("port", 0, "Local websocket port of the Stream Deck host")
	pluginUUID := flag.String("pluginUUID", "", "Plugin instance UUID used for registration")
	registerEvent := flag.String("registerEvent", "", "Event name to register the plugin with")
	info := flag.String("info", "", "Host and plugin information as JSON")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	// Config
	cfg, err := config.Load()

	// Logger. stdout is not ours on every platform, so log to stderr.
	level := slog.LevelInfo
	if err == nil {
		_ = level.UnmarshalText([]byte(cfg.Log.Level))
	}
	if *verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port == 0 || *pluginUUID == "" || *registerEvent == "" {
		logger.Error("missing launch parameters", slog.Int("port", *port),
			slog.String("pluginUUID", *pluginUUID), slog.String("registerEvent", *registerEvent))
		os.Exit(2)
	}

	// Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, logger, cfg, app.Launch{
		Port:          *port,
		PluginUUID:    *pluginUUID,
		RegisterEvent: *registerEvent,
		Info:          *info,
	})
	if err != nil {
		logger.Error("failed to initialize app", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("plugin starting", slog.Int("port", *port), slog.Duration("interval", cfg.Poll.Interval))
	if err := application.Run(ctx); err != nil {
		logger.Error("plugin stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutting down")
}
