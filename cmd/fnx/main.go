// Command fnx is the hold-to-talk dictation daemon: hold the hotkey, speak,
// release, and the transcript is typed into the focused application.
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
	"time"

	"golang.design/x/hotkey/mainthread"

	"github.com/MrWong99/fnx/internal/app"
	"github.com/MrWong99/fnx/internal/config"
	"github.com/MrWong99/fnx/internal/observe"
	"github.com/MrWong99/fnx/pkg/provider/stt"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// The chord hotkey backend must register from the OS main thread on
	// macOS, so the whole program runs under mainthread.
	code := 0
	mainthread.Init(func() { code = run() })
	os.Exit(code)
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	ruleRef := flag.String("rule", "", `active rule name or ID for this run ("none" clears it)`)
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fnx: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fnx: %v\n", err)
		}
		return 1
	}
	if *ruleRef != "" {
		cfg.Rules.Active = *ruleRef
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var levels slog.LevelVar
	levels.Set(app.LogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &levels})))

	slog.Info("fnx starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "fnx",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Platform ──────────────────────────────────────────────────────────────
	platform, err := buildPlatform(cfg)
	if err != nil {
		slog.Error("failed to initialise platform", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, platform, app.WithLevelVar(&levels))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.Reload)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		_ = application.Shutdown(context.Background())
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           fnx startup summary         ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("STT fallback", cfg.Providers.STTFallback.Name, cfg.Providers.STTFallback.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printRow("Hotkey", string(cfg.Hotkey.Backend)+" / "+cfg.Hotkey.Key)
	if cfg.Usage.Tier != "" {
		printRow("Tier", string(cfg.Usage.Tier))
	}
	printRow("Daily limit", fmt.Sprint(cfg.Usage.DailyLimit))
	rule := cfg.Rules.Active
	if rule == "" {
		rule = "(stored selection)"
	}
	printRow("Rule", rule)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// unavailableSTT keeps the daemon running when the transcriber cannot be
// built; every session then fails with a clear error instead.
func unavailableSTT(name string, err error) stt.Provider {
	slog.Error("speech-to-text backend unavailable, sessions will fail until fixed", "name", name, "err", err)
	return stt.Unavailable{Reason: err}
}
