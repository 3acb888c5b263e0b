// Jarvis-tools is the tool orchestrator process: it owns the tool
// registry (email, calendar, lights, notifications) and runs the
// Google OAuth2 flow whose redirect lands on its /oauth2/callback
// endpoint. The assistant process (jarvis) talks to it over HTTP.
//
// Usage:
//
//	jarvis-tools serve       Start the orchestrator server
//	jarvis-tools auth        Run the Google authorization flow
//	jarvis-tools version     Print version and build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql

	"github.com/voxmachina/jarvis/internal/buildinfo"
	"github.com/voxmachina/jarvis/internal/calendar"
	"github.com/voxmachina/jarvis/internal/config"
	"github.com/voxmachina/jarvis/internal/gmail"
	"github.com/voxmachina/jarvis/internal/googleauth"
	"github.com/voxmachina/jarvis/internal/hue"
	"github.com/voxmachina/jarvis/internal/notify"
	"github.com/voxmachina/jarvis/internal/oauthcb"
	"github.com/voxmachina/jarvis/internal/orchestrator"
	"github.com/voxmachina/jarvis/internal/tools"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "auth":
		return runAuth(ctx, stdout, configPath)
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Jarvis Tools - Tool Orchestrator")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: jarvis-tools [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the orchestrator server")
	fmt.Fprintln(w, "  auth         Run the Google authorization flow against a running server")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Jarvis tool orchestrator", "version", buildinfo.Version, "commit", buildinfo.GitCommit)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Orchestrator.Listen.Port)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	registry := tools.NewRegistry(logger)
	coord := oauthcb.New(logger)

	// --- Notifications ---
	// The MQTT publisher feeds immediate notifications and fired
	// reminders to subscribed devices. Without a broker configured the
	// notification family stays reserved.
	var publisher *notify.Publisher
	var reminders *notify.Reminders
	if cfg.MQTT.Broker != "" {
		publisher = notify.NewPublisher(cfg.MQTT, logger)
		if err := publisher.Start(ctx); err != nil {
			return fmt.Errorf("start MQTT publisher: %w", err)
		}
		reminders = notify.NewReminders(publisher.Notify, logger)
		registry.RegisterNames("Notification", notify.NewHandler(publisher.Notify, reminders, logger), notify.ToolNames...)
	} else {
		logger.Warn("mqtt.broker not configured - notification tools unavailable")
		registry.RegisterNames("Notification", nil, notify.ToolNames...)
	}

	// --- Lights ---
	if cfg.Hue.BridgeURL != "" && cfg.Hue.Username != "" {
		registry.RegisterPrefix("hue_", "Hue", hue.NewHandler(hue.NewClient(cfg.Hue, logger), logger))
	} else {
		logger.Warn("hue bridge not configured - light tools unavailable")
		registry.RegisterPrefix("hue_", "Hue", nil)
	}

	// --- Google families ---
	// Reserved until the OAuth flow completes; the model never sees
	// them before then, but direct calls get a readable error.
	registry.RegisterPrefix("gmail_", "Gmail", nil)
	registry.RegisterPrefix("calendar_", "Calendar", nil)

	tokenStore, err := googleauth.NewTokenStore(filepath.Join(cfg.DataDir, "jarvis.db"))
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}
	defer tokenStore.Close()

	server := orchestrator.NewServer(cfg.Orchestrator.Listen.Address, cfg.Orchestrator.Listen.Port, registry, coord, logger)
	server.SetAuthHooks(orchestrator.AuthHooks{
		Init: func(context.Context) (*googleauth.Manager, error) {
			return googleauth.NewManager(cfg.Google, tokenStore, coord, cfg.OAuthTimeout(), logger)
		},
		OnAuthenticated: func(ctx context.Context, m *googleauth.Manager) error {
			registry.RegisterPrefix("gmail_", "Gmail", gmail.NewHandler(gmail.NewClient(cfg.Google, m, logger), logger))
			registry.RegisterPrefix("calendar_", "Calendar", calendar.NewHandler(calendar.NewClient(cfg.Google, m.TokenSource(ctx), logger), logger))
			logger.Info("google tools enabled", "tools", registry.Count())
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if reminders != nil {
		reminders.Stop()
	}
	if publisher != nil {
		if err := publisher.Stop(shutdownCtx); err != nil {
			logger.Warn("MQTT shutdown failed", "error", err)
		}
	}
	return server.Shutdown(shutdownCtx)
}

// runAuth drives the authorization flow against a running orchestrator
// and prints the resulting status. The consent URL appears in the
// server's log (and as a QR code at /auth/qr).
func runAuth(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(io.Discard, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// The consent flow can take minutes; outlive the usual RPC timeout.
	orchCfg := cfg.Orchestrator
	orchCfg.TimeoutSec = cfg.Assistant.OAuthTimeoutSec + 30

	client := orchestrator.NewClient(orchCfg, logger)
	if err := client.InitAuth(ctx); err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	fmt.Fprintf(stdout, "Waiting for Google authorization (consent URL in server log, QR at %s/auth/qr)...\n", cfg.Orchestrator.URL)

	authed, err := client.AuthGoogle(ctx)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	if !authed {
		return fmt.Errorf("authorization did not complete")
	}

	status, err := client.GetAuthStatus(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	out, _ := json.MarshalIndent(status, "", "  ")
	fmt.Fprintf(stdout, "Authorized.\n%s\n", out)
	return nil
}
