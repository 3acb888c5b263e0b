// Jarvis is a personal assistant backed by a local language model.
//
// This binary is the assistant process: it owns conversation state and
// the chat API, and reaches the tool orchestrator (jarvis-tools) over
// HTTP for everything with side effects. Configuration is loaded from
// a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	jarvis serve             Start the assistant API server
//	jarvis ask <question>    Ask a single question (for testing)
//	jarvis version           Print version and build information
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
	"strings"
	"syscall"
	"time"

	"github.com/voxmachina/jarvis/internal/api"
	"github.com/voxmachina/jarvis/internal/assistant"
	"github.com/voxmachina/jarvis/internal/buildinfo"
	"github.com/voxmachina/jarvis/internal/config"
	"github.com/voxmachina/jarvis/internal/llm"
	"github.com/voxmachina/jarvis/internal/orchestrator"
	"github.com/voxmachina/jarvis/internal/speech"
)

// main constructs the OS-level environment and delegates to [run] so
// the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Parse arguments by hand. The flag package relies on global state
	// that interferes with calling run() concurrently from tests, and
	// the surface here is small.
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: jarvis ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Jarvis - Personal Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: jarvis [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the assistant API server")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	return nil
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
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

func systemPrompt(cfg *config.Config) (string, error) {
	if cfg.Assistant.SystemPromptFile == "" {
		return assistant.DefaultSystemPrompt, nil
	}
	data, err := os.ReadFile(cfg.Assistant.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Jarvis", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure with the configured level now that we have one.
	if cfg.LogLevel != "" {
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Ollama.Model,
		"orchestrator", cfg.Orchestrator.URL,
	)

	prompt, err := systemPrompt(cfg)
	if err != nil {
		return err
	}

	model := llm.NewOllamaClient(cfg.Ollama, logger)
	orchClient := orchestrator.NewClient(cfg.Orchestrator, logger)
	speechClient := speech.NewClient(cfg.Speech, logger)

	// Startup probes are advisory: sidecars may come up later.
	probeCtx, probeCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := model.Ping(probeCtx); err != nil {
		logger.Warn("model backend unreachable at startup", "url", cfg.Ollama.URL, "error", err)
	}
	if _, err := orchClient.GetHealth(probeCtx); err != nil {
		logger.Warn("orchestrator unreachable at startup", "url", cfg.Orchestrator.URL, "error", err)
	}
	probeCancel()

	asst := assistant.New(model, orchClient, prompt, cfg.Assistant.StreamMode, logger)
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, asst, speechClient, orchClient, model, cfg.Ollama.Model, logger)

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
	return server.Shutdown(shutdownCtx)
}

// runAsk processes a single question against a running orchestrator
// and prints the answer. Useful for smoke tests without the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(io.Discard, slog.LevelInfo)

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	prompt, err := systemPrompt(cfg)
	if err != nil {
		return err
	}

	model := llm.NewOllamaClient(cfg.Ollama, logger)
	orchClient := orchestrator.NewClient(cfg.Orchestrator, logger)
	asst := assistant.New(model, orchClient, prompt, cfg.Assistant.StreamMode, logger)

	answer, err := asst.Process(ctx, "cli", question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, answer)
	return nil
}
