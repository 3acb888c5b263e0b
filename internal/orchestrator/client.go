package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxmachina/jarvis/internal/config"
	"github.com/voxmachina/jarvis/internal/httpkit"
	"github.com/voxmachina/jarvis/internal/tools"
)

// Client is the assistant-side client for the tool orchestrator.
type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

// NewClient builds an orchestrator client from config.
func NewClient(cfg config.OrchestratorConfig, logger *slog.Logger) *Client {
	logger = logger.With("component", "orchestrator-client")
	return &Client{
		base: strings.TrimRight(cfg.URL, "/"),
		client: httpkit.NewClient(
			httpkit.WithTimeout(time.Duration(cfg.TimeoutSec)*time.Second),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// Health reports the orchestrator's health payload.
type Health struct {
	Status              string `json:"status"`
	Service             string `json:"service"`
	ToolsCount          int    `json:"tools_count"`
	AuthInitialized     bool   `json:"auth_initialized"`
	GoogleAuthenticated bool   `json:"google_authenticated"`
}

// AuthStatus is the orchestrator's authorization summary.
type AuthStatus struct {
	AuthInitialized bool           `json:"auth_initialized"`
	Google          map[string]any `json:"google"`
}

// ListTools fetches the specs of every currently available tool.
func (c *Client) ListTools(ctx context.Context) ([]tools.Spec, error) {
	var out struct {
		Tools []tools.Spec `json:"tools"`
	}
	if err := c.getJSON(ctx, "/tools", &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// ExecuteTool runs one tool call on the orchestrator. Tool-level
// failures come back inside the Result; the error return covers
// transport and protocol failures only.
func (c *Client) ExecuteTool(ctx context.Context, call tools.Call) (tools.Result, error) {
	var result tools.Result
	if err := c.postJSON(ctx, "/tools/execute", call, &result); err != nil {
		return tools.Result{}, err
	}
	return result, nil
}

// InitAuth asks the orchestrator to initialize its auth components.
func (c *Client) InitAuth(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.postJSON(ctx, "/auth/init", nil, &out); err != nil {
		return err
	}
	if out.Status != "success" {
		return fmt.Errorf("auth init returned status %q", out.Status)
	}
	return nil
}

// AuthGoogle triggers the Google authorization flow. This blocks until
// the flow completes or times out on the orchestrator side.
func (c *Client) AuthGoogle(ctx context.Context) (bool, error) {
	var out struct {
		Status        string `json:"status"`
		Authenticated bool   `json:"authenticated"`
	}
	if err := c.postJSON(ctx, "/auth/google", nil, &out); err != nil {
		return false, err
	}
	return out.Authenticated, nil
}

// GetAuthStatus fetches the authorization summary.
func (c *Client) GetAuthStatus(ctx context.Context) (AuthStatus, error) {
	var out AuthStatus
	if err := c.getJSON(ctx, "/auth/status", &out); err != nil {
		return AuthStatus{}, err
	}
	return out, nil
}

// GetHealth fetches the orchestrator health payload.
func (c *Client) GetHealth(ctx context.Context) (Health, error) {
	var out Health
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return Health{}, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("orchestrator returned %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
