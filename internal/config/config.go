// Package config handles Jarvis configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/jarvis/config.yaml, /etc/jarvis/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "jarvis", "config.yaml"))
	}

	paths = append(paths, "/etc/jarvis/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Jarvis configuration. Both binaries read the same
// file; each picks out the sections it needs.
type Config struct {
	Listen       ListenConfig       `yaml:"listen"`
	Ollama       OllamaConfig       `yaml:"ollama"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Google       GoogleConfig       `yaml:"google"`
	Hue          HueConfig          `yaml:"hue"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Speech       SpeechConfig       `yaml:"speech"`
	Assistant    AssistantConfig    `yaml:"assistant"`
	DataDir      string             `yaml:"data_dir"`
	LogLevel     string             `yaml:"log_level"`
}

// ListenConfig defines an HTTP server's bind settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// OllamaConfig defines the local model backend.
type OllamaConfig struct {
	URL         string  `yaml:"url"` // Default: http://localhost:11434
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"` // Per-request timeout (default 300)
}

// OrchestratorConfig defines the tool-orchestrator process. The
// assistant process uses URL to reach it; the orchestrator process uses
// Listen to bind it.
type OrchestratorConfig struct {
	Listen     ListenConfig `yaml:"listen"`
	URL        string       `yaml:"url"` // Default: http://localhost:8600
	TimeoutSec int          `yaml:"timeout_sec"`
}

// GoogleConfig defines Google OAuth2 and service settings.
type GoogleConfig struct {
	// CredentialsFile is the installed-app client secrets JSON downloaded
	// from the Google Cloud console. Defaults to <data_dir>/google_credentials.json.
	CredentialsFile string `yaml:"credentials_file"`
	// Scopes requested during authorization. Defaults cover Gmail
	// read/send and Calendar read/events.
	Scopes []string `yaml:"scopes"`
	// CallbackURL is the OAuth2 redirect URI. Must match the orchestrator's
	// /oauth2/callback route and the URI registered with Google.
	CallbackURL string `yaml:"callback_url"`
	// IMAPAddress overrides the Gmail IMAP endpoint (tests only).
	IMAPAddress string `yaml:"imap_address"`
	// SMTPAddress overrides the Gmail SMTP endpoint (tests only).
	SMTPAddress string `yaml:"smtp_address"`
	// Account is the Gmail address to authenticate IMAP/SMTP as.
	Account string `yaml:"account"`
	// CalendarURL overrides the Calendar API base URL (tests only).
	CalendarURL string `yaml:"calendar_url"`
}

// HueConfig defines the Philips Hue bridge connection.
type HueConfig struct {
	BridgeURL  string `yaml:"bridge_url"` // e.g. http://192.168.1.2
	Username   string `yaml:"username"`   // API key from bridge pairing
	TimeoutSec int    `yaml:"timeout_sec"`
}

// MQTTConfig defines the notification broker connection.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g. mqtt://localhost:1883
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"` // Default: jarvis/notifications
}

// SpeechConfig defines the Whisper/TTS sidecar service.
type SpeechConfig struct {
	URL        string `yaml:"url"` // e.g. http://localhost:3001
	TimeoutSec int    `yaml:"timeout_sec"`
}

// AssistantConfig tunes the conversation engine.
type AssistantConfig struct {
	// SystemPromptFile points at the system prompt text. If empty, a
	// built-in default prompt is used.
	SystemPromptFile string `yaml:"system_prompt_file"`
	// StreamMode selects how the streaming path decides on tool use:
	// "detect" (default) always runs a non-streaming tool-decision call
	// first; "keyword" streams directly unless the user text matches a
	// tool keyword.
	StreamMode string `yaml:"stream_mode"`
	// OAuthTimeoutSec bounds how long an OAuth flow waits for the
	// browser redirect (default 300).
	OAuthTimeoutSec int `yaml:"oauth_timeout_sec"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{
		Listen: ListenConfig{Port: 8700},
		Ollama: OllamaConfig{
			URL:         "http://localhost:11434",
			Model:       "mistral:7b",
			Temperature: 0.1,
		},
		Orchestrator: OrchestratorConfig{
			Listen: ListenConfig{Port: 8600},
			URL:    "http://localhost:8600",
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DataDir = filepath.Join(home, ".jarvis")
		} else {
			c.DataDir = ".jarvis"
		}
	}
	if c.Ollama.TimeoutSec == 0 {
		c.Ollama.TimeoutSec = 300
	}
	if c.Orchestrator.TimeoutSec == 0 {
		c.Orchestrator.TimeoutSec = 60
	}
	if c.Hue.TimeoutSec == 0 {
		c.Hue.TimeoutSec = 10
	}
	if c.Speech.TimeoutSec == 0 {
		c.Speech.TimeoutSec = 120
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "jarvis/notifications"
	}
	if c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = filepath.Join(c.DataDir, "google_credentials.json")
	}
	if len(c.Google.Scopes) == 0 {
		c.Google.Scopes = []string{
			"https://www.googleapis.com/auth/gmail.readonly",
			"https://www.googleapis.com/auth/gmail.send",
			"https://www.googleapis.com/auth/calendar.readonly",
			"https://www.googleapis.com/auth/calendar.events",
		}
	}
	if c.Google.CallbackURL == "" {
		c.Google.CallbackURL = fmt.Sprintf("http://localhost:%d/oauth2/callback", c.Orchestrator.Listen.Port)
	}
	if c.Assistant.StreamMode == "" {
		c.Assistant.StreamMode = "detect"
	}
	if c.Assistant.OAuthTimeoutSec == 0 {
		c.Assistant.OAuthTimeoutSec = 300
	}
}

// Timeout returns the bridge request timeout as a duration.
func (h HueConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSec) * time.Second
}

// OllamaTimeout returns the per-request model timeout as a duration.
func (c *Config) OllamaTimeout() time.Duration {
	return time.Duration(c.Ollama.TimeoutSec) * time.Second
}

// OrchestratorTimeout returns the tool RPC timeout as a duration.
func (c *Config) OrchestratorTimeout() time.Duration {
	return time.Duration(c.Orchestrator.TimeoutSec) * time.Second
}

// OAuthTimeout returns how long an OAuth flow waits for its redirect.
func (c *Config) OAuthTimeout() time.Duration {
	return time.Duration(c.Assistant.OAuthTimeoutSec) * time.Second
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Ollama.URL == "" {
		return fmt.Errorf("ollama.url is required")
	}
	if c.Orchestrator.URL == "" {
		return fmt.Errorf("orchestrator.url is required")
	}
	switch c.Assistant.StreamMode {
	case "detect", "keyword":
	default:
		return fmt.Errorf("assistant.stream_mode must be %q or %q, got %q", "detect", "keyword", c.Assistant.StreamMode)
	}
	return nil
}
