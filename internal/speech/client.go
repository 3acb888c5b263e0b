// Package speech is a thin HTTP client for the Whisper/TTS sidecar
// service, which handles speech-to-text and text-to-speech.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxmachina/jarvis/internal/config"
	"github.com/voxmachina/jarvis/internal/httpkit"
)

const maxAudioSize = 32 << 20 // 32 MiB

// Transcription is the result of a speech-to-text request.
type Transcription struct {
	Success  bool   `json:"success"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Client talks to the speech sidecar over HTTP.
type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

// NewClient builds a speech client from config.
func NewClient(cfg config.SpeechConfig, logger *slog.Logger) *Client {
	logger = logger.With("component", "speech")
	return &Client{
		base: strings.TrimRight(cfg.URL, "/"),
		client: httpkit.NewClient(
			httpkit.WithTimeout(time.Duration(cfg.TimeoutSec)*time.Second),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// Transcribe uploads audio for speech-to-text. filename hints at the
// container format ("audio.webm", "audio.wav"); language is optional.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename, language string) (*Transcription, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}
	if filename == "" {
		filename = "audio.webm"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return nil, fmt.Errorf("build upload form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/stt/transcribe", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcribe request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, maxAudioSize)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech service returned %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var out Transcription
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode transcription: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("transcription failed: %s", out.Error)
	}

	c.logger.Debug("transcribed audio", "bytes", len(audio), "chars", len(out.Text))
	return &out, nil
}

// Speak converts text to speech and returns the rendered audio bytes
// along with their content type (usually audio/mpeg).
func (c *Client) Speak(ctx context.Context, text string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("empty text")
	}

	form := url.Values{"text": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/tts/speak", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("speak request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, maxAudioSize)

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("speech service returned %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
	if err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	c.logger.Debug("synthesized speech", "chars", len(text), "bytes", len(audio))
	return audio, contentType, nil
}

// Ping checks the sidecar's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("speech service unreachable: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("speech service returned %d", resp.StatusCode)
	}
	return nil
}
