package speech

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxmachina/jarvis/internal/config"
)

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(config.SpeechConfig{URL: url, TimeoutSec: 5}, logger)
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/stt/transcribe" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file field: %v", err)
		}
		defer file.Close()
		if header.Filename != "clip.wav" {
			t.Errorf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if !bytes.Equal(data, []byte("RIFFfake")) {
			t.Errorf("uploaded bytes = %q", data)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"text":"turn on the lights","language":"en"}`)
	}))
	defer srv.Close()

	tr, err := testClient(t, srv.URL).Transcribe(context.Background(), []byte("RIFFfake"), "clip.wav", "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "turn on the lights" {
		t.Errorf("Text = %q", tr.Text)
	}
}

func TestTranscribeServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":false,"error":"model not loaded"}`)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Transcribe(context.Background(), []byte("x"), "", "")
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("err = %v, want model error", err)
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	if _, err := testClient(t, "http://unused").Transcribe(context.Background(), nil, "", ""); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestSpeak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/speak" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("text"); got != "hello there" {
			t.Errorf("text = %q", got)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte{0xff, 0xfb, 0x90})
	}))
	defer srv.Close()

	audio, contentType, err := testClient(t, srv.URL).Speak(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if contentType != "audio/mpeg" {
		t.Errorf("content type = %q", contentType)
	}
	if len(audio) != 3 {
		t.Errorf("len(audio) = %d", len(audio))
	}
}

func TestSpeakErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tts unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := testClient(t, srv.URL).Speak(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v, want 503", err)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"status":"healthy"}`)
	}))
	defer srv.Close()

	if err := testClient(t, srv.URL).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
