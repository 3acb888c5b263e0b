// Package api implements the assistant-facing HTTP API: chat
// (plain, SSE and websocket), speech proxying, and service status.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxmachina/jarvis/internal/assistant"
	"github.com/voxmachina/jarvis/internal/llm"
	"github.com/voxmachina/jarvis/internal/orchestrator"
	"github.com/voxmachina/jarvis/internal/speech"
)

const maxUploadSize = 32 << 20

// writeJSON encodes v as JSON to w, logging any errors at debug level.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the assistant HTTP API server.
type Server struct {
	address   string
	port      int
	assistant *assistant.Assistant
	speech    *speech.Client
	orch      *orchestrator.Client
	model     llm.Client
	modelName string
	logger    *slog.Logger
	server    *http.Server
	upgrader  websocket.Upgrader
}

// NewServer creates the assistant API server.
func NewServer(address string, port int, a *assistant.Assistant, sp *speech.Client, orch *orchestrator.Client, model llm.Client, modelName string, logger *slog.Logger) *Server {
	return &Server{
		address:   address,
		port:      port,
		assistant: a,
		speech:    sp,
		orch:      orch,
		model:     model,
		modelName: modelName,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The web UI is served from another origin in development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /chat/ws", s.handleChatWS)
	mux.HandleFunc("POST /stt/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /tts/speak", s.handleSpeak)
	mux.HandleFunc("GET /services/status", s.handleServicesStatus)

	return mux
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	mux := s.routes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Long for streaming responses
	}

	s.logger.Info("starting assistant API server", "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{"detail": message}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":                "healthy",
		"service":               "jarvis-assistant",
		"assistant_initialized": true,
	}, s.logger)
}

// ChatRequest is one chat turn from a client.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse carries the assistant's answer. Processing failures
// come back with Success false rather than a non-2xx status, so
// conversational clients can present them inline.
type ChatResponse struct {
	Response string `json:"response"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return req, false
	}
	if req.ConversationID == "" {
		req.ConversationID = "default"
	}
	return req, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	answer, err := s.assistant.Process(r.Context(), req.ConversationID, req.Message)

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		s.logger.Error("chat processing failed", "error", err)
		writeJSON(w, ChatResponse{Success: false, Error: err.Error()}, s.logger)
		return
	}
	writeJSON(w, ChatResponse{Response: answer, Success: true}, s.logger)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	rc := http.NewResponseController(w)

	_, err := s.assistant.ProcessStream(r.Context(), req.ConversationID, req.Message, func(token string) {
		fmt.Fprintf(w, "data: %s\n\n", token)
		flusher.Flush()
		// Reset the write deadline so long tool turns do not trip the
		// server write timeout between tokens.
		if err := rc.SetWriteDeadline(time.Now().Add(120 * time.Second)); err != nil {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
	})
	if err != nil {
		s.logger.Error("streaming chat failed", "error", err)
		// Headers are long gone; just end the stream.
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// wsEvent is one websocket frame in the chat stream.
type wsEvent struct {
	Type     string `json:"type"` // token | done | error
	Content  string `json:"content,omitempty"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleChatWS mirrors the SSE stream over a websocket. Each received
// text frame is one ChatRequest; the reply is a sequence of token
// events ending in a done (or error) event.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		if req.Message == "" {
			conn.WriteJSON(wsEvent{Type: "error", Error: "message is required"})
			continue
		}
		if req.ConversationID == "" {
			req.ConversationID = "default"
		}

		answer, err := s.assistant.ProcessStream(r.Context(), req.ConversationID, req.Message, func(token string) {
			conn.WriteJSON(wsEvent{Type: "token", Content: token})
		})
		if err != nil {
			s.logger.Error("websocket chat failed", "error", err)
			conn.WriteJSON(wsEvent{Type: "error", Error: err.Error()})
			continue
		}
		conn.WriteJSON(wsEvent{Type: "done", Response: answer})
	}
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	result, err := s.speech.Transcribe(r.Context(), audio, header.Filename, r.FormValue("language"))
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		s.logger.Error("transcription failed", "error", err)
		writeJSON(w, map[string]any{"success": false, "error": err.Error()}, s.logger)
		return
	}
	writeJSON(w, result, s.logger)
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid form body")
		return
	}
	text := r.FormValue("text")
	if text == "" {
		s.errorResponse(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, contentType, err := s.speech.Speak(r.Context(), text)
	if err != nil {
		s.logger.Error("speech synthesis failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=speech.mp3")
	w.Write(audio)
}

func (s *Server) handleServicesStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	orchStatus := map[string]any{"status": "unknown"}
	if health, err := s.orch.GetHealth(ctx); err == nil {
		orchStatus = map[string]any{
			"status":               health.Status,
			"tools_count":          health.ToolsCount,
			"auth_initialized":     health.AuthInitialized,
			"google_authenticated": health.GoogleAuthenticated,
		}
	} else {
		orchStatus["error"] = err.Error()
	}

	speechStatus := map[string]any{"status": "healthy"}
	if err := s.speech.Ping(ctx); err != nil {
		speechStatus = map[string]any{"status": "unreachable", "error": err.Error()}
	}

	llmStatus := map[string]any{"status": "healthy", "model": s.modelName}
	if err := s.model.Ping(ctx); err != nil {
		llmStatus = map[string]any{"status": "unreachable", "model": s.modelName, "error": err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"assistant":      map[string]any{"status": "healthy"},
		"orchestrator":   orchStatus,
		"speech_service": speechStatus,
		"llm_service":    llmStatus,
	}, s.logger)
}
