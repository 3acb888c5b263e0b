// Package orchestrator implements the tool orchestrator: the HTTP
// service that owns the tool registry and the Google authorization
// flow, and its client used by the assistant process.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/voxmachina/jarvis/internal/googleauth"
	"github.com/voxmachina/jarvis/internal/oauthcb"
	"github.com/voxmachina/jarvis/internal/tools"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// AuthHooks let the composition root defer the expensive parts of
// authorization setup until /auth/init is called. Init builds the
// Google auth manager (and registers whatever tools work without
// credentials); OnAuthenticated swaps the authenticated Gmail and
// Calendar handlers into the registry.
type AuthHooks struct {
	Init            func(ctx context.Context) (*googleauth.Manager, error)
	OnAuthenticated func(ctx context.Context, m *googleauth.Manager) error
}

// Server is the tool orchestrator HTTP server.
type Server struct {
	address  string
	port     int
	registry *tools.Registry
	coord    *oauthcb.Coordinator
	logger   *slog.Logger
	server   *http.Server

	hooks AuthHooks

	mu              sync.Mutex
	auth            *googleauth.Manager
	authInitialized bool
}

// NewServer creates a tool orchestrator server.
func NewServer(address string, port int, registry *tools.Registry, coord *oauthcb.Coordinator, logger *slog.Logger) *Server {
	return &Server{
		address:  address,
		port:     port,
		registry: registry,
		coord:    coord,
		logger:   logger,
	}
}

// SetAuthHooks configures the authorization lifecycle callbacks.
func (s *Server) SetAuthHooks(hooks AuthHooks) {
	s.hooks = hooks
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tools", s.handleListTools)
	mux.HandleFunc("POST /tools/execute", s.handleExecuteTool)

	mux.HandleFunc("POST /auth/init", s.handleAuthInit)
	mux.HandleFunc("POST /auth/google", s.handleAuthGoogle)
	mux.HandleFunc("GET /auth/status", s.handleAuthStatus)
	mux.HandleFunc("GET /auth/qr", s.handleAuthQR)
	mux.HandleFunc("GET /oauth2/callback", s.handleOAuthCallback)

	return mux
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	mux := s.routes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 6 * time.Minute, // /auth/google blocks on the consent flow
	}

	s.logger.Info("starting orchestrator server", "address", s.address, "port", s.port)
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

func (s *Server) authState() (*googleauth.Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth, s.authInitialized
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	auth, initialized := s.authState()
	googleAuthed := auth != nil && auth.Authenticated()

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":               "healthy",
		"service":              "jarvis-orchestrator",
		"tools_count":          s.registry.Count(),
		"auth_initialized":     initialized,
		"google_authenticated": googleAuthed,
	}, s.logger)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"tools": s.registry.List()}, s.logger)
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	var call tools.Call
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if call.Name == "" {
		s.errorResponse(w, http.StatusBadRequest, "tool name is required")
		return
	}

	result := s.registry.Execute(r.Context(), call)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result, s.logger)
}

// initAuth runs the Init hook at most once.
func (s *Server) initAuth(ctx context.Context) error {
	s.mu.Lock()
	if s.authInitialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.hooks.Init == nil {
		return fmt.Errorf("authorization not configured")
	}
	auth, err := s.hooks.Init(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.auth = auth
	s.authInitialized = true
	s.mu.Unlock()
	return nil
}

func (s *Server) handleAuthInit(w http.ResponseWriter, r *http.Request) {
	if err := s.initAuth(r.Context()); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":  "success",
		"message": "Authentication initialized",
	}, s.logger)
}

func (s *Server) handleAuthGoogle(w http.ResponseWriter, r *http.Request) {
	if err := s.initAuth(r.Context()); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	auth, _ := s.authState()
	if auth == nil {
		s.errorResponse(w, http.StatusInternalServerError, "Google auth manager not initialized")
		return
	}

	// Blocks until the user completes the consent flow, the flow
	// times out, or the request is cancelled.
	err := auth.Authenticate(r.Context())
	if err != nil {
		s.logger.Warn("google authentication failed", "error", err)
	} else if s.hooks.OnAuthenticated != nil {
		if hookErr := s.hooks.OnAuthenticated(r.Context(), auth); hookErr != nil {
			s.logger.Error("enabling authenticated tools failed", "error", hookErr)
		}
	}

	status := "success"
	if err != nil {
		status = "failed"
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":        status,
		"authenticated": auth.Authenticated(),
	}, s.logger)
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	auth, initialized := s.authState()

	var google map[string]any
	if auth != nil {
		google = auth.Status()
	} else {
		google = map[string]any{
			"authenticated":   false,
			"has_credentials": false,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"auth_initialized": initialized,
		"google":           google,
	}, s.logger)
}

// handleAuthQR renders the pending authorization URL as a PNG QR code
// so the consent screen can be opened from a phone.
func (s *Server) handleAuthQR(w http.ResponseWriter, r *http.Request) {
	auth, _ := s.authState()
	if auth == nil {
		s.errorResponse(w, http.StatusNotFound, "no pending authorization")
		return
	}
	url := auth.AuthURL()
	if url == "" {
		s.errorResponse(w, http.StatusNotFound, "no pending authorization")
		return
	}

	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")
	errParam := q.Get("error")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	switch {
	case errParam != "":
		s.coord.Deliver(oauthcb.Result{Err: errParam})
		fmt.Fprintf(w, "<html><body><h1>Error</h1><p>%s</p></body></html>", html.EscapeString(errParam))
	case code != "":
		s.coord.Deliver(oauthcb.Result{Code: code, State: state})
		fmt.Fprint(w, "<html><body><h1>Success</h1><p>Authentication successful!</p></body></html>")
	default:
		s.coord.Deliver(oauthcb.Result{Err: "No authorization code received"})
		fmt.Fprint(w, "<html><body><h1>Error</h1><p>No authorization code received</p></body></html>")
	}
}
