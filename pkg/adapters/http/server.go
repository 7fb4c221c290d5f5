package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	minion "github.com/femto/minion-novel"
	"github.com/femto/minion-novel/internal/logging"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
	"github.com/femto/minion-novel/pkg/runner"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes a runner over HTTP.
type Server struct {
	Runner   *runner.Runner
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics serves g at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

type turnRequest struct {
	Input string `json:"input"`
}

// NewHandler creates the HTTP handler for r.
func NewHandler(r *runner.Runner, opts ...Option) http.Handler {
	s := &Server{Runner: r, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(enableCORS)

	mux.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	mux.Get("/swagger", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	mux.Get("/health", s.GetHealth)
	mux.Get("/info", s.GetInfo)
	mux.Get("/apps", s.ListApps)
	mux.Route("/apps/{app}/users/{user}/sessions", func(sr chi.Router) {
		sr.Get("/", s.ListSessions)
		sr.Get("/{session}", s.GetSession)
		sr.Delete("/{session}", s.DeleteSession)
		sr.Post("/{session}/turns", s.RunTurn)
	})
	return mux
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Minion API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, _ *http.Request) {
	apiVersion := "unknown"
	if doc, err := GetSwagger(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "minion-http",
		"version":     minion.Version,
		"api_version": apiVersion,
	})
}

// ListApps handles GET /apps.
func (s *Server) ListApps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"apps": s.Runner.Apps()})
}

// ListSessions handles GET /apps/{app}/users/{user}/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	filter := ports.ListFilter{AppName: chi.URLParam(r, "app"), UserID: chi.URLParam(r, "user")}
	keys, err := s.Runner.Sessions().List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.SessionID)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// GetSession handles GET /apps/{app}/users/{user}/sessions/{session}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r)
	if err := key.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.Runner.Sessions().Load(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// DeleteSession handles DELETE /apps/{app}/users/{user}/sessions/{session}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r)
	if err := key.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Runner.Sessions().Delete(r.Context(), key); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunTurn handles POST /apps/{app}/users/{user}/sessions/{session}/turns.
func (s *Server) RunTurn(w http.ResponseWriter, r *http.Request) {
	var body turnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("RunTurn: invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := sessionKey(r)
	req := runner.TurnRequest{AppName: key.AppName, UserID: key.UserID, SessionID: key.SessionID, Input: body.Input}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamTurn(w, r, req)
		return
	}

	res, err := s.Runner.RunTurn(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// streamTurn writes each event as "event: <kind>" and ends with "event: done",
// or "event: error" when the turn could not complete.
func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, req runner.TurnRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	for ev, err := range s.Runner.Stream(r.Context(), req) {
		if err != nil {
			if !started {
				s.fail(w, r, err)
				return
			}
			s.logger.Error("SSE: turn failed", "error", err, "session", req.Key().String())
			writeEvent(w, "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			return
		}
		start()
		writeEvent(w, string(ev.Kind), ev)
		flusher.Flush()
	}
	start()
	writeEvent(w, "done", map[string]string{"status": "ok"})
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
	} else {
		s.logger.Warn("request rejected", "error", err, "path", r.URL.Path)
	}
	writeError(w, status, err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, runner.ErrUnknownApp), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSessionKey),
		errors.Is(err, runner.ErrInputTooLarge),
		errors.Is(err, runner.ErrInvalidUTF8):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func sessionKey(r *http.Request) domain.SessionKey {
	return domain.NewSessionKey(chi.URLParam(r, "app"), chi.URLParam(r, "user"), chi.URLParam(r, "session"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListenAndServe runs srv until ctx is cancelled, then shuts it down,
// giving in-flight requests up to timeout to complete.
func ListenAndServe(ctx context.Context, srv *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", timeout, "error", err)
			if cerr := srv.Close(); cerr != nil {
				return fmt.Errorf("error killing server: %w", cerr)
			}
			return err
		}
		logger.Info("http server stopped gracefully")
		return nil
	}
}
