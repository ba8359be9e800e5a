package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/detective_engine/pkg/apperr"
	"example.com/detective_engine/pkg/audit"
	"example.com/detective_engine/pkg/config"
	"example.com/detective_engine/pkg/gemini"
	"example.com/detective_engine/pkg/live"
	"example.com/detective_engine/pkg/metrics"
)

// Analyzer audits a narrative. *audit.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*audit.Report, error)
}

// Chatter answers one interrogation turn. *gemini.Client satisfies it.
type Chatter interface {
	Chat(ctx context.Context, model, systemInstruction string, history []gemini.Message, message string) (string, error)
}

type server struct {
	ctx      context.Context // parent of every live session
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	analyzer Analyzer
	chat     Chatter
	dialer   live.Dialer
	sessions *SessionManager
}

// AnalyzeRequest is the body of POST /api/analyze
type AnalyzeRequest struct {
	Text string `json:"text"`
}

// InterrogateRequest is the body of POST /api/interrogate
type InterrogateRequest struct {
	SuspectID string           `json:"suspect_id"`
	History   []gemini.Message `json:"history"`
	Message   string           `json:"message"`
}

// InterrogateResponse carries the suspect's reply
type InterrogateResponse struct {
	SuspectID string `json:"suspect_id"`
	Reply     string `json:"reply"`
}

// ErrorResponse is returned for every failed API call. Input echoes the
// submitted narrative so the caller can retry without retyping it.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Input string `json:"input,omitempty"`
}

// routes configures the HTTP API
func (srv *server) routes(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze", srv.withMetrics("/api/analyze", srv.handleAnalyze))
	mux.HandleFunc("/api/interrogate", srv.withMetrics("/api/interrogate", srv.handleInterrogate))
	mux.HandleFunc("/api/suspects", srv.withMetrics("/api/suspects", srv.handleSuspects))
	mux.HandleFunc("/api/live", srv.withMetrics("/api/live", srv.handleLive))
	mux.HandleFunc("/health", srv.withMetrics("/health", srv.handleHealth))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (srv *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", Kind: "invalid_request"})
		return
	}

	var req AnalyzeRequest
	if err := srv.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "invalid_request"})
		return
	}

	report, err := srv.analyzer.Analyze(r.Context(), req.Text)
	if err != nil {
		status, kind := statusFor(err)
		writeError(w, status, ErrorResponse{Error: err.Error(), Kind: kind, Input: req.Text})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (srv *server) handleInterrogate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", Kind: "invalid_request"})
		return
	}

	var req InterrogateRequest
	if err := srv.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "invalid_request"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "message is empty", Kind: "invalid_input"})
		return
	}

	suspect, ok := srv.cfg.Suspect(req.SuspectID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("unknown suspect %q", req.SuspectID), Kind: "not_found"})
		return
	}

	reply, err := srv.chat.Chat(r.Context(), srv.cfg.Chat.Model, suspect.SystemPrompt, req.History, req.Message)
	if err != nil {
		status, kind := statusFor(err)
		srv.metrics.RecordInterrogation(kind)
		srv.logger.Error("Interrogation failed",
			slog.String("suspect_id", suspect.ID),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		writeError(w, status, ErrorResponse{Error: err.Error(), Kind: kind, Input: req.Message})
		return
	}

	srv.metrics.RecordInterrogation("ok")
	writeJSON(w, http.StatusOK, InterrogateResponse{SuspectID: suspect.ID, Reply: reply})
}

func (srv *server) handleSuspects(w http.ResponseWriter, r *http.Request) {
	suspects := srv.cfg.Suspects
	if suspects == nil {
		suspects = []config.Suspect{}
	}
	writeJSON(w, http.StatusOK, suspects)
}

func (srv *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"live_sessions": srv.sessions.Count(),
	})
}

func (srv *server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, srv.cfg.Server.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps a domain error to an HTTP status and a stable kind label.
func statusFor(err error) (int, string) {
	if errors.Is(err, audit.ErrEmptyInput) {
		return http.StatusBadRequest, "invalid_input"
	}
	switch kind := apperr.Kind(err); kind {
	case "format", "transport":
		return http.StatusBadGateway, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

// withMetrics wraps an HTTP handler with metrics collection
func (srv *server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		srv.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			srv.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the signaling endpoint upgrade through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
