// Package api provides the HTTP and WebSocket surface of the companion server.
package api

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/ashureev/virtual-companion/internal/companion"
	"github.com/ashureev/virtual-companion/internal/domain"
)

// Options tunes request limits.
type Options struct {
	MaxBodyBytes   int64
	MaxUploadBytes int64
	AllowedOrigins []string
}

// Handler provides the companion endpoints.
type Handler struct {
	svc     *companion.Service
	uploads *UploadStore
	page    *template.Template
	opts    Options
	logger  *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(svc *companion.Service, uploads *UploadStore, opts Options, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	page, err := parsePage()
	if err != nil {
		return nil, err
	}
	return &Handler{
		svc:     svc,
		uploads: uploads,
		page:    page,
		opts:    opts,
		logger:  logger,
	}, nil
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// errorBody is the {error, details} shape every failing endpoint returns.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeError maps domain errors onto HTTP statuses. Validation problems are
// the caller's fault; everything else is reported as a server error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, summary string, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		JSON(w, http.StatusBadRequest, errorBody{Error: summary, Details: verr.Message})
		return
	}

	h.logger.Error(summary, "path", r.URL.Path, "request_id", requestID(r), "error", err)
	JSON(w, http.StatusInternalServerError, errorBody{Error: summary, Details: err.Error()})
}
