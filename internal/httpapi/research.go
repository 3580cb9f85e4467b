package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/repo-research/internal/db"
	"github.com/Kocoro-lab/repo-research/internal/metrics"
	"github.com/Kocoro-lab/repo-research/internal/server"
	"github.com/Kocoro-lab/repo-research/internal/tracing"
)

const maxRequestBody = 64 << 10

// Service is the research service surface exposed over HTTP
type Service interface {
	Start(ctx context.Context, req server.StartRequest) (*db.ResearchWorkflow, error)
	Get(ctx context.Context, id string) (*db.ResearchWorkflow, error)
	List(ctx context.Context, opts db.ListOptions) ([]db.ResearchWorkflow, error)
}

// ResearchHandler serves create/get/list for research workflows.
type ResearchHandler struct {
	service Service
	logger  *zap.Logger
}

func NewResearchHandler(service Service, logger *zap.Logger) *ResearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchHandler{service: service, logger: logger}
}

func (h *ResearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/research", h.instrument("/api/research", h.handleCollection))
	mux.HandleFunc("/api/research/", h.instrument("/api/research/{id}", h.handleGet))
}

// handleCollection: POST /api/research creates, GET /api/research?limit=&session_id= lists
func (h *ResearchHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreate(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ResearchHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req server.StartRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	wf, err := h.service.Start(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "create", err)
		return
	}
	writeJSON(w, http.StatusAccepted, wf)
}

func (h *ResearchHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := db.ListOptions{SessionID: strings.TrimSpace(q.Get("session_id"))}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		opts.Limit = limit
	}

	workflows, err := h.service.List(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

// handleGet: GET /api/research/{id}
func (h *ResearchHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/research/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	wf, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *ResearchHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, server.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("Research request failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// statusRecorder captures the response code for metrics
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *ResearchHandler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(tracing.ExtractTraceparent(r.Context(), r), "HTTP "+r.Method+" "+route)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r.WithContext(ctx))
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
