// Package api exposes sync control over HTTP for the daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bizsync/internal/domain"
)

type Syncer interface {
	PerformSync(ctx context.Context, scope domain.Category) (*domain.SyncReport, error)
	Status(ctx context.Context) (*domain.SyncStatus, error)
}

type Handler struct {
	syncer Syncer
	logger *slog.Logger
}

func NewHandler(syncer Syncer, logger *slog.Logger) *Handler {
	return &Handler{
		syncer: syncer,
		logger: logger.With("component", "api"),
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1/sync", func(r chi.Router) {
		r.Post("/trigger", h.TriggerSync)
		r.Get("/status", h.GetSyncStatus)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// TriggerSync runs one pass and answers with its report. The optional
// category query parameter narrows the pass to a single category.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	scope := domain.CategoryAll
	if raw := r.URL.Query().Get("category"); raw != "" && raw != string(domain.CategoryAll) {
		c, err := domain.ParseCategory(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		scope = c
	}

	report, err := h.syncer.PerformSync(r.Context(), scope)
	if report == nil {
		switch {
		case errors.Is(err, domain.ErrSyncInProgress):
			h.writeError(w, http.StatusConflict, err)
		case errors.Is(err, domain.ErrAuthRequired):
			h.writeError(w, http.StatusUnauthorized, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	status := http.StatusOK
	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrCancelled):
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, newReportResponse(report))
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncer.Status(r.Context())
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, domain.ErrAuthRequired) {
			code = http.StatusUnauthorized
		}
		h.writeError(w, code, err)
		return
	}

	resp := statusResponse{
		OwnerID:     status.OwnerID,
		Running:     status.Running,
		Checkpoints: make(map[string]int64, len(status.Checkpoints)),
	}
	for c, ts := range status.Checkpoints {
		resp.Checkpoints[string(c)] = ts
	}
	if status.LastReport != nil {
		last := newReportResponse(status.LastReport)
		resp.LastReport = &last
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type resultResponse struct {
	Category                  string `json:"category"`
	Pushed                    int    `json:"pushed"`
	Rejected                  int    `json:"rejected"`
	Pulled                    int    `json:"pulled"`
	ConflictsResolvedByRemote int    `json:"conflicts_resolved_by_remote"`
	ConflictsResolvedByLocal  int    `json:"conflicts_resolved_by_local"`
	Skipped                   int    `json:"skipped"`
	Checkpoint                int64  `json:"checkpoint"`
	Error                     string `json:"error,omitempty"`
}

type reportResponse struct {
	OwnerID    string           `json:"owner_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Results    []resultResponse `json:"results"`
}

type statusResponse struct {
	OwnerID     string           `json:"owner_id"`
	Running     bool             `json:"running"`
	Checkpoints map[string]int64 `json:"checkpoints"`
	LastReport  *reportResponse  `json:"last_report,omitempty"`
}

func newReportResponse(report *domain.SyncReport) reportResponse {
	resp := reportResponse{
		OwnerID:    report.OwnerID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Results:    make([]resultResponse, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		rr := resultResponse{
			Category:                  string(res.Category),
			Pushed:                    res.Pushed,
			Rejected:                  res.Rejected,
			Pulled:                    res.Pulled,
			ConflictsResolvedByRemote: res.ConflictsResolvedByRemote,
			ConflictsResolvedByLocal:  res.ConflictsResolvedByLocal,
			Skipped:                   res.Skipped,
			Checkpoint:                res.Checkpoint,
		}
		if res.Failure != nil {
			rr.Error = res.Failure.Error()
		}
		resp.Results = append(resp.Results, rr)
	}
	return resp
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
