package v1alpha1

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/processor"
	"github.com/onronder/ContentLabTech-sub011/internal/service"
	"github.com/onronder/ContentLabTech-sub011/internal/status"
	"github.com/onronder/ContentLabTech-sub011/pkg/requestid"
)

// PipelineService is implemented by service.PipelineService.
type PipelineService interface {
	SubmitJob(ctx context.Context, req service.SubmitJobRequest) (*analysis.Job, error)
	GetStatus(ctx context.Context, projectID string) (*status.AnalyticsStatus, error)
	CancelJob(ctx context.Context, id uuid.UUID) (*analysis.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*analysis.Job, error)
	QueueStats() analysis.QueueStats
	Contracts() []processor.Contract
}

type ServiceHandler struct {
	srv PipelineService
}

func NewServiceHandler(srv PipelineService) *ServiceHandler {
	return &ServiceHandler{srv: srv}
}

// Routes mounts the analysis API on r.
func (h *ServiceHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", h.SubmitJob)
		r.Get("/jobs/{jobId}", h.GetJob)
		r.Post("/jobs/{jobId}/cancel", h.CancelJob)
		r.Get("/projects/{projectId}/status", h.GetStatus)
		r.Get("/projects/{projectId}/report", h.GetReport)
		r.Get("/queue/stats", h.GetQueueStats)
		r.Get("/processors", h.ListProcessors)
	})
}

// (GET /health)
func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type ErrorResponse struct {
	Message   string                `json:"message"`
	Fields    []analysis.FieldError `json:"fields,omitempty"`
	RequestId *string               `json:"requestId,omitempty"`
}

func respondError(w http.ResponseWriter, r *http.Request, code int, message string, fields ...analysis.FieldError) {
	render.Status(r, code)
	render.JSON(w, r, ErrorResponse{Message: message, Fields: fields, RequestId: requestid.FromContextPtr(r.Context())})
}

// respondServiceError maps the typed service errors to status codes.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch e := err.(type) {
	case *service.ErrInvalidJob:
		respondError(w, r, http.StatusBadRequest, e.Error(), e.Fields...)
	case *service.ErrResourceNotFound:
		respondError(w, r, http.StatusNotFound, e.Error())
	case *service.ErrJobNotCancellable:
		respondError(w, r, http.StatusConflict, e.Error())
	case *service.ErrServiceUnavailable:
		respondError(w, r, http.StatusServiceUnavailable, e.Error())
	default:
		respondError(w, r, http.StatusInternalServerError, err.Error())
	}
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}
