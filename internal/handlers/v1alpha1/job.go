package v1alpha1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/auth"
	"github.com/onronder/ContentLabTech-sub011/internal/service"
	"github.com/onronder/ContentLabTech-sub011/pkg/log"
)

const maxBodySize = 1 << 20

type CancelJobResponse struct {
	Cancelled bool          `json:"cancelled"`
	Job       *analysis.Job `json:"job"`
}

// (POST /api/v1/jobs)
func (h *ServiceHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	logger := log.NewDebugLogger("job_handler").WithContext(r.Context()).Operation("submit_job").Build()

	var req service.SubmitJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if user, found := auth.UserFromContext(r.Context()); found {
		req.UserID = user.ID
		if user.TeamID != "" {
			req.TeamID = user.TeamID
		}
	}

	job, err := h.srv.SubmitJob(r.Context(), req)
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err)
		return
	}

	logger.Success().WithUUID("job_id", job.ID).Log()
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, job)
}

// (GET /api/v1/jobs/{jobId})
func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	job, err := h.srv.GetJob(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	render.JSON(w, r, job)
}

// (POST /api/v1/jobs/{jobId}/cancel)
func (h *ServiceHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	logger := log.NewDebugLogger("job_handler").WithContext(r.Context()).Operation("cancel_job").WithUUID("job_id", id).Build()

	job, err := h.srv.CancelJob(r.Context(), id)
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err)
		return
	}

	logger.Success().Log()
	render.JSON(w, r, CancelJobResponse{Cancelled: true, Job: job})
}

// (GET /api/v1/queue/stats)
func (h *ServiceHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.srv.QueueStats())
}

// (GET /api/v1/processors)
func (h *ServiceHandler) ListProcessors(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.srv.Contracts())
}
