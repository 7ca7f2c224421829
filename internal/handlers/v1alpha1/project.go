package v1alpha1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/onronder/ContentLabTech-sub011/internal/service/report"
	"github.com/onronder/ContentLabTech-sub011/internal/service/report/types"
	"github.com/onronder/ContentLabTech-sub011/pkg/log"
)

// (GET /api/v1/projects/{projectId}/status)
func (h *ServiceHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.srv.GetStatus(r.Context(), chi.URLParam(r, "projectId"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	render.JSON(w, r, st)
}

// (GET /api/v1/projects/{projectId}/report)
func (h *ServiceHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	format := types.ReportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = types.ReportFormatCSV
	}
	logger := log.NewDebugLogger("report_handler").
		WithContext(r.Context()).
		Operation("get_report").
		WithString("project_id", projectID).
		WithString("format", string(format)).
		Build()

	renderer, err := report.NewRenderer(format)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.srv.GetStatus(r.Context(), projectID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	data, err := report.NewStatusProcessor().Process(st)
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to build report: %v", err))
		return
	}
	content, err := renderer.Render(data)
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to render report: %v", err))
		return
	}

	logger.Success().WithInt("bytes", len(content)).Log()
	w.Header().Set("Content-Type", renderer.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-status.%s", projectID, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}
