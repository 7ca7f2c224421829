package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/service/report/csv"
	"github.com/onronder/ContentLabTech-sub011/internal/service/report/types"
	"github.com/onronder/ContentLabTech-sub011/internal/service/report/xlsx"
	"github.com/onronder/ContentLabTech-sub011/internal/status"
)

type StatusProcessor struct{}

func NewStatusProcessor() *StatusProcessor {
	return &StatusProcessor{}
}

// NewRenderer returns the renderer of the given format.
func NewRenderer(format types.ReportFormat) (types.ReportRenderer, error) {
	switch format {
	case types.ReportFormatCSV:
		return csv.NewRenderer(), nil
	case types.ReportFormatXLSX:
		return xlsx.NewRenderer(), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

// reportBody is the part of a result every report type shares.
type reportBody struct {
	OverallScore    int                       `json:"overallScore"`
	Issues          []analysis.Issue          `json:"issues"`
	Recommendations []analysis.Recommendation `json:"recommendations"`
}

func (p *StatusProcessor) Process(st *status.AnalyticsStatus) (*types.ReportData, error) {
	data := &types.ReportData{
		ProjectID: st.ProjectID,
		Summary: types.SummaryMetrics{
			TotalJobs:    st.Summary.Total,
			Pending:      st.Summary.Pending,
			Processing:   st.Summary.Processing,
			Completed:    st.Summary.Completed,
			Failed:       st.Summary.Failed,
			Cancelled:    st.Summary.Cancelled,
			RetryPending: st.Summary.RetryPending,
		},
		Queue: types.QueueMetrics{
			Total:              st.Queue.Total,
			Pending:            st.Queue.Pending,
			Processing:         st.Queue.Processing,
			ProcessingCapacity: st.Queue.ProcessingCapacity,
		},
		Timestamps: generateTimestamps(st.GeneratedAt),
	}
	if le := st.Summary.LastError; le != nil {
		data.Summary.LastError = fmt.Sprintf("%s (%s): %s", le.Type, le.JobID, le.Message)
	}

	for _, t := range analysis.JobTypes {
		row := types.ResultRow{Type: string(t)}
		entry := st.Results[t]
		if entry == nil {
			data.Results = append(data.Results, row)
			continue
		}

		body, err := decodeBody(entry.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s result: %w", t, err)
		}
		row.Available = true
		row.Score = body.OverallScore
		row.JobID = entry.JobID.String()
		row.LastUpdated = entry.LastUpdated
		data.Results = append(data.Results, row)

		for _, issue := range body.Issues {
			data.Findings = append(data.Findings, types.FindingRow{
				Type:     string(t),
				Kind:     "issue",
				Title:    issue.Title,
				Severity: string(issue.Severity),
				Impact:   issue.Impact,
				Effort:   string(issue.Effort),
			})
		}
		for _, rec := range body.Recommendations {
			data.Findings = append(data.Findings, types.FindingRow{
				Type:   string(t),
				Kind:   "recommendation",
				Title:  rec.Title,
				Impact: rec.Impact,
				Effort: string(rec.Effort),
			})
		}
	}

	for _, j := range st.Jobs {
		data.Jobs = append(data.Jobs, types.JobRow{
			ID:          j.ID.String(),
			Type:        string(j.Type),
			Status:      string(j.Status),
			Priority:    string(j.Priority),
			Progress:    j.Progress,
			RetryCount:  j.RetryCount,
			CreatedAt:   j.CreatedAt,
			CompletedAt: j.CompletedAt,
			Error:       j.Error,
		})
	}

	for _, e := range st.Errors {
		data.Errors = append(data.Errors, fmt.Sprintf("%s: %s", e.Section, e.Error))
	}

	return data, nil
}

func decodeBody(v any) (reportBody, error) {
	var body reportBody
	raw, err := json.Marshal(v)
	if err != nil {
		return body, err
	}
	err = json.Unmarshal(raw, &body)
	return body, err
}

func generateTimestamps(at time.Time) types.ReportTimestamps {
	if at.IsZero() {
		at = time.Now()
	}
	return types.ReportTimestamps{
		Generated:     at.Format("January 2, 2006"),
		GeneratedTime: at.Format("15:04:05 MST"),
	}
}
