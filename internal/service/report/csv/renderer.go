package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/onronder/ContentLabTech-sub011/internal/service/report/types"
)

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) SupportedFormat() types.ReportFormat {
	return types.ReportFormatCSV
}

func (r *Renderer) ContentType() string {
	return "text/csv"
}

func (r *Renderer) Render(data *types.ReportData) ([]byte, error) {
	var csvRows [][]string

	csvRows = append(csvRows, []string{"CONTENT ANALYTICS STATUS REPORT"})
	csvRows = append(csvRows, []string{fmt.Sprintf("Project: %s", data.ProjectID)})
	csvRows = append(csvRows, []string{fmt.Sprintf("Generated: %s at %s",
		data.Timestamps.Generated, data.Timestamps.GeneratedTime)})
	csvRows = append(csvRows, []string{""})

	csvRows = r.addSummary(csvRows, data.Summary)
	csvRows = r.addResults(csvRows, data.Results)
	csvRows = r.addFindings(csvRows, data.Findings)
	csvRows = r.addJobs(csvRows, data.Jobs)
	csvRows = r.addQueue(csvRows, data.Queue)

	if len(data.Errors) > 0 {
		csvRows = append(csvRows, []string{"INCOMPLETE SECTIONS"})
		for _, e := range data.Errors {
			csvRows = append(csvRows, []string{e})
		}
		csvRows = append(csvRows, []string{""})
	}

	return r.convertRowsToCSV(csvRows)
}

func (r *Renderer) addSummary(csvRows [][]string, s types.SummaryMetrics) [][]string {
	csvRows = append(csvRows, []string{"JOB SUMMARY"})
	csvRows = append(csvRows, []string{"Metric", "Value"})
	csvRows = append(csvRows,
		[]string{"Total Jobs", fmt.Sprintf("%d", s.TotalJobs)},
		[]string{"Pending", fmt.Sprintf("%d", s.Pending)},
		[]string{"Processing", fmt.Sprintf("%d", s.Processing)},
		[]string{"Completed", fmt.Sprintf("%d", s.Completed)},
		[]string{"Failed", fmt.Sprintf("%d", s.Failed)},
		[]string{"Cancelled", fmt.Sprintf("%d", s.Cancelled)},
		[]string{"Waiting For Retry", fmt.Sprintf("%d", s.RetryPending)},
	)
	if s.LastError != "" {
		csvRows = append(csvRows, []string{"Last Error", s.LastError})
	}
	return append(csvRows, []string{""})
}

func (r *Renderer) addResults(csvRows [][]string, results []types.ResultRow) [][]string {
	csvRows = append(csvRows, []string{"LATEST RESULTS"})
	csvRows = append(csvRows, []string{"Analysis", "Score", "Job", "Last Updated"})
	for _, res := range results {
		if !res.Available {
			csvRows = append(csvRows, []string{res.Type, "No data", "", ""})
			continue
		}
		csvRows = append(csvRows, []string{
			res.Type,
			fmt.Sprintf("%d", res.Score),
			res.JobID,
			res.LastUpdated.UTC().Format(time.RFC3339),
		})
	}
	return append(csvRows, []string{""})
}

func (r *Renderer) addFindings(csvRows [][]string, findings []types.FindingRow) [][]string {
	csvRows = append(csvRows, []string{"FINDINGS"})
	csvRows = append(csvRows, []string{"Analysis", "Kind", "Title", "Severity", "Impact", "Effort"})
	if len(findings) == 0 {
		csvRows = append(csvRows, []string{"No findings available"})
	}
	for _, f := range findings {
		csvRows = append(csvRows, []string{f.Type, f.Kind, f.Title, f.Severity, fmt.Sprintf("%d", f.Impact), f.Effort})
	}
	return append(csvRows, []string{""})
}

func (r *Renderer) addJobs(csvRows [][]string, jobs []types.JobRow) [][]string {
	csvRows = append(csvRows, []string{"RECENT JOBS"})
	csvRows = append(csvRows, []string{"Job", "Analysis", "Status", "Priority", "Progress", "Retries", "Created At", "Completed At", "Error"})
	for _, j := range jobs {
		completed := ""
		if j.CompletedAt != nil {
			completed = j.CompletedAt.UTC().Format(time.RFC3339)
		}
		csvRows = append(csvRows, []string{
			j.ID,
			j.Type,
			j.Status,
			j.Priority,
			fmt.Sprintf("%d%%", j.Progress),
			fmt.Sprintf("%d", j.RetryCount),
			j.CreatedAt.UTC().Format(time.RFC3339),
			completed,
			j.Error,
		})
	}
	return append(csvRows, []string{""})
}

func (r *Renderer) addQueue(csvRows [][]string, q types.QueueMetrics) [][]string {
	csvRows = append(csvRows, []string{"QUEUE"})
	csvRows = append(csvRows, []string{"Metric", "Value"})
	csvRows = append(csvRows,
		[]string{"Jobs Held", fmt.Sprintf("%d", q.Total)},
		[]string{"Pending", fmt.Sprintf("%d", q.Pending)},
		[]string{"Processing", fmt.Sprintf("%d", q.Processing)},
		[]string{"Processing Capacity", fmt.Sprintf("%d", q.ProcessingCapacity)},
	)
	return append(csvRows, []string{""})
}

func (r *Renderer) convertRowsToCSV(csvRows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	for _, row := range csvRows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV writer: %w", err)
	}

	return buf.Bytes(), nil
}
