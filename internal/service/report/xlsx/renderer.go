package xlsx

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/onronder/ContentLabTech-sub011/internal/service/report/types"
)

const (
	SheetSummary  = "Summary"
	SheetResults  = "Results"
	SheetFindings = "Findings"
	SheetJobs     = "Jobs"
)

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) SupportedFormat() types.ReportFormat {
	return types.ReportFormatXLSX
}

func (r *Renderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// sheet is a header row followed by data rows.
type sheet struct {
	name   string
	header []any
	rows   [][]any
}

func (r *Renderer) Render(data *types.ReportData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	sheets := []sheet{
		r.summarySheet(data),
		r.resultsSheet(data.Results),
		r.findingsSheet(data.Findings),
		r.jobsSheet(data.Jobs),
	}
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", s.name, err)
		}
		if err := r.writeSheet(f, s, headerStyle); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) writeSheet(f *excelize.File, s sheet, headerStyle int) error {
	if err := f.SetSheetRow(s.name, "A1", &s.header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", s.name, err)
	}
	if err := f.SetRowStyle(s.name, 1, 1, headerStyle); err != nil {
		return err
	}
	for i, row := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.name, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", s.name, i+1, err)
		}
	}
	return nil
}

func (r *Renderer) summarySheet(data *types.ReportData) sheet {
	s := data.Summary
	rows := [][]any{
		{"Project", data.ProjectID},
		{"Generated", fmt.Sprintf("%s at %s", data.Timestamps.Generated, data.Timestamps.GeneratedTime)},
		{"Total Jobs", s.TotalJobs},
		{"Pending", s.Pending},
		{"Processing", s.Processing},
		{"Completed", s.Completed},
		{"Failed", s.Failed},
		{"Cancelled", s.Cancelled},
		{"Waiting For Retry", s.RetryPending},
		{"Queue Capacity", data.Queue.ProcessingCapacity},
		{"Queue Processing", data.Queue.Processing},
		{"Queue Pending", data.Queue.Pending},
	}
	if s.LastError != "" {
		rows = append(rows, []any{"Last Error", s.LastError})
	}
	for _, e := range data.Errors {
		rows = append(rows, []any{"Incomplete", e})
	}
	return sheet{name: SheetSummary, header: []any{"Metric", "Value"}, rows: rows}
}

func (r *Renderer) resultsSheet(results []types.ResultRow) sheet {
	s := sheet{name: SheetResults, header: []any{"Analysis", "Score", "Job", "Last Updated"}}
	for _, res := range results {
		if !res.Available {
			s.rows = append(s.rows, []any{res.Type, "No data"})
			continue
		}
		s.rows = append(s.rows, []any{res.Type, res.Score, res.JobID, res.LastUpdated.UTC().Format(time.RFC3339)})
	}
	return s
}

func (r *Renderer) findingsSheet(findings []types.FindingRow) sheet {
	s := sheet{name: SheetFindings, header: []any{"Analysis", "Kind", "Title", "Severity", "Impact", "Effort"}}
	for _, fr := range findings {
		s.rows = append(s.rows, []any{fr.Type, fr.Kind, fr.Title, fr.Severity, fr.Impact, fr.Effort})
	}
	return s
}

func (r *Renderer) jobsSheet(jobs []types.JobRow) sheet {
	s := sheet{name: SheetJobs, header: []any{"Job", "Analysis", "Status", "Priority", "Progress", "Retries", "Created At", "Completed At", "Error"}}
	for _, j := range jobs {
		completed := ""
		if j.CompletedAt != nil {
			completed = j.CompletedAt.UTC().Format(time.RFC3339)
		}
		s.rows = append(s.rows, []any{
			j.ID, j.Type, j.Status, j.Priority, j.Progress, j.RetryCount,
			j.CreatedAt.UTC().Format(time.RFC3339), completed, j.Error,
		})
	}
	return s
}
