package processor

import (
	"context"
	"time"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

// ResultReader gives processors read access to the latest results of a project.
type ResultReader interface {
	// Latest returns nil when the project has no result of that type.
	Latest(ctx context.Context, projectID string, t analysis.JobType) (*analysis.ResultEntry, error)
}

// HistoryReader returns past successful results of a project, oldest first.
type HistoryReader interface {
	ResultHistory(ctx context.Context, projectID string, t analysis.JobType, since time.Time) ([]analysis.ResultEntry, error)
}

// ScoredReport is implemented by every report a processor produces.
type ScoredReport interface {
	Overall() int
	Scores() map[string]int
}

// latestScores reads the latest report of type t. The report is nil when there is none.
func latestScores(ctx context.Context, r ResultReader, projectID string, t analysis.JobType) (ScoredReport, *analysis.ResultEntry, error) {
	if r == nil {
		return nil, nil, nil
	}
	entry, err := r.Latest(ctx, projectID, t)
	if err != nil || entry == nil {
		return nil, nil, err
	}
	report, ok := entry.Data.(ScoredReport)
	if !ok {
		return nil, nil, nil
	}
	return report, entry, nil
}
