package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/thoas/go-funk"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

const (
	healthBaseSeconds = 20
	// neutralScore stands in for a category the project has never measured.
	neutralScore = 50
)

var healthWeights = Weights{
	{Category: "seo", Weight: 0.30},
	{Category: "performance", Weight: 0.25},
	{Category: "content", Weight: 0.25},
	{Category: "competitive", Weight: 0.20},
}

var historicalSeconds = map[analysis.Timeframe]int{
	analysis.Timeframe7d:  10,
	analysis.Timeframe30d: 20,
	analysis.Timeframe90d: 40,
	analysis.Timeframe1y:  60,
}

// Health statuses by overall score.
const (
	HealthExcellent = "excellent"
	HealthGood      = "good"
	HealthFair      = "fair"
	HealthPoor      = "poor"
	HealthUnknown   = "unknown"
)

// healthSource is where a project health category reads its score from.
type healthSource struct {
	category string
	jobType  analysis.JobType
	score    func(ScoredReport) int
}

var healthSources = []healthSource{
	{"seo", analysis.JobTypeSEOHealth, ScoredReport.Overall},
	{"performance", analysis.JobTypePerformance, ScoredReport.Overall},
	{"performance", analysis.JobTypeSEOHealth, func(r ScoredReport) int { return r.Scores()["performance"] }},
	{"content", analysis.JobTypeContentAnalysis, ScoredReport.Overall},
	{"content", analysis.JobTypeSEOHealth, func(r ScoredReport) int { return r.Scores()["onPage"] }},
	{"competitive", analysis.JobTypeCompetitiveIntelligence, ScoredReport.Overall},
	{"competitive", analysis.JobTypeIndustryBenchmarking, ScoredReport.Overall},
}

// ProjectHealthProcessor rolls the latest results of a project into one health score.
type ProjectHealthProcessor struct {
	results ResultReader
	history HistoryReader
	now     func() time.Time
}

var _ Processor = (*ProjectHealthProcessor)(nil)

func NewProjectHealthProcessor(results ResultReader, history HistoryReader) *ProjectHealthProcessor {
	return &ProjectHealthProcessor{results: results, history: history, now: time.Now}
}

func (p *ProjectHealthProcessor) Type() analysis.JobType {
	return analysis.JobTypeProjectHealth
}

func (p *ProjectHealthProcessor) Validate(data analysis.JobData) error {
	return analysis.Validate(p.Type(), data)
}

func (p *ProjectHealthProcessor) EstimateProcessingTime(data analysis.JobData) time.Duration {
	params, ok := paramsOf[analysis.ProjectHealthParams](data)
	if !ok {
		return 0
	}
	seconds := healthBaseSeconds
	if params.IncludeHistorical {
		seconds += historicalSeconds[params.Timeframe]
	}
	return time.Duration(seconds) * time.Second
}

func (p *ProjectHealthProcessor) Contract() Contract {
	return Contract{
		Type:     p.Type(),
		Weights:  healthWeights,
		Estimate: "20s, +10s/20s/40s/60s for 7d/30d/90d/1y history",
	}
}

func (p *ProjectHealthProcessor) Process(ctx context.Context, job *analysis.Job, progress ProgressFunc) (*analysis.JobResult, error) {
	started := time.Now()
	if progress == nil {
		progress = noProgress
	}
	params, ok := paramsOf[analysis.ProjectHealthParams](job.Data)
	if !ok {
		return nil, fmt.Errorf("project-health job %s carries %T params", job.ID, job.Data.Params)
	}
	if err := p.Validate(job.Data); err != nil {
		return analysis.Failed(err.Error(), false), nil
	}
	now := p.now()
	window := time.Duration(params.Timeframe.Days()) * 24 * time.Hour

	progress(20, "reading latest results")
	scores := map[string]int{}
	report := &ProjectHealthReport{Coverage: []analysis.JobType{}}
	seen := map[analysis.JobType]bool{}
	for _, src := range healthSources {
		if _, done := scores[src.category]; done {
			continue
		}
		r, entry, err := latestScores(ctx, p.results, job.Data.ProjectID, src.jobType)
		if err != nil {
			return analysis.Failed(fmt.Sprintf("failed to read %s results: %v", src.jobType, err), true), nil
		}
		if r == nil {
			continue
		}
		scores[src.category] = src.score(r)
		if !seen[src.jobType] {
			seen[src.jobType] = true
			report.Coverage = append(report.Coverage, src.jobType)
			if now.Sub(entry.LastUpdated) > window {
				report.Stale = append(report.Stale, src.jobType)
			}
		}
	}

	var missing []string
	for _, w := range healthWeights {
		if _, found := scores[w.Category]; !found {
			scores[w.Category] = neutralScore
			missing = append(missing, w.Category)
		}
	}
	report.SEO = scores["seo"]
	report.Performance = scores["performance"]
	report.Content = scores["content"]
	report.Competitive = scores["competitive"]
	report.OverallScore = healthWeights.Overall(report.Scores())
	report.Status = healthStatus(report.OverallScore, len(report.Coverage))

	if params.IncludeHistorical && p.history != nil {
		progress(50, fmt.Sprintf("reading %s of history", params.Timeframe))
		hist, err := p.historical(ctx, job.Data.ProjectID, params.Timeframe, now.Add(-window))
		if err != nil {
			return analysis.Failed(fmt.Sprintf("failed to read result history: %v", err), true), nil
		}
		report.Historical = hist
	}

	progress(80, "building recommendations")
	report.Recommendations = healthRecommendations(report, missing)

	return analysis.Succeeded(report, &analysis.Metadata{
		ProcessingTime: time.Since(started),
		ResourcesUsed:  map[string]int{"sources": len(report.Coverage)},
		QualityScore:   ratioScore(len(healthWeights)-len(missing), len(healthWeights)),
	}), nil
}

// historical compares the first and last result of each primary source in the window.
func (p *ProjectHealthProcessor) historical(ctx context.Context, projectID string, tf analysis.Timeframe, since time.Time) (*HistoricalSummary, error) {
	summary := &HistoricalSummary{Timeframe: tf, Trends: map[string]analysis.Trend{}}
	counted := map[analysis.JobType]bool{}
	for _, src := range healthSources {
		if _, done := summary.Trends[src.category]; done {
			continue
		}
		entries, err := p.history.ResultHistory(ctx, projectID, src.jobType, since)
		if err != nil {
			return nil, err
		}
		var points []int
		for _, e := range entries {
			if r, ok := e.Data.(ScoredReport); ok {
				points = append(points, src.score(r))
			}
		}
		if len(points) == 0 {
			continue
		}
		if !counted[src.jobType] {
			counted[src.jobType] = true
			summary.DataPoints += len(points)
		}
		first := points[0]
		summary.Trends[src.category] = trendOf(points[len(points)-1], &first)
	}
	return summary, nil
}

func healthStatus(overall, covered int) string {
	switch {
	case covered == 0:
		return HealthUnknown
	case overall >= 80:
		return HealthExcellent
	case overall >= 60:
		return HealthGood
	case overall >= 40:
		return HealthFair
	default:
		return HealthPoor
	}
}

var healthCategories = map[string]struct {
	category analysis.Category
	jobType  analysis.JobType
}{
	"seo":         {analysis.CategoryTechnical, analysis.JobTypeSEOHealth},
	"performance": {analysis.CategoryPerformance, analysis.JobTypePerformance},
	"content":     {analysis.CategoryContent, analysis.JobTypeContentAnalysis},
	"competitive": {analysis.CategoryCompetitive, analysis.JobTypeCompetitiveIntelligence},
}

func healthRecommendations(report *ProjectHealthReport, missing []string) []analysis.Recommendation {
	var recs []analysis.Recommendation
	for _, m := range missing {
		c := healthCategories[m]
		recs = append(recs, analysis.Recommendation{
			Title:       fmt.Sprintf("Run a %s analysis", c.jobType),
			Description: fmt.Sprintf("The project has no %s data, its health score assumes a neutral %d.", m, neutralScore),
			Impact:      60,
			Effort:      analysis.EffortLow,
			Category:    analysis.CategoryStrategy,
			Implementation: analysis.ImplementationPlan{
				Steps:        []string{fmt.Sprintf("Submit a %s job for the project", c.jobType)},
				TimeEstimate: timeEstimate(analysis.EffortLow),
			},
		})
	}
	for _, t := range report.Stale {
		recs = append(recs, analysis.Recommendation{
			Title:       fmt.Sprintf("Refresh the %s analysis", t),
			Description: "The latest result is older than the selected timeframe.",
			Impact:      40,
			Effort:      analysis.EffortLow,
			Category:    analysis.CategoryStrategy,
			Implementation: analysis.ImplementationPlan{
				Steps:        []string{fmt.Sprintf("Submit a new %s job", t)},
				TimeEstimate: timeEstimate(analysis.EffortLow),
			},
		})
	}
	for _, w := range healthWeights {
		score := report.Scores()[w.Category]
		if score >= 60 || funk.ContainsString(missing, w.Category) {
			continue
		}
		c := healthCategories[w.Category]
		effort := analysis.EffortMedium
		if score < 40 {
			effort = analysis.EffortHigh
		}
		recs = append(recs, analysis.Recommendation{
			Title:       fmt.Sprintf("Improve %s health", w.Category),
			Description: fmt.Sprintf("The %s score of %d holds the project back.", w.Category, score),
			Impact:      clamp(100-score, 1, 100),
			Effort:      effort,
			Category:    c.category,
			Implementation: analysis.ImplementationPlan{
				Steps:        []string{fmt.Sprintf("Work through the issues of the latest %s result", c.jobType), "Re-run project health afterwards"},
				TimeEstimate: timeEstimate(effort),
			},
		})
	}
	if report.Historical != nil {
		for _, w := range healthWeights {
			category := w.Category
			trend, found := report.Historical.Trends[category]
			if !found || trend.Direction != analysis.DirectionDown {
				continue
			}
			recs = append(recs, analysis.Recommendation{
				Title:       fmt.Sprintf("Investigate the %s decline", category),
				Description: fmt.Sprintf("The %s score dropped %d points over %s.", category, trend.Magnitude, report.Historical.Timeframe),
				Impact:      clamp(30+trend.Magnitude, 1, 100),
				Effort:      analysis.EffortMedium,
				Category:    healthCategories[category].category,
				Implementation: analysis.ImplementationPlan{
					Steps:        []string{"Compare the first and latest results of the period", "Roll back or fix the regressing change"},
					TimeEstimate: timeEstimate(analysis.EffortMedium),
				},
			})
		}
	}
	return rankRecommendations(recs)
}
