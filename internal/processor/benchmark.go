package processor

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gosimple/slug"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

const (
	benchmarkBaseSeconds      = 30
	benchmarkSecondsPerMetric = 10
	// topQuartileZ is the z-score of the 75th percentile of a normal distribution.
	topQuartileZ = 0.674
)

var benchmarkWeights = Weights{
	{Category: analysis.MetricSEO, Weight: 0.30},
	{Category: analysis.MetricPerformance, Weight: 0.25},
	{Category: analysis.MetricContent, Weight: 0.25},
	{Category: analysis.MetricTechnical, Weight: 0.20},
}

//go:embed data/baselines.yaml
var baselinesYAML []byte

type Distribution struct {
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
}

type IndustryBaseline struct {
	Peers   int                     `json:"peers"`
	Aliases []string                `json:"aliases"`
	Metrics map[string]Distribution `json:"metrics"`
}

// Baselines are the industry distributions projects are ranked against.
type Baselines struct {
	Default    string                      `json:"default"`
	Regions    map[string]float64          `json:"regions"`
	Industries map[string]IndustryBaseline `json:"industries"`
}

var loadBaselines = sync.OnceValues(func() (*Baselines, error) {
	return ParseBaselines(baselinesYAML)
})

func ParseBaselines(raw []byte) (*Baselines, error) {
	var b Baselines
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to parse industry baselines: %w", err)
	}
	if _, found := b.Industries[b.Default]; !found {
		return nil, fmt.Errorf("default industry %q has no baseline", b.Default)
	}
	for name, ind := range b.Industries {
		for _, m := range analysis.BenchmarkMetrics {
			if _, found := ind.Metrics[m]; !found {
				return nil, fmt.Errorf("industry %q has no %s baseline", name, m)
			}
		}
	}
	return &b, nil
}

// Lookup resolves a free-form industry and region. Unknown industries fall back to the
// default baseline, unknown regions to a factor of 1.
func (b *Baselines) Lookup(industry, region string) (string, IndustryBaseline, float64) {
	key := slug.Make(industry)
	name := b.Default
	if _, found := b.Industries[key]; found {
		name = key
	} else {
		for n, ind := range b.Industries {
			if funk.ContainsString(ind.Aliases, key) {
				name = n
				break
			}
		}
	}
	factor, found := b.Regions[slug.Make(region)]
	if !found || factor <= 0 {
		factor = 1
	}
	return name, b.Industries[name], factor
}

// IndustryBenchmarkingProcessor ranks a project's latest scores against industry peers.
type IndustryBenchmarkingProcessor struct {
	results ResultReader
}

var _ Processor = (*IndustryBenchmarkingProcessor)(nil)

func NewIndustryBenchmarkingProcessor(results ResultReader) *IndustryBenchmarkingProcessor {
	return &IndustryBenchmarkingProcessor{results: results}
}

func (p *IndustryBenchmarkingProcessor) Type() analysis.JobType {
	return analysis.JobTypeIndustryBenchmarking
}

func (p *IndustryBenchmarkingProcessor) Validate(data analysis.JobData) error {
	return analysis.Validate(p.Type(), data)
}

func (p *IndustryBenchmarkingProcessor) EstimateProcessingTime(data analysis.JobData) time.Duration {
	params, ok := paramsOf[analysis.IndustryBenchmarkingParams](data)
	if !ok {
		return 0
	}
	return time.Duration(benchmarkBaseSeconds+benchmarkSecondsPerMetric*len(params.TargetMetrics)) * time.Second
}

func (p *IndustryBenchmarkingProcessor) Contract() Contract {
	return Contract{
		Type:     p.Type(),
		Weights:  benchmarkWeights,
		Estimate: "30s + 10s per target metric",
	}
}

func (p *IndustryBenchmarkingProcessor) Process(ctx context.Context, job *analysis.Job, progress ProgressFunc) (*analysis.JobResult, error) {
	started := time.Now()
	if progress == nil {
		progress = noProgress
	}
	params, ok := paramsOf[analysis.IndustryBenchmarkingParams](job.Data)
	if !ok {
		return nil, fmt.Errorf("industry-benchmarking job %s carries %T params", job.ID, job.Data.Params)
	}
	if err := p.Validate(job.Data); err != nil {
		return analysis.Failed(err.Error(), false), nil
	}
	baselines, err := loadBaselines()
	if err != nil {
		return nil, err
	}

	progress(20, "collecting project scores")
	values, err := p.projectValues(ctx, job.Data.ProjectID)
	if err != nil {
		return analysis.Failed(fmt.Sprintf("failed to read project results: %v", err), true), nil
	}
	if len(values) == 0 {
		return analysis.Failed("no seo-health, performance or content-analysis results to benchmark, run those analyses first", false), nil
	}

	progress(60, "ranking against industry peers")
	industry, baseline, factor := baselines.Lookup(params.Industry, params.Region)
	report := &BenchmarkReport{
		Industry:      industry,
		Region:        params.Region,
		PeerGroupSize: baseline.Peers,
	}

	var previous *BenchmarkReport
	prev, _, err := latestScores(ctx, p.results, job.Data.ProjectID, analysis.JobTypeIndustryBenchmarking)
	if err != nil {
		return analysis.Failed(fmt.Sprintf("failed to read previous benchmark: %v", err), true), nil
	}
	if b, ok := prev.(*BenchmarkReport); ok {
		previous = b
	}

	percentiles := make(map[string]int, len(analysis.BenchmarkMetrics))
	var weighted, weightedMean, variance float64
	for _, w := range benchmarkWeights {
		dist := baseline.Metrics[w.Category]
		mean := dist.Mean * factor
		value, known := values[w.Category]
		if !known {
			value = int(math.Round(mean))
		}
		percentiles[w.Category] = normalPercentile(float64(value), mean, dist.Stddev)
		weighted += float64(value) * w.Weight
		weightedMean += mean * w.Weight
		variance += w.Weight * w.Weight * dist.Stddev * dist.Stddev

		if !funk.ContainsString(params.TargetMetrics, w.Category) {
			continue
		}
		top := clampScore(mean + topQuartileZ*dist.Stddev)
		c := MetricComparison{
			Metric:          w.Category,
			Value:           value,
			IndustryAverage: clampScore(mean),
			TopQuartile:     top,
			Percentile:      percentiles[w.Category],
			Gap:             value - clampScore(mean),
			Estimated:       !known,
		}
		c.Trend = trendOf(c.Percentile, previousPercentile(previous, w.Category))
		report.Comparisons = append(report.Comparisons, c)
	}

	report.SEO = percentiles[analysis.MetricSEO]
	report.Performance = percentiles[analysis.MetricPerformance]
	report.Content = percentiles[analysis.MetricContent]
	report.Technical = percentiles[analysis.MetricTechnical]
	report.OverallScore = benchmarkWeights.Overall(report.Scores())
	report.IndustryPercentile = normalPercentile(weighted, weightedMean, math.Sqrt(variance))
	report.MarketPosition = marketPosition(report.IndustryPercentile)
	report.PerformanceRank = 1 + int(math.Round(float64(100-report.IndustryPercentile)/100*float64(max(report.PeerGroupSize-1, 0))))
	if previous != nil {
		report.Trend = trendOf(report.OverallScore, &previous.OverallScore)
	} else {
		report.Trend = trendOf(report.OverallScore, nil)
	}
	report.Recommendations = benchmarkRecommendations(report)

	return analysis.Succeeded(report, &analysis.Metadata{
		ProcessingTime: time.Since(started),
		ResourcesUsed:  map[string]int{"metrics": len(params.TargetMetrics), "sources": len(values)},
		QualityScore:   ratioScore(len(values), len(analysis.BenchmarkMetrics)),
	}), nil
}

// projectValues reads raw metric values from the latest results of the project. A metric
// with no source is left out.
func (p *IndustryBenchmarkingProcessor) projectValues(ctx context.Context, projectID string) (map[string]int, error) {
	seo, _, err := latestScores(ctx, p.results, projectID, analysis.JobTypeSEOHealth)
	if err != nil {
		return nil, err
	}
	perf, _, err := latestScores(ctx, p.results, projectID, analysis.JobTypePerformance)
	if err != nil {
		return nil, err
	}
	content, _, err := latestScores(ctx, p.results, projectID, analysis.JobTypeContentAnalysis)
	if err != nil {
		return nil, err
	}

	values := map[string]int{}
	if seo != nil {
		values[analysis.MetricSEO] = seo.Overall()
		values[analysis.MetricTechnical] = seo.Scores()["technical"]
		values[analysis.MetricPerformance] = seo.Scores()["performance"]
		values[analysis.MetricContent] = seo.Scores()["onPage"]
	}
	if perf != nil {
		values[analysis.MetricPerformance] = perf.Overall()
	}
	if content != nil {
		values[analysis.MetricContent] = content.Overall()
	}
	return values, nil
}

func previousPercentile(prev *BenchmarkReport, metric string) *int {
	if prev == nil {
		return nil
	}
	for _, c := range prev.Comparisons {
		if c.Metric == metric {
			v := c.Percentile
			return &v
		}
	}
	return nil
}

var benchmarkCategories = map[string]analysis.Category{
	analysis.MetricSEO:         analysis.CategoryKeywords,
	analysis.MetricPerformance: analysis.CategoryPerformance,
	analysis.MetricContent:     analysis.CategoryContent,
	analysis.MetricTechnical:   analysis.CategoryTechnical,
}

func benchmarkRecommendations(report *BenchmarkReport) []analysis.Recommendation {
	var recs []analysis.Recommendation
	for _, c := range report.Comparisons {
		if c.Value >= c.TopQuartile {
			continue
		}
		effort := analysis.EffortMedium
		if c.Value < c.IndustryAverage {
			effort = analysis.EffortHigh
		}
		desc := fmt.Sprintf("Your %s score of %d sits at the %d percentile of %s sites, the top quartile starts at %d.",
			c.Metric, c.Value, c.Percentile, report.Industry, c.TopQuartile)
		if c.Estimated {
			desc = fmt.Sprintf("No %s measurement exists for this project, it was assumed to match the %s average.", c.Metric, report.Industry)
		}
		recs = append(recs, analysis.Recommendation{
			Title:       fmt.Sprintf("Raise %s to the industry top quartile", c.Metric),
			Description: desc,
			Impact:      clamp(100-c.Percentile, 1, 100),
			Effort:      effort,
			Category:    benchmarkCategories[c.Metric],
			Implementation: analysis.ImplementationPlan{
				Steps: []string{
					fmt.Sprintf("Review the latest %s findings", c.Metric),
					fmt.Sprintf("Close %d points to reach the top quartile", c.TopQuartile-c.Value),
					"Re-run the benchmark after changes ship",
				},
				TimeEstimate: timeEstimate(effort),
			},
		})
	}
	if report.IndustryPercentile < 25 {
		recs = append(recs, analysis.Recommendation{
			Title:       "Build a plan to leave the bottom quartile",
			Description: fmt.Sprintf("The project ranks %d of %d %s peers.", report.PerformanceRank, report.PeerGroupSize, report.Industry),
			Impact:      80,
			Effort:      analysis.EffortHigh,
			Category:    analysis.CategoryStrategy,
			Implementation: analysis.ImplementationPlan{
				Steps:        []string{"Prioritise the metric with the largest gap", "Set a quarterly percentile target"},
				TimeEstimate: timeEstimate(analysis.EffortHigh),
			},
		})
	}
	return rankRecommendations(recs)
}
