package processor

import (
	"encoding/json"
	"fmt"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

type ContentComparison struct {
	URL          string `json:"url"`
	OverallScore int    `json:"overallScore"`
	WordCount    int    `json:"wordCount"`
	Keywords     int    `json:"keywords"`
}

type ContentAnalysisReport struct {
	OverallScore         int                       `json:"overallScore"`
	Keywords             int                       `json:"keywords"`
	Readability          int                       `json:"readability"`
	Structure            int                       `json:"structure"`
	Depth                int                       `json:"depth"`
	WordCount            int                       `json:"wordCount"`
	ReadingEase          float64                   `json:"readingEase"`
	KeywordDensity       map[string]float64        `json:"keywordDensity"`
	MissingKeywords      []string                  `json:"missingKeywords"`
	PagesAnalyzed        int                       `json:"pagesAnalyzed"`
	CompetitorComparison []ContentComparison       `json:"competitorComparison,omitempty"`
	ContentGaps          []string                  `json:"contentGaps,omitempty"`
	Issues               []analysis.Issue          `json:"issues"`
	Recommendations      []analysis.Recommendation `json:"recommendations"`
}

type PageSummary struct {
	Path         string `json:"path"`
	StatusCode   int    `json:"statusCode"`
	ResponseTime int64  `json:"responseTimeMs"`
	Reachable    bool   `json:"reachable"`
}

type SEOHealthReport struct {
	OverallScore    int                       `json:"overallScore"`
	Technical       int                       `json:"technical"`
	OnPage          int                       `json:"onPage"`
	Performance     int                       `json:"performance"`
	Mobile          int                       `json:"mobile"`
	PagesAnalyzed   int                       `json:"pagesAnalyzed"`
	Pages           []PageSummary             `json:"pages"`
	CriticalIssues  []analysis.Issue          `json:"criticalIssues"`
	Issues          []analysis.Issue          `json:"issues"`
	Recommendations []analysis.Recommendation `json:"recommendations"`
}

type CoreWebVitals struct {
	LCP  int64   `json:"lcpMs"`
	FID  int64   `json:"fidMs"`
	CLS  float64 `json:"cls"`
	TTFB int64   `json:"ttfbMs"`
}

type Measurement struct {
	Path     string          `json:"path"`
	Device   analysis.Device `json:"device"`
	Location string          `json:"location"`
	Score    int             `json:"score"`
	Scores   map[string]int  `json:"scores"`
	Vitals   CoreWebVitals   `json:"vitals"`
	Bytes    int             `json:"bytes"`
}

type PerformanceReport struct {
	OverallScore    int                       `json:"overallScore"`
	Speed           int                       `json:"speed"`
	Interactivity   int                       `json:"interactivity"`
	Stability       int                       `json:"stability"`
	Efficiency      int                       `json:"efficiency"`
	Vitals          CoreWebVitals             `json:"vitals"`
	DeviceScores    map[analysis.Device]int   `json:"deviceScores"`
	Measurements    []Measurement             `json:"measurements"`
	Issues          []analysis.Issue          `json:"issues"`
	Recommendations []analysis.Recommendation `json:"recommendations"`
}

type CompetitorScore struct {
	Domain       string `json:"domain"`
	OverallScore int    `json:"overallScore"`
	Content      int    `json:"content"`
	Keywords     int    `json:"keywords"`
	Technical    int    `json:"technical"`
	Performance  int    `json:"performance"`
	Reachable    bool   `json:"reachable"`
}

type CompetitiveReport struct {
	OverallScore          int                       `json:"overallScore"`
	Content               int                       `json:"content"`
	Keywords              int                       `json:"keywords"`
	Technical             int                       `json:"technical"`
	Performance           int                       `json:"performance"`
	MarketPosition        int                       `json:"marketPosition"`
	CompetitivePercentile int                       `json:"competitivePercentile"`
	PerformanceRank       int                       `json:"performanceRank"`
	Trend                 analysis.Trend            `json:"trend"`
	Competitors           []CompetitorScore         `json:"competitors"`
	KeywordGaps           []string                  `json:"keywordGaps,omitempty"`
	Recommendations       []analysis.Recommendation `json:"recommendations"`
}

type MetricComparison struct {
	Metric          string         `json:"metric"`
	Value           int            `json:"value"`
	IndustryAverage int            `json:"industryAverage"`
	TopQuartile     int            `json:"topQuartile"`
	Percentile      int            `json:"percentile"`
	Gap             int            `json:"gap"`
	Estimated       bool           `json:"estimated"`
	Trend           analysis.Trend `json:"trend"`
}

type BenchmarkReport struct {
	OverallScore       int                       `json:"overallScore"`
	SEO                int                       `json:"seo"`
	Performance        int                       `json:"performance"`
	Content            int                       `json:"content"`
	Technical          int                       `json:"technical"`
	Industry           string                    `json:"industry"`
	Region             string                    `json:"region"`
	IndustryPercentile int                       `json:"industryPercentile"`
	MarketPosition     int                       `json:"marketPosition"`
	PerformanceRank    int                       `json:"performanceRank"`
	PeerGroupSize      int                       `json:"peerGroupSize"`
	Trend              analysis.Trend            `json:"trend"`
	Comparisons        []MetricComparison        `json:"comparisons"`
	Recommendations    []analysis.Recommendation `json:"recommendations"`
}

type HistoricalSummary struct {
	Timeframe  analysis.Timeframe        `json:"timeframe"`
	DataPoints int                       `json:"dataPoints"`
	Trends     map[string]analysis.Trend `json:"trends"`
}

type ProjectHealthReport struct {
	OverallScore    int                       `json:"overallScore"`
	SEO             int                       `json:"seo"`
	Performance     int                       `json:"performance"`
	Content         int                       `json:"content"`
	Competitive     int                       `json:"competitive"`
	Status          string                    `json:"status"`
	Coverage        []analysis.JobType        `json:"coverage"`
	Stale           []analysis.JobType        `json:"stale,omitempty"`
	Historical      *HistoricalSummary        `json:"historical,omitempty"`
	Recommendations []analysis.Recommendation `json:"recommendations"`
}

func (r *ContentAnalysisReport) Overall() int { return r.OverallScore }
func (r *SEOHealthReport) Overall() int       { return r.OverallScore }
func (r *PerformanceReport) Overall() int     { return r.OverallScore }
func (r *CompetitiveReport) Overall() int     { return r.OverallScore }
func (r *BenchmarkReport) Overall() int       { return r.OverallScore }
func (r *ProjectHealthReport) Overall() int   { return r.OverallScore }

func (r *ContentAnalysisReport) Scores() map[string]int {
	return map[string]int{"keywords": r.Keywords, "readability": r.Readability, "structure": r.Structure, "depth": r.Depth}
}

func (r *SEOHealthReport) Scores() map[string]int {
	return map[string]int{"technical": r.Technical, "onPage": r.OnPage, "performance": r.Performance, "mobile": r.Mobile}
}

func (r *PerformanceReport) Scores() map[string]int {
	return map[string]int{"speed": r.Speed, "interactivity": r.Interactivity, "stability": r.Stability, "efficiency": r.Efficiency}
}

func (r *CompetitiveReport) Scores() map[string]int {
	return map[string]int{"content": r.Content, "keywords": r.Keywords, "technical": r.Technical, "performance": r.Performance}
}

func (r *BenchmarkReport) Scores() map[string]int {
	return map[string]int{"seo": r.SEO, "performance": r.Performance, "content": r.Content, "technical": r.Technical}
}

func (r *ProjectHealthReport) Scores() map[string]int {
	return map[string]int{"seo": r.SEO, "performance": r.Performance, "content": r.Content, "competitive": r.Competitive}
}

// DecodeReport rebuilds a stored report of type t.
func DecodeReport(t analysis.JobType, raw []byte) (ScoredReport, error) {
	var report ScoredReport
	switch t {
	case analysis.JobTypeContentAnalysis:
		report = &ContentAnalysisReport{}
	case analysis.JobTypeSEOHealth:
		report = &SEOHealthReport{}
	case analysis.JobTypePerformance:
		report = &PerformanceReport{}
	case analysis.JobTypeCompetitiveIntelligence:
		report = &CompetitiveReport{}
	case analysis.JobTypeIndustryBenchmarking:
		report = &BenchmarkReport{}
	case analysis.JobTypeProjectHealth:
		report = &ProjectHealthReport{}
	default:
		return nil, fmt.Errorf("unknown analysis type %q", t)
	}
	if err := json.Unmarshal(raw, report); err != nil {
		return nil, fmt.Errorf("failed to decode %s report: %w", t, err)
	}
	return report, nil
}
