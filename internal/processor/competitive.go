package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/thoas/go-funk"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

const (
	competitiveSecondsPerSite    = 20
	competitiveSecondsPerKeyword = 15
	// competitiveGapThreshold is how far a competitor must lead a category before it is
	// worth a recommendation.
	competitiveGapThreshold = 10
)

var competitiveWeights = Weights{
	{Category: "content", Weight: 0.30},
	{Category: "keywords", Weight: 0.30},
	{Category: "technical", Weight: 0.25},
	{Category: "performance", Weight: 0.15},
}

// CompetitiveIntelligenceProcessor scores a domain against its competitors and places it
// in the market.
type CompetitiveIntelligenceProcessor struct {
	fetcher SiteFetcher
	results ResultReader
}

var _ Processor = (*CompetitiveIntelligenceProcessor)(nil)

func NewCompetitiveIntelligenceProcessor(fetcher SiteFetcher, results ResultReader) *CompetitiveIntelligenceProcessor {
	return &CompetitiveIntelligenceProcessor{fetcher: fetcher, results: results}
}

func (p *CompetitiveIntelligenceProcessor) Type() analysis.JobType {
	return analysis.JobTypeCompetitiveIntelligence
}

func (p *CompetitiveIntelligenceProcessor) Validate(data analysis.JobData) error {
	return analysis.Validate(p.Type(), data)
}

func (p *CompetitiveIntelligenceProcessor) EstimateProcessingTime(data analysis.JobData) time.Duration {
	params, ok := paramsOf[analysis.CompetitiveIntelligenceParams](data)
	if !ok {
		return 0
	}
	seconds := competitiveSecondsPerSite * (1 + len(params.CompetitorDomains))
	if params.AnalysisScope == analysis.ScopeComprehensive {
		seconds += competitiveSecondsPerKeyword * len(params.Keywords)
	}
	return time.Duration(seconds) * time.Second
}

func (p *CompetitiveIntelligenceProcessor) Contract() Contract {
	return Contract{
		Type:     p.Type(),
		Weights:  competitiveWeights,
		Estimate: "20s per domain including the target, +15s per keyword with comprehensive scope",
	}
}

func (p *CompetitiveIntelligenceProcessor) Process(ctx context.Context, job *analysis.Job, progress ProgressFunc) (*analysis.JobResult, error) {
	started := time.Now()
	if progress == nil {
		progress = noProgress
	}
	params, ok := paramsOf[analysis.CompetitiveIntelligenceParams](job.Data)
	if !ok {
		return nil, fmt.Errorf("competitive-intelligence job %s carries %T params", job.ID, job.Data.Params)
	}
	if err := p.Validate(job.Data); err != nil {
		return analysis.Failed(err.Error(), false), nil
	}

	domains := append([]string{params.TargetDomain}, params.CompetitorDomains...)
	urls := make([]string, len(domains))
	for i, d := range domains {
		urls[i] = "https://" + strings.ToLower(d) + "/"
	}
	progress(10, fmt.Sprintf("fetching %d domains", len(domains)))
	pages, errs := fetchAll(ctx, p.fetcher, urls, seoFetchConcurrency)
	if errs[0] != nil {
		return analysis.Failed(fmt.Sprintf("failed to fetch %s: %v", params.TargetDomain, errs[0]), IsRetryable(errs[0])), nil
	}
	if !pages[0].OK() {
		return analysis.Failed(fmt.Sprintf("%s responded %d", params.TargetDomain, pages[0].StatusCode), false), nil
	}

	progress(50, "scoring domains")
	keywords := funk.UniqString(funk.Map(params.Keywords, normalizeKeyword).([]string))
	target := scoreSite(params.TargetDomain, pages[0], keywords)
	competitors := make([]CompetitorScore, 0, len(params.CompetitorDomains))
	for i := 1; i < len(domains); i++ {
		if errs[i] != nil || !pages[i].OK() {
			competitors = append(competitors, CompetitorScore{Domain: domains[i]})
			continue
		}
		competitors = append(competitors, scoreSite(domains[i], pages[i], keywords))
	}

	report := &CompetitiveReport{
		Content:     target.Content,
		Keywords:    target.Keywords,
		Technical:   target.Technical,
		Performance: target.Performance,
		Competitors: competitors,
	}
	report.OverallScore = competitiveWeights.Overall(report.Scores())
	rankAgainst(report, target, competitors)

	progress(75, "comparing with previous results")
	previous, _, err := latestScores(ctx, p.results, job.Data.ProjectID, analysis.JobTypeCompetitiveIntelligence)
	if err != nil {
		return analysis.Failed(fmt.Sprintf("failed to read previous results: %v", err), true), nil
	}
	if previous != nil {
		prev := previous.Overall()
		report.Trend = trendOf(report.OverallScore, &prev)
	} else {
		report.Trend = trendOf(report.OverallScore, nil)
	}

	if params.AnalysisScope == analysis.ScopeComprehensive {
		report.KeywordGaps = keywordGaps(pages, errs, keywords)
	}
	report.Recommendations = competitiveRecommendations(report, target, competitors)

	reachable := 0
	for _, c := range competitors {
		if c.Reachable {
			reachable++
		}
	}
	return analysis.Succeeded(report, &analysis.Metadata{
		ProcessingTime: time.Since(started),
		ResourcesUsed:  map[string]int{"domains": len(domains), "keywords": len(keywords)},
		QualityScore:   ratioScore(reachable, len(competitors)),
	}), nil
}

func scoreSite(domain string, page *Page, keywords []string) CompetitorScore {
	content := float64(ratioScore(page.WordCount, 1000))*0.5 +
		float64(min(page.H2, 5)*10+min(page.Paragraphs, 5)*10)*0.5

	corpus := page.Title + " " + strings.Join(page.H1, " ") + " " + page.Text
	found, inTitle := 0, 0
	for _, k := range keywords {
		if containsPhrase(corpus, k) {
			found++
		}
		if containsPhrase(page.Title, k) {
			inTitle++
		}
	}
	kw := float64(ratioScore(found, len(keywords)))*0.8 + float64(ratioScore(inTitle, len(keywords)))*0.2

	technical := 0
	if page.HTTPS {
		technical += 30
	}
	if page.MetaDescription != "" {
		technical += 20
	}
	if page.Canonical != "" {
		technical += 15
	}
	if page.StructuredData {
		technical += 20
	}
	if page.OpenGraph {
		technical += 15
	}

	performance := float64(bandScore(float64(page.ResponseTime.Milliseconds()), 200, 2000))*0.6 +
		float64(bandScore(float64(page.Bytes), 500<<10, 3<<20))*0.4

	s := CompetitorScore{
		Domain:      domain,
		Content:     clampScore(content),
		Keywords:    clampScore(kw),
		Technical:   clamp(technical, 0, 100),
		Performance: clampScore(performance),
		Reachable:   true,
	}
	s.OverallScore = competitiveWeights.Overall(map[string]int{
		"content": s.Content, "keywords": s.Keywords, "technical": s.Technical, "performance": s.Performance,
	})
	return s
}

// rankAgainst places the target among the reachable competitors. Ties count half.
func rankAgainst(report *CompetitiveReport, target CompetitorScore, competitors []CompetitorScore) {
	beaten, compared := 0.0, 0
	rank := 1
	for _, c := range competitors {
		if !c.Reachable {
			continue
		}
		compared++
		switch {
		case target.OverallScore > c.OverallScore:
			beaten++
		case target.OverallScore == c.OverallScore:
			beaten += 0.5
		}
		if c.Performance > target.Performance {
			rank++
		}
	}
	if compared == 0 {
		report.CompetitivePercentile = 50
	} else {
		report.CompetitivePercentile = clampScore(100 * beaten / float64(compared))
	}
	report.MarketPosition = marketPosition(report.CompetitivePercentile)
	report.PerformanceRank = rank

	sort.SliceStable(report.Competitors, func(i, j int) bool {
		return report.Competitors[i].OverallScore > report.Competitors[j].OverallScore
	})
}

// keywordGaps are keywords at least one competitor covers and the target does not.
func keywordGaps(pages []*Page, errs []error, keywords []string) []string {
	if errs[0] != nil {
		return nil
	}
	gaps := []string{}
	for _, k := range keywords {
		if containsPhrase(pages[0].Title+" "+pages[0].Text, k) {
			continue
		}
		for i := 1; i < len(pages); i++ {
			if errs[i] == nil && pages[i] != nil && containsPhrase(pages[i].Title+" "+pages[i].Text, k) {
				gaps = append(gaps, k)
				break
			}
		}
	}
	return gaps
}

func competitiveRecommendations(report *CompetitiveReport, target CompetitorScore, competitors []CompetitorScore) []analysis.Recommendation {
	type category struct {
		name     string
		category analysis.Category
		score    func(CompetitorScore) int
		steps    []string
	}
	categories := []category{
		{"content", analysis.CategoryContent, func(s CompetitorScore) int { return s.Content },
			[]string{"Audit the leader's content sections", "Expand thin pages", "Add supporting articles"}},
		{"keywords", analysis.CategoryKeywords, func(s CompetitorScore) int { return s.Keywords },
			[]string{"Map missing keywords to pages", "Rework titles and headings around them"}},
		{"technical", analysis.CategoryTechnical, func(s CompetitorScore) int { return s.Technical },
			[]string{"Add structured data", "Set canonical urls", "Complete Open Graph tags"}},
		{"performance", analysis.CategoryPerformance, func(s CompetitorScore) int { return s.Performance },
			[]string{"Cache the home page at the edge", "Trim page weight"}},
	}

	var recs []analysis.Recommendation
	for _, c := range categories {
		var leader *CompetitorScore
		for i := range competitors {
			if competitors[i].Reachable && (leader == nil || c.score(competitors[i]) > c.score(*leader)) {
				leader = &competitors[i]
			}
		}
		if leader == nil {
			continue
		}
		gap := c.score(*leader) - c.score(target)
		if gap <= competitiveGapThreshold {
			continue
		}
		effort := analysis.EffortMedium
		if gap > 40 {
			effort = analysis.EffortHigh
		}
		recs = append(recs, analysis.Recommendation{
			Title:       fmt.Sprintf("Close the %s gap with %s", c.name, leader.Domain),
			Description: fmt.Sprintf("%s leads on %s by %d points.", leader.Domain, c.name, gap),
			Impact:      clamp(gap+20, 1, 100),
			Effort:      effort,
			Category:    c.category,
			Implementation: analysis.ImplementationPlan{
				Steps:        c.steps,
				TimeEstimate: timeEstimate(effort),
			},
		})
	}

	if len(report.KeywordGaps) > 0 {
		recs = append(recs, analysis.Recommendation{
			Title:       "Target keywords competitors already rank for",
			Description: fmt.Sprintf("Competitors cover %d keywords your site does not: %s.", len(report.KeywordGaps), strings.Join(report.KeywordGaps, ", ")),
			Impact:      clamp(40+5*len(report.KeywordGaps), 1, 100),
			Effort:      analysis.EffortMedium,
			Category:    analysis.CategoryKeywords,
			Implementation: analysis.ImplementationPlan{
				Steps:        []string{"Create or extend a page per keyword", "Link to it from related pages"},
				TimeEstimate: timeEstimate(analysis.EffortMedium),
			},
		})
	}
	if report.MarketPosition > 5 {
		recs = append(recs, analysis.Recommendation{
			Title:       "Reposition against market leaders",
			Description: fmt.Sprintf("The site sits in position %d of 10 against its competitors.", report.MarketPosition),
			Impact:      clamp(report.MarketPosition*8, 1, 100),
			Effort:      analysis.EffortHigh,
			Category:    analysis.CategoryCompetitive,
			Implementation: analysis.ImplementationPlan{
				Steps:        []string{"Pick the two weakest categories", "Set quarterly targets against the leader", "Re-run the analysis monthly"},
				TimeEstimate: timeEstimate(analysis.EffortHigh),
			},
		})
	}
	return rankRecommendations(recs)
}
