package processor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/thoas/go-funk"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

const (
	contentBasicSeconds         = 30
	contentComprehensiveSeconds = 60
	contentEnterpriseSeconds    = 120
	contentSecondsPerCompetitor = 20
	contentCrawlLimit           = 5
	contentDepthWordCount       = 1200
	idealReadingEase            = 60
)

var contentWeights = Weights{
	{Category: "keywords", Weight: 0.30},
	{Category: "readability", Weight: 0.25},
	{Category: "structure", Weight: 0.20},
	{Category: "depth", Weight: 0.25},
}

var (
	findingMissingKeywords = newFinding(analysis.IssueContent, analysis.SeverityHigh, 75, analysis.EffortMedium,
		"Target keywords missing from content",
		"Some target keywords never appear in the analysed content.",
		"Work every target keyword naturally into the copy.",
		"Map each keyword to a page", "Add the keyword to a heading and the first paragraph", "Write supporting copy around it")
	findingKeywordsNotInTitle = newFinding(analysis.IssueOnPage, analysis.SeverityMedium, 55, analysis.EffortLow,
		"Primary keyword missing from title and H1",
		"Neither the title nor the main heading mentions the primary keyword.",
		"Put the primary keyword in the title tag and H1.",
		"Rewrite the title to lead with the keyword", "Align the H1 with the title")
	findingKeywordStuffing = newFinding(analysis.IssueContent, analysis.SeverityMedium, 50, analysis.EffortLow,
		"Keyword density above 4%",
		"At least one keyword is repeated so often that the copy reads as stuffed.",
		"Replace repeats with synonyms and related terms.",
		"Find the over-used keyword", "Rewrite sentences with natural variants")
	findingHardToRead = newFinding(analysis.IssueContent, analysis.SeverityMedium, 50, analysis.EffortMedium,
		"Content is hard to read",
		"Long sentences and long words push the reading ease below the recommended level.",
		"Shorten sentences and prefer plain words.",
		"Split sentences longer than 25 words", "Replace jargon with common words", "Use active voice")
	findingWeakStructure = newFinding(analysis.IssueContent, analysis.SeverityMedium, 45, analysis.EffortLow,
		"Content lacks structure",
		"The copy has few subheadings, paragraphs or lists to scan.",
		"Break the copy into sections with descriptive subheadings.",
		"Add H2 subheadings every 300 words", "Use lists for steps and features")
	findingShallowContent = newFinding(analysis.IssueContent, analysis.SeverityHigh, 65, analysis.EffortHigh,
		"Content is shallow",
		"The content is too short to cover the topic in depth.",
		"Expand the content to answer the questions searchers ask.",
		"Research related questions", "Add examples and data", "Aim for at least 1200 words on key pages")
	findingCompetitorsLonger = newFinding(analysis.IssueContent, analysis.SeverityMedium, 50, analysis.EffortHigh,
		"Competitors publish longer content",
		"Competing pages cover the same topic in considerably more depth.",
		"Close the depth gap with competing pages.",
		"Compare section coverage with the top competitor", "Add the missing sections")
)

// ContentAnalysisProcessor scores keyword coverage, readability, structure and depth of a
// page, optionally against competing pages.
type ContentAnalysisProcessor struct {
	fetcher SiteFetcher
}

var _ Processor = (*ContentAnalysisProcessor)(nil)

func NewContentAnalysisProcessor(fetcher SiteFetcher) *ContentAnalysisProcessor {
	return &ContentAnalysisProcessor{fetcher: fetcher}
}

func (p *ContentAnalysisProcessor) Type() analysis.JobType {
	return analysis.JobTypeContentAnalysis
}

func (p *ContentAnalysisProcessor) Validate(data analysis.JobData) error {
	return analysis.Validate(p.Type(), data)
}

func (p *ContentAnalysisProcessor) EstimateProcessingTime(data analysis.JobData) time.Duration {
	params, ok := paramsOf[analysis.ContentAnalysisParams](data)
	if !ok {
		return 0
	}
	var seconds int
	switch params.AnalysisDepth {
	case analysis.DepthEnterprise:
		seconds = contentEnterpriseSeconds
	case analysis.DepthComprehensive:
		seconds = contentComprehensiveSeconds
	default:
		return contentBasicSeconds * time.Second
	}
	seconds += contentSecondsPerCompetitor * len(params.CompetitorURLs)
	return time.Duration(seconds) * time.Second
}

func (p *ContentAnalysisProcessor) Contract() Contract {
	return Contract{
		Type:     p.Type(),
		Weights:  contentWeights,
		Estimate: "basic 30s, comprehensive 60s, enterprise 120s, +20s per competitor url above basic",
	}
}

func (p *ContentAnalysisProcessor) Process(ctx context.Context, job *analysis.Job, progress ProgressFunc) (*analysis.JobResult, error) {
	started := time.Now()
	if progress == nil {
		progress = noProgress
	}
	params, ok := paramsOf[analysis.ContentAnalysisParams](job.Data)
	if !ok {
		return nil, fmt.Errorf("content-analysis job %s carries %T params", job.ID, job.Data.Params)
	}
	if err := p.Validate(job.Data); err != nil {
		return analysis.Failed(err.Error(), false), nil
	}
	keywords := funk.UniqString(funk.Map(params.TargetKeywords, normalizeKeyword).([]string))

	progress(10, "fetching "+params.WebsiteURL)
	main, err := p.fetcher.Fetch(ctx, params.WebsiteURL)
	if err != nil {
		return analysis.Failed(fmt.Sprintf("failed to fetch %s: %v", params.WebsiteURL, err), IsRetryable(err)), nil
	}
	if !main.OK() {
		return analysis.Failed(fmt.Sprintf("%s responded %d", params.WebsiteURL, main.StatusCode), false), nil
	}

	pages := []*Page{main}
	if params.AnalysisDepth == analysis.DepthEnterprise && len(main.InternalLinks) > 0 {
		links := append([]string(nil), main.InternalLinks...)
		sort.Strings(links)
		links = links[:min(len(links), contentCrawlLimit)]
		progress(25, fmt.Sprintf("crawling %d linked pages", len(links)))
		urls := make([]string, len(links))
		for i, l := range links {
			urls[i] = resolve(params.WebsiteURL, l)
		}
		crawled, errs := fetchAll(ctx, p.fetcher, urls, seoFetchConcurrency)
		for i, page := range crawled {
			if errs[i] == nil && page.OK() && page.URL != main.URL {
				pages = append(pages, page)
			}
		}
	}

	var competitors []*Page
	if params.AnalysisDepth != analysis.DepthBasic && len(params.CompetitorURLs) > 0 {
		progress(40, fmt.Sprintf("fetching %d competitor pages", len(params.CompetitorURLs)))
		fetched, errs := fetchAll(ctx, p.fetcher, params.CompetitorURLs, seoFetchConcurrency)
		for i, page := range fetched {
			if errs[i] == nil && page.OK() {
				competitors = append(competitors, page)
			}
		}
	}

	progress(60, "scoring content")
	f := newFindings()
	report := scoreContent(pages, keywords, f)

	if len(competitors) > 0 {
		progress(80, "comparing with competitors")
		compareContent(report, pages, competitors, keywords, f)
	}
	report.Issues = f.issues()
	report.Recommendations = f.recommendations()

	return analysis.Succeeded(report, &analysis.Metadata{
		ProcessingTime: time.Since(started),
		ResourcesUsed:  map[string]int{"pages": len(pages), "competitors": len(competitors)},
		QualityScore:   ratioScore(len(competitors)+1, len(params.CompetitorURLs)+1),
	}), nil
}

// scoreContent scores the combined text of pages. The first page is the primary page.
func scoreContent(pages []*Page, keywords []string, f *findings) *ContentAnalysisReport {
	main := pages[0]
	var text strings.Builder
	h2, paragraphs, lists, images := 0, 0, 0, 0
	for _, p := range pages {
		text.WriteString(p.Text)
		text.WriteByte(' ')
		h2 += p.H2
		paragraphs += p.Paragraphs
		lists += p.Lists
		images += p.Images
	}
	body := text.String()
	stats := analyzeText(body)

	report := &ContentAnalysisReport{
		WordCount:      stats.Words,
		ReadingEase:    stats.ReadingEase(),
		KeywordDensity: make(map[string]float64, len(keywords)),
		PagesAnalyzed:  len(pages),
	}

	found := 0
	stuffed := false
	for _, k := range keywords {
		n := occurrences(body, k)
		density := 0.0
		if stats.Words > 0 {
			density = math.Round(float64(n*len(words(k)))/float64(stats.Words)*10000) / 100
		}
		report.KeywordDensity[k] = density
		if n == 0 {
			report.MissingKeywords = append(report.MissingKeywords, k)
			continue
		}
		found++
		if density > 4 {
			stuffed = true
		}
	}
	coverage := ratioScore(found, len(keywords))
	placement := 0
	if len(keywords) > 0 {
		primary := keywords[0]
		if containsPhrase(main.Title, primary) {
			placement += 50
		}
		if containsPhrase(strings.Join(main.H1, " "), primary) {
			placement += 30
		}
		if containsPhrase(main.MetaDescription, primary) {
			placement += 20
		}
		if placement < 50 {
			f.add(findingKeywordsNotInTitle, main.URL)
		}
	}
	densityScore := 100
	if stuffed {
		densityScore = 30
		f.add(findingKeywordStuffing, main.URL)
	}
	if len(report.MissingKeywords) > 0 {
		f.add(findingMissingKeywords, main.URL)
	}
	report.Keywords = clampScore(float64(coverage)*0.6 + float64(placement)*0.25 + float64(densityScore)*0.15)

	report.Readability = clampScore(report.ReadingEase / idealReadingEase * 100)
	if report.Readability < 70 {
		f.add(findingHardToRead, main.URL)
	}

	structure := 0
	if len(main.H1) > 0 {
		structure += 25
	}
	if h2 >= 2 {
		structure += 25
	} else if h2 == 1 {
		structure += 12
	}
	if paragraphs >= 3 {
		structure += 20
	} else {
		structure += paragraphs * 6
	}
	if lists > 0 {
		structure += 15
	}
	if images > 0 {
		structure += 15
	}
	report.Structure = clamp(structure, 0, 100)
	if report.Structure < 60 {
		f.add(findingWeakStructure, main.URL)
	}

	report.Depth = ratioScore(stats.Words, contentDepthWordCount)
	if report.Depth < 50 {
		f.add(findingShallowContent, main.URL)
	}

	report.OverallScore = contentWeights.Overall(report.Scores())
	return report
}

func compareContent(report *ContentAnalysisReport, pages, competitors []*Page, keywords []string, f *findings) {
	gaps := []string{}
	longer := 0
	for _, c := range competitors {
		cr := scoreContent([]*Page{c}, keywords, newFindings())
		report.CompetitorComparison = append(report.CompetitorComparison, ContentComparison{
			URL:          c.URL,
			OverallScore: cr.OverallScore,
			WordCount:    cr.WordCount,
			Keywords:     len(keywords) - len(cr.MissingKeywords),
		})
		for _, k := range report.MissingKeywords {
			if !funk.ContainsString(cr.MissingKeywords, k) {
				gaps = append(gaps, k)
			}
		}
		if float64(cr.WordCount) > float64(report.WordCount)*1.5 {
			longer++
		}
	}
	report.ContentGaps = funk.UniqString(gaps)
	if longer > 0 {
		f.add(findingCompetitorsLonger, pages[0].URL)
	}
	sort.SliceStable(report.CompetitorComparison, func(i, j int) bool {
		return report.CompetitorComparison[i].OverallScore > report.CompetitorComparison[j].OverallScore
	})
}
