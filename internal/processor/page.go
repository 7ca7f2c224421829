package processor

import (
	"io"
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/net/html"
)

// maxTextBytes caps the visible text kept per page.
const maxTextBytes = 200_000

// Page is the snapshot of one fetched page the processors score.
type Page struct {
	URL          string
	StatusCode   int
	ResponseTime time.Duration
	LoadTime     time.Duration
	Bytes        int
	Compressed   bool
	HTTPS        bool

	Lang            string
	Title           string
	MetaDescription string
	Canonical       string
	Robots          string
	Viewport        string
	TouchIcon       bool
	OpenGraph       bool
	StructuredData  bool

	H1         []string
	H2         int
	H3         int
	Paragraphs int
	Lists      int
	WordCount  int
	Text       string

	Images            int
	ImagesMissingAlt  int
	ImagesMissingSize int
	ResponsiveImages  int
	Scripts           int
	BlockingScripts   int
	Stylesheets       int
	InlineStyleWidths int
	InternalLinks     []string
	ExternalLinks     int
	FixedViewport     bool
}

func (p *Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// MobileViewport is true when the page declares a device-width viewport.
func (p *Page) MobileViewport() bool {
	return strings.Contains(strings.ReplaceAll(p.Viewport, " ", ""), "width=device-width")
}

func (p *Page) Noindex() bool {
	return strings.Contains(strings.ToLower(p.Robots), "noindex")
}

// parseHTML fills the content fields of p from an HTML document.
func parseHTML(r io.Reader, p *Page, base *url.URL) error {
	doc, err := html.Parse(r)
	if err != nil {
		return err
	}

	var text strings.Builder
	internal := map[string]struct{}{}
	inHead := false

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "html":
				p.Lang = attr(n, "lang")
			case "head":
				inHead = true
				defer func() { inHead = false }()
			case "title":
				if p.Title == "" {
					p.Title = strings.TrimSpace(nodeText(n))
				}
				return
			case "meta":
				parseMeta(n, p)
			case "link":
				parseLink(n, p)
			case "h1":
				p.H1 = append(p.H1, strings.TrimSpace(nodeText(n)))
			case "h2":
				p.H2++
			case "h3":
				p.H3++
			case "p":
				p.Paragraphs++
			case "ul", "ol":
				p.Lists++
			case "img":
				p.Images++
				if !hasAttr(n, "alt") {
					p.ImagesMissingAlt++
				}
				if attr(n, "width") == "" || attr(n, "height") == "" {
					p.ImagesMissingSize++
				}
				if attr(n, "srcset") != "" {
					p.ResponsiveImages++
				}
			case "script":
				if strings.EqualFold(attr(n, "type"), "application/ld+json") {
					p.StructuredData = true
					return
				}
				p.Scripts++
				if inHead && attr(n, "src") != "" && !hasAttr(n, "async") && !hasAttr(n, "defer") {
					p.BlockingScripts++
				}
				return
			case "style", "noscript", "template":
				return
			case "a":
				collectLink(n, p, base, internal)
			}
			if style := strings.ToLower(attr(n, "style")); strings.Contains(style, "width:") && strings.Contains(style, "px") {
				p.InlineStyleWidths++
			}
		}

		if n.Type == html.TextNode && text.Len() < maxTextBytes {
			if t := strings.TrimSpace(n.Data); t != "" {
				text.WriteString(t)
				text.WriteByte(' ')
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	p.Text = strings.TrimSpace(text.String())
	p.WordCount = len(words(p.Text))
	for link := range internal {
		p.InternalLinks = append(p.InternalLinks, link)
	}
	return nil
}

func parseMeta(n *html.Node, p *Page) {
	name := strings.ToLower(attr(n, "name"))
	property := strings.ToLower(attr(n, "property"))
	content := strings.TrimSpace(attr(n, "content"))
	switch {
	case name == "description":
		p.MetaDescription = content
	case name == "robots":
		p.Robots = content
	case name == "viewport":
		p.Viewport = strings.ToLower(content)
		if strings.Contains(p.Viewport, "width=") && !strings.Contains(p.Viewport, "device-width") {
			p.FixedViewport = true
		}
	case strings.HasPrefix(property, "og:"):
		p.OpenGraph = true
	}
}

func parseLink(n *html.Node, p *Page) {
	rel := strings.ToLower(attr(n, "rel"))
	switch {
	case rel == "canonical":
		p.Canonical = attr(n, "href")
	case rel == "stylesheet":
		p.Stylesheets++
	case strings.Contains(rel, "apple-touch-icon"):
		p.TouchIcon = true
	}
}

func collectLink(n *html.Node, p *Page, base *url.URL, internal map[string]struct{}) {
	href := strings.TrimSpace(attr(n, "href"))
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return
	}
	u, err := url.Parse(href)
	if err != nil || base == nil {
		return
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return
	}
	if !strings.EqualFold(abs.Hostname(), base.Hostname()) {
		p.ExternalLinks++
		return
	}
	abs.Fragment = ""
	abs.RawQuery = ""
	path := abs.Path
	if path == "" {
		path = "/"
	}
	internal[path] = struct{}{}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\'' && r != '-'
	})
}
