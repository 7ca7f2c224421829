package processor

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

const (
	defaultFetchTimeout = 20 * time.Second
	defaultMaxBodySize  = 5 << 20
	defaultUserAgent    = "ContentLabAnalyzer/1.0 (+https://contentlab.tech/bot)"
)

// SiteFetcher retrieves and parses pages of a target site.
type SiteFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// FetchError is returned for pages that could not be retrieved.
type FetchError struct {
	URL       string
	Retryable bool
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRetryable classifies a fetch error. Network, DNS and timeout errors are transient,
// anything unknown is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type FetcherOption func(f *HTTPFetcher)

func WithFetchTimeout(timeout time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client.Timeout = timeout
	}
}

func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

func WithMaxBodySize(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		f.maxBody = n
	}
}

func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// HTTPFetcher fetches pages over HTTP. Each host gets its own circuit breaker so a dead
// site fails fast instead of tying up workers until every request times out.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ SiteFetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: defaultFetchTimeout},
		userAgent: defaultUserAgent,
		maxBody:   defaultMaxBodySize,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, &FetchError{URL: rawURL, Err: errors.Errorf("invalid url %q", rawURL)}
	}

	out, err := f.breaker(u.Host).Execute(func() (interface{}, error) {
		return f.fetch(ctx, u)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &FetchError{URL: rawURL, Retryable: true, Err: errors.Wrapf(err, "host %s", u.Host)}
		}
		return nil, err
	}
	return out.(*Page), nil
}

func (f *HTTPFetcher) breaker(host string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	cb, found := f.breakers[host]
	if !found {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        host,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
		f.breakers[host] = cb
	}
	return cb
}

func (f *HTTPFetcher) fetch(ctx context.Context, u *url.URL) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: u.String(), Err: errors.Wrap(err, "building request")}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	// set explicitly so the transport hands back the raw body and Content-Encoding
	req.Header.Set("Accept-Encoding", "gzip")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: u.String(), Retryable: true, Err: errors.Wrap(err, "request failed")}
	}
	defer resp.Body.Close()
	responseTime := time.Since(start)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &FetchError{URL: u.String(), Retryable: true, Err: errors.Errorf("server responded %d", resp.StatusCode)}
	}

	wire := &countingReader{r: resp.Body}
	body, err := readBody(wire, resp.Header.Get("Content-Encoding"), f.maxBody)

	page := &Page{
		URL:          resp.Request.URL.String(),
		StatusCode:   resp.StatusCode,
		ResponseTime: responseTime,
		LoadTime:     time.Since(start),
		Bytes:        int(wire.n),
		HTTPS:        resp.Request.URL.Scheme == "https",
		Compressed:   resp.Header.Get("Content-Encoding") != "",
	}

	if resp.StatusCode >= 400 {
		// client errors are findings about the page, not fetch failures
		return page, nil
	}
	if err != nil {
		return nil, &FetchError{URL: u.String(), Retryable: true, Err: errors.Wrap(err, "reading body")}
	}

	if err := parseHTML(bytes.NewReader(body), page, resp.Request.URL); err != nil {
		return nil, &FetchError{URL: u.String(), Err: errors.Wrap(err, "parsing html")}
	}
	return page, nil
}

// readBody reads at most limit bytes of the decoded body. The limit applies after
// decompression, so an oversized page is truncated rather than rejected.
func readBody(r io.Reader, encoding string, limit int64) ([]byte, error) {
	if strings.EqualFold(encoding, "gzip") {
		zr, err := gzip.NewReader(r)
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "decompressing body")
		}
		defer zr.Close()
		r = zr
	}
	return io.ReadAll(io.LimitReader(r, limit))
}

// countingReader counts the bytes read from the wire.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// fetchAll fetches urls concurrently, at most limit at a time. Pages and errors are
// returned in input order.
func fetchAll(ctx context.Context, fetcher SiteFetcher, urls []string, limit int) ([]*Page, []error) {
	pages := make([]*Page, len(urls))
	errs := make([]error, len(urls))

	// failures are collected per url, one bad page never cancels the others
	var g errgroup.Group
	g.SetLimit(limit)
	for i, u := range urls {
		g.Go(func() error {
			pages[i], errs[i] = fetcher.Fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return pages, errs
}

// resolve joins a site path onto the site url.
func resolve(site, path string) string {
	base, err := url.Parse(site)
	if err != nil {
		return strings.TrimRight(site, "/") + path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return strings.TrimRight(site, "/") + path
	}
	return base.ResolveReference(ref).String()
}
