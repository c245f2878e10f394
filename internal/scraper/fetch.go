package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrDomainNotAllowed is returned for URLs outside the fetcher's allowlist.
var ErrDomainNotAllowed = errors.New("domain not allowed")

// Fetcher loads a page and parses it as HTML.
type Fetcher interface {
	Fetch(ctx context.Context, urlStr string) (*goquery.Document, error)
}

// HTTPFetcher fetches pages with a plain HTTP GET.
type HTTPFetcher struct {
	httpClient     *http.Client
	allowedDomains []string
}

// NewHTTPFetcher only fetches hosts listed in allowedDomains.
func NewHTTPFetcher(allowedDomains []string) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		allowedDomains: allowedDomains,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, urlStr string) (*goquery.Document, error) {
	if err := checkAllowed(urlStr, f.allowedDomains); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for URL %s: %w", urlStr, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; dealanalyzer/1.0)")

	res, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", urlStr, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL %s: status code %d", urlStr, res.StatusCode)
	}

	return goquery.NewDocumentFromReader(res.Body)
}

// checkAllowed rejects non-HTTP schemes and hosts outside the allowlist.
func checkAllowed(urlStr string, allowedDomains []string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("failed to parse URL %s: %w", urlStr, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q, only http and https allowed", ErrDomainNotAllowed, parsedURL.Scheme)
	}

	hostname := parsedURL.Hostname()
	for _, domain := range allowedDomains {
		if hostname == domain {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDomainNotAllowed, hostname)
}
