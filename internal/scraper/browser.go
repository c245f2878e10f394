package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in headless Chrome, for when the forum serves
// a JavaScript challenge to plain HTTP clients.
type BrowserFetcher struct {
	allowedDomains []string
	timeout        time.Duration
	allocOpts      []chromedp.ExecAllocatorOption
}

// NewBrowserFetcher needs a Chrome or Chromium binary on PATH.
func NewBrowserFetcher(allowedDomains []string) *BrowserFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent("Mozilla/5.0 (compatible; dealanalyzer/1.0)"),
	)
	return &BrowserFetcher{
		allowedDomains: allowedDomains,
		timeout:        45 * time.Second,
		allocOpts:      opts,
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, urlStr string) (*goquery.Document, error) {
	if err := checkAllowed(urlStr, f.allowedDomains); err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, f.allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, f.timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("browser fetch of %s failed: %w", urlStr, err)
	}

	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// FallbackFetcher tries primary first and uses secondary when it fails.
type FallbackFetcher struct {
	Primary   Fetcher
	Secondary Fetcher
}

func (f FallbackFetcher) Fetch(ctx context.Context, urlStr string) (*goquery.Document, error) {
	doc, err := f.Primary.Fetch(ctx, urlStr)
	if err == nil || f.Secondary == nil || ctx.Err() != nil {
		return doc, err
	}
	return f.Secondary.Fetch(ctx, urlStr)
}
