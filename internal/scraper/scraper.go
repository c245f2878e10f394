// Package scraper reads deals and their comment threads from the RedFlagDeals forum.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/dealanalyzer/internal/config"
	"github.com/pauljones0/dealanalyzer/internal/models"
	"github.com/pauljones0/dealanalyzer/internal/util"
)

const (
	hotDealsURL       = "https://forums.redflagdeals.com/hot-deals-f9/?sk=tt&rfd_sk=tt&sd=d"
	forumBaseURL      = "https://forums.redflagdeals.com"
	detailConcurrency = 5
	maxDescription    = 500
)

type Scraper interface {
	ScrapeDealList(ctx context.Context) ([]models.Deal, error)
	FetchDealDetails(ctx context.Context, deals []*models.Deal)
	FetchComments(ctx context.Context, sourceURL string) ([]string, error)
}

type Client struct {
	fetcher       Fetcher
	selectors     SelectorConfig
	baseURL       string
	listURL       string
	amazonTag     string
	bestBuyPrefix string
	maxRetries    int
	retryBase     time.Duration
	now           func() time.Time
}

// New builds a client from cfg. With SCRAPER_USE_BROWSER set, pages that fail
// over plain HTTP are retried in headless Chrome.
func New(cfg *config.Config, selectors SelectorConfig) *Client {
	var fetcher Fetcher = NewHTTPFetcher(cfg.AllowedDomains)
	if cfg.ScraperUseBrowser {
		fetcher = FallbackFetcher{Primary: fetcher, Secondary: NewBrowserFetcher(cfg.AllowedDomains)}
	}
	return NewWithFetcher(fetcher, selectors, cfg)
}

// NewWithFetcher builds a client around an arbitrary fetcher.
func NewWithFetcher(f Fetcher, selectors SelectorConfig, cfg *config.Config) *Client {
	return &Client{
		fetcher:       f,
		selectors:     selectors,
		baseURL:       forumBaseURL,
		listURL:       hotDealsURL,
		amazonTag:     cfg.AmazonAffiliateTag,
		bestBuyPrefix: cfg.BestBuyAffiliatePrefix,
		maxRetries:    3,
		retryBase:     time.Second,
		now:           time.Now,
	}
}

// NewWithBaseURL points the client at a mirror of the forum serving the hot
// deals list at baseURL + "/hot-deals".
func NewWithBaseURL(cfg *config.Config, selectors SelectorConfig, baseURL string) *Client {
	c := New(cfg, selectors)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	c.listURL = c.baseURL + "/hot-deals"
	return c
}

// ScrapeDealList parses the hot deals list page, retrying with backoff.
func (c *Client) ScrapeDealList(ctx context.Context) ([]models.Deal, error) {
	var deals []models.Deal
	backoff := util.Backoff{Retries: c.maxRetries, Base: c.retryBase, Max: 30 * time.Second}
	err := backoff.Retry(ctx, func(attempt int) error {
		var err error
		deals, err = c.attemptScrape(ctx)
		if errors.Is(err, ErrDomainNotAllowed) {
			return util.Permanent(err)
		}
		if err != nil {
			slog.Warn("Scraping attempt failed", "attempt", attempt+1, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scrape hot deals page: %w", err)
	}
	return deals, nil
}

func (c *Client) attemptScrape(ctx context.Context) ([]models.Deal, error) {
	doc, err := c.fetcher.Fetch(ctx, c.listURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch or parse hot deals page %s: %w", c.listURL, err)
	}

	list := c.selectors.HotDealsList
	if doc.Find(list.Container.Item).Length() == 0 {
		return nil, fmt.Errorf("no '%s' elements found on %s. Potential block or page structure change", list.Container.Item, c.listURL)
	}

	scrapedAt := c.now()
	var deals []models.Deal
	doc.Find(list.Container.Item).Each(func(_ int, s *goquery.Selection) {
		if list.Container.IgnoreModifier != "" && s.Is(list.Container.IgnoreModifier) {
			return
		}
		deal, parseErrors := parseListItem(s, list.Elements, c.baseURL)
		if len(parseErrors) > 0 {
			slog.Debug("Parsing issues for deal", "title", deal.Title, "url", deal.SourceURL, "issues", strings.Join(parseErrors, "; "))
		}
		deal.Status = models.StatusPending
		deal.ScrapedAt = scrapedAt
		deal.UpdatedAt = scrapedAt
		deals = append(deals, deal)
	})
	return deals, nil
}

func parseListItem(s *goquery.Selection, el ListElements, baseURL string) (models.Deal, []string) {
	var deal models.Deal
	var parseErrors []string

	if t := s.Find(el.PostedTime); t.Length() > 0 {
		if !t.Is("time") {
			t = t.Find("time").First()
		}
		if datetimeStr, ok := t.Attr("datetime"); ok {
			if parsed, err := time.Parse(time.RFC3339, datetimeStr); err == nil {
				deal.CreatedAt = parsed
			} else {
				parseErrors = append(parseErrors, fmt.Sprintf("failed to parse datetime string '%s': %v", datetimeStr, err))
			}
		} else {
			parseErrors = append(parseErrors, "posted time has no datetime attribute")
		}
	} else {
		parseErrors = append(parseErrors, "posted time element not found")
	}

	if link := s.Find(el.TitleLink); link.Length() > 0 {
		if !link.Is("a") {
			link = link.Find("a").First()
		}
		deal.Title = strings.TrimSpace(link.Text())
		if href, ok := link.Attr("href"); ok {
			deal.SourceURL = absoluteURL(baseURL, href)
		}
	} else {
		parseErrors = append(parseErrors, "title/post URL element not found")
	}

	if likes := s.Find(el.LikeCount); likes.Length() > 0 {
		deal.Upvotes = util.NonNegative(util.SafeAtoi(util.ParseSignedNumericString(likes.Text())))
	}
	if comments := s.Find(el.CommentCount); comments.Length() > 0 {
		deal.Comments = util.SafeAtoi(util.CleanNumericString(comments.Text()))
	} else if fallback := s.Find(el.CommentCountFallback); fallback.Length() > 0 {
		deal.Comments = util.SafeAtoi(util.CleanNumericString(fallback.Text()))
	}
	if views := s.Find(el.ViewCount); views.Length() > 0 {
		deal.Views = util.SafeAtoi(util.CleanNumericString(views.Text()))
	}
	return deal, parseErrors
}

func absoluteURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "/") {
		href = baseURL + href
	}
	if normalized, err := util.NormalizeURL(href); err == nil {
		return normalized
	}
	return href
}

// FetchDealDetails fills in the destination URL and description of each deal
// from its thread page. Failures are logged and leave the deal unchanged.
func (c *Client) FetchDealDetails(ctx context.Context, deals []*models.Deal) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)

	for _, deal := range deals {
		if deal.SourceURL == "" {
			continue
		}
		g.Go(func() error {
			detail, err := c.scrapeDealDetailPage(gctx, deal.SourceURL)
			if err != nil {
				// Don't fail the whole batch, just log
				slog.Warn("Failed to scrape detail page", "url", deal.SourceURL, "error", err)
				return nil
			}
			if detail.url != "" {
				if cleaned, changed := util.CleanReferralLink(detail.url, c.amazonTag, c.bestBuyPrefix); changed {
					detail.url = cleaned
				}
				deal.URL = detail.url
			}
			if detail.description != "" {
				deal.Description = detail.description
			}
			return nil
		})
	}
	_ = g.Wait()
}

type dealDetail struct {
	url         string
	description string
}

func (c *Client) scrapeDealDetailPage(ctx context.Context, dealURL string) (dealDetail, error) {
	doc, err := c.fetcher.Fetch(ctx, dealURL)
	if err != nil {
		return dealDetail{}, err
	}

	sel := c.selectors.DealDetails
	var detail dealDetail

	if href, ok := doc.Find(sel.PrimaryLink).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		detail.url = strings.TrimSpace(href)
	} else if sel.FallbackLink != "" {
		if href, ok := doc.Find(sel.FallbackLink).First().Attr("href"); ok {
			href = strings.TrimSpace(href)
			if (strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")) &&
				!strings.Contains(href, "redflagdeals.com") {
				detail.url = href
			}
		}
	}

	if posting, ok := findDiscussion(doc, sel.JSONLD); ok {
		detail.description = truncateRunes(strings.TrimSpace(posting.Text), maxDescription)
	}
	return detail, nil
}

// FetchComments returns the comment bodies of the thread at sourceURL.
func (c *Client) FetchComments(ctx context.Context, sourceURL string) ([]string, error) {
	if sourceURL == "" {
		return nil, nil
	}
	doc, err := c.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread %s: %w", sourceURL, err)
	}
	posting, ok := findDiscussion(doc, c.selectors.DealDetails.JSONLD)
	if !ok {
		slog.Debug("No discussion data on thread page", "url", sourceURL)
		return nil, nil
	}
	return posting.commentTexts(), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ Scraper = (*Client)(nil)
