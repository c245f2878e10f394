package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/dealanalyzer/internal/trend"
	"github.com/pauljones0/dealanalyzer/internal/util"
)

const (
	colorFailure     = 15548997 // #ED4245
	colorColdDeal    = 3092790  // #2F3136
	colorWarmDeal    = 16753920 // #FFA500
	colorHotDeal     = 16711680 // #FF0000
	colorVeryHotDeal = 16776960 // #FFFF00

	scoreThresholdWarm    = 10.0
	scoreThresholdVeryHot = 150.0

	maxSendAttempts = 3
)

var (
	rateLimitBackoff   = util.Backoff{Base: time.Second, Max: 10 * time.Second}
	serverErrorBackoff = util.Backoff{Base: 250 * time.Millisecond, Max: 2 * time.Second}
)

// Discord posts notices to a Discord webhook.
type Discord struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
	now         func() time.Time
}

// NewDiscord returns a webhook client limited to Discord's documented 5 requests per 2 seconds.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL:  webhookURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(400*time.Millisecond), 1),
		now:         time.Now,
	}
}

// Notify sends n as an embed. With no webhook configured it does nothing.
func (c *Discord) Notify(ctx context.Context, n Notice) error {
	if c.webhookURL == "" {
		return nil
	}
	return c.send(ctx, formatNoticeEmbed(n, c.now()))
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
}

func formatNoticeEmbed(n Notice, now time.Time) discordEmbed {
	embed := discordEmbed{
		Title:       n.Title,
		Description: n.Description,
		Color:       colorFailure,
	}
	if !n.At.IsZero() {
		embed.Timestamp = n.At.Format(time.RFC3339)
	}
	if n.Deal == nil {
		if n.Level == LevelSuccess {
			embed.Color = colorColdDeal
		}
		return embed
	}

	deal := *n.Deal
	score := trend.DealScore(deal, now)
	if n.Level == LevelSuccess {
		embed.Color = getHeatColor(score)
	}
	embed.URL = deal.SourceURL
	embed.Fields = []discordEmbedField{
		{Name: "Deal", Value: fmt.Sprintf("%s (%d/%d/%d)", deal.Title, deal.Upvotes, deal.Comments, deal.Views)},
		{Name: "Status", Value: string(deal.Status.OrPending()), Inline: true},
		{Name: "Trending", Value: fmt.Sprintf("%.1f", score), Inline: true},
	}
	if deal.URL != "" {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Item", Value: fmt.Sprintf("[Link to Item](%s)", deal.URL)})
		if domain := util.GetDomain(deal.URL); domain != "" {
			embed.Footer = &discordEmbedFooter{Text: domain}
		}
	}
	return embed
}

func getHeatColor(score float64) int {
	switch {
	case score > scoreThresholdVeryHot:
		return colorVeryHotDeal
	case trend.IsHot(score):
		return colorHotDeal
	case score > scoreThresholdWarm:
		return colorWarmDeal
	default:
		return colorColdDeal
	}
}

func (c *Discord) send(ctx context.Context, embed discordEmbed) error {
	payloadBytes, err := json.Marshal(discordWebhookPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payloadBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
		backoff := retryBackoff(resp, attempt)
		if backoff == 0 {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("discord send failed after %d attempts: %w", maxSendAttempts, lastErr)
}

// retryBackoff returns how long to wait before retrying resp, or zero when the
// status is not retryable.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		return rateLimitBackoff.Delay(attempt)
	case resp.StatusCode >= 500:
		return serverErrorBackoff.Delay(attempt)
	default:
		return 0
	}
}

var _ Notifier = (*Discord)(nil)
