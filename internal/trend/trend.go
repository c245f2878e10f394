// Package trend scores deals by recency-decayed upvotes.
package trend

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

const (
	// DecayPerHour is how many upvotes a deal loses per hour since creation.
	DecayPerHour = 0.1
	// HotThreshold is the score a deal must exceed to be flagged hot.
	HotThreshold = 50.0
)

// Score returns max(0, upvotes - hoursSinceCreation*DecayPerHour).
func Score(upvotes int, createdAt, now time.Time) float64 {
	hours := now.Sub(createdAt).Hours()
	return math.Max(0, float64(upvotes)-hours*DecayPerHour)
}

// IsHot reports whether score exceeds HotThreshold.
func IsHot(score float64) bool {
	return score > HotThreshold
}

// DealScore is Score applied to a deal.
func DealScore(d models.Deal, now time.Time) float64 {
	return Score(d.Upvotes, d.CreatedAt, now)
}

// Mode selects the ordering of a trending list.
type Mode string

const (
	ModeTrending  Mode = "trending"
	ModeRecent    Mode = "recent"
	ModeDiscussed Mode = "discussed"
	ModePositive  Mode = "positive"
)

// ParseMode maps a selector to a Mode; unknown values mean ModeTrending.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRecent:
		return ModeRecent
	case ModeDiscussed:
		return ModeDiscussed
	case ModePositive:
		return ModePositive
	default:
		return ModeTrending
	}
}

// Rank orders deals for a trending tab and numbers them from 1. Scores are
// computed at now on every call. Ties keep the input order.
func Rank(deals []models.Deal, mode Mode, now time.Time) []models.TrendingDeal {
	ranked := make([]models.TrendingDeal, len(deals))
	for i, d := range deals {
		score := DealScore(d, now)
		ranked[i] = models.TrendingDeal{
			Deal:         d,
			Score:        score,
			Hot:          IsHot(score),
			CalculatedAt: now,
		}
	}

	var less func(a, b models.TrendingDeal) bool
	switch ParseMode(string(mode)) {
	case ModeRecent:
		less = func(a, b models.TrendingDeal) bool { return a.Deal.CreatedAt.After(b.Deal.CreatedAt) }
	case ModeDiscussed:
		less = func(a, b models.TrendingDeal) bool { return a.Deal.Comments > b.Deal.Comments }
	case ModePositive:
		less = func(a, b models.TrendingDeal) bool { return positiveScore(a.Deal) > positiveScore(b.Deal) }
	default:
		less = func(a, b models.TrendingDeal) bool { return a.Score > b.Score }
	}
	sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// positiveScore puts unanalysed deals after every analysed one.
func positiveScore(d models.Deal) float64 {
	if d.Sentiment == nil {
		return -1
	}
	return d.Sentiment.Positive
}

// Top returns at most n entries of ranked.
func Top(ranked []models.TrendingDeal, n int) []models.TrendingDeal {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}
