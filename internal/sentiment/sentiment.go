// Package sentiment turns comment threads into SentimentAnalysis records.
package sentiment

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

// Scores are the raw outputs of an Analyzer, before normalisation.
type Scores struct {
	Positive   float64 `json:"positive"`
	Neutral    float64 `json:"neutral"`
	Negative   float64 `json:"negative"`
	Confidence float64 `json:"confidence"`
}

// Analyzer scores the comments left on a deal.
type Analyzer interface {
	Score(ctx context.Context, deal models.Deal, comments []string) (Scores, error)
}

// Normalize drops negative class scores, rescales the three to sum to 1 and
// clamps confidence to [0,1]. All-zero scores become fully neutral.
func Normalize(s Scores) Scores {
	out := Scores{
		Positive:   nonNegative(s.Positive),
		Neutral:    nonNegative(s.Neutral),
		Negative:   nonNegative(s.Negative),
		Confidence: clamp(s.Confidence),
	}
	sum := out.Positive + out.Neutral + out.Negative
	if sum == 0 {
		out.Neutral = 1
		return out
	}
	out.Positive /= sum
	out.Neutral /= sum
	out.Negative /= sum
	return out
}

// Classify picks the label of the largest score. Ties resolve to neutral.
func Classify(s Scores) models.Overall {
	switch {
	case s.Positive > s.Neutral && s.Positive > s.Negative:
		return models.OverallPositive
	case s.Negative > s.Neutral && s.Negative > s.Positive:
		return models.OverallNegative
	default:
		return models.OverallNeutral
	}
}

// Build normalises s and wraps it in a record owned by dealID.
func Build(dealID string, s Scores, commentCount int, now time.Time) models.SentimentAnalysis {
	n := Normalize(s)
	return models.SentimentAnalysis{
		ID:           uuid.NewString(),
		DealID:       dealID,
		Positive:     round(n.Positive),
		Neutral:      round(n.Neutral),
		Negative:     round(n.Negative),
		Overall:      Classify(n),
		Confidence:   round(n.Confidence),
		CommentCount: max(commentCount, 0),
		AnalyzedAt:   now,
	}
}

func nonNegative(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case math.IsInf(v, 1):
		return 1
	}
	return v
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Fallback uses Secondary whenever Primary is nil or fails.
type Fallback struct {
	Primary   Analyzer
	Secondary Analyzer
}

func (f Fallback) Score(ctx context.Context, deal models.Deal, comments []string) (Scores, error) {
	if f.Primary != nil {
		s, err := f.Primary.Score(ctx, deal, comments)
		if err == nil {
			return s, nil
		}
		if f.Secondary == nil || ctx.Err() != nil {
			return Scores{}, err
		}
		slog.Warn("Primary sentiment analyzer failed, using fallback", "deal", deal.ID, "error", err)
	}
	return f.Secondary.Score(ctx, deal, comments)
}
