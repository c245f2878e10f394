package sentiment

import (
	"context"
	"strings"
	"unicode"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

var positiveWords = map[string]struct{}{
	"good": {}, "great": {}, "amazing": {}, "awesome": {}, "love": {}, "cheap": {},
	"bought": {}, "thanks": {}, "thank": {}, "excellent": {}, "solid": {}, "recommend": {},
	"steal": {}, "hot": {}, "worth": {}, "nice": {}, "best": {}, "ordered": {}, "grabbed": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "expired": {}, "oos": {}, "dead": {}, "scam": {}, "overpriced": {},
	"terrible": {}, "worse": {}, "worst": {}, "broken": {}, "fake": {}, "meh": {},
	"avoid": {}, "cancelled": {}, "canceled": {}, "junk": {}, "garbage": {}, "pass": {},
}

// Lexicon scores comments by counting known positive and negative words. It is
// the fallback when no model is configured.
type Lexicon struct{}

func (Lexicon) Score(_ context.Context, _ models.Deal, comments []string) (Scores, error) {
	if len(comments) == 0 {
		return Scores{Neutral: 1}, nil
	}

	var pos, neg, neu float64
	for _, c := range comments {
		p, n := countWords(c)
		switch {
		case p > n:
			pos++
		case n > p:
			neg++
		default:
			neu++
		}
	}

	total := float64(len(comments))
	s := Scores{Positive: pos / total, Neutral: neu / total, Negative: neg / total}
	s.Confidence = max(s.Positive, s.Neutral, s.Negative) * min(1, total/10)
	return s, nil
}

func countWords(text string) (pos, neg int) {
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	return pos, neg
}

var _ Analyzer = Lexicon{}
