package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pauljones0/dealanalyzer/internal/models"
	"github.com/pauljones0/dealanalyzer/internal/sentiment"
)

const (
	maxPromptComments = 50
	maxCommentRunes   = 500
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from gemini")

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client scores comment sentiment with Gemini.
type Client struct {
	models  generator
	modelID string
}

// NewClient returns nil when apiKey is empty so callers can fall back to the lexicon.
func NewClient(ctx context.Context, apiKey, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{models: client.Models, modelID: modelID}, nil
}

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"positive": {
			Type:        genai.TypeNumber,
			Description: "Share of comments that are positive about the deal, 0 to 1.",
		},
		"neutral": {
			Type:        genai.TypeNumber,
			Description: "Share of comments that are neutral or off-topic, 0 to 1.",
		},
		"negative": {
			Type:        genai.TypeNumber,
			Description: "Share of comments that are negative (expired, out of stock, overpriced), 0 to 1.",
		},
		"confidence": {
			Type:        genai.TypeNumber,
			Description: "How confident you are in this assessment, 0 to 1.",
		},
	},
	Required: []string{"positive", "neutral", "negative", "confidence"},
}

// Score asks the model for sentiment shares. The three shares should sum to 1
// but callers normalise them anyway.
func (c *Client) Score(ctx context.Context, deal models.Deal, comments []string) (sentiment.Scores, error) {
	if c == nil || c.models == nil {
		return sentiment.Scores{}, errors.New("gemini client not configured")
	}
	if len(comments) == 0 {
		return sentiment.Scores{Neutral: 1}, nil
	}

	resp, err := c.models.GenerateContent(ctx, c.modelID, genai.Text(buildPrompt(deal, comments)), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	})
	if err != nil {
		return sentiment.Scores{}, fmt.Errorf("gemini generation failed: %w", err)
	}

	return parseScores(resp.Text())
}

func buildPrompt(deal models.Deal, comments []string) string {
	if len(comments) > maxPromptComments {
		comments = comments[:maxPromptComments]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze how the community feels about this deal.\nTitle: %q\n", deal.Title)
	if deal.Description != "" {
		fmt.Fprintf(&b, "Description: %q\n", deal.Description)
	}
	b.WriteString("Comments:\n")
	for i, c := range comments {
		fmt.Fprintf(&b, "%d. %s\n", i+1, truncate(strings.TrimSpace(c), maxCommentRunes))
	}
	b.WriteString("\nClassify each comment as positive, neutral or negative towards the deal and report the share of each. Output JSON adhering to the schema.\n")
	return b.String()
}

func parseScores(text string) (sentiment.Scores, error) {
	// Clean up potential markdown formatting just in case
	jsonStr := strings.TrimSpace(text)
	jsonStr = strings.TrimPrefix(jsonStr, "```json")
	jsonStr = strings.TrimPrefix(jsonStr, "```")
	jsonStr = strings.TrimSuffix(jsonStr, "```")
	jsonStr = strings.TrimSpace(jsonStr)
	if jsonStr == "" {
		return sentiment.Scores{}, ErrEmptyResponse
	}

	var s sentiment.Scores
	if err := json.Unmarshal([]byte(jsonStr), &s); err != nil {
		return sentiment.Scores{}, fmt.Errorf("failed to parse gemini response: %w", err)
	}
	return s, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

var _ sentiment.Analyzer = (*Client)(nil)
