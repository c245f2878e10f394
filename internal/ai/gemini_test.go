package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

type fakeGenerator struct {
	text   string
	err    error
	prompt string
	model  string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	for _, c := range contents {
		for _, p := range c.Parts {
			f.prompt += p.Text
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestNewClient_NoKey(t *testing.T) {
	c, err := NewClient(context.Background(), "", "gemini-2.0-flash")
	if err != nil || c != nil {
		t.Errorf("NewClient(\"\") = %v, %v; want nil, nil", c, err)
	}
}

func TestScore(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n{\"positive\":0.7,\"neutral\":0.2,\"negative\":0.1,\"confidence\":0.8}\n```"}
	c := &Client{models: gen, modelID: "test-model"}

	deal := models.Deal{Title: "Cheap SSD", Description: "2TB NVMe"}
	s, err := c.Score(context.Background(), deal, []string{"great price", "bought one"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if s.Positive != 0.7 || s.Negative != 0.1 || s.Confidence != 0.8 {
		t.Errorf("Score() = %+v", s)
	}
	if gen.model != "test-model" {
		t.Errorf("model = %q", gen.model)
	}
	for _, want := range []string{"Cheap SSD", "2TB NVMe", "1. great price", "2. bought one"} {
		if !strings.Contains(gen.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, gen.prompt)
		}
	}
}

func TestScore_NoComments(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("should not be called")}
	c := &Client{models: gen, modelID: "m"}
	s, err := c.Score(context.Background(), models.Deal{}, nil)
	if err != nil || s.Neutral != 1 {
		t.Errorf("Score(nil) = %+v, %v", s, err)
	}
}

func TestScore_Errors(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"api error", &fakeGenerator{err: errors.New("quota")}},
		{"empty text", &fakeGenerator{text: "  "}},
		{"not json", &fakeGenerator{text: "I think it's positive"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{models: tt.gen, modelID: "m"}
			if _, err := c.Score(context.Background(), models.Deal{}, []string{"x"}); err == nil {
				t.Error("Score() expected error")
			}
		})
	}

	var nilClient *Client
	if _, err := nilClient.Score(context.Background(), models.Deal{}, []string{"x"}); err == nil {
		t.Error("nil client Score() expected error")
	}
}

func TestBuildPrompt_Truncates(t *testing.T) {
	comments := make([]string, maxPromptComments+10)
	for i := range comments {
		comments[i] = strings.Repeat("a", maxCommentRunes+50)
	}
	p := buildPrompt(models.Deal{Title: "T"}, comments)
	if strings.Contains(p, "51. ") {
		t.Error("prompt should cap the number of comments")
	}
	if strings.Contains(p, strings.Repeat("a", maxCommentRunes+1)) {
		t.Error("prompt should truncate long comments")
	}
}
