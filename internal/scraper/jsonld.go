package scraper

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// JSONLDDiscussionForumPosting represents the structure of the JSON-LD data
// embedded in RedFlagDeals topic pages.
type JSONLDDiscussionForumPosting struct {
	Context       string          `json:"@context"`
	Type          string          `json:"@type"` // Should be "DiscussionForumPosting"
	Headline      string          `json:"headline"`
	Text          string          `json:"text"` // The main post content
	DatePublished time.Time       `json:"datePublished"`
	Author        JSONLDPerson    `json:"author"`
	Comment       []JSONLDComment `json:"comment"`
}

type JSONLDPerson struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

type JSONLDComment struct {
	Type          string       `json:"@type"` // Should be "comment"
	Text          string       `json:"text"`
	DatePublished time.Time    `json:"datePublished"`
	Author        JSONLDPerson `json:"author"`
}

// findDiscussion returns the first DiscussionForumPosting block in doc.
func findDiscussion(doc *goquery.Document, selector string) (*JSONLDDiscussionForumPosting, bool) {
	var found *JSONLDDiscussionForumPosting
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var posting JSONLDDiscussionForumPosting
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &posting); err != nil {
			return true
		}
		if posting.Type != "DiscussionForumPosting" {
			return true
		}
		found = &posting
		return false
	})
	return found, found != nil
}

// commentTexts returns the non-empty comment bodies of p.
func (p *JSONLDDiscussionForumPosting) commentTexts() []string {
	out := make([]string, 0, len(p.Comment))
	for _, c := range p.Comment {
		if text := strings.TrimSpace(c.Text); text != "" {
			out = append(out, text)
		}
	}
	return out
}
