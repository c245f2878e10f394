package scraper

import (
	"encoding/json"
	"fmt"
	"os"
)

type SelectorConfig struct {
	HotDealsList ListSelectors   `json:"hot_deals_list"`
	DealDetails  DetailSelectors `json:"deal_details"`
}

type ListSelectors struct {
	Container ListContainer `json:"container"`
	Elements  ListElements  `json:"elements"`
}

type ListContainer struct {
	Item           string `json:"item"`            // e.g., "li.topic"
	IgnoreModifier string `json:"ignore_modifier"` // e.g., ".sticky"
}

type ListElements struct {
	TitleLink            string `json:"title_link"`
	PostedTime           string `json:"posted_time"`
	LikeCount            string `json:"like_count"`
	CommentCount         string `json:"comment_count"`
	CommentCountFallback string `json:"comment_count_fallback"`
	ViewCount            string `json:"view_count"`
}

type DetailSelectors struct {
	PrimaryLink  string `json:"primary_link"`
	FallbackLink string `json:"fallback_link"`
	JSONLD       string `json:"json_ld"`
}

// Validate reports an empty required selector.
func (c SelectorConfig) Validate() error {
	required := map[string]string{
		"hot_deals_list.container.item":  c.HotDealsList.Container.Item,
		"hot_deals_list.elements.title":  c.HotDealsList.Elements.TitleLink,
		"hot_deals_list.elements.posted": c.HotDealsList.Elements.PostedTime,
		"deal_details.primary_link":      c.DealDetails.PrimaryLink,
		"deal_details.json_ld":           c.DealDetails.JSONLD,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("selector %s is empty", name)
		}
	}
	return nil
}

// LoadSelectors loads the selector configuration from the specified JSON file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw JSON bytes.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	var config SelectorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}
	if err := config.Validate(); err != nil {
		return SelectorConfig{}, err
	}
	return config, nil
}

// DefaultSelectors returns the fallback configuration if no JSON file is loaded.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		HotDealsList: ListSelectors{
			Container: ListContainer{
				Item:           "li.topic",
				IgnoreModifier: ".sticky",
			},
			Elements: ListElements{
				TitleLink:            ".thread_title_link",
				PostedTime:           ".thread_inner_footer .author_info time",
				LikeCount:            ".thread_inner_footer .votes",
				CommentCount:         ".thread_inner_footer .posts",
				CommentCountFallback: ".posts_count",
				ViewCount:            ".thread_inner_footer .views",
			},
		},
		DealDetails: DetailSelectors{
			PrimaryLink:  ".deal_link a",
			FallbackLink: ".postlink",
			JSONLD:       `script[type="application/ld+json"]`,
		},
	}
}
