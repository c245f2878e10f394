package models

import (
	"errors"
	"time"
)

var (
	// ErrDealExists is returned when attempting to create a deal that already exists.
	ErrDealExists = errors.New("deal already exists")
	// ErrDealNotFound is returned when an operation references an unknown deal ID.
	ErrDealNotFound = errors.New("deal not found")
	// ErrDealBusy is returned while another operation for the same deal is in flight.
	ErrDealBusy = errors.New("deal has an operation in flight")
	// ErrUpdateFailed wraps a rejection from the backing store.
	ErrUpdateFailed = errors.New("deal update failed")
	// ErrInvalidStatus is returned for a transition target outside the admin actions.
	ErrInvalidStatus = errors.New("invalid deal status")
)

// Status is the moderation state of a deal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSponsored Status = "sponsored"
)

// Statuses lists every lifecycle state in display order.
var Statuses = []Status{StatusPending, StatusApproved, StatusSponsored, StatusRejected}

// OrPending treats an empty or unknown status as pending.
func (s Status) OrPending() Status {
	switch s {
	case StatusApproved, StatusRejected, StatusSponsored:
		return s
	default:
		return StatusPending
	}
}

// IsAdminTarget reports whether s can be set through an admin action.
func (s Status) IsAdminTarget() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusSponsored
}

// Deal represents a submitted offer.
type Deal struct {
	ID          string             `firestore:"-" json:"id" validate:"required"`
	Title       string             `firestore:"title" json:"title" validate:"required"`
	Description string             `firestore:"description,omitempty" json:"description,omitempty"`
	URL         string             `firestore:"url" json:"url" validate:"omitempty,url"`
	SourceURL   string             `firestore:"sourceURL" json:"source_url" validate:"omitempty,url"`
	Upvotes     int                `firestore:"upvotes" json:"upvotes" validate:"gte=0"`
	Comments    int                `firestore:"commentCount" json:"comment_count" validate:"gte=0"`
	Views       int                `firestore:"views" json:"views" validate:"gte=0"`
	Status      Status             `firestore:"status" json:"status" validate:"omitempty,oneof=pending approved rejected sponsored"`
	Category    string             `firestore:"category,omitempty" json:"category,omitempty"`
	Technology  string             `firestore:"technology,omitempty" json:"technology,omitempty"`
	CreatedAt   time.Time          `firestore:"createdAt" json:"created_at" validate:"required"`
	UpdatedAt   time.Time          `firestore:"updatedAt" json:"updated_at"`
	ScrapedAt   time.Time          `firestore:"scrapedAt,omitempty" json:"scraped_at,omitempty"`
	Sentiment   *SentimentAnalysis `firestore:"sentiment,omitempty" json:"sentiment,omitempty" validate:"omitempty"`
}

// Overall is the aggregate classification of a sentiment analysis.
type Overall string

const (
	OverallPositive Overall = "positive"
	OverallNeutral  Overall = "neutral"
	OverallNegative Overall = "negative"
)

// SentimentAnalysis is a derived annotation attached to exactly one deal.
type SentimentAnalysis struct {
	ID           string    `firestore:"id" json:"id"`
	DealID       string    `firestore:"dealID" json:"deal_id" validate:"required"`
	Positive     float64   `firestore:"positiveScore" json:"positive_score" validate:"gte=0,lte=1"`
	Neutral      float64   `firestore:"neutralScore" json:"neutral_score" validate:"gte=0,lte=1"`
	Negative     float64   `firestore:"negativeScore" json:"negative_score" validate:"gte=0,lte=1"`
	Overall      Overall   `firestore:"overallSentiment" json:"overall_sentiment" validate:"required,oneof=positive neutral negative"`
	Confidence   float64   `firestore:"confidenceScore" json:"confidence_score" validate:"gte=0,lte=1"`
	CommentCount int       `firestore:"commentCount" json:"comment_count" validate:"gte=0"`
	AnalyzedAt   time.Time `firestore:"analyzedAt" json:"analyzed_at"`
}

// TrendingDeal is a deal with its rank in a trending list.
type TrendingDeal struct {
	Deal         Deal      `json:"deal"`
	Score        float64   `json:"trending_score"`
	Rank         int       `json:"rank"`
	Hot          bool      `json:"hot"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// Stats holds per-status counts derived from a deal collection.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Sponsored int `json:"sponsored"`
	Rejected  int `json:"rejected"`
}
