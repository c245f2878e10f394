package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

const firestoreCollection = "deals"

// Firestore stores deals as documents keyed by deal id.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore connects to the project's default database.
func NewFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Firestore{client: client}, nil
}

func (c *Firestore) Close() error {
	return c.client.Close()
}

// ListDeals returns every deal, newest first.
func (c *Firestore) ListDeals(ctx context.Context) ([]models.Deal, error) {
	iter := c.client.Collection(firestoreCollection).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var deals []models.Deal
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list deals: %w", err)
		}
		var deal models.Deal
		if err := doc.DataTo(&deal); err != nil {
			slog.Warn("Skipping undecodable deal document", "id", doc.Ref.ID, "error", err)
			continue
		}
		deal.ID = doc.Ref.ID
		deals = append(deals, deal)
	}
	return deals, nil
}

// GetDealByID retrieves a deal by its Firestore Document ID.
func (c *Firestore) GetDealByID(ctx context.Context, id string) (*models.Deal, error) {
	doc, err := c.client.Collection(firestoreCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deal by ID %s: %w", id, err)
	}
	if !doc.Exists() {
		return nil, nil
	}

	var deal models.Deal
	if err := doc.DataTo(&deal); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deal data: %w", err)
	}
	deal.ID = doc.Ref.ID
	return &deal, nil
}

// TryCreateDeal attempts to create a new deal. Returns ErrDealExists if it already exists.
func (c *Firestore) TryCreateDeal(ctx context.Context, deal models.Deal) error {
	// Create fails if the document already exists.
	_, err := c.client.Collection(firestoreCollection).Doc(deal.ID).Create(ctx, deal)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return models.ErrDealExists
		}
		return err
	}
	return nil
}

// UpdateDeal updates the scraped fields only, so a concurrent status change is never overwritten.
func (c *Firestore) UpdateDeal(ctx context.Context, deal models.Deal) error {
	_, err := c.client.Collection(firestoreCollection).Doc(deal.ID).Update(ctx, contentUpdates(deal))
	return mapNotFound(err)
}

func contentUpdates(deal models.Deal) []firestore.Update {
	return []firestore.Update{
		{Path: "title", Value: deal.Title},
		{Path: "description", Value: deal.Description},
		{Path: "url", Value: deal.URL},
		{Path: "sourceURL", Value: deal.SourceURL},
		{Path: "upvotes", Value: deal.Upvotes},
		{Path: "commentCount", Value: deal.Comments},
		{Path: "views", Value: deal.Views},
		{Path: "category", Value: deal.Category},
		{Path: "technology", Value: deal.Technology},
		{Path: "updatedAt", Value: deal.UpdatedAt},
		{Path: "scrapedAt", Value: deal.ScrapedAt},
	}
}

func (c *Firestore) UpdateStatus(ctx context.Context, id string, s models.Status, updatedAt time.Time) error {
	_, err := c.client.Collection(firestoreCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: s},
		{Path: "updatedAt", Value: updatedAt},
	})
	return mapNotFound(err)
}

// DeleteDeal removes the document. Firestore deletes of missing documents succeed.
func (c *Firestore) DeleteDeal(ctx context.Context, id string) error {
	_, err := c.client.Collection(firestoreCollection).Doc(id).Delete(ctx)
	return err
}

func (c *Firestore) SaveSentiment(ctx context.Context, analysis models.SentimentAnalysis) error {
	_, err := c.client.Collection(firestoreCollection).Doc(analysis.DealID).Update(ctx, []firestore.Update{
		{Path: "sentiment", Value: analysis},
	})
	return mapNotFound(err)
}

// TrimOldDeals deletes the oldest deals (by createdAt) beyond maxDeals.
func (c *Firestore) TrimOldDeals(ctx context.Context, maxDeals int) error {
	maxDeals = max(maxDeals, 0)
	collectionRef := c.client.Collection(firestoreCollection)

	countSnapshot, err := collectionRef.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get deal count for trimming: %w", err)
	}
	countValue, ok := countSnapshot["all"]
	if !ok {
		return fmt.Errorf("count aggregation result for trimming was invalid: 'all' key missing")
	}
	current, err := aggregationCount(countValue)
	if err != nil {
		return err
	}

	if int(current) <= maxDeals {
		return nil
	}
	numToDelete := int(current) - maxDeals
	slog.Info("Trimming old deals", "current", current, "max", maxDeals, "deleting", numToDelete)

	iter := collectionRef.
		OrderBy("createdAt", firestore.Asc).
		Limit(numToDelete).
		Documents(ctx)
	defer iter.Stop()

	bulkWriter := c.client.BulkWriter(ctx)
	defer bulkWriter.End()

	deleted := 0
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to iterate deals for trimming: %w", err)
		}
		if _, err := bulkWriter.Delete(doc.Ref); err != nil {
			slog.Warn("Failed to queue delete", "id", doc.Ref.ID, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		bulkWriter.Flush()
		slog.Info("Trimmed old deals", "deleted", deleted)
	}
	return nil
}

// aggregationCount reads a count aggregation result, which the client returns
// either as an int64 or as a raw protobuf value depending on version.
func aggregationCount(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case *firestorepb.Value:
		return val.GetIntegerValue(), nil
	default:
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", v)
	}
}

func mapNotFound(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return models.ErrDealNotFound
	}
	return err
}

var _ Store = (*Firestore)(nil)
