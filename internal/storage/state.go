package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	stateCollection = "bot_state"
	stateDocumentID = "last_ingest"
)

// ingestState is the document recording when ingestion last completed.
type ingestState struct {
	LastIngest time.Time `firestore:"lastIngest"`
}

// LastIngest returns the zero time before the first ingestion run.
func (c *Firestore) LastIngest(ctx context.Context) (time.Time, error) {
	docSnap, err := c.client.Collection(stateCollection).Doc(stateDocumentID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			slog.Debug("Ingest state not found, assuming first run")
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get ingest state: %w", err)
	}

	var state ingestState
	if err := docSnap.DataTo(&state); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal ingest state: %w", err)
	}
	return state.LastIngest, nil
}

// SetLastIngest skips zero timestamps.
func (c *Firestore) SetLastIngest(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return nil
	}
	if _, err := c.client.Collection(stateCollection).Doc(stateDocumentID).Set(ctx, ingestState{LastIngest: t}); err != nil {
		return fmt.Errorf("failed to set ingest state: %w", err)
	}
	return nil
}
