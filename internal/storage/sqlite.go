package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deals (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	upvotes       INTEGER NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	views         INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending',
	category      TEXT NOT NULL DEFAULT '',
	technology    TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	scraped_at    TEXT NOT NULL DEFAULT '',
	sentiment     TEXT
);
CREATE INDEX IF NOT EXISTS idx_deals_created_at ON deals(created_at);
CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const dealColumns = `id, title, description, url, source_url, upvotes, comment_count, views,
	status, category, technology, created_at, updated_at, scraped_at, sentiment`

const stateKeyLastIngest = "last_ingest"

// SQLite stores deals in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path. ":memory:" gives a private
// in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting journal mode: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ListDeals(ctx context.Context) ([]models.Deal, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+dealColumns+" FROM deals ORDER BY created_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}
	return deals, rows.Err()
}

func (s *SQLite) GetDealByID(ctx context.Context, id string) (*models.Deal, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+dealColumns+" FROM deals WHERE id = ?", id)
	deal, err := scanDeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deal by ID %s: %w", id, err)
	}
	return &deal, nil
}

func (s *SQLite) TryCreateDeal(ctx context.Context, deal models.Deal) error {
	sentiment, err := encodeSentiment(deal.Sentiment)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO deals ("+dealColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		deal.ID, deal.Title, deal.Description, deal.URL, deal.SourceURL,
		deal.Upvotes, deal.Comments, deal.Views,
		string(deal.Status.OrPending()), deal.Category, deal.Technology,
		formatTime(deal.CreatedAt), formatTime(deal.UpdatedAt), formatTime(deal.ScrapedAt), sentiment,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.ErrDealExists
		}
		return fmt.Errorf("failed to create deal %s: %w", deal.ID, err)
	}
	return nil
}

func (s *SQLite) UpdateDeal(ctx context.Context, deal models.Deal) error {
	res, err := s.db.ExecContext(ctx, `UPDATE deals SET
		title = ?, description = ?, url = ?, source_url = ?,
		upvotes = ?, comment_count = ?, views = ?,
		category = ?, technology = ?, updated_at = ?, scraped_at = ?
		WHERE id = ?`,
		deal.Title, deal.Description, deal.URL, deal.SourceURL,
		deal.Upvotes, deal.Comments, deal.Views,
		deal.Category, deal.Technology, formatTime(deal.UpdatedAt), formatTime(deal.ScrapedAt),
		deal.ID,
	)
	return affectedOne(res, err)
}

func (s *SQLite) UpdateStatus(ctx context.Context, id string, st models.Status, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE deals SET status = ?, updated_at = ? WHERE id = ?",
		string(st), formatTime(updatedAt), id)
	return affectedOne(res, err)
}

func (s *SQLite) DeleteDeal(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM deals WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete deal %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) SaveSentiment(ctx context.Context, analysis models.SentimentAnalysis) error {
	encoded, err := encodeSentiment(&analysis)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE deals SET sentiment = ? WHERE id = ?", encoded, analysis.DealID)
	return affectedOne(res, err)
}

func (s *SQLite) TrimOldDeals(ctx context.Context, maxDeals int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM deals WHERE id IN (
		SELECT id FROM deals ORDER BY created_at DESC, id ASC LIMIT -1 OFFSET ?)`, max(maxDeals, 0))
	if err != nil {
		return fmt.Errorf("failed to trim deals: %w", err)
	}
	return nil
}

func (s *SQLite) LastIngest(ctx context.Context) (time.Time, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", stateKeyLastIngest).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read ingest state: %w", err)
	}
	return parseTime(v)
}

func (s *SQLite) SetLastIngest(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, stateKeyLastIngest, formatTime(t))
	if err != nil {
		return fmt.Errorf("failed to write ingest state: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(r rowScanner) (models.Deal, error) {
	var (
		d                             models.Deal
		status                        string
		createdAt, updatedAt, scraped string
		sentiment                     sql.NullString
	)
	err := r.Scan(&d.ID, &d.Title, &d.Description, &d.URL, &d.SourceURL,
		&d.Upvotes, &d.Comments, &d.Views,
		&status, &d.Category, &d.Technology,
		&createdAt, &updatedAt, &scraped, &sentiment)
	if err != nil {
		return models.Deal{}, err
	}
	d.Status = models.Status(status).OrPending()
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Deal{}, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.Deal{}, err
	}
	if d.ScrapedAt, err = parseTime(scraped); err != nil {
		return models.Deal{}, err
	}
	if sentiment.Valid && sentiment.String != "" {
		var a models.SentimentAnalysis
		if err := json.Unmarshal([]byte(sentiment.String), &a); err != nil {
			return models.Deal{}, fmt.Errorf("failed to decode sentiment for deal %s: %w", d.ID, err)
		}
		d.Sentiment = &a
	}
	return d, nil
}

func encodeSentiment(a *models.SentimentAnalysis) (sql.NullString, error) {
	if a == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode sentiment: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrDealNotFound
	}
	return nil
}

// Times are stored as fixed-width UTC strings so they sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}

var _ Store = (*SQLite)(nil)
