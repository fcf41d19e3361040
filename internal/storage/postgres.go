// Package storage persists documents, search history, and cache rows in
// PostgreSQL under an explicit schema. The in-memory structures remain the
// read path; this layer exists so the corpus survives a restart. All
// failures map to the storage error class and never abort queries.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopscout/searchcore/internal/catalog"
	"github.com/shopscout/searchcore/internal/history"
	apperrors "github.com/shopscout/searchcore/pkg/errors"
	"github.com/shopscout/searchcore/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id          TEXT PRIMARY KEY,
    record      JSONB NOT NULL,
    ingested_at BIGINT NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_history (
    id           TEXT PRIMARY KEY,
    query        TEXT NOT NULL,
    filters      JSONB NOT NULL,
    result_count INTEGER NOT NULL,
    recorded_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS search_history_recorded_at_idx
    ON search_history (recorded_at);

CREATE TABLE IF NOT EXISTS query_cache (
    key        TEXT PRIMARY KEY,
    payload    JSONB NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
`

// Store wraps the Postgres client with the engine's table operations.
type Store struct {
	client *postgres.Client
	logger *slog.Logger
}

// New creates a Store and ensures the schema exists.
func New(ctx context.Context, client *postgres.Client) (*Store, error) {
	s := &Store{
		client: client,
		logger: slog.Default().With("component", "storage"),
	}
	if _, err := client.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("%w: applying schema: %v", apperrors.ErrStorage, err)
	}
	return s, nil
}

// SaveRecords upserts a batch of product records in one transaction.
// Batching is a throughput measure only; the final state matches writing
// records one at a time.
func (s *Store) SaveRecords(ctx context.Context, records []catalog.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO documents (id, record, ingested_at, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (id) DO UPDATE
			SET record = EXCLUDED.record,
			    ingested_at = EXCLUDED.ingested_at,
			    updated_at = now()`)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, record := range records {
			payload, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("marshaling record %s: %w", record.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, record.ID, payload, record.IngestedAt); err != nil {
				return fmt.Errorf("upserting record %s: %w", record.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: saving %d records: %v", apperrors.ErrStorage, len(records), err)
	}
	return nil
}

// DeleteDocuments removes the given document rows. Every removal is an
// explicit, attributable operation; reason is logged for the audit trail.
func (s *Store) DeleteDocuments(ctx context.Context, ids []string, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM documents WHERE id = $1`)
		if err != nil {
			return fmt.Errorf("preparing delete: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("deleting document %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: deleting %d documents: %v", apperrors.ErrStorage, len(ids), err)
	}
	s.logger.Info("documents deleted", "count", len(ids), "reason", reason)
	return nil
}

// LoadRecords returns every persisted product record, used for startup
// recovery. Derived fields are rebuilt by the caller so settings changes
// re-derive naturally.
func (s *Store) LoadRecords(ctx context.Context) ([]catalog.ProductRecord, error) {
	rows, err := s.client.DB.QueryContext(ctx, `SELECT record FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading records: %v", apperrors.ErrStorage, err)
	}
	defer rows.Close()

	var records []catalog.ProductRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: scanning record row: %v", apperrors.ErrStorage, err)
		}
		var record catalog.ProductRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			s.logger.Error("skipping unreadable record row", "error", err)
			continue
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating record rows: %v", apperrors.ErrStorage, err)
	}
	return records, nil
}

// AppendHistory persists one search-history entry.
func (s *Store) AppendHistory(ctx context.Context, entry history.Entry) error {
	filters, err := json.Marshal(entry.Filters)
	if err != nil {
		return fmt.Errorf("marshaling filter snapshot: %w", err)
	}
	_, err = s.client.DB.ExecContext(ctx, `
		INSERT INTO search_history (id, query, filters, result_count, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.Query, filters, entry.ResultCount, entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("%w: appending history entry: %v", apperrors.ErrStorage, err)
	}
	return nil
}

// LoadHistory returns persisted history entries newer than cutoff.
func (s *Store) LoadHistory(ctx context.Context, cutoff time.Time) ([]history.Entry, error) {
	rows, err := s.client.DB.QueryContext(ctx, `
		SELECT id, query, filters, result_count, recorded_at
		FROM search_history
		WHERE recorded_at >= $1
		ORDER BY recorded_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: loading history: %v", apperrors.ErrStorage, err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var entry history.Entry
		var filters []byte
		if err := rows.Scan(&entry.ID, &entry.Query, &filters, &entry.ResultCount, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning history row: %v", apperrors.ErrStorage, err)
		}
		if err := json.Unmarshal(filters, &entry.Filters); err != nil {
			s.logger.Error("skipping unreadable history row", "id", entry.ID, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating history rows: %v", apperrors.ErrStorage, err)
	}
	return entries, nil
}

// DeleteHistoryBefore removes entries older than cutoff and returns the
// number of rows removed.
func (s *Store) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.client.DB.ExecContext(ctx,
		`DELETE FROM search_history WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: pruning history: %v", apperrors.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SaveCacheEntry upserts one durable cache row.
func (s *Store) SaveCacheEntry(ctx context.Context, key string, payload any, expiresAt time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling cache payload: %w", err)
	}
	_, err = s.client.DB.ExecContext(ctx, `
		INSERT INTO query_cache (key, payload, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`,
		key, data, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: saving cache entry: %v", apperrors.ErrStorage, err)
	}
	return nil
}

// ClearCache drops every durable cache row, mirroring an in-memory
// invalidation.
func (s *Store) ClearCache(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, `DELETE FROM query_cache`); err != nil {
		return fmt.Errorf("%w: clearing cache table: %v", apperrors.ErrStorage, err)
	}
	return nil
}

// SweepExpiredCache removes cache rows whose expiry has passed.
func (s *Store) SweepExpiredCache(ctx context.Context) (int64, error) {
	res, err := s.client.DB.ExecContext(ctx,
		`DELETE FROM query_cache WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("%w: sweeping cache table: %v", apperrors.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
