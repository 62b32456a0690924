package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/V4T54L/carepulse/internal/domain"
)

// CounterStore implements domain.CounterStore on the metric_samples table.
type CounterStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCounterStore creates a PostgreSQL counter store.
func NewCounterStore(db *sql.DB, logger *slog.Logger) *CounterStore {
	return &CounterStore{db: db, logger: logger.With("component", "postgres_counter_store")}
}

func (s *CounterStore) Record(ctx context.Context, sample domain.MetricSample) error {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	meta, err := marshalJSON(sample.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metric_samples (id, metric_type, value, recorded_at, metadata) VALUES ($1, $2, $3, $4, $5)`,
		sample.ID, sample.Type, sample.Value, sample.Timestamp, meta)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// RecordBatch writes samples with the COPY protocol through a staging table.
func (s *CounterStore) RecordBatch(ctx context.Context, samples []domain.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	const staging = "metric_samples_import"
	if _, err := txn.ExecContext(ctx, `CREATE TEMP TABLE `+staging+` (LIKE metric_samples INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(staging, "id", "metric_type", "value", "recorded_at", "metadata"))
	if err != nil {
		return err
	}
	for _, sample := range samples {
		if sample.ID == "" {
			sample.ID = uuid.NewString()
		}
		meta, err := marshalJSON(sample.Metadata)
		if err != nil {
			_ = stmt.Close()
			return err
		}
		if _, err := stmt.ExecContext(ctx, sample.ID, sample.Type, sample.Value, sample.Timestamp, meta); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to stage sample: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush COPY: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	if _, err := txn.ExecContext(ctx, `
		INSERT INTO metric_samples (id, metric_type, value, recorded_at, metadata)
		SELECT id, metric_type, value, recorded_at, metadata FROM `+staging+`
		ON CONFLICT (id) DO NOTHING`); err != nil {
		return fmt.Errorf("failed to merge staged samples: %w", err)
	}
	return txn.Commit()
}

func (s *CounterStore) QueryWindow(ctx context.Context, metricType string, since time.Time) ([]domain.MetricSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, metric_type, value, recorded_at, metadata
		FROM metric_samples WHERE metric_type = $1 AND recorded_at >= $2
		ORDER BY recorded_at`, metricType, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query window: %w", err)
	}
	defer rows.Close()

	var samples []domain.MetricSample
	for rows.Next() {
		var sample domain.MetricSample
		var meta []byte
		if err := rows.Scan(&sample.ID, &sample.Type, &sample.Value, &sample.Timestamp, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &sample.Metadata); err != nil {
				s.logger.Warn("Ignoring undecodable sample metadata", "id", sample.ID, "error", err)
			}
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func (s *CounterStore) CountWindow(ctx context.Context, metricType string, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM metric_samples WHERE metric_type = $1 AND recorded_at >= $2`,
		metricType, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count window: %w", err)
	}
	return n, nil
}

// AddIfBelow serializes callers on the key with a transaction-scoped advisory lock.
func (s *CounterStore) AddIfBelow(ctx context.Context, key string, windowStart, now time.Time, limit int) (domain.WindowCount, error) {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WindowCount{}, err
	}
	defer txn.Rollback()

	if _, err := txn.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return domain.WindowCount{}, fmt.Errorf("failed to lock %s: %w", key, err)
	}
	if _, err := txn.ExecContext(ctx,
		`DELETE FROM metric_samples WHERE metric_type = $1 AND recorded_at < $2`, key, windowStart); err != nil {
		return domain.WindowCount{}, fmt.Errorf("failed to trim window: %w", err)
	}

	var count int
	var oldest sql.NullTime
	if err := txn.QueryRowContext(ctx,
		`SELECT count(*), min(recorded_at) FROM metric_samples WHERE metric_type = $1`, key,
	).Scan(&count, &oldest); err != nil {
		return domain.WindowCount{}, fmt.Errorf("failed to count window: %w", err)
	}

	res := domain.WindowCount{Count: count, Oldest: oldest.Time}
	if count < limit {
		if _, err := txn.ExecContext(ctx,
			`INSERT INTO metric_samples (id, metric_type, value, recorded_at) VALUES ($1, $2, 1, $3)`,
			uuid.NewString(), key, now); err != nil {
			return domain.WindowCount{}, fmt.Errorf("failed to append request: %w", err)
		}
		res.Admitted = true
		res.Count++
		if !oldest.Valid {
			res.Oldest = now
		}
	}

	if err := txn.Commit(); err != nil {
		return domain.WindowCount{}, err
	}
	return res, nil
}

func (s *CounterStore) Compact(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM metric_samples WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to compact samples: %w", err)
	}
	return res.RowsAffected()
}

// marshalJSON encodes a JSONB parameter. lib/pq sends []byte as bytea, so the
// document travels as a string.
func marshalJSON(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json: %w", err)
	}
	return string(b), nil
}
