package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/forecast-etl/internal/domain"
)

// fetchedAtLayout is fixed width so lexical order matches chronological order.
const fetchedAtLayout = "2006-01-02T15:04:05.000000Z"

// ErrIncompleteRecord is returned by InsertIfAbsent for records without a location or start time.
var ErrIncompleteRecord = errors.New("incomplete forecast record")

var (
	//go:embed sql/insert-period.sql
	insertPeriodSQL string
	//go:embed sql/get-recent-periods.sql
	getRecentPeriodsSQL string
	//go:embed sql/insert-reading.sql
	insertReadingSQL string
	//go:embed sql/get-recent-readings.sql
	getRecentReadingsSQL string
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store persists forecast periods keyed by (location, start_time) and readings
// keyed by (location, obs_time). The first record seen for a key is kept;
// later duplicates are skipped.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore wraps an open database. Call Migrate before first use.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// InsertIfAbsent stores a single observation. It reports false when the key already exists.
func (s *Store) InsertIfAbsent(ctx context.Context, obs domain.StoredObservation) (bool, error) {
	if !obs.Complete() {
		return false, ErrIncompleteRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPeriod(ctx, s.db, obs)
}

// Ingest stores a batch in one transaction. Incomplete records are counted as
// rejected and skipped; any database error rolls back the whole batch.
func (s *Store) Ingest(ctx context.Context, batch []domain.StoredObservation) (domain.IngestSummary, error) {
	return ingestBatch(ctx, s, "forecast", batch, insertPeriod)
}

// IngestReadings stores a batch of readings keyed (location, obs_time) with
// the same first-seen and all-or-nothing rules as Ingest.
func (s *Store) IngestReadings(ctx context.Context, batch []domain.StoredReading) (domain.IngestSummary, error) {
	return ingestBatch(ctx, s, "reading", batch, insertReading)
}

type keyed interface {
	Complete() bool
	Key() string
}

func ingestBatch[T keyed](
	ctx context.Context,
	s *Store,
	kind string,
	batch []T,
	insert func(context.Context, execer, T) (bool, error),
) (domain.IngestSummary, error) {
	var summary domain.IngestSummary
	if len(batch) == 0 {
		return summary, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.IngestSummary{}, fmt.Errorf("begin ingest: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range batch {
		if !rec.Complete() {
			summary.Rejected++
			s.logger.Warn("rejected incomplete record", "kind", kind, "key", rec.Key())
			continue
		}
		inserted, err := insert(ctx, tx, rec)
		if err != nil {
			return domain.IngestSummary{}, err
		}
		if inserted {
			summary.Accepted++
		} else {
			summary.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.IngestSummary{}, fmt.Errorf("commit ingest: %w", err)
	}
	return summary, nil
}

// QueryRecent returns up to limit stored observations, most recently fetched
// first, then by location and start time. A non-positive limit yields nothing.
func (s *Store) QueryRecent(ctx context.Context, limit int) ([]domain.StoredObservation, error) {
	if limit <= 0 {
		return []domain.StoredObservation{}, nil
	}

	rows, err := s.db.QueryContext(ctx, getRecentPeriodsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent periods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.StoredObservation, 0, limit)
	for rows.Next() {
		var (
			obs       domain.StoredObservation
			fetchedAt string
		)
		if err := rows.Scan(
			&obs.Location,
			&obs.StartTime,
			&obs.EndTime,
			&obs.WeatherDescription,
			&obs.PrecipitationProbability,
			&obs.MinTemperature,
			&obs.MaxTemperature,
			&fetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		obs.FetchedAt, err = parseFetchedAt(fetchedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate periods: %w", err)
	}
	return out, nil
}

// QueryRecentReadings returns up to limit stored readings in the same order
// as QueryRecent.
func (s *Store) QueryRecentReadings(ctx context.Context, limit int) ([]domain.StoredReading, error) {
	if limit <= 0 {
		return []domain.StoredReading{}, nil
	}

	rows, err := s.db.QueryContext(ctx, getRecentReadingsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent readings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.StoredReading, 0, limit)
	for rows.Next() {
		var (
			r         domain.StoredReading
			fetchedAt string
		)
		if err := rows.Scan(&r.Location, &r.ObservationTime, &r.Value, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.FetchedAt, err = parseFetchedAt(fetchedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}

// CheckReadiness reports whether the database answers a ping.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping: %w", err)
	}
	return nil
}

func insertPeriod(ctx context.Context, ex execer, obs domain.StoredObservation) (bool, error) {
	res, err := ex.ExecContext(ctx, insertPeriodSQL,
		obs.Location,
		obs.StartTime,
		obs.EndTime,
		obs.WeatherDescription,
		obs.PrecipitationProbability,
		obs.MinTemperature,
		obs.MaxTemperature,
		obs.FetchedAt.UTC().Format(fetchedAtLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert period %s: %w", obs.Key(), err)
	}
	return affected(res)
}

func insertReading(ctx context.Context, ex execer, r domain.StoredReading) (bool, error) {
	res, err := ex.ExecContext(ctx, insertReadingSQL,
		r.Location,
		r.ObservationTime,
		r.Value,
		r.FetchedAt.UTC().Format(fetchedAtLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert reading %s: %w", r.Key(), err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func parseFetchedAt(v string) (time.Time, error) {
	if t, err := time.Parse(fetchedAtLayout, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse fetched_at %q: %w", v, err)
	}
	return t.UTC(), nil
}
