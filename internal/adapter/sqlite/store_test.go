package sqlite

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/forecast-etl/internal/config"
	"github.com/couchcryptid/forecast-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFetchedAt = time.Date(2024, 4, 26, 10, 30, 0, 123456000, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, &config.Config{SQLitePath: ":memory:"}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db))
	return NewStore(db, discardLogger())
}

func observation(location, start, weather string, fetchedAt time.Time) domain.StoredObservation {
	return domain.StoredObservation{
		ForecastPeriod: domain.ForecastPeriod{
			Location:                 location,
			StartTime:                start,
			EndTime:                  start + "+12h",
			WeatherDescription:       weather,
			PrecipitationProbability: "20",
			MinTemperature:           "18",
			MaxTemperature:           domain.Unavailable,
		},
		FetchedAt: fetchedAt,
	}
}

func TestStore_IngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	batch := []domain.StoredObservation{
		observation("Taipei", "2024-04-26 18:00:00", "Cloudy", testFetchedAt),
		observation("Taipei", "2024-04-27 06:00:00", "Rain", testFetchedAt),
	}

	first, err := s.Ingest(ctx, batch)
	require.NoError(t, err)
	second, err := s.Ingest(ctx, batch)
	require.NoError(t, err)

	assert.Equal(t, domain.IngestSummary{Accepted: 2}, first)
	assert.Equal(t, domain.IngestSummary{Skipped: 2}, second)

	rows, err := s.QueryRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestStore_FirstSeenWins(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	_, err := s.Ingest(ctx, []domain.StoredObservation{
		observation("Taipei", "T0", "Cloudy", testFetchedAt),
	})
	require.NoError(t, err)
	summary, err := s.Ingest(ctx, []domain.StoredObservation{
		observation("Taipei", "T0", "Thunderstorm", testFetchedAt.Add(time.Hour)),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.IngestSummary{Skipped: 1}, summary)
	rows, err := s.QueryRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Cloudy", rows[0].WeatherDescription)
	assert.Equal(t, testFetchedAt, rows[0].FetchedAt)
}

func TestStore_DuplicateKeyWithinBatch(t *testing.T) {
	s := setupStore(t)

	summary, err := s.Ingest(context.Background(), []domain.StoredObservation{
		observation("Taipei", "T0", "Cloudy", testFetchedAt),
		observation("Taipei", "T0", "Rain", testFetchedAt),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.IngestSummary{Accepted: 1, Skipped: 1}, summary)
}

func TestStore_IngestRejectsIncompleteRecords(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	summary, err := s.Ingest(ctx, []domain.StoredObservation{
		observation("", "T0", "Cloudy", testFetchedAt),
		observation("Taipei", "", "Cloudy", testFetchedAt),
		observation("Taipei", domain.Unavailable, "Cloudy", testFetchedAt),
		observation("Taipei", "T0", "Cloudy", testFetchedAt),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.IngestSummary{Accepted: 1, Rejected: 3}, summary)
	rows, err := s.QueryRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_IngestRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, err := s.db.ExecContext(ctx, `
		CREATE TRIGGER reject_boom BEFORE INSERT ON forecast_periods
		WHEN NEW.location = 'Boom'
		BEGIN SELECT RAISE(ABORT, 'boom'); END`)
	require.NoError(t, err)

	summary, err := s.Ingest(ctx, []domain.StoredObservation{
		observation("Taipei", "T0", "Cloudy", testFetchedAt),
		observation("Boom", "T0", "Cloudy", testFetchedAt),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Boom|T0")
	assert.Equal(t, domain.IngestSummary{}, summary)
	rows, err := s.QueryRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_IngestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := setupStore(t)
	cancel()

	_, err := s.Ingest(ctx, []domain.StoredObservation{
		observation("Taipei", "T0", "Cloudy", testFetchedAt),
	})

	require.Error(t, err)
}

func TestStore_IngestEmptyBatch(t *testing.T) {
	s := setupStore(t)

	summary, err := s.Ingest(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, domain.IngestSummary{}, summary)
}

func TestStore_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	obs := observation("Taipei", "T0", "Cloudy", testFetchedAt)

	inserted, err := s.InsertIfAbsent(ctx, obs)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertIfAbsent(ctx, obs)
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = s.InsertIfAbsent(ctx, observation(" ", "T0", "Cloudy", testFetchedAt))
	assert.ErrorIs(t, err, ErrIncompleteRecord)
}

func TestStore_QueryRecent(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	older := testFetchedAt
	newer := testFetchedAt.Add(3 * time.Hour)

	_, err := s.Ingest(ctx, []domain.StoredObservation{
		observation("Taipei", "T1", "Rain", older),
		observation("Taipei", "T0", "Cloudy", older),
	})
	require.NoError(t, err)
	_, err = s.Ingest(ctx, []domain.StoredObservation{
		observation("Tainan", "T0", "Sunny", newer),
		observation("Kaohsiung", "T0", "Sunny", newer),
	})
	require.NoError(t, err)

	t.Run("ordered by fetch time then key", func(t *testing.T) {
		rows, err := s.QueryRecent(ctx, 10)
		require.NoError(t, err)

		var keys []string
		for _, r := range rows {
			keys = append(keys, r.Key())
		}
		assert.Equal(t, []string{"Kaohsiung|T0", "Tainan|T0", "Taipei|T0", "Taipei|T1"}, keys)
		assert.Equal(t, newer, rows[0].FetchedAt)
		assert.Equal(t, older, rows[3].FetchedAt)
	})

	t.Run("limit caps rows", func(t *testing.T) {
		rows, err := s.QueryRecent(ctx, 3)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("non-positive limit", func(t *testing.T) {
		for _, limit := range []int{0, -1} {
			rows, err := s.QueryRecent(ctx, limit)
			require.NoError(t, err)
			assert.NotNil(t, rows)
			assert.Empty(t, rows)
		}
	})

	t.Run("round trips all fields", func(t *testing.T) {
		rows, err := s.QueryRecent(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, observation("Taipei", "T1", "Rain", older), rows[3])
	})
}

func reading(location, at, value string, fetchedAt time.Time) domain.StoredReading {
	return domain.StoredReading{
		Reading:   domain.Reading{Location: location, ObservationTime: at, Value: value},
		FetchedAt: fetchedAt,
	}
}

func TestStore_IngestReadingsOverlappingBatches(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	later := testFetchedAt.Add(time.Hour)

	first, err := s.IngestReadings(ctx, []domain.StoredReading{
		reading("臺北", "2024-04-26T10:00:00+08:00", "24.5", testFetchedAt),
		reading("臺北", "2024-04-26T11:00:00+08:00", "25.1", testFetchedAt),
	})
	require.NoError(t, err)
	second, err := s.IngestReadings(ctx, []domain.StoredReading{
		reading("臺北", "2024-04-26T11:00:00+08:00", "26.0", later),
		reading("臺北", "2024-04-26T12:00:00+08:00", "25.8", later),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.IngestSummary{Accepted: 2}, first)
	assert.Equal(t, domain.IngestSummary{Accepted: 1, Skipped: 1}, second)

	rows, err := s.QueryRecentReadings(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.StoredReading{
		reading("臺北", "2024-04-26T12:00:00+08:00", "25.8", later),
		reading("臺北", "2024-04-26T10:00:00+08:00", "24.5", testFetchedAt),
		reading("臺北", "2024-04-26T11:00:00+08:00", "25.1", testFetchedAt),
	}, rows)
}

func TestStore_IngestReadingsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	batch := []domain.StoredReading{
		reading("臺北", "T0", "24.5", testFetchedAt),
		reading("高雄", "T0", domain.Unavailable, testFetchedAt),
		reading("", "T0", "20", testFetchedAt),
		reading("臺北", domain.Unavailable, "20", testFetchedAt),
	}

	first, err := s.IngestReadings(ctx, batch)
	require.NoError(t, err)
	second, err := s.IngestReadings(ctx, batch)
	require.NoError(t, err)

	assert.Equal(t, domain.IngestSummary{Accepted: 2, Rejected: 2}, first)
	assert.Equal(t, domain.IngestSummary{Skipped: 2, Rejected: 2}, second)

	rows, err := s.QueryRecentReadings(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestStore_ReadingsAndPeriodsAreSeparate(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	_, err := s.Ingest(ctx, []domain.StoredObservation{observation("Taipei", "T0", "Cloudy", testFetchedAt)})
	require.NoError(t, err)
	summary, err := s.IngestReadings(ctx, []domain.StoredReading{reading("Taipei", "T0", "24.5", testFetchedAt)})
	require.NoError(t, err)

	assert.Equal(t, domain.IngestSummary{Accepted: 1}, summary)
	periods, err := s.QueryRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, periods, 1)
}

func TestStore_IngestReadingsRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, err := s.db.ExecContext(ctx, `
		CREATE TRIGGER reject_boom_reading BEFORE INSERT ON observations
		WHEN NEW.location = 'Boom'
		BEGIN SELECT RAISE(ABORT, 'boom'); END`)
	require.NoError(t, err)

	_, err = s.IngestReadings(ctx, []domain.StoredReading{
		reading("Taipei", "T0", "24.5", testFetchedAt),
		reading("Boom", "T0", "24.5", testFetchedAt),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert reading Boom|T0")
	rows, err := s.QueryRecentReadings(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_QueryRecentReadingsNonPositiveLimit(t *testing.T) {
	rows, err := setupStore(t).QueryRecentReadings(context.Background(), 0)

	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestStore_CheckReadiness(t *testing.T) {
	s := setupStore(t)

	assert.NoError(t, s.CheckReadiness(context.Background()))
	require.NoError(t, s.db.Close())
	assert.Error(t, s.CheckReadiness(context.Background()))
}

func TestOpen_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "forecast.db")

	db, err := Open(ctx, &config.Config{SQLitePath: path}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))

	s := NewStore(db, discardLogger())
	summary, err := s.Ingest(ctx, []domain.StoredObservation{observation("Taipei", "T0", "Cloudy", testFetchedAt)})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Accepted)
	assert.FileExists(t, path)
}

func TestOpen_TraceLogsStatements(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	db, err := Open(ctx, &config.Config{SQLitePath: ":memory:", SQLiteTrace: true}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db))

	s := NewStore(db, logger)
	_, err = s.Ingest(ctx, []domain.StoredObservation{observation("Taipei", "T0", "Cloudy", testFetchedAt)})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS forecast_periods")
	assert.Contains(t, out, "op=begin")
	assert.Contains(t, out, "ON CONFLICT")
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"memory", ":memory:", ":memory:", false},
		{"relative file", "forecast.db", "file:forecast.db?_busy_timeout=5000&_journal_mode=WAL", false},
		{"file uri", "file:x.db?mode=rwc", "file:x.db?mode=rwc&_busy_timeout=5000&_journal_mode=WAL", false},
		{"blank", "  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
