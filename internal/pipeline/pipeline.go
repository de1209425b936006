package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/forecast-etl/internal/config"
	"github.com/couchcryptid/forecast-etl/internal/domain"
	"github.com/couchcryptid/forecast-etl/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
)

// ErrInvalidPayload is returned when the fetched payload fails top-level validation.
var ErrInvalidPayload = errors.New("invalid payload")

// Fetcher retrieves one raw forecast payload from upstream.
type Fetcher interface {
	Fetch(ctx context.Context) (domain.RawForecastResponse, error)
}

// Transformer normalizes a raw payload into forecast periods.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawForecastResponse) domain.NormalizeResult
}

// Store persists a stamped batch idempotently.
type Store interface {
	Ingest(ctx context.Context, batch []domain.StoredObservation) (domain.IngestSummary, error)
}

// ReadingTransformer normalizes a raw observation payload into readings.
type ReadingTransformer interface {
	TransformReadings(ctx context.Context, raw domain.RawForecastResponse) domain.ReadingResult
}

// ReadingStore persists a stamped batch of readings idempotently.
type ReadingStore interface {
	IngestReadings(ctx context.Context, batch []domain.StoredReading) (domain.IngestSummary, error)
}

// BatchStore persists both feeds.
type BatchStore interface {
	Store
	ReadingStore
}

// Publisher fans normalized periods out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, cycleID string, periods []domain.ForecastPeriod) error
}

// CycleResult summarizes one fetch-normalize-ingest cycle.
type CycleResult struct {
	ID          string               `json:"id"`
	Feed        domain.Feed          `json:"feed"`
	FetchedAt   time.Time            `json:"fetched_at"`
	Periods     int                  `json:"periods"`
	Readings    int                  `json:"readings,omitempty"`
	Reason      domain.Reason        `json:"reason,omitempty"`
	Diagnostics []domain.Diagnostic  `json:"diagnostics"`
	Ingest      domain.IngestSummary `json:"ingest"`
	Published   int                  `json:"published"`
}

// Pipeline orchestrates the fetch-normalize-ingest-publish cycle.
type Pipeline struct {
	feed         domain.Feed
	fetcher      Fetcher
	transformer  Transformer
	store        Store
	readings     ReadingTransformer
	readingStore ReadingStore
	publisher    Publisher
	logger       *slog.Logger
	metrics      *observability.Metrics
	ready        atomic.Bool
	mu           sync.Mutex
}

// New creates a forecast Pipeline with the given stages and observability. publisher may be nil.
func New(f Fetcher, t Transformer, s Store, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		feed:        domain.FeedForecast,
		fetcher:     f,
		transformer: t,
		store:       s,
		publisher:   publisher,
		logger:      logger,
		metrics:     metrics,
	}
}

// NewReadings creates a Pipeline for an observation dataset. Readings are
// stored but not published.
func NewReadings(f Fetcher, t ReadingTransformer, s ReadingStore, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		feed:         domain.FeedReadings,
		fetcher:      f,
		readings:     t,
		readingStore: s,
		logger:       logger,
		metrics:      metrics,
	}
}

// NewForDataset picks the forecast or readings pipeline for cfg.CWADataset.
func NewForDataset(cfg *config.Config, f Fetcher, s BatchStore, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if domain.FeedFor(cfg.CWADataset) == domain.FeedReadings {
		return NewReadings(f, NewReadingTransformer(cfg.ReadingElement, metrics, logger), s, logger, metrics)
	}
	return New(f, NewTransformer(cfg.ReferenceElement, metrics, logger), s, publisher, logger, metrics)
}

// Feed reports which record shape the pipeline ingests.
func (p *Pipeline) Feed() domain.Feed { return p.feed }

// CheckReadiness returns nil once a cycle has reached the store, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return fmt.Errorf("no %s cycle has completed yet", p.feed)
	}
	return nil
}

// RunCycle fetches, normalizes, and ingests one payload. Cycles are serialized.
// Publish failures are logged and counted but do not fail the cycle. Every
// cycle, failed or not, is observed in the duration histogram.
func (p *Pipeline) RunCycle(ctx context.Context) (res CycleResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	p.metrics.CyclesTotal.Inc()
	defer func() {
		p.metrics.CycleDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			p.metrics.CycleFailures.Inc()
		}
	}()

	res = CycleResult{ID: uuid.NewString(), Feed: p.feed, Diagnostics: []domain.Diagnostic{}}
	logger := p.logger.With("cycle_id", res.ID, "feed", p.feed)

	raw, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch %s: %w", p.feed, err)
	}

	if p.feed == domain.FeedReadings {
		return p.ingestReadings(ctx, logger, raw, res)
	}
	return p.ingestForecast(ctx, logger, raw, res)
}

func (p *Pipeline) ingestForecast(ctx context.Context, logger *slog.Logger, raw domain.RawForecastResponse, res CycleResult) (CycleResult, error) {
	norm := p.transformer.Transform(ctx, raw)
	if norm.Diagnostics != nil {
		res.Diagnostics = norm.Diagnostics
	}
	res.Periods = len(norm.Periods)
	if !norm.Valid() {
		res.Reason = norm.Reason
		return res, fmt.Errorf("%w: %s", ErrInvalidPayload, norm.Reason)
	}

	batch := domain.NewObservations(norm.Periods)
	res.FetchedAt = domain.Now()
	if len(batch) > 0 {
		res.FetchedAt = batch[0].FetchedAt
	}

	summary, err := p.store.Ingest(ctx, batch)
	if err != nil {
		return res, fmt.Errorf("ingest forecast: %w", err)
	}
	res.Ingest = summary
	p.recordIngest(summary)

	if p.publisher != nil && len(norm.Periods) > 0 {
		if err := p.publisher.Publish(ctx, res.ID, norm.Periods); err != nil {
			p.metrics.PublishErrors.Inc()
			logger.Warn("publish periods failed", "error", err, "periods", len(norm.Periods))
		} else {
			res.Published = len(norm.Periods)
			p.metrics.PeriodsPublished.Add(float64(res.Published))
		}
	}

	logger.Info("forecast cycle complete",
		"periods", res.Periods,
		"accepted", summary.Accepted,
		"skipped", summary.Skipped,
		"rejected", summary.Rejected,
		"diagnostics", len(res.Diagnostics),
		"published", res.Published,
	)
	return res, nil
}

func (p *Pipeline) ingestReadings(ctx context.Context, logger *slog.Logger, raw domain.RawForecastResponse, res CycleResult) (CycleResult, error) {
	norm := p.readings.TransformReadings(ctx, raw)
	if norm.Diagnostics != nil {
		res.Diagnostics = norm.Diagnostics
	}
	res.Readings = len(norm.Readings)
	if !norm.Valid() {
		res.Reason = norm.Reason
		return res, fmt.Errorf("%w: %s", ErrInvalidPayload, norm.Reason)
	}

	batch := domain.NewStoredReadings(norm.Readings)
	res.FetchedAt = domain.Now()
	if len(batch) > 0 {
		res.FetchedAt = batch[0].FetchedAt
	}

	summary, err := p.readingStore.IngestReadings(ctx, batch)
	if err != nil {
		return res, fmt.Errorf("ingest readings: %w", err)
	}
	res.Ingest = summary
	p.recordIngest(summary)

	logger.Info("readings cycle complete",
		"readings", res.Readings,
		"accepted", summary.Accepted,
		"skipped", summary.Skipped,
		"rejected", summary.Rejected,
		"diagnostics", len(res.Diagnostics),
	)
	return res, nil
}

func (p *Pipeline) recordIngest(summary domain.IngestSummary) {
	p.metrics.IngestRecords.WithLabelValues("accepted").Add(float64(summary.Accepted))
	p.metrics.IngestRecords.WithLabelValues("skipped").Add(float64(summary.Skipped))
	p.metrics.IngestRecords.WithLabelValues("rejected").Add(float64(summary.Rejected))
	p.ready.Store(true)
	p.metrics.PipelineReady.Set(1)
}

// RunWithRetry runs cycles until one succeeds, attempts are exhausted, or ctx
// is cancelled. Backoff starts at initial and doubles up to maxBackoff.
// Invalid payloads are not retried.
func (p *Pipeline) RunWithRetry(ctx context.Context, attempts int, initial, maxBackoff time.Duration) (CycleResult, error) {
	backoff := initial
	var (
		res CycleResult
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err = p.RunCycle(ctx)
		if err == nil || errors.Is(err, ErrInvalidPayload) || attempt == attempts {
			return res, err
		}
		p.logger.Warn("cycle failed, retrying", "error", err, "attempt", attempt, "backoff", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			return res, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return res, err
}
