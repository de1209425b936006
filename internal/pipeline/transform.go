package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/forecast-etl/internal/domain"
	"github.com/couchcryptid/forecast-etl/internal/observability"
)

// ForecastTransformer implements Transformer with domain.Normalizer, logging
// and counting every diagnostic.
type ForecastTransformer struct {
	normalizer domain.Normalizer
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewTransformer creates a ForecastTransformer joined on the given reference element.
func NewTransformer(reference string, metrics *observability.Metrics, logger *slog.Logger) *ForecastTransformer {
	return &ForecastTransformer{
		normalizer: domain.NewNormalizer(reference),
		metrics:    metrics,
		logger:     logger,
	}
}

func (t *ForecastTransformer) Transform(_ context.Context, raw domain.RawForecastResponse) domain.NormalizeResult {
	res := t.normalizer.Normalize(raw)
	recordDiagnostics(t.metrics, t.logger, res.Diagnostics)
	t.metrics.PeriodsNormalized.Add(float64(len(res.Periods)))
	return res
}

// ObservationTransformer implements ReadingTransformer with domain.ReadingNormalizer.
type ObservationTransformer struct {
	normalizer domain.ReadingNormalizer
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewReadingTransformer creates an ObservationTransformer for one element series.
func NewReadingTransformer(element string, metrics *observability.Metrics, logger *slog.Logger) *ObservationTransformer {
	return &ObservationTransformer{
		normalizer: domain.NewReadingNormalizer(element),
		metrics:    metrics,
		logger:     logger,
	}
}

func (t *ObservationTransformer) TransformReadings(_ context.Context, raw domain.RawForecastResponse) domain.ReadingResult {
	res := t.normalizer.Normalize(raw)
	recordDiagnostics(t.metrics, t.logger, res.Diagnostics)
	t.metrics.ReadingsNormalized.Add(float64(len(res.Readings)))
	return res
}

func recordDiagnostics(metrics *observability.Metrics, logger *slog.Logger, diags []domain.Diagnostic) {
	for _, d := range diags {
		metrics.Diagnostics.WithLabelValues(string(d.Reason)).Inc()
		logger.Warn("normalization diagnostic",
			"reason", d.Reason,
			"location", d.Location,
			"index", d.Index,
		)
	}
}
