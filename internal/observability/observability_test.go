package observability

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/couchcryptid/forecast-etl/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLogger_SetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			logger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: format})

			require.NotNil(t, logger)
			assert.Same(t, logger, slog.Default())
			assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
			assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
		})
	}
}

func TestNewTextLogger_WritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := newTextLogger(&buf, slog.LevelInfo)

	logger.Info("cycle complete", "accepted", 4)
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "cycle complete")
	assert.Contains(t, out, "accepted")
	assert.NotContains(t, out, "hidden")
}

func TestNewMetricsForTesting_Unregistered(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()

	require.NoError(t, reg.Register(m.CyclesTotal))
	require.NoError(t, reg.Register(m.IngestRecords))
	m.CyclesTotal.Inc()
	m.IngestRecords.WithLabelValues("accepted").Add(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			values[f.GetName()] += metric.GetCounter().GetValue()
		}
	}
	assert.InDelta(t, 1, values["forecast_etl_cycles_total"], 0)
	assert.InDelta(t, 3, values["forecast_etl_ingest_records_total"], 0)
}

func TestNewMetrics_RegistersOnce(t *testing.T) {
	assert.NotPanics(t, func() { NewMetrics() })
	assert.Panics(t, func() { NewMetrics() })
}
