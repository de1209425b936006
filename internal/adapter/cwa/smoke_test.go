//go:build cwa

package cwa

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/forecast-etl/internal/config"
	"github.com/couchcryptid/forecast-etl/internal/domain"
	"github.com/couchcryptid/forecast-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real CWA API and require a valid CWA_API_KEY env var.
// Run with: go test -tags=cwa ./internal/adapter/cwa/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	key := os.Getenv("CWA_API_KEY")
	if key == "" {
		t.Fatal("CWA_API_KEY must be set to run smoke tests")
	}
	return NewClient(&config.Config{
		CWAAPIKey:             key,
		CWABaseURL:            config.DefaultCWABaseURL,
		CWADataset:            "F-C0032-001",
		CWALocations:          []string{"臺北市"},
		CWATimeout:            15 * time.Second,
		CWAInsecureSkipVerify: os.Getenv("CWA_INSECURE_SKIP_VERIFY") == "true",
	}, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_FetchAndNormalize(t *testing.T) {
	c := smokeClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := c.Fetch(ctx)
	require.NoError(t, err)

	res := domain.Normalizer{}.Normalize(resp)
	require.True(t, res.Valid(), "reason: %s", res.Reason)
	require.NotEmpty(t, res.Periods)
	for _, p := range res.Periods {
		assert.Equal(t, "臺北市", p.Location)
		assert.NotEqual(t, domain.Unavailable, p.WeatherDescription)
	}
}

func TestSmoke_InvalidKey(t *testing.T) {
	c := smokeClient(t)
	c.apiKey = "CWA-INVALID"

	_, err := c.Fetch(context.Background())
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindUnauthorized, fe.Kind)
}
