package cwa

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/forecast-etl/internal/config"
	"github.com/couchcryptid/forecast-etl/internal/domain"
	"github.com/couchcryptid/forecast-etl/internal/observability"
	"github.com/sony/gobreaker"
)

const (
	maxBodyBytes = 4 << 20

	breakerFailures = 3
	breakerCooldown = 30 * time.Second
)

// Client fetches forecast payloads from the CWA open data API.
type Client struct {
	apiKey     string
	baseURL    string
	fileURL    string
	dataset    string
	locations  []string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a CWA client from cfg. Consecutive failures open a
// circuit breaker that rejects calls until the cooldown elapses.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CWAInsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for the CWA certificate chain
	}

	c := &Client{
		apiKey:    cfg.CWAAPIKey,
		baseURL:   strings.TrimRight(cfg.CWABaseURL, "/"),
		fileURL:   strings.TrimRight(cfg.CWAFileBaseURL, "/"),
		dataset:   cfg.CWADataset,
		locations: cfg.CWALocations,
		httpClient: &http.Client{
			Timeout:   cfg.CWATimeout,
			Transport: transport,
		},
		metrics: metrics,
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cwa-" + cfg.CWADataset,
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cwa circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Fetch retrieves and decodes the configured dataset. Failures are *FetchError.
func (c *Client) Fetch(ctx context.Context) (domain.RawForecastResponse, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		fe := classify(err)
		c.metrics.FetchErrors.WithLabelValues(string(fe.Kind)).Inc()
		c.logger.Error("cwa fetch failed", "dataset", c.dataset, "kind", fe.Kind, "status", fe.Status, "error", fe)
		return domain.RawForecastResponse{}, fe
	}
	resp, _ := result.(domain.RawForecastResponse)
	return resp, nil
}

func (c *Client) fetch(ctx context.Context) (domain.RawForecastResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(), nil)
	if err != nil {
		return domain.RawForecastResponse{}, &FetchError{Kind: KindNetwork, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.RawForecastResponse{}, &FetchError{Kind: KindNetwork, Err: redact(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return domain.RawForecastResponse{}, &FetchError{Kind: KindNetwork, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.RawForecastResponse{}, &FetchError{Kind: KindUnauthorized, Status: resp.StatusCode, Message: apiMessage(body)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return domain.RawForecastResponse{}, &FetchError{Kind: KindHTTPStatus, Status: resp.StatusCode, Message: apiMessage(body)}
	}

	if len(body) > maxBodyBytes {
		return domain.RawForecastResponse{}, &FetchError{Kind: KindDecode, Status: resp.StatusCode, Err: fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)}
	}

	decoded, err := domain.DecodeResponse(body)
	if err != nil {
		return domain.RawForecastResponse{}, &FetchError{Kind: KindDecode, Status: resp.StatusCode, Err: err}
	}
	if strings.EqualFold(decoded.Success, "false") {
		return domain.RawForecastResponse{}, &FetchError{Kind: KindHTTPStatus, Status: resp.StatusCode, Message: apiMessage(body)}
	}
	return decoded, nil
}

// requestURL targets the REST datastore, or the file API for observation
// datasets, which take no location filter.
func (c *Client) requestURL() string {
	if domain.FeedFor(c.dataset) == domain.FeedReadings {
		params := url.Values{
			"Authorization": {c.apiKey},
			"downloadType":  {"WEB"},
			"format":        {"JSON"},
		}
		return fmt.Sprintf("%s/%s?%s", c.fileURL, url.PathEscape(c.dataset), params.Encode())
	}

	params := url.Values{
		"Authorization": {c.apiKey},
		"format":        {"JSON"},
	}
	if len(c.locations) > 0 {
		params.Set("locationName", strings.Join(c.locations, ","))
	}
	return fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(c.dataset), params.Encode())
}

func classify(err error) *FetchError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &FetchError{Kind: KindCircuitOpen, Err: err}
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Kind: KindNetwork, Err: err}
}

// redact strips the query string, which carries the API key, from transport errors.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, perr := url.Parse(urlErr.URL); perr == nil {
			u.RawQuery = ""
			urlErr.URL = u.String()
		}
	}
	return err
}

func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
