package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/forecast-etl/internal/adapter/cwa"
	"github.com/couchcryptid/forecast-etl/internal/domain"
	"github.com/couchcryptid/forecast-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const defaultObservationLimit = 50

var validate = validator.New()

// CycleRunner runs one forecast cycle on demand.
type CycleRunner interface {
	RunCycle(ctx context.Context) (pipeline.CycleResult, error)
}

// ObservationReader lists recently stored forecast periods and readings.
type ObservationReader interface {
	QueryRecent(ctx context.Context, limit int) ([]domain.StoredObservation, error)
	QueryRecentReadings(ctx context.Context, limit int) ([]domain.StoredReading, error)
}

// Checks is a ReadinessChecker that is ready only when every member is.
type Checks []sharedobs.ReadinessChecker

func (c Checks) CheckReadiness(ctx context.Context) error {
	for _, check := range c {
		if err := check.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Server exposes health, readiness, metrics, refresh, and observation endpoints.
type Server struct {
	httpServer     *http.Server
	runner         CycleRunner
	reader         ObservationReader
	refreshLimiter *rate.Limiter
	logger         *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// POST /refresh, GET /observations and GET /readings routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runner CycleRunner, reader ObservationReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runner:         runner,
		reader:         reader,
		refreshLimiter: rate.NewLimiter(rate.Inf, 0),
		logger:         logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("GET /observations", s.handleObservations)
	mux.HandleFunc("GET /readings", s.handleReadings)

	return s
}

// LimitRefresh allows burst manual refreshes at once, then one per every.
// A non-positive burst removes the limit. Call before Start.
func (s *Server) LimitRefresh(burst int, every time.Duration) {
	if burst <= 0 {
		s.refreshLimiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	s.refreshLimiter = rate.NewLimiter(rate.Every(every), burst)
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type refreshFailure struct {
	Error string               `json:"error"`
	Cycle pipeline.CycleResult `json:"cycle"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.refreshLimiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "refresh rate limit exceeded")
		return
	}
	res, err := s.runner.RunCycle(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		var fe *cwa.FetchError
		if errors.As(err, &fe) || errors.Is(err, pipeline.ErrInvalidPayload) {
			status = http.StatusBadGateway
		}
		s.logger.Error("refresh failed", "cycle_id", res.ID, "error", err)
		sharedobs.WriteJSON(w, status, refreshFailure{Error: err.Error(), Cycle: res})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

type observationsQuery struct {
	Limit int `validate:"min=1,max=500"`
}

type observationsResponse struct {
	Count        int                        `json:"count"`
	Observations []domain.StoredObservation `json:"observations"`
}

type readingsResponse struct {
	Count    int                    `json:"count"`
	Readings []domain.StoredReading `json:"readings"`
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.reader.QueryRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("query observations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read observations")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, observationsResponse{Count: len(rows), Observations: rows})
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.reader.QueryRecentReadings(r.Context(), limit)
	if err != nil {
		s.logger.Error("query readings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read readings")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, readingsResponse{Count: len(rows), Readings: rows})
}

// parseLimit reads ?limit, writing a 400 and returning false when it is invalid.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	q := observationsQuery{Limit: defaultObservationLimit}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q: must be an integer", v))
			return 0, false
		}
		q.Limit = n
	}
	if err := validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit: must be between 1 and 500")
		return 0, false
	}
	return q.Limit, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
