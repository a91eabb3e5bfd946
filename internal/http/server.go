// Package http serves the cost analytics JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"costwatch/internal/analytics"
	"costwatch/internal/cache"
	"costwatch/internal/core"
	"costwatch/internal/ingest"
	"costwatch/internal/log"
	"costwatch/internal/rates"
	"costwatch/internal/storage"
)

// FilterStore backs the /filters endpoint.
type FilterStore interface {
	ListScopes(ctx context.Context, cloud core.Cloud) ([]storage.Option, error)
	TopServices(ctx context.Context, cloud core.Cloud, limit int) ([]storage.Option, error)
}

// Options carries the collaborators a Server needs. Syncer and
// Requester are optional; without them the API simply serves whatever
// is stored.
type Options struct {
	Analytics *analytics.Service
	Filters   FilterStore
	Syncer    *rates.Syncer
	Requester *ingest.Requester

	ReportingCurrency string
	BaseCurrency      string
	Logger            *log.Logger
}

type Server struct {
	http.Server

	analytics *analytics.Service
	filters   FilterStore
	syncer    *rates.Syncer
	requester *ingest.Requester

	reportingCurrency string
	baseCurrency      string

	rateLimiter *rateLimiter
	metrics     *securityMetrics
	logger      *log.Logger

	summaryCache    *cache.LRU[core.Summary]
	rankCache       *cache.LRU[[]core.RankedItem]
	timeseriesCache *cache.LRU[[]core.TimeseriesPoint]
	janitor         *cache.Janitor

	shutdownOnce sync.Once
}

func NewServer(addr string, opts Options) *Server {
	mux := http.NewServeMux()

	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		analytics:         opts.Analytics,
		filters:           opts.Filters,
		syncer:            opts.Syncer,
		requester:         opts.Requester,
		reportingCurrency: opts.ReportingCurrency,
		baseCurrency:      opts.BaseCurrency,
		rateLimiter:       newRateLimiter(),
		metrics:           &securityMetrics{},
		logger:            logger.WithComponent(log.ComponentHTTP),
		summaryCache:      cache.NewLRU[core.Summary](100, 5*time.Minute),
		rankCache:         cache.NewLRU[[]core.RankedItem](200, 5*time.Minute),
		timeseriesCache:   cache.NewLRU[[]core.TimeseriesPoint](200, 5*time.Minute),
	}
	s.janitor = cache.NewJanitor(s.summaryCache, s.rankCache, s.timeseriesCache)
	s.janitor.Start(10 * time.Minute)

	// Handlers pick the request-scoped logger back up via log.FromContext.
	s.Server.Handler = log.Middleware(s.logger)(mux)

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/api/v1/summary", s.withAPIDefaults(s.handleSummary))
	mux.HandleFunc("/api/v1/timeseries", s.withAPIDefaults(s.handleTimeseries))
	mux.HandleFunc("/api/v1/top-services", s.withAPIDefaults(s.handleTopServices))
	mux.HandleFunc("/api/v1/top-accounts", s.withAPIDefaults(s.handleTopAccounts))
	mux.HandleFunc("/api/v1/daily", s.withAPIDefaults(s.handleDaily))
	mux.HandleFunc("/api/v1/filters", s.withAPIDefaults(s.handleFilters))

	return s
}

// Shutdown stops background cleanup and then the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.janitor.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withAPIDefaults wraps a handler with request logging, rate limiting
// and security headers.
func (s *Server) withAPIDefaults(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		logger := s.logger.With(log.FieldRequestID, requestID)
		ctx := log.IntoContext(r.Context(), logger)
		r = r.WithContext(ctx)

		if r.Method != http.MethodGet {
			NewResponse().MethodNotAllowed(http.MethodGet).Write(w)
			return
		}
		if !s.rateLimiter.allow(clientIP, s.metrics) {
			logger.WarnContext(ctx, "rate limit exceeded",
				log.FieldClientIP, clientIP, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			NewResponse().Error(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
			return
		}

		setSecurityHeaders(w)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		logger.InfoContext(ctx, "request completed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldQuery, r.URL.RawQuery,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, _, _, err := s.analytics.AvailableRange(r.Context(), core.CloudAll); err != nil {
		NewResponse().Error(http.StatusServiceUnavailable, "store not ready").Write(w)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
