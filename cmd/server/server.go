package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/auroraswap-apr/internal/circuitbreaker"
	"github.com/yourorg/auroraswap-apr/internal/config"
	"github.com/yourorg/auroraswap-apr/internal/model"
)

// Route paths
const (
	routeIndex     = "/"
	routeAPR       = "/aurora/auroraswap/near-weth"
	routeBreakdown = "/aurora/auroraswap/near-weth/breakdown"
	routeHealth    = "/health"
	routeStatus    = "/status"
	routeMetrics   = "/metrics"
	routeCircuit   = "/circuit"
)

const (
	version   = "1.0.0"
	indexText = "Type /aurora/auroraswap/near-weth next to the local host to get APR for NEAR-WETH pool"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// Calculator produces one pipeline run. *pipeline.Orchestrator satisfies it.
type Calculator interface {
	Breakdown(ctx context.Context) (model.Breakdown, error)
}

// Server represents the APR HTTP server instance
type Server struct {
	config config.Config
	calc   Calculator

	// HTTP server instance
	server *http.Server

	// Circuit breaker guarding the chain endpoint
	breaker *circuitbreaker.CircuitBreaker

	// Metrics registry, nil when metrics are disabled
	registry *prometheus.Registry
	metrics  *serverMetrics

	rateLimit *rate.Limiter
}

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	failures        *prometheus.CounterVec
	circuitBreaker  prometheus.Gauge
	breakerTrips    prometheus.Counter
	apr             prometheus.Gauge
	aprVfat         prometheus.Gauge
	blocksPerDay    prometheus.Gauge
	stakedUSD       prometheus.Gauge
}

// registerMetrics sets up Prometheus metrics collection on reg
func registerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auroraswap_apr_requests_total",
				Help: "Total number of APR requests processed",
			},
			[]string{"route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auroraswap_apr_request_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auroraswap_apr_failures_total",
				Help: "Failed pipeline runs by error kind",
			},
			[]string{"kind"},
		),
		circuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "auroraswap_apr_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
		breakerTrips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "auroraswap_apr_circuit_breaker_trips_total",
				Help: "Number of times the circuit breaker opened",
			},
		),
		apr: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "auroraswap_apr_percent",
				Help: "Last computed APR using the measured block rate",
			},
		),
		aprVfat: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "auroraswap_apr_vfat_percent",
				Help: "Last computed APR using the fixed 1.1s block interval",
			},
		),
		blocksPerDay: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "auroraswap_blocks_per_day",
				Help: "Last estimated chain block rate",
			},
		),
		stakedUSD: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "auroraswap_staked_usd",
				Help: "Last computed USD value of the staked LP tokens",
			},
		),
	}

	reg.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.failures,
		m.circuitBreaker,
		m.breakerTrips,
		m.apr,
		m.aprVfat,
		m.blocksPerDay,
		m.stakedUSD,
	)

	return m
}

// NewServer creates a new server instance around calc
func NewServer(cfg config.Config, calc Calculator) *Server {
	s := &Server{
		config: cfg,
		calc:   calc,
	}

	if cfg.EnableMetrics {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.metrics = registerMetrics(s.registry)
	}

	s.breaker = circuitbreaker.New(circuitbreaker.Thresholds{MaxFailures: cfg.BreakerFailures}).
		WithResetDelay(cfg.BreakerCooldown).
		WithTripCallback(func(reason string) {
			if s.metrics != nil {
				s.metrics.breakerTrips.Inc()
			}
		})

	if cfg.RateLimitRPS > 0 {
		s.rateLimit = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	logrus.WithFields(logrus.Fields{
		"port":             cfg.Port,
		"pool_id":          cfg.Pool.ID,
		"timeout":          cfg.RequestTimeout,
		"metrics":          cfg.EnableMetrics,
		"rate_limit_rps":   cfg.RateLimitRPS,
		"breaker_failures": cfg.BreakerFailures,
	}).Info("Server initialized")

	return s
}

// Handler returns the router with every endpoint registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(routeIndex, s.handleIndex)
	mux.HandleFunc(routeAPR, s.handleAPR)
	mux.HandleFunc(routeBreakdown, s.handleBreakdown)
	mux.HandleFunc(routeHealth, s.handleHealth)
	mux.HandleFunc(routeStatus, s.handleStatus)
	mux.HandleFunc(routeMetrics, s.handleMetrics)
	mux.HandleFunc(routeCircuit, s.handleCircuitStatus)
	return mux
}

// Start begins the HTTP server and blocks until SIGINT or SIGTERM, then shuts down gracefully
func (s *Server) Start() {
	writeTimeout := s.config.RequestTimeout + 5*time.Second
	s.server = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
		return
	}

	logrus.Info("Server stopped")
}

// handleIndex answers GET / with usage text
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != routeIndex {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(indexText))
}

// handleAPR returns both APR figures
func (s *Server) handleAPR(w http.ResponseWriter, r *http.Request) {
	s.serveRun(w, r, "apr", func(b model.Breakdown) interface{} {
		return b.Result
	})
}

// handleBreakdown returns every intermediate figure of the run
func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	s.serveRun(w, r, "breakdown", func(b model.Breakdown) interface{} {
		return b
	})
}

// serveRun executes one pipeline run behind the rate limiter and circuit breaker
func (s *Server) serveRun(w http.ResponseWriter, r *http.Request, route string, render func(model.Breakdown) interface{}) {
	start := time.Now()

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.rateLimit != nil && !s.rateLimit.Allow() {
		s.errorResponse(w, route, http.StatusTooManyRequests, kindRateLimited, "Rate limit exceeded")
		return
	}

	if err := s.breaker.Allow(); err != nil {
		s.failure(w, route, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	b, err := s.calc.Breakdown(ctx)
	s.breaker.Record(b.Result, err)
	s.observeBreaker()

	if s.metrics != nil {
		s.metrics.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.failure(w, route, err)
		return
	}

	if s.metrics != nil {
		s.metrics.requestCounter.WithLabelValues(route, "success").Inc()
		s.metrics.apr.Set(b.Result.APR)
		s.metrics.aprVfat.Set(b.Result.APRVfat)
		s.metrics.blocksPerDay.Set(b.BlocksPerDay)
		s.metrics.stakedUSD.Set(b.StakedUSD)
	}

	logrus.WithFields(logrus.Fields{
		"route":      route,
		"apr":        b.Result.APR,
		"apr_vfat":   b.Result.APRVfat,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Info("APR served")

	writeJSON(w, http.StatusOK, render(b))
}

// failure maps a pipeline error to its status code and error body
func (s *Server) failure(w http.ResponseWriter, route string, err error) {
	kind := model.KindOf(err)
	if s.metrics != nil {
		s.metrics.failures.WithLabelValues(string(kind)).Inc()
	}
	s.errorResponse(w, route, statusForKind(kind), string(kind), err.Error())
}

// errorResponse writes the error body and counts the request
func (s *Server) errorResponse(w http.ResponseWriter, route string, statusCode int, kind, errorMsg string) {
	logrus.WithFields(logrus.Fields{
		"route":  route,
		"kind":   kind,
		"status": statusCode,
	}).Warn(errorMsg)

	if s.metrics != nil {
		s.metrics.requestCounter.WithLabelValues(route, "error").Inc()
	}

	writeJSON(w, statusCode, ErrorResponse{
		Status: "error",
		Kind:   kind,
		Error:  errorMsg,
	})
}

func (s *Server) observeBreaker() {
	if s.metrics != nil {
		s.metrics.circuitBreaker.Set(float64(s.breaker.GetState()))
	}
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics exposes Prometheus metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		http.Error(w, "Metrics disabled", http.StatusServiceUnavailable)
		return
	}

	promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(startTime).String(),
		"version": version,
		"pool": map[string]interface{}{
			"id":              s.config.Pool.ID,
			"staking_address": s.config.Pool.StakingAddress,
			"reward_method":   s.config.Pool.RewardMethod,
		},
		"configuration": map[string]interface{}{
			"parallel_reads":  s.config.ParallelReads,
			"request_timeout": s.config.RequestTimeout.String(),
			"block_lookback":  s.config.Sampling.Lookback,
			"metrics":         s.config.EnableMetrics,
		},
		"circuit_state": s.breaker.GetState().String(),
	}

	if result, at, ok := s.breaker.LastGood(); ok {
		status["last_result"] = result
		status["last_result_at"] = at.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, status)
}

// handleCircuitStatus allows viewing and resetting the circuit breaker
func (s *Server) handleCircuitStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{}

	// Allow reset operation via POST
	if r.Method == http.MethodPost {
		if r.URL.Query().Get("action") == "reset" {
			s.breaker.Reset()
			s.observeBreaker()
			response["message"] = "Circuit breaker reset"
		}
	}

	response["state"] = s.breaker.GetState().String()
	response["consecutive_failures"] = s.breaker.Failures()

	writeJSON(w, http.StatusOK, response)
}
