package metricsexporter

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/logger"
	"github.com/podtrace/rbatrace/internal/rba"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Record outcomes.
const (
	OutcomeDecoded  = "decoded"
	OutcomeIgnored  = "ignored"
	OutcomeFiltered = "filtered"
)

var (
	recordsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbatrace_records_total",
			Help: "Trace records read, by traffic type and outcome.",
		},
		[]string{"traffic_type", "outcome"},
	)

	anomaliesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbatrace_correlation_anomalies_total",
			Help: "Correlation anomalies by kind.",
		},
		[]string{"kind"},
	)

	formatErrorsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbatrace_format_errors_total",
			Help: "Trace files rejected or cut short by a format error.",
		},
		[]string{"code"},
	)

	responseHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rbatrace_response_time_seconds",
			Help:    "Response time of matched I/O operations.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 22),
		},
		[]string{"traffic_type", "command"},
	)

	queueDepthHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rbatrace_queue_depth",
			Help:    "Per-object queue depth observed when an operation starts.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"traffic_type"},
	)

	ioBytesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbatrace_io_bytes_total",
			Help: "Bytes moved by matched I/O operations.",
		},
		[]string{"traffic_type", "command"},
	)

	pendingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rbatrace_pending_starts",
			Help: "Start records waiting for a completion.",
		},
	)

	processingLatencyHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rbatrace_record_processing_latency_seconds",
			Help:    "Time taken to read, decode and correlate one record.",
			Buckets: prometheus.ExponentialBuckets(0.0000001, 2, 20),
		},
	)
)

func init() {
	prometheus.MustRegister(recordsCounter)
	prometheus.MustRegister(anomaliesCounter)
	prometheus.MustRegister(formatErrorsCounter)
	prometheus.MustRegister(responseHistogram)
	prometheus.MustRegister(queueDepthHistogram)
	prometheus.MustRegister(ioBytesCounter)
	prometheus.MustRegister(pendingGauge)
	prometheus.MustRegister(processingLatencyHistogram)
}

// RecordOutcome counts one record. Tags outside the table share one label.
func RecordOutcome(t rba.TrafficType, outcome string) {
	label := "unknown"
	if t.Known() {
		label = t.String()
	}
	recordsCounter.WithLabelValues(label, outcome).Inc()
}

func RecordAnomaly(kind string) {
	anomaliesCounter.WithLabelValues(kind).Inc()
}

func RecordFormatError(code string) {
	formatErrorsCounter.WithLabelValues(code).Inc()
}

// ExportMatched records the response time and size of a matched start.
func ExportMatched(r *rba.Record, response time.Duration) {
	if r == nil {
		return
	}
	typ := r.Type.String()
	cmd := r.Command.String()
	responseHistogram.WithLabelValues(typ, cmd).Observe(response.Seconds())
	if b := r.Bytes(); b > 0 {
		ioBytesCounter.WithLabelValues(typ, cmd).Add(float64(b))
	}
}

func ObserveQueueDepth(t rba.TrafficType, depth int) {
	queueDepthHistogram.WithLabelValues(t.String()).Observe(float64(depth))
}

func SetPendingStarts(n int) {
	pendingGauge.Set(float64(n))
}

func RecordProcessingLatency(d time.Duration) {
	processingLatencyHistogram.Observe(d.Seconds())
}

var (
	limiter        = rate.NewLimiter(rate.Every(time.Second/time.Duration(config.RateLimitPerSec)), config.RateLimitBurst)
	maxRequestSize = int64(config.MaxRequestSize)
)

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxRequestSize {
			http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type Server struct {
	server *http.Server
}

// resolveAddr falls back to the loopback default unless a non-loopback bind
// is explicitly allowed.
func resolveAddr() string {
	addr := config.GetMetricsAddress()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		if ip := net.ParseIP(host); ip != nil && !ip.IsLoopback() && !config.AllowNonLoopbackMetrics() {
			fallback := fmt.Sprintf("%s:%d", config.DefaultMetricsHost, config.DefaultMetricsPort)
			logger.Warn("Rejecting non-loopback metrics address, falling back to default",
				zap.String("requested_addr", addr),
				zap.String("fallback", fallback))
			return fallback
		}
	}
	return addr
}

func StartServer() *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", securityHeadersMiddleware(rateLimitMiddleware(promhttp.Handler())))

	server := &http.Server{
		Addr:         resolveAddr(),
		Handler:      mux,
		ReadTimeout:  config.DefaultMetricsReadTimeout,
		WriteTimeout: config.DefaultMetricsWriteTimeout,
	}
	srv := &Server{server: server}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic in metrics server", zap.Any("panic", r))
			}
		}()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	return srv
}

func (s *Server) Shutdown() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), config.DefaultMetricsShutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
}
