package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

var (
	authEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_events_total",
			Help: "Authentication events recorded, by event type.",
		},
		[]string{"event"},
	)

	auditDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_dropped_total",
		Help: "Audit entries dropped because the buffer was full.",
	})

	tierTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tier_request_transitions_total",
			Help: "Tier change request transitions, by resulting status.",
		},
		[]string{"status"},
	)

	tierRequestsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tier_requests_pending",
		Help: "Tier change requests currently waiting for review.",
	})

	serviceReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the readiness probe last succeeded.",
	})
)

var initOnce sync.Once

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			authEventsTotal, auditDroppedTotal, tierTransitionsTotal,
			tierRequestsPending, serviceReady,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthEvent counts an audit event type.
func AuthEvent(event string) {
	authEventsTotal.WithLabelValues(event).Inc()
}

// AuditDropped counts an entry lost to a full audit buffer.
func AuditDropped() {
	auditDroppedTotal.Inc()
}

// TierTransition counts a tier change request entering status.
func TierTransition(status string) {
	tierTransitionsTotal.WithLabelValues(status).Inc()
}

// SetPendingTierRequests publishes the number of pending tier change requests.
func SetPendingTierRequests(n int) {
	tierRequestsPending.Set(float64(n))
}

// SetReady records the last readiness probe outcome.
func SetReady(ok bool) {
	if ok {
		serviceReady.Set(1)
		return
	}
	serviceReady.Set(0)
}

// Instrument measures request count, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := NewStatusWriter(w)
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.Status())
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifiers in known routes so label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(p, "/")
	for i := 1; i < len(parts); i++ {
		prev := parts[i-1]
		switch {
		case prev == "tier-requests" || prev == "users" || prev == "vendors":
			parts[i] = ":id"
		case prev == "features":
			parts[i] = ":feature"
		case strings.HasPrefix(prev, "tier-") && strings.HasSuffix(prev, "-request"):
			parts[i] = ":requestId"
		}
	}
	return strings.Join(parts, "/")
}

// StatusWriter remembers the status code written through it. Handlers that
// never call WriteHeader are reported as 200.
type StatusWriter struct {
	http.ResponseWriter
	code int
}

func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	return &StatusWriter{ResponseWriter: w, code: http.StatusOK}
}

func (w *StatusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *StatusWriter) Status() int { return w.code }

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *StatusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
