package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Guard metrics
	RateLimitHits     prometheus.Counter
	DuplicateRequests prometheus.Counter

	// Database metrics
	DBConnectionsTotal  prometheus.Gauge
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	ProfilesCreated     *prometheus.CounterVec
	ProjectsCreated     prometheus.Counter
	ProjectTransitions  *prometheus.CounterVec
	BidsTotal           *prometheus.CounterVec
	TransactionsTotal   *prometheus.CounterVec
	CoinVolume          *prometheus.CounterVec
	RegistrationsTotal  *prometheus.CounterVec
	RewardsClaimed      prometheus.Counter
	MessagesSent        prometheus.Counter
	StreamSubscribers   prometheus.Gauge
	EventsTransitioned  *prometheus.CounterVec
	DomainEventFailures *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

var (
	metrics  *Metrics
	initOnce sync.Once
)

// Init initializes all Prometheus metrics
func Init() *Metrics {
	initOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		RateLimitHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limit_hits_total",
				Help: "Total number of rate limited requests",
			},
		),
		DuplicateRequests: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "duplicate_requests_total",
				Help: "Requests rejected because the same idempotency key was in flight",
			},
		),

		DBConnectionsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_total",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of acquired database connections",
			},
		),
		DBConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		ProfilesCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsy_profiles_created_total",
				Help: "Total number of profiles created",
			},
			[]string{"source"},
		),
		ProjectsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gigsy_projects_created_total",
				Help: "Total number of projects created",
			},
		),
		ProjectTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsy_project_transitions_total",
				Help: "Project status transitions",
			},
			[]string{"to"},
		),
		BidsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsy_bids_total",
				Help: "Bid submissions and decisions",
			},
			[]string{"status"},
		),
		TransactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsy_wallet_transactions_total",
				Help: "Wallet transactions by type and status",
			},
			[]string{"type", "status"},
		),
		CoinVolume: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsy_coin_volume_total",
				Help: "GigCoins moved by completed transactions",
			},
			[]string{"type"},
		),
		RegistrationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsy_event_registrations_total",
				Help: "Event registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		RewardsClaimed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gigsy_rewards_claimed_total",
				Help: "Event rewards paid out",
			},
		),
		MessagesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gigsy_messages_sent_total",
				Help: "Chat messages stored",
			},
		),
		StreamSubscribers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gigsy_stream_subscribers",
				Help: "Open websocket message streams",
			},
		),
		EventsTransitioned: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsy_event_transitions_total",
				Help: "Event lifecycle transitions made by the scheduler",
			},
			[]string{"to"},
		),
		DomainEventFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsy_domain_event_failures_total",
				Help: "Domain events that could not be published",
			},
			[]string{"subject"},
		),

		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 0.5=half-open)",
			},
			[]string{"name"},
		),
	}
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Init()
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordRateLimitHit records a rate limited request
func RecordRateLimitHit() {
	Get().RateLimitHits.Inc()
}

// RecordDuplicateRequest records a request rejected by the in-flight guard
func RecordDuplicateRequest() {
	Get().DuplicateRequests.Inc()
}

// RecordProfileCreated records a profile creation; source is signup, webhook or seed
func RecordProfileCreated(source string) {
	Get().ProfilesCreated.WithLabelValues(source).Inc()
}

// RecordProjectCreated records a project creation
func RecordProjectCreated() {
	Get().ProjectsCreated.Inc()
}

// RecordProjectTransition records a project status change
func RecordProjectTransition(to string) {
	Get().ProjectTransitions.WithLabelValues(to).Inc()
}

// RecordBid records a bid submission or decision
func RecordBid(status string) {
	Get().BidsTotal.WithLabelValues(status).Inc()
}

// RecordTransaction records a wallet transaction and, when completed, its volume
func RecordTransaction(txType, status string, amount int64) {
	m := Get()
	m.TransactionsTotal.WithLabelValues(txType, status).Inc()
	if status == "completed" && amount > 0 {
		m.CoinVolume.WithLabelValues(txType).Add(float64(amount))
	}
}

// RecordRegistration records an event registration attempt
func RecordRegistration(outcome string) {
	Get().RegistrationsTotal.WithLabelValues(outcome).Inc()
}

// RecordRewardClaimed records a paid event reward
func RecordRewardClaimed() {
	Get().RewardsClaimed.Inc()
}

// RecordMessageSent records a stored chat message
func RecordMessageSent() {
	Get().MessagesSent.Inc()
}

// AddStreamSubscribers adjusts the open stream gauge
func AddStreamSubscribers(delta float64) {
	Get().StreamSubscribers.Add(delta)
}

// RecordEventTransition records a scheduler-driven event status change
func RecordEventTransition(to string) {
	Get().EventsTransitioned.WithLabelValues(to).Inc()
}

// RecordDomainEventFailure records an event that could not be published
func RecordDomainEventFailure(subject string) {
	Get().DomainEventFailures.WithLabelValues(subject).Inc()
}

// SetDBConnections sets database connection metrics
func SetDBConnections(total, active, idle int32) {
	m := Get()
	m.DBConnectionsTotal.Set(float64(total))
	m.DBConnectionsActive.Set(float64(active))
	m.DBConnectionsIdle.Set(float64(idle))
}

// SetCircuitBreakerState maps a breaker state name to the gauge value
func SetCircuitBreakerState(name, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 0.5
	}
	Get().CircuitBreakerState.WithLabelValues(name).Set(v)
}

// PoolStatsFunc returns total, acquired and idle connection counts
type PoolStatsFunc func() (total, active, idle int32)

// CollectDBStats samples pool statistics until ctx is done
func CollectDBStats(ctx context.Context, interval time.Duration, stats PoolStatsFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			SetDBConnections(stats())
		}
	}
}
