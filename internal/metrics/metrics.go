package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "saga"

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	ordersCreated       prometheus.Counter
	ordersCancelled     *prometheus.CounterVec
	orderTransitions    *prometheus.CounterVec
	stockReservations   *prometheus.CounterVec
	stockReleases       prometheus.Counter
	paymentsProcessed   *prometheus.CounterVec
	handlerFailures     *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Total number of orders placed.",
		}),
		ordersCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Total number of orders cancelled, by initiator.",
		}, []string{"reason"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions taken.",
		}, []string{"from", "to"}),
		stockReservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reservations_total",
			Help:      "Stock reservation attempts by result.",
		}, []string{"result"}),
		stockReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_releases_total",
			Help:      "Stock releases performed.",
		}),
		paymentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_processed_total",
			Help:      "Payments that reached a terminal status.",
		}, []string{"status"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Event handler invocations that returned an error.",
		}, []string{"event"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}

	reg.MustRegister(
		m.ordersCreated,
		m.ordersCancelled,
		m.orderTransitions,
		m.stockReservations,
		m.stockReleases,
		m.paymentsProcessed,
		m.handlerFailures,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) OrderCancelled(reason string) {
	if m == nil {
		return
	}
	m.ordersCancelled.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderTransition(from, to string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(from, to).Inc()
}

// StockReservation result is one of "reserved", "insufficient", "error".
func (m *Metrics) StockReservation(result string) {
	if m == nil {
		return
	}
	m.stockReservations.WithLabelValues(result).Inc()
}

func (m *Metrics) StockReleased() {
	if m == nil {
		return
	}
	m.stockReleases.Inc()
}

func (m *Metrics) PaymentProcessed(status string) {
	if m == nil {
		return
	}
	m.paymentsProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) EventHandlerFailed(eventType string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(eventType).Inc()
}

func (m *Metrics) HTTPRequest(method, endpoint, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(seconds)
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
