// Package metrics содержит коллекторы Prometheus кассового сервиса.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты оформления продажи.
const (
	ResultCompleted    = "completed"
	ResultRejected     = "rejected"
	ResultConflict     = "conflict"
	ResultInconsistent = "inconsistent"
	ResultFailed       = "failed"
)

// Metrics группирует коллекторы сервиса.
type Metrics struct {
	CheckoutTotal       *prometheus.CounterVec
	CheckoutDuration    *prometheus.HistogramVec
	RejectionsTotal     *prometheus.CounterVec
	InvoiceCollisions   prometheus.Counter
	PendingTransactions prometheus.Gauge
	ReceiptDeliveries   *prometheus.CounterVec

	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
}

// New создаёт и регистрирует коллекторы. Если reg равен nil, используется реестр по умолчанию.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		CheckoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"}),
		CheckoutDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_ms",
			Help:      "Checkout latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_rejections_total",
			Help:      "Count of checkouts rejected by billing rules, by reason.",
		}, []string{"reason"}),
		InvoiceCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_number_collisions_total",
			Help:      "Number of invoice numbers taken by a concurrent checkout and re-allocated.",
		}),
		PendingTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_transactions",
			Help:      "Transactions stuck in pending status longer than the reconciliation threshold.",
		}),
		ReceiptDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_deliveries_total",
			Help:      "Count of receipt printer hand-offs by outcome.",
		}, []string{"result"}),
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route"}),
	}

	mustRegister(reg,
		&m.CheckoutTotal, &m.CheckoutDuration, &m.RejectionsTotal, &m.InvoiceCollisions,
		&m.PendingTransactions, &m.ReceiptDeliveries, &m.ReqTotal, &m.ReqDur,
	)
	return m
}

// ObserveCheckout учитывает завершённую попытку продажи.
func (m *Metrics) ObserveCheckout(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CheckoutTotal.WithLabelValues(result).Inc()
	m.CheckoutDuration.WithLabelValues(result).Observe(DurationMillis(d))
}

// ObserveRejection учитывает отказ по правилам расчёта чека.
func (m *Metrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveInvoiceCollision учитывает повторное выделение номера счёта.
func (m *Metrics) ObserveInvoiceCollision() {
	if m == nil {
		return
	}
	m.InvoiceCollisions.Inc()
}

// SetPendingTransactions публикует число зависших чеков.
func (m *Metrics) SetPendingTransactions(n int) {
	if m == nil {
		return
	}
	m.PendingTransactions.Set(float64(n))
}

// ObserveReceiptDelivery учитывает передачу чека на печать.
func (m *Metrics) ObserveReceiptDelivery(result string) {
	if m == nil {
		return
	}
	m.ReceiptDeliveries.WithLabelValues(result).Inc()
}

// ObserveRequest учитывает обработанный HTTP-запрос.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.ReqTotal.WithLabelValues(method, route, fmt.Sprintf("%d", status)).Inc()
	m.ReqDur.WithLabelValues(method, route).Observe(DurationMillis(d))
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// mustRegister регистрирует коллекторы. При повторной регистрации
// указатель переключается на уже зарегистрированный экземпляр.
func mustRegister(reg prometheus.Registerer, collectors ...any) {
	for _, c := range collectors {
		switch v := c.(type) {
		case **prometheus.CounterVec:
			if existing, ok := register(reg, *v).(*prometheus.CounterVec); ok {
				*v = existing
			}
		case **prometheus.HistogramVec:
			if existing, ok := register(reg, *v).(*prometheus.HistogramVec); ok {
				*v = existing
			}
		case *prometheus.Counter:
			if existing, ok := register(reg, *v).(prometheus.Counter); ok {
				*v = existing
			}
		case *prometheus.Gauge:
			if existing, ok := register(reg, *v).(prometheus.Gauge); ok {
				*v = existing
			}
		default:
			panic(fmt.Sprintf("metrics: unsupported collector type %T", c))
		}
	}
}

func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
	return nil
}
