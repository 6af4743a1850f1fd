// Package metrics provides Prometheus metrics for the datagram adapter.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "dgram"
)

// Metrics contains all Prometheus metrics of the adapter.
//
// All Record methods are safe to call on a nil *Metrics, which records
// nothing.
type Metrics struct {
	// Endpoint metrics
	EndpointsOpen *prometheus.GaugeVec

	// Data transfer metrics
	DatagramsSent     *prometheus.CounterVec
	DatagramsReceived *prometheus.CounterVec
	BytesSent         *prometheus.CounterVec
	BytesReceived     *prometheus.CounterVec

	// Error metrics
	SendResults   *prometheus.CounterVec
	ReceiveErrors *prometheus.CounterVec

	// Multicast metrics
	MulticastJoins       prometheus.Counter
	MulticastLeaves      prometheus.Counter
	MulticastLeaveErrors prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EndpointsOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoints_open",
			Help:      "Number of open endpoints by kind",
		}, []string{"kind"}),

		DatagramsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_sent_total",
			Help:      "Total datagrams handed to the kernel by endpoint kind",
		}, []string{"kind"}),
		DatagramsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Total datagrams received by endpoint kind",
		}, []string{"kind"}),
		BytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes sent by endpoint kind",
		}, []string{"kind"}),
		BytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes received by endpoint kind",
		}, []string{"kind"}),

		SendResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_results_total",
			Help:      "Total send attempts by endpoint kind and status",
		}, []string{"kind", "status"}),
		ReceiveErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Total unexpected receive errors by endpoint kind",
		}, []string{"kind"}),

		MulticastJoins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "multicast_joins_total",
			Help:      "Total multicast group joins",
		}),
		MulticastLeaves: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "multicast_leaves_total",
			Help:      "Total multicast group leaves attempted",
		}),
		MulticastLeaveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "multicast_leave_errors_total",
			Help:      "Total multicast group leaves that failed",
		}),
	}
}

// RecordEndpointOpen records a new endpoint of the given kind.
func (m *Metrics) RecordEndpointOpen(kind string) {
	if m == nil {
		return
	}
	m.EndpointsOpen.WithLabelValues(kind).Inc()
}

// RecordEndpointClose records a released endpoint of the given kind.
func (m *Metrics) RecordEndpointClose(kind string) {
	if m == nil {
		return
	}
	m.EndpointsOpen.WithLabelValues(kind).Dec()
}

// RecordSent records a datagram of n bytes handed to the kernel.
func (m *Metrics) RecordSent(kind string, n int) {
	if m == nil {
		return
	}
	m.DatagramsSent.WithLabelValues(kind).Inc()
	m.BytesSent.WithLabelValues(kind).Add(float64(n))
}

// RecordReceived records a received datagram of n bytes.
func (m *Metrics) RecordReceived(kind string, n int) {
	if m == nil {
		return
	}
	m.DatagramsReceived.WithLabelValues(kind).Inc()
	m.BytesReceived.WithLabelValues(kind).Add(float64(n))
}

// RecordSendResult records the status of a send attempt.
func (m *Metrics) RecordSendResult(kind, status string) {
	if m == nil {
		return
	}
	m.SendResults.WithLabelValues(kind, status).Inc()
}

// RecordReceiveError records an unexpected receive error.
func (m *Metrics) RecordReceiveError(kind string) {
	if m == nil {
		return
	}
	m.ReceiveErrors.WithLabelValues(kind).Inc()
}

// RecordMulticastJoin records a multicast group join.
func (m *Metrics) RecordMulticastJoin() {
	if m == nil {
		return
	}
	m.MulticastJoins.Inc()
}

// RecordMulticastLeave records a multicast group leave and its outcome.
func (m *Metrics) RecordMulticastLeave(err error) {
	if m == nil {
		return
	}
	m.MulticastLeaves.Inc()
	if err != nil {
		m.MulticastLeaveErrors.Inc()
	}
}
