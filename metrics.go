package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scrogson/walle/pkg/log"
	"github.com/scrogson/walle/pkg/store"
)

// Metrics contains all Prometheus metrics for the node.
type Metrics struct {
	ConnectedClients prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	MessageReceived  prometheus.Counter
	MessageSent      prometheus.Counter

	RPCRequests *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec

	KDFInFlight prometheus.Gauge
	KDFWait     prometheus.Histogram
	KDFDuration prometheus.Histogram
	KDFRejected prometheus.Counter

	Signatures       *prometheus.CounterVec
	KeystoreFailures *prometheus.CounterVec
	StoredWallets    prometheus.Gauge
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry registers the metrics on registry, or on the default registerer when nil.
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walle_connected_clients",
			Help: "The current number of connected clients",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "walle_connections_total",
			Help: "The total number of WebSocket connections made since start",
		}),
		MessageReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "walle_ws_messages_received_total",
			Help: "The total number of RPC requests received",
		}),
		MessageSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "walle_ws_messages_sent_total",
			Help: "The total number of WebSocket messages sent",
		}),
		RPCRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walle_rpc_requests_total",
			Help: "RPC requests by method and outcome",
		}, []string{"method", "status"}),
		RPCDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "walle_rpc_request_duration_seconds",
			Help:    "RPC handling time by method",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"method"}),
		KDFInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walle_kdf_in_flight",
			Help: "Key derivations currently running",
		}),
		KDFWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "walle_kdf_wait_seconds",
			Help:    "Time spent waiting for a key derivation slot",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		KDFDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "walle_kdf_duration_seconds",
			Help:    "Time spent in requests holding a key derivation slot",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		KDFRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "walle_kdf_rejected_total",
			Help: "Requests that gave up waiting for a key derivation slot",
		}),
		Signatures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walle_signatures_total",
			Help: "Signatures produced by payload type",
		}, []string{"type"}),
		KeystoreFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walle_keystore_failures_total",
			Help: "Keystores that failed to decrypt, by error kind",
		}, []string{"kind"}),
		StoredWallets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walle_stored_wallets",
			Help: "Number of wallets in the store",
		}),
	}
}

func (m *Metrics) HandleConnect(string) {
	m.ConnectionsTotal.Inc()
	m.ConnectedClients.Inc()
}

func (m *Metrics) HandleDisconnect(string) {
	m.ConnectedClients.Dec()
}

func (m *Metrics) HandleMessageSent([]byte) {
	m.MessageSent.Inc()
}

// RecordMetricsPeriodically refreshes store gauges until ctx is done.
func (m *Metrics) RecordMetricsPeriodically(ctx context.Context, wallets *store.KeystoreStore, interval time.Duration, logger log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.recordStoreMetrics(wallets, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.recordStoreMetrics(wallets, logger)
		}
	}
}

func (m *Metrics) recordStoreMetrics(wallets *store.KeystoreStore, logger log.Logger) {
	list, err := wallets.List()
	if err != nil {
		logger.Warn("failed to count wallets", "error", err)
		return
	}
	m.StoredWallets.Set(float64(len(list)))
}
