// Package metrics holds the Prometheus counters shared by both binaries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderbox"

// Metrics owns a private registry; a nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	webhookEvents    *prometheus.CounterVec
	enrichScheduled  *prometheus.CounterVec
	enrichJobs       *prometheus.CounterVec
	carrierShipments *prometheus.CounterVec
	fulfillCallbacks *prometheus.CounterVec
	syncedOrders     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Shopify webhook deliveries by outcome.",
		}, []string{"outcome"}),
		enrichScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_scheduled_total",
			Help:      "Enrichment jobs handed to the queue, by result.",
		}, []string{"result"}),
		enrichJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_jobs_total",
			Help:      "Enrichment jobs processed by the worker, by result.",
		}, []string{"result"}),
		carrierShipments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carrier_shipments_total",
			Help:      "Carrier shipment creation calls by carrier and result.",
		}, []string{"carrier", "result"}),
		fulfillCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_callbacks_total",
			Help:      "Shopify fulfillment callbacks by result.",
		}, []string{"result"}),
		syncedOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synced_orders_total",
			Help:      "Orders seen by the periodic Shopify sync, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.webhookEvents,
		m.enrichScheduled,
		m.enrichJobs,
		m.carrierShipments,
		m.fulfillCallbacks,
		m.syncedOrders,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) WebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EnrichScheduled(err error) {
	if m == nil {
		return
	}
	m.enrichScheduled.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) EnrichJob(result string) {
	if m == nil {
		return
	}
	m.enrichJobs.WithLabelValues(result).Inc()
}

func (m *Metrics) CarrierShipment(carrier string, err error) {
	if m == nil {
		return
	}
	m.carrierShipments.WithLabelValues(carrier, result(err)).Inc()
}

func (m *Metrics) FulfillCallback(err error) {
	if m == nil {
		return
	}
	m.fulfillCallbacks.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) SyncedOrder(err error) {
	if m == nil {
		return
	}
	m.syncedOrders.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
