// Package metrics owns the Prometheus registry of the bot process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/m3rciful/shopbot/core/telegram/middleware"
)

// Metrics holds every collector exported on /metrics.
// A nil *Metrics records nothing.
type Metrics struct {
	Registry  *prometheus.Registry
	Transport *middleware.Collectors

	ItemsAdded   *prometheus.CounterVec
	ItemsDeleted prometheus.Counter
	ListsCleared prometheus.Counter
	Shares       *prometheus.CounterVec
}

// New creates a fresh registry with runtime, transport and domain collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry:  reg,
		Transport: middleware.NewCollectors(reg),
		ItemsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopbot",
			Name:      "items_added_total",
			Help:      "Items added to shopping lists, by source (text or suggestion).",
		}, []string{"source"}),
		ItemsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopbot",
			Name:      "items_deleted_total",
			Help:      "Items removed from shopping lists.",
		}),
		ListsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopbot",
			Name:      "lists_cleared_total",
			Help:      "Clear-list operations.",
		}),
		Shares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopbot",
			Name:      "share_events_total",
			Help:      "Share link events, by outcome (issued, rotated, opened, invalid).",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.ItemsAdded, m.ItemsDeleted, m.ListsCleared, m.Shares)
	return m
}

// ItemAdded counts one added item.
func (m *Metrics) ItemAdded(source string) {
	if m == nil {
		return
	}
	m.ItemsAdded.WithLabelValues(source).Inc()
}

// ItemDeleted counts one removed item.
func (m *Metrics) ItemDeleted() {
	if m == nil {
		return
	}
	m.ItemsDeleted.Inc()
}

// ListCleared counts one clear operation.
func (m *Metrics) ListCleared() {
	if m == nil {
		return
	}
	m.ListsCleared.Inc()
}

// Share counts a share link event.
func (m *Metrics) Share(outcome string) {
	if m == nil {
		return
	}
	m.Shares.WithLabelValues(outcome).Inc()
}

// TransportCollectors returns the transport collectors, or nil.
func (m *Metrics) TransportCollectors() *middleware.Collectors {
	if m == nil {
		return nil
	}
	return m.Transport
}
