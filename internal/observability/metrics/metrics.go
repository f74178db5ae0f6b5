package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConversationMetrics exposes counters and histograms for the booking bot.
// It satisfies the conversation engine's Metrics hook and the resolver's
// SearchMetrics hook.
type ConversationMetrics struct {
	messagesTotal *prometheus.CounterVec
	turnLatency   prometheus.Histogram
	searchTotal   *prometheus.CounterVec
	bookingsTotal *prometheus.CounterVec
}

// NewConversationMetrics registers the bot metrics. A nil registerer falls
// back to the default registry.
func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heydoc",
			Subsystem: "bot",
			Name:      "messages_total",
			Help:      "Total processed conversation turns",
		}, []string{"channel", "action"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "heydoc",
			Subsystem: "bot",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one conversation turn",
			Buckets:   prometheus.DefBuckets,
		}),
		searchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heydoc",
			Subsystem: "resolve",
			Name:      "searches_total",
			Help:      "Total availability searches by resulting stage",
		}, []string{"stage"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heydoc",
			Subsystem: "bot",
			Name:      "bookings_total",
			Help:      "Total confirmed bookings by cascade stage",
		}, []string{"stage"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.turnLatency, m.searchTotal, m.bookingsTotal)
	return m
}

// RecordMessage counts one processed turn.
func (m *ConversationMetrics) RecordMessage(channel, action string) {
	if m == nil {
		return
	}
	if channel == "" {
		channel = "unknown"
	}
	m.messagesTotal.WithLabelValues(channel, action).Inc()
}

// ObserveTurn records the latency of one turn.
func (m *ConversationMetrics) ObserveTurn(d time.Duration) {
	if m == nil {
		return
	}
	m.turnLatency.Observe(d.Seconds())
}

// RecordSearch counts one cascade run by its resulting stage.
func (m *ConversationMetrics) RecordSearch(stage string) {
	if m == nil {
		return
	}
	m.searchTotal.WithLabelValues(stage).Inc()
}

// RecordBooking counts one confirmed booking.
func (m *ConversationMetrics) RecordBooking(stage string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(stage).Inc()
}
