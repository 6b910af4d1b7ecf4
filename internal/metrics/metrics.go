package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "market"
	subsystem = "telegram_bot"
)

// Metrics holds every collector of the bot. All recording methods are safe
// to call on a nil *Metrics, which lets components run without metrics in tests.
type Metrics struct {
	CommandsProcessed  prometheus.Counter
	MessagesHandled    prometheus.Counter
	ChannelsCount      prometheus.Gauge
	ChannelNames       *prometheus.CounterVec
	MessagesPerChannel *prometheus.CounterVec
	ChannelsSet        map[int64]string

	PriceFetches         *prometheus.CounterVec
	PriceCacheLookups    *prometheus.CounterVec
	AlertsEvaluated      prometheus.Counter
	AlertsTriggered      prometheus.Counter
	AlertNotifyFailures  prometheus.Counter
	AlertCycleDuration   prometheus.Histogram
	CalendarEventsStored prometheus.Counter

	Mutex sync.Mutex
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsProcessed: counter("commands_processed", "The total number of processed commands"),
		MessagesHandled:   counter("messages_handled", "The total number of handled messages"),
		ChannelsCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channels_count",
			Help:      "The current number of unique channels the bot is operating in",
		}),
		ChannelNames:       counterVec("channel_names", "Tracks channels the bot has interacted with", "chat_id", "chat_name"),
		MessagesPerChannel: counterVec("messages_per_channel", "The total number of messages handled per channel", "chat_id", "chat_name"),
		ChannelsSet:        make(map[int64]string),

		PriceFetches:      counterVec("price_fetches", "Upstream price fetches by provider and outcome", "provider", "outcome"),
		PriceCacheLookups: counterVec("price_cache_lookups", "Price cache lookups by asset type and result", "asset_type", "result"),
		AlertsEvaluated:   counter("alerts_evaluated", "Alerts evaluated against a resolved price"),
		AlertsTriggered:   counter("alerts_triggered", "Alerts whose condition matched, delivered or not"),
		AlertNotifyFailures: counter("alert_notify_failures",
			"Triggered alerts whose notification could not be delivered"),
		AlertCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "alert_cycle_seconds",
			Help:      "Duration of one pass over all alerts",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		CalendarEventsStored: counter("calendar_events_stored", "New calendar events written to the database"),
	}

	reg.MustRegister(
		m.CommandsProcessed,
		m.MessagesHandled,
		m.ChannelsCount,
		m.ChannelNames,
		m.MessagesPerChannel,
		m.PriceFetches,
		m.PriceCacheLookups,
		m.AlertsEvaluated,
		m.AlertsTriggered,
		m.AlertNotifyFailures,
		m.AlertCycleDuration,
		m.CalendarEventsStored,
	)
	return m
}

func (m *Metrics) ObserveFetch(provider, outcome string) {
	if m == nil {
		return
	}
	m.PriceFetches.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) ObserveCacheLookup(assetType string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PriceCacheLookups.WithLabelValues(assetType, result).Inc()
}

func (m *Metrics) AlertEvaluated() {
	if m == nil {
		return
	}
	m.AlertsEvaluated.Inc()
}

func (m *Metrics) AlertTriggered() {
	if m == nil {
		return
	}
	m.AlertsTriggered.Inc()
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.AlertNotifyFailures.Inc()
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.AlertCycleDuration.Observe(d.Seconds())
}

func (m *Metrics) EventsStored(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CalendarEventsStored.Add(float64(n))
}

func (m *Metrics) CommandProcessed() {
	if m == nil {
		return
	}
	m.CommandsProcessed.Inc()
}

// MessageHandled counts an incoming message and tracks the chat it came from.
func (m *Metrics) MessageHandled(chatID int64, chatName string) {
	if m == nil {
		return
	}
	m.MessagesHandled.Inc()

	m.Mutex.Lock()
	if _, exists := m.ChannelsSet[chatID]; !exists {
		m.ChannelsSet[chatID] = chatName
		m.ChannelsCount.Set(float64(len(m.ChannelsSet)))
		m.ChannelNames.WithLabelValues(fmt.Sprintf("%d", chatID), chatName).Inc()
	}
	m.Mutex.Unlock()

	m.MessagesPerChannel.WithLabelValues(fmt.Sprintf("%d", chatID), chatName).Inc()
}
