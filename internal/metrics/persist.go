package metrics

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

// Store persists metric values between restarts.
type Store interface {
	SaveMetric(ctx context.Context, metricName string, value float64) error
	GetMetric(ctx context.Context, metricName string) (float64, error)
	SaveMetricWithLabels(ctx context.Context, metricName, labelKey, labelValue string, value float64) error
	GetMetricsWithLabels(ctx context.Context, metricName string) (map[string]map[string]float64, error)
}

// Load restores saved counters into m.
func (m *Metrics) Load(ctx context.Context, store Store) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for name, c := range m.plainCounters() {
		value, err := store.GetMetric(ctx, name)
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", name, err)
			continue
		}
		c.Add(value)
	}

	loadLabeledMetrics(ctx, store, "channel_names", func(chatIDStr, chatName string, _ float64) {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			log.Errorf("Failed to parse chatID %s: %v", chatIDStr, err)
			return
		}
		m.ChannelNames.WithLabelValues(chatIDStr, chatName).Add(1)
		m.ChannelsSet[chatID] = chatName
	})
	m.ChannelsCount.Set(float64(len(m.ChannelsSet)))

	loadLabeledMetrics(ctx, store, "messages_per_channel", func(chatID, chatName string, value float64) {
		m.MessagesPerChannel.WithLabelValues(chatID, chatName).Add(value)
	})

	log.Info("Metrics loaded from database.")
}

func loadLabeledMetrics(ctx context.Context, store Store, metricName string, callback func(labelKey, labelValue string, value float64)) {
	metricsWithLabels, err := store.GetMetricsWithLabels(ctx, metricName)
	if err != nil {
		log.Errorf("Failed to load metric %s: %v", metricName, err)
		return
	}
	for labelKey, labelValues := range metricsWithLabels {
		for labelValue, value := range labelValues {
			callback(labelKey, labelValue, value)
		}
	}
}

// Save writes the current counter values to store.
func (m *Metrics) Save(ctx context.Context, store Store) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for name, c := range m.plainCounters() {
		if err := store.SaveMetric(ctx, name, GetMetricValue(c)); err != nil {
			log.Errorf("Failed to save metric %s: %v", name, err)
		}
	}

	for chatID, chatName := range m.ChannelsSet {
		if err := store.SaveMetricWithLabels(ctx, "channel_names", fmt.Sprintf("%d", chatID), chatName, 1); err != nil {
			log.Errorf("Failed to save channel %d: %v", chatID, err)
		}
	}

	metricChan := make(chan prometheus.Metric)
	go func() {
		m.MessagesPerChannel.Collect(metricChan)
		close(metricChan)
	}()

	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Errorf("Failed to read MessagesPerChannel metric: %v", err)
			continue
		}
		var chatID, chatName string
		for _, label := range metricProto.Label {
			switch label.GetName() {
			case "chat_id":
				chatID = label.GetValue()
			case "chat_name":
				chatName = label.GetValue()
			}
		}
		if err := store.SaveMetricWithLabels(ctx, "messages_per_channel", chatID, chatName, metricProto.Counter.GetValue()); err != nil {
			log.Errorf("Failed to save messages for chat %s: %v", chatID, err)
		}
	}

	log.Debug("Metrics saved to database.")
}

func (m *Metrics) plainCounters() map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		"commands_processed":     m.CommandsProcessed,
		"messages_handled":       m.MessagesHandled,
		"alerts_triggered":       m.AlertsTriggered,
		"calendar_events_stored": m.CalendarEventsStored,
	}
}

// GetMetricValue reads the current value of a single counter or gauge.
func GetMetricValue(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		return metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		return metricProto.Gauge.GetValue()
	}
	return 0
}
