package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-telegram-bot/internal/metrics"
	"market-telegram-bot/internal/types"
)

type memoryStore struct {
	mu      sync.Mutex
	alerts  []types.Alert
	deleted []int64
	listErr error
	delErr  error
}

func (s *memoryStore) ListAlerts(context.Context) ([]types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]types.Alert(nil), s.alerts...), nil
}

func (s *memoryStore) DeleteAlert(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	if s.delErr != nil {
		return s.delErr
	}
	kept := s.alerts[:0]
	for _, a := range s.alerts {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	s.alerts = kept
	return nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{chatID, text})
	return nil
}

// fixedPrices answers from a map; missing symbols are unavailable.
type fixedPrices struct {
	prices map[string]float64
	panics map[string]bool
	calls  []string
}

func (p *fixedPrices) GetPriceWithRetry(_ context.Context, symbol string, _ types.AssetType, retries int, _ time.Duration) (float64, bool) {
	p.calls = append(p.calls, symbol)
	if p.panics[symbol] {
		panic("provider exploded")
	}
	price, ok := p.prices[symbol]
	return price, ok
}

func aaplAlert() types.Alert {
	return types.Alert{ID: 7, ChatID: 42, AssetType: types.Stock, Symbol: "AAPL", TargetPrice: 150, Condition: types.Above}
}

func newEvaluator(store Store, prices PriceSource) *Evaluator {
	return NewEvaluator(store, prices, EvaluatorConfig{RetryDelay: 0})
}

func TestTriggeredAlertIsSentThenDeleted(t *testing.T) {
	store := &memoryStore{alerts: []types.Alert{aaplAlert()}}
	notifier := &recordingNotifier{}
	e := newEvaluator(store, &fixedPrices{prices: map[string]float64{"AAPL": 151.25}})

	result, err := e.RunCycle(context.Background(), notifier)
	require.NoError(t, err)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, int64(42), notifier.sent[0].chatID)
	assert.Contains(t, notifier.sent[0].text, "AAPL")
	assert.Contains(t, notifier.sent[0].text, "151.25")
	assert.Contains(t, notifier.sent[0].text, "150.00")
	assert.Equal(t, []int64{7}, store.deleted)
	assert.Equal(t, CycleResult{Evaluated: 1, Triggered: 1, Delivered: 1}, result)
}

func TestUntriggeredAlertIsKept(t *testing.T) {
	store := &memoryStore{alerts: []types.Alert{aaplAlert()}}
	notifier := &recordingNotifier{}
	e := newEvaluator(store, &fixedPrices{prices: map[string]float64{"AAPL": 149.99}})

	_, err := e.RunCycle(context.Background(), notifier)
	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
	assert.Empty(t, store.deleted)
	assert.Len(t, store.alerts, 1)
}

func TestUnavailablePriceSkipsAlert(t *testing.T) {
	store := &memoryStore{alerts: []types.Alert{aaplAlert()}}
	notifier := &recordingNotifier{}
	e := newEvaluator(store, &fixedPrices{})

	result, err := e.RunCycle(context.Background(), notifier)
	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
	assert.Empty(t, store.deleted)
	assert.Equal(t, 1, result.Unavailable)
}

func TestTriggerBoundaryIsInclusive(t *testing.T) {
	above := aaplAlert()
	below := types.Alert{ID: 8, ChatID: 42, AssetType: types.Crypto, Symbol: "BTC", TargetPrice: 60000, Condition: types.Below}
	store := &memoryStore{alerts: []types.Alert{above, below}}
	notifier := &recordingNotifier{}
	e := newEvaluator(store, &fixedPrices{prices: map[string]float64{"AAPL": 150, "BTC": 60000}})

	_, err := e.RunCycle(context.Background(), notifier)
	require.NoError(t, err)
	assert.Len(t, notifier.sent, 2)
	assert.Equal(t, []int64{7, 8}, store.deleted)
}

func TestFailedSendKeepsAlert(t *testing.T) {
	store := &memoryStore{alerts: []types.Alert{aaplAlert()}}
	notifier := &recordingNotifier{err: errors.New("Forbidden: bot was blocked by the user")}
	e := newEvaluator(store, &fixedPrices{prices: map[string]float64{"AAPL": 151.25}})

	result, err := e.RunCycle(context.Background(), notifier)
	require.NoError(t, err)
	assert.Empty(t, store.deleted, "alert must not be deleted when delivery failed")
	assert.Equal(t, 1, result.Triggered)
	assert.Zero(t, result.Delivered)

	notifier.err = nil
	_, err = e.RunCycle(context.Background(), notifier)
	require.NoError(t, err)
	assert.Len(t, notifier.sent, 1, "the alert fires again on the next cycle")
	assert.Equal(t, []int64{7}, store.deleted)
}

func TestTriggeredCountIncludesFailedSends(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	store := &memoryStore{alerts: []types.Alert{aaplAlert()}}
	notifier := &recordingNotifier{err: errors.New("Forbidden: bot was blocked by the user")}
	e := NewEvaluator(store, &fixedPrices{prices: map[string]float64{"AAPL": 151.25}}, EvaluatorConfig{Metrics: m})

	_, err := e.RunCycle(context.Background(), notifier)
	require.NoError(t, err)

	assert.Equal(t, 1.0, metrics.GetMetricValue(m.AlertsTriggered))
	assert.Equal(t, 1.0, metrics.GetMetricValue(m.AlertNotifyFailures))
	assert.Contains(t, m.AlertsTriggered.Desc().String(), "condition matched")
}

func TestDeleteFailureDoesNotStopCycle(t *testing.T) {
	second := aaplAlert()
	second.ID = 9
	store := &memoryStore{alerts: []types.Alert{aaplAlert(), second}, delErr: errors.New("database is locked")}
	notifier := &recordingNotifier{}
	e := newEvaluator(store, &fixedPrices{prices: map[string]float64{"AAPL": 151.25}})

	result, err := e.RunCycle(context.Background(), notifier)
	require.NoError(t, err)
	assert.Len(t, notifier.sent, 2)
	assert.Equal(t, []int64{7, 9}, store.deleted)
	assert.Equal(t, 2, result.Failed)
}

func TestBadAlertDoesNotBlockOthers(t *testing.T) {
	broken := types.Alert{ID: 1, ChatID: 1, AssetType: types.Stock, Symbol: "BAD", TargetPrice: -3, Condition: types.Above}
	exploding := types.Alert{ID: 2, ChatID: 1, AssetType: types.Stock, Symbol: "BOOM", TargetPrice: 1, Condition: types.Above}
	unknown := types.Alert{ID: 3, ChatID: 1, AssetType: "bond", Symbol: "UST", TargetPrice: 1, Condition: types.Above}
	store := &memoryStore{alerts: []types.Alert{broken, exploding, unknown, aaplAlert()}}
	notifier := &recordingNotifier{}
	prices := &fixedPrices{prices: map[string]float64{"AAPL": 151.25}, panics: map[string]bool{"BOOM": true}}
	e := newEvaluator(store, prices)

	result, err := e.RunCycle(context.Background(), notifier)
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, []int64{7}, store.deleted)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, []string{"BOOM", "AAPL"}, prices.calls)
}

func TestConditionIsNormalised(t *testing.T) {
	a := aaplAlert()
	a.Condition = "ABOVE"
	store := &memoryStore{alerts: []types.Alert{a}}
	notifier := &recordingNotifier{}
	e := newEvaluator(store, &fixedPrices{prices: map[string]float64{"AAPL": 151.25}})

	_, err := e.RunCycle(context.Background(), notifier)
	require.NoError(t, err)
	assert.Len(t, notifier.sent, 1)
}

func TestListFailureEndsCycle(t *testing.T) {
	store := &memoryStore{listErr: errors.New("no such table: alerts")}
	e := newEvaluator(store, &fixedPrices{})

	_, err := e.RunCycle(context.Background(), &recordingNotifier{})
	assert.Error(t, err)
}

func TestRunSleepsIntervalAndStopsOnCancel(t *testing.T) {
	store := &memoryStore{listErr: errors.New("temporary")}
	ctx, cancel := context.WithCancel(context.Background())

	var sleeps []time.Duration
	e := NewEvaluator(store, &fixedPrices{}, EvaluatorConfig{
		Interval: 30 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			if len(sleeps) == 3 {
				cancel()
				return ctx.Err()
			}
			return nil
		},
	})

	done := e.Start(ctx, &recordingNotifier{})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("evaluator did not stop after cancellation")
	}
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second, 30 * time.Second}, sleeps)
}

func TestCancelledContextStopsBetweenAlerts(t *testing.T) {
	store := &memoryStore{alerts: []types.Alert{aaplAlert(), aaplAlert()}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prices := &fixedPrices{prices: map[string]float64{"AAPL": 151.25}}

	_, err := newEvaluator(store, prices).RunCycle(ctx, &recordingNotifier{})
	require.NoError(t, err)
	assert.Empty(t, prices.calls)
}

func TestMessage(t *testing.T) {
	text := Message(aaplAlert(), 151.25)
	assert.Equal(t, "🔔 Alert triggered!\nAsset: AAPL (stock)\nCurrent price: $151.25\nTarget price: $150.00 (above)", text)
}
