package alert

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/metrics"
	"market-telegram-bot/internal/price"
	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/helpers"
	"market-telegram-bot/lib/translation"
)

const DefaultInterval = 60 * time.Second

// Store is the part of the alert storage the evaluator needs.
// DeleteAlert must be idempotent.
type Store interface {
	ListAlerts(ctx context.Context) ([]types.Alert, error)
	DeleteAlert(ctx context.Context, id int64) error
}

// Notifier delivers a plain text message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

type PriceSource interface {
	GetPriceWithRetry(ctx context.Context, symbol string, assetType types.AssetType, retries int, delay time.Duration) (float64, bool)
}

type EvaluatorConfig struct {
	Interval   time.Duration
	Retries    int
	RetryDelay time.Duration
	Metrics    *metrics.Metrics
	// Sleep waits between cycles. helpers.Sleep when nil.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Evaluator periodically checks every stored alert against the current price
// and notifies the owner of each alert that triggered. An alert is deleted
// only once its notification was delivered.
type Evaluator struct {
	store      Store
	prices     PriceSource
	interval   time.Duration
	retries    int
	retryDelay time.Duration
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewEvaluator(store Store, prices PriceSource, c EvaluatorConfig) *Evaluator {
	e := &Evaluator{
		store:      store,
		prices:     prices,
		interval:   c.Interval,
		retries:    c.Retries,
		retryDelay: c.RetryDelay,
		metrics:    c.Metrics,
		sleep:      c.Sleep,
	}
	if e.interval <= 0 {
		e.interval = DefaultInterval
	}
	if e.retries < 1 {
		e.retries = price.DefaultRetries
	}
	if e.retryDelay < 0 {
		e.retryDelay = price.DefaultRetryDelay
	}
	if e.sleep == nil {
		e.sleep = helpers.Sleep
	}
	return e
}

// Start runs the loop in its own goroutine. The returned channel is closed
// when the loop has stopped after ctx was cancelled.
func (e *Evaluator) Start(ctx context.Context, notifier Notifier) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx, notifier)
	}()
	log.Infof("🚀 Alert service started, checking every %s", e.interval)
	return done
}

// Run checks alerts until ctx is cancelled. Cycles never overlap; the
// interval is slept after each full pass.
func (e *Evaluator) Run(ctx context.Context, notifier Notifier) {
	for ctx.Err() == nil {
		if _, err := e.RunCycle(ctx, notifier); err != nil {
			log.WithError(err).Error("❌ Alert cycle failed")
		}
		if err := e.sleep(ctx, e.interval); err != nil {
			break
		}
	}
	log.Info("Alert service stopped")
}

// CycleResult summarises one pass over the alerts.
type CycleResult struct {
	Evaluated   int
	Triggered   int
	Delivered   int
	Unavailable int
	Failed      int
}

// RunCycle performs one pass over all alerts. Problems with a single alert
// are logged and counted; only a failure to list alerts is returned.
func (e *Evaluator) RunCycle(ctx context.Context, notifier Notifier) (result CycleResult, err error) {
	entry := log.WithField("cycle_id", uuid.NewString())
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in alert cycle: %v", r)
		}
		e.metrics.ObserveCycle(time.Since(start))
	}()

	entry.Debug("🔄 Checking alerts...")
	alerts, err := e.store.ListAlerts(ctx)
	if err != nil {
		return result, errors.Wrap(err, "could not list alerts")
	}

	for _, a := range alerts {
		if ctx.Err() != nil {
			entry.Info("Alert cycle cancelled")
			return result, nil
		}
		e.process(ctx, entry.WithFields(log.Fields{"alert_id": a.ID, "symbol": a.Symbol}), notifier, a, &result)
	}

	entry.WithFields(log.Fields{
		"alerts":      len(alerts),
		"triggered":   result.Triggered,
		"delivered":   result.Delivered,
		"unavailable": result.Unavailable,
		"failed":      result.Failed,
	}).Debug("✅ Alert check completed")
	return result, nil
}

func (e *Evaluator) process(ctx context.Context, entry *log.Entry, notifier Notifier, a types.Alert, result *CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			entry.Errorf("🔥 Panic while processing alert: %v", r)
			result.Failed++
		}
	}()

	a, err := normalize(a)
	if err != nil {
		entry.WithError(err).Warn("⚠️ Skipping invalid alert")
		result.Failed++
		return
	}

	result.Evaluated++
	e.metrics.AlertEvaluated()

	current, ok := e.prices.GetPriceWithRetry(ctx, a.Symbol, a.AssetType, e.retries, e.retryDelay)
	if !ok {
		entry.Warn("⚠️ Price unavailable, alert skipped this cycle")
		result.Unavailable++
		return
	}

	entry.Debugf("🔍 Target: %.2f (%s) | Current: %.2f", a.TargetPrice, a.Condition, current)
	if !a.Triggered(current) {
		return
	}
	result.Triggered++
	e.metrics.AlertTriggered()

	if err := notifier.Notify(ctx, a.ChatID, Message(a, current)); err != nil {
		entry.WithError(err).WithField("chat_id", a.ChatID).Error("❌ Failed to send alert notification, keeping alert")
		e.metrics.NotifyFailed()
		result.Failed++
		return
	}
	result.Delivered++
	entry.WithField("chat_id", a.ChatID).Info("✅ Alert notification sent")

	if err := e.store.DeleteAlert(ctx, a.ID); err != nil {
		entry.WithError(err).Error("❌ Failed to delete delivered alert")
		result.Failed++
	}
}

// normalize checks the stored fields and returns them in canonical form.
func normalize(a types.Alert) (types.Alert, error) {
	if a.TargetPrice <= 0 || math.IsNaN(a.TargetPrice) || math.IsInf(a.TargetPrice, 0) {
		return a, errors.Errorf("target price %v is not positive", a.TargetPrice)
	}
	condition, ok := types.ParseCondition(string(a.Condition))
	if !ok {
		return a, errors.Errorf("unknown condition %q", a.Condition)
	}
	assetType, ok := types.ParseAssetType(string(a.AssetType))
	if !ok {
		return a, errors.Errorf("unknown asset type %q", a.AssetType)
	}
	a.Condition, a.AssetType = condition, assetType
	return a, nil
}

// Message is the plain text notification for a triggered alert.
func Message(a types.Alert, current float64) string {
	return translation.Translate(
		"🔔 Alert triggered!\nAsset: %s (%s)\nCurrent price: $%s\nTarget price: $%s (%s)",
		a.Symbol,
		translation.Translate(string(a.AssetType)),
		fmt.Sprintf("%.2f", current),
		fmt.Sprintf("%.2f", a.TargetPrice),
		translation.Translate(string(a.Condition)),
	)
}
