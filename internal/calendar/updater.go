package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/metrics"
	"market-telegram-bot/internal/types"
)

type EventStore interface {
	InsertEvent(ctx context.Context, e types.Event) (bool, error)
	PortfolioSymbols(ctx context.Context, assetType types.AssetType) ([]string, error)
}

// Updater pulls events from every source into the store.
type Updater struct {
	store     EventStore
	general   []Fetcher
	perSymbol []SymbolFetcher
	metrics   *metrics.Metrics

	running sync.Mutex
}

func NewUpdater(store EventStore, general []Fetcher, perSymbol []SymbolFetcher, m *metrics.Metrics) *Updater {
	return &Updater{store: store, general: general, perSymbol: perSymbol, metrics: m}
}

type UpdateResult struct {
	Fetched int
	Stored  int
	Failed  int
}

// Update runs the market wide sources concurrently, then the per symbol
// sources for every stock held in a portfolio. A failing source is logged
// and skipped. Overlapping calls return immediately.
func (u *Updater) Update(ctx context.Context) (UpdateResult, error) {
	var result UpdateResult
	if !u.running.TryLock() {
		log.Warn("Calendar update already running, skipping")
		return result, nil
	}
	defer u.running.Unlock()

	start := time.Now()
	log.Info("📅 Updating economic calendar")

	batches, failed := u.fetchGeneral(ctx)
	result.Failed += failed
	for _, batch := range batches {
		u.save(ctx, batch, &result)
	}

	if len(u.perSymbol) > 0 {
		symbols, err := u.store.PortfolioSymbols(ctx, types.Stock)
		if err != nil {
			return result, errors.Wrap(err, "could not load portfolio symbols")
		}
		for _, symbol := range symbols {
			for _, f := range u.perSymbol {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				events, err := f.FetchSymbol(ctx, symbol)
				if err != nil {
					log.WithError(err).WithFields(log.Fields{"source": f.Name(), "symbol": symbol}).Warn("Calendar source failed")
					result.Failed++
					continue
				}
				u.save(ctx, events, &result)
			}
		}
	}

	u.metrics.EventsStored(result.Stored)
	log.WithFields(log.Fields{
		"fetched":  result.Fetched,
		"stored":   result.Stored,
		"failed":   result.Failed,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("✅ Economic calendar updated")
	return result, nil
}

func (u *Updater) fetchGeneral(ctx context.Context) ([][]types.Event, int) {
	batches := make([][]types.Event, len(u.general))
	ok := make([]bool, len(u.general))

	var wg sync.WaitGroup
	for i, f := range u.general {
		wg.Add(1)
		go func(i int, f Fetcher) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithField("source", f.Name()).Errorf("🔥 Calendar source panicked: %v", r)
				}
			}()

			events, err := f.Fetch(ctx)
			if err != nil {
				log.WithError(err).WithField("source", f.Name()).Warn("Calendar source failed")
				return
			}
			log.WithField("source", f.Name()).Debugf("Fetched %d events", len(events))
			batches[i], ok[i] = events, true
		}(i, f)
	}
	wg.Wait()

	failed := 0
	for _, fetched := range ok {
		if !fetched {
			failed++
		}
	}
	return batches, failed
}

// save inserts events one by one; duplicates are ignored by the store.
func (u *Updater) save(ctx context.Context, events []types.Event, result *UpdateResult) {
	for _, e := range events {
		result.Fetched++
		inserted, err := u.store.InsertEvent(ctx, e)
		if err != nil {
			log.WithError(err).WithField("title", e.Title).Warn("Could not store event")
			continue
		}
		if inserted {
			result.Stored++
		}
	}
}
