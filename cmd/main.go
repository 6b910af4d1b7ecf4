package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/config"
	"market-telegram-bot/internal/alert"
	"market-telegram-bot/internal/calendar"
	"market-telegram-bot/internal/commands"
	"market-telegram-bot/internal/database"
	"market-telegram-bot/internal/metrics"
	"market-telegram-bot/internal/price"
	"market-telegram-bot/internal/scheduler"
	"market-telegram-bot/internal/telegram"
	"market-telegram-bot/lib/translation"
)

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	translation.Init("locales", strings.ToLower(config.GetString("lang")))

	store, err := database.Open(config.GetString("db_path"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	m.Load(ctx, store)

	providers := price.NewProviders(price.ProvidersConfig{
		AlphaVantageKey: config.GetString("alpha_vantage_key"),
		FinnhubKey:      config.GetString("finnhub_api_key"),
		EODHDKey:        config.GetString("eodhd_api_key"),
		CoinPaprikaKey:  config.GetString("api_pro_key"),
		CryptoProvider:  config.GetString("crypto_provider"),
		Timeout:         config.GetDuration("http_timeout"),
	})
	resolver := price.NewResolver(price.ResolverConfig{
		Stock:   providers.Stock,
		Crypto:  providers.Crypto,
		Cache:   price.NewCache(config.GetDuration("stock_cache_ttl"), config.GetDuration("crypto_cache_ttl")),
		Metrics: m,
	})

	handler := commands.NewHandler(commands.Config{
		Prices:        resolver,
		Store:         store,
		Quotes:        providers.Yahoo,
		StockHistory:  providers.StockHistory,
		CryptoHistory: providers.CryptoHistory,
	})

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_bot_token"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
	}, handler, store, m)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	evaluator := alert.NewEvaluator(store, resolver, alert.EvaluatorConfig{
		Interval:   config.GetDuration("alert_interval"),
		Retries:    config.GetInt("alert_retries"),
		RetryDelay: config.GetDuration("alert_retry_delay"),
		Metrics:    m,
	})
	evaluatorDone := evaluator.Start(ctx, bot)

	general, perSymbol := calendar.NewSources(calendar.SourcesConfig{
		AlphaVantageKey: config.GetString("alpha_vantage_key"),
		EODHDKey:        config.GetString("eodhd_api_key"),
		Timeout:         config.GetDuration("http_timeout"),
	})
	updater := calendar.NewUpdater(store, general, perSymbol, m)

	jobs := scheduler.NewScheduler(scheduler.Jobs{
		UpdateCalendar: func(ctx context.Context) {
			if _, err := updater.Update(ctx); err != nil {
				log.Errorf("Calendar update failed: %v", err)
			}
		},
		SweepCache:       func() { resolver.Sweep() },
		SaveMetrics:      func(ctx context.Context) { m.Save(ctx, store) },
		CalendarInterval: config.GetDuration("calendar_interval"),
	})
	if err := jobs.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	updates, err := bot.GetUpdatesChannel()
	if err != nil {
		log.Fatalf("Failed to get updates channel: %v", err)
	}
	go handleUpdates(ctx, bot, updates)

	srv := newMetricsAndHealthServer(config.GetInt("metrics_port"))
	go func() {
		log.Infof("Launching metrics and health endpoint on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start metrics and health server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	bot.StopReceivingUpdates()
	jobs.Stop()
	<-evaluatorDone

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Failed to stop metrics server: %v", err)
	}
	m.Save(shutdownCtx, store)
	log.Info("Metrics saved, bye")
}

func setupLogging() {
	level, err := log.ParseLevel(config.GetString("log_level"))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.Debug("Starting telegram bot...")
}

func handleUpdates(ctx context.Context, bot *telegram.Bot, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		bot.HandleUpdate(ctx, update)
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func newMetricsAndHealthServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthCheckHandler)
	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
}
