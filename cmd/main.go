package main

import (
	"context"
	"crypto-alert-notifier/config"
	"crypto-alert-notifier/internal/alert"
	"crypto-alert-notifier/internal/database"
	"crypto-alert-notifier/internal/metrics"
	"crypto-alert-notifier/internal/notify"
	"crypto-alert-notifier/internal/price"
	"crypto-alert-notifier/internal/telegram"
	"crypto-alert-notifier/lib/translation"
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	translation.Configure(cfg.LocalesPath, cfg.Lang)
	log.Infof("Notification language: %s", translation.GetLanguage())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	repo, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to alert store: %v", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := repo.Close(closeCtx); err != nil {
			log.Errorf("Failed to close alert store: %v", err)
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)

	fetcher := price.NewFetcher(newQuoteSource(cfg), cfg.FetchWorkers, cfg.QuoteRateLimit, m)
	notifier := notify.NewRouter(notify.NewWebhook(cfg.NotifyBearerToken, cfg.RequestTimeout), newTelegramBot(cfg))
	evaluator := alert.NewEvaluator(repo, fetcher, notifier, cfg.NotifyWorkers, m)

	go func() {
		if err := launchMetricsAndHealthServer(cfg.MetricsPort); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics and health server stopped: %v", err)
		}
	}()

	alert.NewScheduler(evaluator, cfg.CheckInterval).Run(ctx)
	log.Info("Shutting down...")
}

func setupLogging(cfg config.Config) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting alert notifier...")
}

func newQuoteSource(cfg config.Config) price.Source {
	switch cfg.QuoteProvider {
	case "coinpaprika":
		log.Info("Using CoinPaprika quote provider")
		return price.NewCoinpaprikaSource(cfg.APIProKey, cfg.RequestTimeout)
	default:
		log.Infof("Using quote endpoint %s", cfg.QuoteAPIURL)
		return price.NewHTTPSource(cfg.QuoteAPIURL, cfg.QuoteCrypto, cfg.RequestTimeout)
	}
}

// newTelegramBot returns nil when telegram delivery is not configured or the
// bot cannot be created; tg:// alerts then fail delivery and stay active.
func newTelegramBot(cfg config.Config) *telegram.Bot {
	if cfg.TelegramBotToken == "" {
		return nil
	}
	bot, err := telegram.NewBot(telegram.BotConfig{
		Token: cfg.TelegramBotToken,
		Debug: cfg.Debug,
	})
	if err != nil {
		log.Errorf("Failed to create telegram bot, tg:// endpoints disabled: %v", err)
		return nil
	}
	return bot
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func launchMetricsAndHealthServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", healthCheckHandler)

	log.Infof("Launching metrics and health endpoint on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), http.DefaultServeMux)
}
