package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"contract_alert_engine/internal/app"
	"contract_alert_engine/internal/domain/contract"
	"contract_alert_engine/internal/domain/notify"
	"contract_alert_engine/internal/domain/owner"
	"contract_alert_engine/internal/infra/config"
	idb "contract_alert_engine/internal/infra/database"
	"contract_alert_engine/internal/infra/extractor"
	"contract_alert_engine/internal/infra/logger"
	"contract_alert_engine/internal/infra/memory"
	"contract_alert_engine/internal/infra/metrics"
	"contract_alert_engine/internal/infra/scheduler"
	"contract_alert_engine/internal/infra/telegram"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	mainLogger.WithFields(logrus.Fields{
		"environment":  cfg.Environment,
		"store":        cfg.StoreDriver,
		"notifier":     cfg.Notifier,
		"horizon_days": cfg.AlertHorizonDays,
	}).Info("Contract alert engine starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	contractRepo, ownerRepo, db := openStores(cfg, mainLogger)
	if db != nil {
		defer db.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(registry)

	dateExtractor := extractor.New(extractor.Config{
		APIKey:  cfg.ExtractorAPIKey,
		BaseURL: cfg.ExtractorBaseURL,
		Model:   cfg.ExtractorModel,
		Timeout: cfg.ExtractorTimeout,
	})
	if cfg.ExtractorAPIKey == "" {
		mainLogger.Warn("EXTRACTOR_API_KEY is not set, contracts get no extracted dates")
	}

	bridge := app.NewExtractionBridge(dateExtractor, cfg.ExtractorTimeout, logger.Component("extraction"))
	schedulerService := app.NewSchedulerService(contractRepo, bridge, cfg.AlertHorizon(), collector, logger.Component("scheduler"))
	sweepService := app.NewSweepService(contractRepo, collector, logger.Component("sweeper"))
	adminService := app.NewAdminService(ownerRepo, cfg.AdminTelegramID)

	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		botLogger := logger.Component("telebot")
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) { // Global error handler
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil && c.Chat() != nil {
					entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
				}
				entry.Error("Telegram handler error")
			},
		})
		if err != nil {
			mainLogger.Fatalf("Could not create Telegram bot: %v", err)
		}
	}

	var notifier notify.Notifier
	switch cfg.Notifier {
	case config.NotifierTelegram:
		notifier = telegram.NewNotifier(telegram.NewTelebotAdapter(bot), logger.Component("notifier"))
	default:
		notifier = logger.NewNotifier(logger.Component("notifier"))
	}

	dispatchService := app.NewDispatchService(
		contractRepo,
		ownerRepo,
		notifier,
		app.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			Backoff:     cfg.RetryBackoff,
			ClaimTTL:    cfg.ClaimTTL,
		},
		cfg.NotifierTimeout,
		cfg.DispatchConcurrency,
		collector,
		logger.Component("dispatcher"),
	)

	if bot != nil {
		handlerLogger := logger.Component("telegram")
		telegram.RegisterBotCommands(ctx, bot, adminService, ownerRepo, handlerLogger)
		telegram.RegisterAdminHandlers(ctx, bot, adminService, schedulerService, handlerLogger)
		telegram.RegisterCallbackHandlers(ctx, bot, schedulerService, ownerRepo, handlerLogger)
		mainLogger.Info("Telegram handlers registered")
		go bot.Start()
	}

	jobs := scheduler.NewAlertScheduler(cfg, schedulerService, dispatchService, sweepService, logger.Component("cron"))
	if err := jobs.Start(); err != nil {
		mainLogger.Fatalf("Could not start job scheduler: %v", err)
	}

	// Catch up on contracts changed while the process was down.
	go func() {
		if _, err := schedulerService.ReconcileAll(ctx); err != nil {
			mainLogger.WithError(err).Warn("Startup reconciliation finished with errors")
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			mainLogger.WithField("addr", cfg.MetricsAddr).Info("Serving metrics")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				mainLogger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	mainLogger.Info("Application setup complete")
	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	jobs.Stop()
	if bot != nil {
		bot.Stop()
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	mainLogger.Info("Application shut down gracefully")
}

func openStores(cfg *config.AppConfig, log *logrus.Entry) (contract.Repository, owner.Repository, *sql.DB) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("Using in-memory store, data is lost on restart")
		return memory.NewContractRepository(), memory.NewOwnerRepository(), nil
	}

	if cfg.MigrateOnStart {
		if err := idb.MigrateUp(cfg.DatabaseURL); err != nil {
			log.Fatalf("Could not apply migrations: %v", err)
		}
		log.Info("Database migrations applied")
	}

	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	log.Info("Database connection established successfully")
	return idb.NewPostgresContractRepository(db), idb.NewPostgresOwnerRepository(db), db
}
