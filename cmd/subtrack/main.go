package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/subtrack-app/subtrack/internal/config"
	"github.com/subtrack-app/subtrack/internal/domain/category"
	analyticshandler "github.com/subtrack-app/subtrack/internal/http/handlers/analytics"
	categorieshandler "github.com/subtrack-app/subtrack/internal/http/handlers/categories"
	subscriptionshandler "github.com/subtrack-app/subtrack/internal/http/handlers/subscriptions"
	"github.com/subtrack-app/subtrack/internal/logger"
	"github.com/subtrack-app/subtrack/internal/notify/rabbitmq"
	"github.com/subtrack-app/subtrack/internal/reminder"
	"github.com/subtrack-app/subtrack/internal/services/analytics"
	"github.com/subtrack-app/subtrack/internal/services/subscriptions"
	"github.com/subtrack-app/subtrack/internal/storage/postgresql"
)

func main() {
	cfg := config.MustLoad()

	log := logger.New(cfg.Env)
	log.Info("starting subtrack", slog.String("env", cfg.Env))
	log.Debug("debug messages are enabled")

	db, err := postgresql.New(cfg.PostgreSQL)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close postgresql connection", slog.Any("error", err))
		}
	}()

	if err := seed(db, log); err != nil {
		log.Error("failed to seed reference data", slog.Any("error", err))
		os.Exit(1)
	}

	scheduler, closeScheduler := newScheduler(cfg.AMQP, log)
	defer closeScheduler()

	reminders := reminder.NewAdapter(scheduler, log)
	subscriptionsService := subscriptions.New(db, reminders, log)
	analyticsEngine := analytics.New(db, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	subscriptionshandler.New(subscriptionsService, log).Register(router)
	analyticshandler.New(analyticsEngine, log).Register(router)
	categorieshandler.New(db, log).Register(router)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.Timeout)
		defer cancel()

		log.Info("shutting down http server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown http server", slog.Any("error", err))
		}
	}()

	log.Info("starting http server", slog.String("address", cfg.HTTPServer.Address))

	if err := server.ListenAndServe(); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", slog.Any("error", err))
		}
	}
}

// seed fills in the fixed category set and the settings defaults; existing
// rows are never touched.
func seed(db *postgresql.Storage, log *slog.Logger) error {
	ctx := context.Background()

	if err := db.SeedCategories(ctx, category.Defaults()); err != nil {
		return err
	}

	defaults := map[string]string{
		subscriptions.SettingDefaultCurrency:     "USD",
		subscriptions.SettingDefaultReminderDays: "7,3,1",
		subscriptions.SettingNotificationsFlag:   "true",
	}
	if err := db.SeedSettings(ctx, defaults); err != nil {
		return err
	}

	log.Debug("reference data seeded")
	return nil
}

// newScheduler connects the AMQP reminder transport, degrading to a noop
// scheduler when no broker is configured or reachable. A missing broker means
// fewer reminders, never a failed start.
func newScheduler(cfg config.AMQPConfig, log *slog.Logger) (reminder.Scheduler, func()) {
	if cfg.URL == "" {
		log.Warn("amqp url not configured, reminder scheduling disabled")
		return reminder.NopScheduler{}, func() {}
	}

	scheduler, err := rabbitmq.New(cfg.URL, cfg.Exchange)
	if err != nil {
		log.Warn("failed to connect to amqp broker, reminder scheduling disabled", slog.Any("error", err))
		return reminder.NopScheduler{}, func() {}
	}

	log.Info("amqp reminder transport connected", slog.String("exchange", cfg.Exchange))
	return scheduler, func() {
		if err := scheduler.Close(); err != nil {
			log.Warn("failed to close amqp connection", slog.Any("error", err))
		}
	}
}
