package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dkhalmer/rentflow/internal/availability"
	"github.com/dkhalmer/rentflow/internal/cache"
	"github.com/dkhalmer/rentflow/internal/clock"
	"github.com/dkhalmer/rentflow/internal/db"
	"github.com/dkhalmer/rentflow/internal/kafka"
	"github.com/dkhalmer/rentflow/internal/logger"
	"github.com/dkhalmer/rentflow/internal/notify"
	"github.com/dkhalmer/rentflow/internal/pricing"
	"github.com/dkhalmer/rentflow/internal/rental"
	"github.com/dkhalmer/rentflow/internal/repository/postgresql"
	"github.com/dkhalmer/rentflow/internal/scheduler"
	"github.com/dkhalmer/rentflow/internal/server"
	"github.com/dkhalmer/rentflow/internal/substitution"
)

func main() {
	log := logger.New()
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db.LoadEnv()

	dbPool, err := db.NewDb(ctx)
	if err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}

	itemRepo := postgresql.NewItemRepo(dbPool)
	categoryRepo := postgresql.NewCategoryRepo(dbPool)
	reservationRepo := postgresql.NewReservationRepo(dbPool)
	maintenanceRepo := postgresql.NewMaintenanceRepo(dbPool)
	invoiceRepo := postgresql.NewInvoiceRepo(dbPool)
	notificationRepo := postgresql.NewNotificationRepo(dbPool)
	customerRepo := postgresql.NewCustomerRepo(dbPool)
	staffRepo := postgresql.NewStaffRepo(dbPool)
	outboxRepo := postgresql.NewOutboxTaskRepo()

	calculator := pricing.NewCalculator()
	index := availability.NewIndex(reservationRepo, maintenanceRepo, itemRepo, calculator)
	engine := substitution.NewEngine(itemRepo, reservationRepo, maintenanceRepo, index, log)
	sink := notify.NewSink(dbPool, notificationRepo, outboxRepo)

	resvCache := cache.NewReservationCache(reservationRepo, log)
	if err := resvCache.LoadInitialData(ctx); err != nil {
		log.Fatal("reservation cache warmup failed", zap.Error(err))
	}

	rentalService := rental.NewService(rental.Deps{
		Items:         itemRepo,
		Reservations:  reservationRepo,
		Categories:    categoryRepo,
		Customers:     customerRepo,
		Staff:         staffRepo,
		Invoices:      invoiceRepo,
		Maintenance:   maintenanceRepo,
		Notifications: notificationRepo,
		Index:         index,
		Pricer:        calculator,
		Substituter:   engine,
		Notifier:      sink,
		Cache:         resvCache,
		Clock:         clock.Real{},
		Logger:        log,
	})

	producer := newProducer(log)
	publisher := kafka.NewPublisher(dbPool, outboxRepo, producer, kafka.PublisherConfig{
		PollInterval: 2 * time.Second,
		BatchSize:    50,
		MaxAttempts:  5,
	}, log)

	reconciler := scheduler.New(itemRepo, reservationRepo, maintenanceRepo, engine, sink,
		clock.Real{}, schedulerConfig(log), log)

	srv := server.New(rentalService, itemRepo, categoryRepo, customerRepo, staffRepo, reservationRepo, log)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(groupCtx, port())
	})
	group.Go(func() error {
		publisher.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		reconciler.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown failed", zap.Error(err))
		}
		publisher.Shutdown()
		reconciler.Shutdown()
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Fatal("service exited with error", zap.Error(err))
	}
	log.Info("service stopped")
}

func port() string {
	if p := os.Getenv("HTTP_PORT"); p != "" {
		return p
	}
	return "9000"
}

// schedulerConfig reads the reconciliation knobs from the environment;
// unset or malformed values fall back to the scheduler defaults.
func schedulerConfig(log *zap.Logger) scheduler.Config {
	var config scheduler.Config
	if raw := os.Getenv("SCHEDULER_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			log.Warn("invalid SCHEDULER_INTERVAL, using default", zap.String("value", raw))
		} else {
			config.Interval = interval
		}
	}
	if raw := os.Getenv("DELAY_GRACE_DAYS"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			log.Warn("invalid DELAY_GRACE_DAYS, using default", zap.String("value", raw))
		} else {
			config.DelayLookahead = time.Duration(days) * 24 * time.Hour
		}
	}
	return config
}

// newProducer picks the broker transport from KAFKA_BROKERS; without one
// the outbox drains to the log.
func newProducer(log *zap.Logger) kafka.Producer {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		return kafka.NewConsoleProducer(log)
	}
	return kafka.NewKafkaProducer(strings.Split(brokers, ","))
}
