package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kusina-pos/api/internal/config"
	"github.com/kusina-pos/api/internal/database"
	"github.com/kusina-pos/api/internal/events"
	"github.com/kusina-pos/api/internal/lockout"
	"github.com/kusina-pos/api/internal/logger"
	"github.com/kusina-pos/api/internal/memstore"
	"github.com/kusina-pos/api/internal/payment"
	"github.com/kusina-pos/api/internal/paymongo"
	"github.com/kusina-pos/api/internal/router"
	"github.com/kusina-pos/api/internal/service"
	"github.com/kusina-pos/api/internal/worker"
	"github.com/kusina-pos/api/internal/ws"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped with error")
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	// --- Storage ---
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Payment provider ---
	var provider payment.Provider
	switch cfg.PaymentProvider {
	case config.ProviderMock:
		log.Warn("using mock payment provider")
		provider = payment.NewMock()
	default:
		provider = paymongo.NewClient(cfg.PayMongoSecretKey, cfg.PayMongoBaseURL, &http.Client{Timeout: 30 * time.Second})
	}

	// --- Events ---
	hub := ws.NewHub()
	publishers := events.Multi{events.NewHubPublisher(hub)}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQPURL, log)
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
		log.WithField("exchange", events.Exchange).Info("publishing order events to AMQP")
	}

	// --- Services ---
	orders := service.NewOrderService(store, publishers, log)
	payments := service.NewPaymentService(
		store,
		provider,
		publishers,
		lockout.New(cfg.ConfirmMaxAttempts, cfg.ConfirmLockout),
		service.PaymentConfig{
			Currency:   cfg.Currency,
			Flow:       cfg.PaymentFlow,
			SuccessURL: cfg.CheckoutSuccessURL,
			CancelURL:  cfg.CheckoutCancelURL,
		},
		log,
	)
	maintenance := service.NewMaintenance(store, publishers, service.MaintenanceConfig{
		Retention:      cfg.Retention(),
		RetentionBatch: cfg.RetentionBatch,
		PaymentExpiry:  cfg.PaymentExpiry,
	}, log)

	r := router.New(cfg, router.Services{
		Orders:    orders,
		Payments:  payments,
		Webhooks:  service.NewWebhookService(store, publishers, log),
		Discounts: service.NewDiscountService(store),
		Users:     store,
		Hub:       hub,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(ctx) })

	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	// --- Scheduled jobs ---
	g.Go(func() error {
		return worker.Every(ctx, "payment-expiry", cfg.ExpirySweepInterval, log, func(ctx context.Context) error {
			_, err := maintenance.ExpireStalePayments(ctx)
			return err
		})
	})
	g.Go(func() error {
		return worker.Every(ctx, "order-retention", cfg.RetentionInterval, log, func(ctx context.Context) error {
			_, err := maintenance.PurgeCompleted(ctx)
			return err
		})
	})

	return g.Wait()
}

// openStore returns the configured store and a function releasing it.
func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (database.Store, func(), error) {
	if cfg.StoreBackend == config.StoreMemory {
		log.Warn("using in-memory store; data is lost on restart")
		return memstore.New(), func() {}, nil
	}

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		log.Info("database migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("connected to postgres")
	return database.NewPgStore(pool), pool.Close, nil
}
