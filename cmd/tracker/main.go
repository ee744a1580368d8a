// Command tracker follows one order against a running server the way the
// ordering app does: it listens on the order's websocket room, polls as a
// fallback and re-checks on SIGUSR1. Notifications are logged.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/logger"
	"github.com/kusina-pos/api/internal/reconcile"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	server := flag.String("server", "http://localhost:8081", "API base URL")
	orderFlag := flag.String("order", "", "Order ID to follow")
	fresh := flag.Bool("fresh", false, "Announce the order as just placed")
	interval := flag.Duration("poll-interval", reconcile.DefaultPollInterval, "Fallback poll interval")
	timeout := flag.Duration("poll-timeout", reconcile.DefaultPollTimeout, "Stop polling after this long")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log := logger.New(*level, "text")

	orderID, err := uuid.Parse(*orderFlag)
	if err != nil {
		log.WithError(err).Fatal("a valid -order is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, *server, orderID, *fresh, *interval, *timeout); err != nil {
		log.WithError(err).Fatal("tracker stopped with error")
	}
}

func run(ctx context.Context, log *logrus.Logger, server string, orderID uuid.UUID, fresh bool, interval, timeout time.Duration) error {
	fetcher := reconcile.NewHTTPFetcher(server, &http.Client{Timeout: 15 * time.Second})
	tracker := reconcile.NewTracker(orderID, reconcile.Options{
		Fresh: fresh,
		Notify: func(n reconcile.Notification) {
			log.WithFields(logrus.Fields{
				"order_id": n.OrderID,
				"status":   n.Status,
				"source":   n.Source,
			}).Info(n.Message)
		},
		Log: log,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return tracker.Run(ctx) })

	g.Go(func() error {
		sub := &reconcile.Subscriber{BaseURL: server, Log: log}
		return sub.Run(ctx, tracker)
	})

	g.Go(func() error {
		p := &reconcile.Poller{Fetcher: fetcher, Interval: interval, Timeout: timeout, Log: log}
		reason := p.Run(ctx, tracker)
		log.WithField("reason", reason).Debug("poller finished")
		return nil
	})

	// Foreground re-check: once at start, then on every SIGUSR1.
	g.Go(func() error {
		usr1 := make(chan os.Signal, 1)
		signal.Notify(usr1, syscall.SIGUSR1)
		defer signal.Stop(usr1)

		if err := reconcile.Refresh(ctx, fetcher, tracker); err != nil {
			log.WithError(err).Warn("initial check failed")
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-usr1:
				if err := reconcile.Refresh(ctx, fetcher, tracker); err != nil {
					log.WithError(err).Warn("foreground check failed")
				}
			}
		}
	})

	g.Go(func() error {
		select {
		case <-tracker.Finished():
			log.Info("order finished")
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	return g.Wait()
}
