package reconcile

import (
	"context"
	"time"

	"github.com/kusina-pos/api/internal/enum"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

// StopReason explains why a poll loop ended.
type StopReason string

const (
	StopSettled   StopReason = "settled"
	StopTimeout   StopReason = "timeout"
	StopCancelled StopReason = "cancelled"
)

// Poller is the fallback for a missed push: it checks payment status and
// refetches the order on an interval until the tracker settles.
type Poller struct {
	Fetcher  Fetcher
	Interval time.Duration
	Timeout  time.Duration
	Log      logrus.FieldLogger
}

// Run polls for t's order. It returns when the tracker settles, Timeout
// elapses or ctx is cancelled.
func (p *Poller) Run(ctx context.Context, t *Tracker) StopReason {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("order_id", t.OrderID())

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Settled():
			log.Debug("poll stopped: settled")
			return StopSettled
		case <-deadline.C:
			log.Info("poll stopped: timeout")
			return StopTimeout
		case <-ctx.Done():
			return StopCancelled
		case <-ticker.C:
			if err := check(ctx, p.Fetcher, t, SourcePoll); err != nil {
				log.WithError(err).Warn("poll failed")
			}
		}
	}
}

// Refresh runs one immediate check, as when the app returns to the
// foreground.
func Refresh(ctx context.Context, f Fetcher, t *Tracker) error {
	return check(ctx, f, t, SourceForeground)
}

// check asks the server to reconcile payment with the provider when payment
// is still outstanding, then feeds the current order to the tracker.
func check(ctx context.Context, f Fetcher, t *Tracker, src Source) error {
	o, err := f.FetchOrder(ctx, t.OrderID())
	if err != nil {
		return err
	}
	if o.PaymentMethod == enum.PaymentMethodGCash && o.PaymentStatus != enum.PaymentStatusPaid && o.PaymentIntentID != "" {
		pc, err := f.CheckPayment(ctx, t.OrderID())
		if err != nil {
			return err
		}
		if pc.Status != "" {
			o.Status = pc.Status
		}
		if pc.PaymentStatus != "" {
			o.PaymentStatus = pc.PaymentStatus
		}
	}
	t.Observe(ctx, Update{Source: src, Order: o})
	return nil
}
