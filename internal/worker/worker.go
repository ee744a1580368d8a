// Package worker runs periodic background jobs.
package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one run of a periodic task.
type Job func(ctx context.Context) error

// Every runs job once per interval until ctx is cancelled. A failing run is
// logged and the loop keeps going. It always returns nil so it can be handed
// to an errgroup without tearing the group down.
func Every(ctx context.Context, name string, interval time.Duration, log logrus.FieldLogger, job Job) error {
	log = log.WithField("job", name)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.WithField("interval", interval.String()).Info("job scheduled")
	for {
		select {
		case <-ctx.Done():
			log.Info("job stopped")
			return nil
		case <-ticker.C:
			start := time.Now()
			if err := job(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.WithError(err).Error("job run failed")
				continue
			}
			log.WithField("duration", time.Since(start).String()).Debug("job run finished")
		}
	}
}
