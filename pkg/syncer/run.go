package syncer

import (
	"context"
	"time"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
)

// Run executes reconciliation passes at the configured interval until ctx
// is canceled. The first pass starts immediately. A pass started through
// Sync by another caller makes the scheduled pass skip its slot rather
// than queue behind it.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		if _, err := o.Sync(ctx); err != nil {
			if errors.Is(err, errors.ErrBusy) {
				o.logger.Debug().Msg("pass in flight, skipping scheduled sync")
			} else {
				o.logger.Warn().Err(err).Msg("scheduled sync failed")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Interval returns the configured pass interval.
func (o *Orchestrator) Interval() time.Duration {
	return o.interval
}
