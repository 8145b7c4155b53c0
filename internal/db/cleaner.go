package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LockoutSweeper clears a PIN lockout once its expiry has passed.
type LockoutSweeper interface {
	ClearExpiredLockout(ctx context.Context, now time.Time) (bool, error)
}

// StartLockoutSweeper clears expired lockouts with interval, so retry state
// resets even when nobody is looking at the PIN screen.
func StartLockoutSweeper(
	ctx context.Context,
	sweeper LockoutSweeper,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cleared, err := sweeper.ClearExpiredLockout(ctx, time.Now())
				if err != nil {
					log.Error("failed to clear expired lockout", zap.Error(err))
					continue
				}
				if cleared {
					log.Info("cleared expired pin lockout")
				}
			}
		}
	}()
}
