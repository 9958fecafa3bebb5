package service

import (
	"context"
	"go-auth-api/logger"
	"go-auth-api/repository"
	"time"

	"github.com/sirupsen/logrus"
)

// LedgerPruner periodically deletes refresh tokens older than their lifetime.
type LedgerPruner struct {
	ledger   repository.ITokenRepository
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewLedgerPruner(ledger repository.ITokenRepository, maxAge, interval time.Duration) *LedgerPruner {
	return &LedgerPruner{ledger: ledger, maxAge: maxAge, interval: interval, now: time.Now}
}

// PruneOnce deletes every ledger row created more than maxAge ago.
func (p *LedgerPruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.maxAge)
	n, err := p.ledger.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Log.WithFields(logrus.Fields{"deleted": n, "cutoff": cutoff}).Info("Pruned expired refresh tokens")
	}
	return n, nil
}

// Run prunes on every tick until ctx is cancelled. A non-positive interval
// returns immediately.
func (p *LedgerPruner) Run(ctx context.Context) {
	if p.interval <= 0 || p.maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PruneOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Log.WithError(err).Warn("Refresh token pruning failed")
			}
		}
	}
}
