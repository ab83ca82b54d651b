package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/Siwa-Docsecure/base/internal/obs"
)

const defaultSweepInterval = time.Hour

// RevocationSweeper periodically drops ledger entries whose token has
// expired on its own. Verify accepts a token for clockSkew past its expiry,
// so an entry stays until that window has closed too.
type RevocationSweeper struct {
	store    RevocationStore
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewRevocationSweeper returns a sweeper running every interval (hourly when zero).
func NewRevocationSweeper(store RevocationStore, interval time.Duration, logger *slog.Logger) *RevocationSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &RevocationSweeper{
		store:    store,
		interval: interval,
		now:      time.Now,
		logger:   obs.ResolveLogger(logger),
	}
}

// Sweep prunes once and returns the number of removed entries.
func (s *RevocationSweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.PruneExpired(ctx, s.now().UTC().Add(-clockSkew))
	if err != nil {
		return 0, err
	}
	obs.RevocationsPruned(n)
	return n, nil
}

// Run sweeps until ctx is done.
func (s *RevocationSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("revocation sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("revocation sweep", "removed", n)
			}
		}
	}
}
