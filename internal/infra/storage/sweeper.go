package storage

import (
	"context"
	"time"

	"docconvert/internal/infra/logging"
)

// Sweeper periodically removes artifacts older than the retention period.
type Sweeper struct {
	stores    []*Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewSweeper returns a sweeper over stores. A non-positive retention disables
// sweeping.
func NewSweeper(retention, interval time.Duration, stores ...*Store) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{stores: stores, retention: retention, interval: interval, now: time.Now}
}

// Enabled reports whether a retention period is configured.
func (s *Sweeper) Enabled() bool { return s.retention > 0 }

// SweepOnce runs a single pass over every store and returns the number of
// removed artifacts.
func (s *Sweeper) SweepOnce() int {
	if !s.Enabled() {
		return 0
	}
	cutoff := s.now().Add(-s.retention)
	total := 0
	for _, st := range s.stores {
		n, err := st.Sweep(cutoff)
		if err != nil {
			logging.Warn("Artifact sweep incomplete", "dir", st.Dir(), "error", err)
		}
		total += n
	}
	if total > 0 {
		logging.Info("Expired artifacts removed", "count", total)
	}
	return total
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.SweepOnce()
		case <-ctx.Done():
			return
		}
	}
}
