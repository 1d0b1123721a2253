package cache

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner is implemented by caches that can drop expired items.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically evicts expired items from registered caches until its
// context is cancelled.
type Janitor struct {
	interval time.Duration
	caches   []Cleaner
	log      *slog.Logger
}

func NewJanitor(interval time.Duration, logger *slog.Logger, caches ...Cleaner) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{interval: interval, caches: caches, log: logger}
}

// Run blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := j.Sweep(); n > 0 {
				j.log.Debug("cache sweep", "evicted", n)
			}
		}
	}
}

// Sweep runs one cleanup pass over all caches.
func (j *Janitor) Sweep() int {
	total := 0
	for _, c := range j.caches {
		total += c.CleanExpired()
	}
	return total
}
