package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const maintenanceTimeout = 30 * time.Second

// AuditPruner deletes audit rows older than a cutoff.
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Evictor drops idle in-process state, such as rate limiter buckets.
type Evictor interface {
	Evict() int
}

type MaintenanceJob struct {
	auditRepo AuditPruner
	retention time.Duration
	limiter   Evictor
	interval  time.Duration
	done      chan struct{}
}

// NewMaintenanceJob accepts nil for either dependency; the matching task is
// then skipped.
func NewMaintenanceJob(auditRepo AuditPruner, retention time.Duration, limiter Evictor, interval time.Duration) *MaintenanceJob {
	return &MaintenanceJob{
		auditRepo: auditRepo,
		retention: retention,
		limiter:   limiter,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *MaintenanceJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("maintenance job started")
}

func (j *MaintenanceJob) Stop() {
	close(j.done)
	log.Info().Msg("maintenance job stopped")
}

func (j *MaintenanceJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runOnce()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.runOnce()
		}
	}
}

func (j *MaintenanceJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	if j.auditRepo != nil && j.retention > 0 {
		cutoff := time.Now().Add(-j.retention)
		count, err := j.auditRepo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			log.Error().Err(err).Msg("failed to prune audit events")
		} else if count > 0 {
			log.Info().Int64("count", count).Time("cutoff", cutoff).Msg("pruned audit events")
		}
	}

	if j.limiter != nil {
		if evicted := j.limiter.Evict(); evicted > 0 {
			log.Debug().Int("count", evicted).Msg("evicted idle rate limit entries")
		}
	}
}
