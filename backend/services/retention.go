package services

import (
	"context"
	"fmt"
	"time"

	"traffic-monitor/backend/system"

	"github.com/robfig/cron/v3"
)

// PacketPurger deletes packets older than a cutoff.
type PacketPurger interface {
	PurgePacketsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob periodically deletes packets older than MaxAge.
type RetentionJob struct {
	store  PacketPurger
	maxAge time.Duration
	cron   *cron.Cron
	now    func() time.Time
}

// NewRetentionJob schedules the purge on a cron spec such as "@hourly" or
// "0 3 * * *".
func NewRetentionJob(store PacketPurger, schedule string, maxAge time.Duration) (*RetentionJob, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", maxAge)
	}

	j := &RetentionJob{
		store:  store,
		maxAge: maxAge,
		cron:   cron.New(),
		now:    time.Now,
	}
	if _, err := j.cron.AddFunc(schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start starts the scheduler
func (j *RetentionJob) Start() {
	j.cron.Start()
	system.Info("Packet retention enabled: keeping %s", j.maxAge)
}

// Stop stops the scheduler and waits for a running purge.
func (j *RetentionJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	system.Info("Packet retention stopped")
}

// RunOnce purges once and returns the number of deleted packets.
func (j *RetentionJob) RunOnce(ctx context.Context) int64 {
	cutoff := j.now().Add(-j.maxAge)
	n, err := j.store.PurgePacketsBefore(ctx, cutoff)
	if err != nil {
		system.Error("Packet retention failed: %v", err)
		return 0
	}
	if n > 0 {
		system.Info("Packet retention removed %d packets older than %s", n, cutoff.UTC().Format(time.RFC3339))
	}
	return n
}
