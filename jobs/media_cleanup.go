package jobs

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/robfig/cron/v3"

	"civicspot/metrics"
	"civicspot/services"
)

const (
	DefaultCleanupSchedule = "@every 15m"
	DefaultMaxAttempts     = 5
	cleanupBatch           = 100
	cleanupTimeout         = 2 * time.Minute
)

// MediaCleanup retries deletion of images that could not be removed when
// their report was deleted.
type MediaCleanup struct {
	orphans     services.OrphanRepository
	media       services.MediaStore
	maxAttempts int
}

func NewMediaCleanup(orphans services.OrphanRepository, media services.MediaStore, maxAttempts int) *MediaCleanup {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &MediaCleanup{orphans: orphans, media: media, maxAttempts: maxAttempts}
}

// Run makes one pass over the due orphans and returns how many were
// removed.
func (m *MediaCleanup) Run(ctx context.Context) (int, error) {
	due, err := m.orphans.Due(ctx, m.maxAttempts, cleanupBatch)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, o := range due {
		if err := m.media.Delete(ctx, o.MediaID); err != nil {
			metrics.MediaCleanupTotal.WithLabelValues("failed").Inc()
			if o.Attempts+1 >= m.maxAttempts {
				log.WithError(err).WithField("media_id", o.MediaID).Error("giving up on orphaned media")
			}
			if merr := m.orphans.MarkAttempt(ctx, o.ID, err.Error()); merr != nil {
				log.WithError(merr).WithField("media_id", o.MediaID).Warn("could not update media orphan")
			}
			continue
		}
		if err := m.orphans.Remove(ctx, o.ID); err != nil {
			log.WithError(err).WithField("media_id", o.MediaID).Warn("media deleted but orphan record kept")
			continue
		}
		metrics.MediaCleanupTotal.WithLabelValues("deleted").Inc()
		removed++
	}
	return removed, nil
}

// Schedule registers the cleanup pass on a new cron scheduler. The caller
// starts and stops it.
func (m *MediaCleanup) Schedule(schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		n, err := m.Run(ctx)
		if err != nil {
			log.WithError(err).Warn("media cleanup failed")
			return
		}
		if n > 0 {
			log.Infof("media cleanup removed %d orphaned objects", n)
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
