// Package jobs runs periodic maintenance on a seconds-precision cron.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tiergate.dev/internal/obs"
)

// Purger drops expired entries from a local ledger.
type Purger interface {
	Purge(now time.Time) int
}

// PendingCounter reports how many tier requests wait for review.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	log     zerolog.Logger
	now     func() time.Time
	purger  Purger
	pending PendingCounter
}

func NewScheduler(purger Purger, pending PendingCounter, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		log:     log,
		now:     time.Now,
		purger:  purger,
		pending: pending,
	}
}

// Start registers the jobs whose collaborators are present. An empty spec
// disables that job.
func (s *Scheduler) Start(purgeSpec, pendingSpec string) error {
	if s.purger != nil && purgeSpec != "" {
		if _, err := s.cron.AddFunc(purgeSpec, s.PurgeSpent); err != nil {
			return err
		}
	}
	if s.pending != nil && pendingSpec != "" {
		if _, err := s.cron.AddFunc(pendingSpec, s.RefreshPendingGauge); err != nil {
			return err
		}
	}
	s.cron.Start()
	return nil
}

// Stop waits up to five seconds for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) PurgeSpent() {
	n := s.purger.Purge(s.now())
	if n > 0 {
		s.log.Debug().Int("purged", n).Msg("spent token ledger purged")
	}
}

func (s *Scheduler) RefreshPendingGauge() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := s.pending.PendingCount(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("count pending tier requests failed")
		return
	}
	obs.SetPendingTierRequests(n)
}
