package core

// scheduler.go reclassifies the reservation set when the day changes.
//
// Cancelled and changed buckets only hold bookings checking in today or
// later, so a set loaded yesterday goes stale at midnight. The scheduler runs
// Reclassify on a cron spec evaluated in the service's zone.

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// DefaultReclassifySpec runs at local midnight.
const DefaultReclassifySpec = "0 0 * * *"

// StartReclassifyScheduler runs Reclassify on spec until ctx is cancelled.
// It returns once the schedule is installed; an invalid spec is an error.
func (s *Service) StartReclassifyScheduler(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultReclassifySpec
	}

	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec, s.runReclassifyJob); err != nil {
		return fmt.Errorf("reclassify schedule %q: %w", spec, err)
	}

	c.Start()
	s.log.Info("reclassify scheduler started", "spec", spec, "zone", s.loc.String())

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		s.log.Info("reclassify scheduler stopped")
	}()
	return nil
}

func (s *Service) runReclassifyJob() {
	if !s.Reclassify() {
		s.log.Debug("reclassify skipped")
	}
}
