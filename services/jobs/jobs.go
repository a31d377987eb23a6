package jobs

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/eminingcampus/campus/core"
)

type StaleOrderExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// Scheduler runs the periodic background jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger core.Logger
}

func NewScheduler(logger core.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		logger: logger,
	}
}

// ScheduleStaleOrderExpiry fails, on every `spec` tick, the orders stuck in processing
// for longer than olderThan.
func (s *Scheduler) ScheduleStaleOrderExpiry(spec string, orders StaleOrderExpirer, olderThan time.Duration) error {
	_, err := s.cron.AddFunc(spec, ExpireStaleOrders(orders, olderThan, s.logger))
	return errors.Wrapf(err, "scheduling stale order expiry (%s)", spec)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for the running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("jobs still running at shutdown")
	}
}

// ExpireStaleOrders returns the stale order expiry job.
func ExpireStaleOrders(orders StaleOrderExpirer, olderThan time.Duration, logger core.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		numbers, err := orders.ExpireStale(ctx, olderThan)
		if err != nil {
			logger.Error("expiring stale orders", err)
			return
		}
		if len(numbers) > 0 {
			logger.Info("expired stale orders", map[string]interface{}{"orders": numbers})
		}
	}
}
