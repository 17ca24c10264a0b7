package payment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/darasa/core"
)

// Scheduler periodically sweeps pending orders.
type Scheduler struct {
	cron    *cron.Cron
	svc     *Service
	logger  core.Logger
	timeout time.Duration
}

// NewScheduler registers the sweep under a cron spec such as "@every 5m" or "*/10 * * * *".
// A sweep still running when the next one is due is skipped.
func NewScheduler(svc *Service, spec string, logger core.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		svc:     svc,
		logger:  logger,
		timeout: 2 * time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, errors.Wrapf(err, "scheduling sweep %q", spec)
	}
	return s, nil
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.svc.SweepPending(ctx)
	if err != nil {
		s.logger.Error("sweeping pending orders", err)
		return
	}
	if res.Checked > 0 {
		s.logger.Info("swept pending orders", map[string]interface{}{
			"checked": res.Checked, "paid": res.Paid, "errors": res.Errors,
		})
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for a running sweep until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
