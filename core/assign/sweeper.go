package assign

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fieldserv/matchd/core/logger"
)

// Sweeper wraps robfig/cron and periodically re-checks escalation and
// auto-cancel deadlines across all open requests. Request workers handle
// their own timers; the sweeper covers requests whose workers are gone,
// which makes the deadlines durable across process restarts.
type Sweeper struct {
	cron *cron.Cron
	esc  *EscalationController
	log  logger.Logger
	spec string
}

// NewSweeper creates a Sweeper firing at the given interval.
func NewSweeper(esc *EscalationController, interval time.Duration, log logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		cron: cron.New(),
		esc:  esc,
		log:  log,
		spec: fmt.Sprintf("@every %s", interval),
	}
}

// Start registers the sweep job and starts the scheduler. One sweep runs
// immediately so overdue deadlines fire without waiting for the first tick.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.esc.Sweep(ctx); err != nil {
			s.log.Errorf("deadline sweep: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.log.Infof("deadline sweeper started (%s)", s.spec)
	go func() {
		if err := s.esc.Sweep(ctx); err != nil {
			s.log.Errorf("deadline sweep: %v", err)
		}
	}()
	return nil
}

// Stop shuts the scheduler down.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}
