package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedules holds the cron expressions of each job.
type Schedules struct {
	Export       string
	DividendScan string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	logger    *zap.Logger
	schedules Schedules
}

func NewScheduler(jobs *Jobs, logger *zap.Logger, schedules Schedules) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:      c,
		jobs:      jobs,
		logger:    logger,
		schedules: schedules,
	}
}

// Start registers the jobs and starts the cron scheduler. A job whose
// schedule fails to parse is skipped and reported.
func (s *Scheduler) Start() error {
	var firstErr error
	register := func(name, spec string, job func()) {
		if spec == "" {
			return
		}
		if _, err := s.cron.AddFunc(spec, job); err != nil {
			s.logger.Error("failed to schedule job", zap.String("job", name), zap.String("schedule", spec), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		s.logger.Info("scheduled job", zap.String("job", name), zap.String("schedule", spec))
	}

	register("ledger_export", s.schedules.Export, s.jobs.ExportLedger)
	register("dividend_scan", s.schedules.DividendScan, s.jobs.ScanDividends)

	s.cron.Start()
	return firstErr
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
