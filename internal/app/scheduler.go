/**
 * @description
 * Cron scheduler for the ledger's background jobs.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const auditTimeout = 2 * time.Minute

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron          *cron.Cron
	service       *Service
	logger        *slog.Logger
	auditSchedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(service *Service, logger *slog.Logger, auditSchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:          c,
		service:       service,
		logger:        logger,
		auditSchedule: auditSchedule,
	}
}

// Start registers the jobs and starts the cron scheduler. An empty schedule
// disables the audit job.
func (s *Scheduler) Start() error {
	if s.auditSchedule != "" {
		if _, err := s.cron.AddFunc(s.auditSchedule, s.runAudit); err != nil {
			s.logger.Error("failed to schedule ledger audit job", "error", err)
			return err
		}
		s.logger.Info("scheduled ledger audit job", "schedule", s.auditSchedule)
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) runAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	drift, err := s.service.AuditBalances(ctx)
	if err != nil {
		s.logger.Error("ledger audit failed", "error", err)
		return
	}
	s.logger.Info("ledger audit finished", "drifted_accounts", len(drift))
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
