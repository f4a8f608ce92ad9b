package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"stayrate/internal/app/commands"
	"stayrate/internal/app/dto"
	"stayrate/internal/app/handlers/ratings"
	"stayrate/internal/app/policies"
	"stayrate/internal/infra/obs"
)

var ErrSweeperNotConfigured = errors.New("reconcile: sweeper missing dependencies")

// Sweeper drains the dirty-entity queue on a cron schedule, dispatching a
// verify-and-repair pass for each flagged entity. Entities are only cleared by
// a successful pass, so a failed repair is retried on the next run.
type Sweeper struct {
	Bus      commands.Bus
	Dirty    policies.DirtyQueue
	Logger   *slog.Logger
	Schedule string
	Batch    int
	Parallel int

	cron *cron.Cron
}

// Start registers the sweep on the schedule and starts the cron runner.
func (s *Sweeper) Start() error {
	if s.Bus == nil || s.Dirty == nil {
		return ErrSweeperNotConfigured
	}
	s.cron = cron.New()
	schedule := s.Schedule
	if schedule == "" {
		schedule = "@every 5m"
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.Sweep(ctx); err != nil && s.Logger != nil {
			s.Logger.Error("reconciliation sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep runs one pass over the dirty queue with bounded parallelism. Per-entity
// failures are logged and counted but do not abort the rest of the batch.
func (s *Sweeper) Sweep(ctx context.Context) error {
	batch := s.Batch
	if batch <= 0 {
		batch = 100
	}
	entities, err := s.Dirty.ListDirty(ctx, batch)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	parallel := s.Parallel
	if parallel <= 0 {
		parallel = 4
	}
	g.SetLimit(parallel)
	for _, entity := range entities {
		g.Go(func() error {
			cmd := ratings.VerifyAndRepairCommand{
				TargetKind: string(entity.Kind),
				TargetID:   entity.ID,
				Now:        time.Now().UTC(),
			}
			report, err := commands.Dispatch[ratings.VerifyAndRepairCommand, dto.RepairReport](ctx, s.Bus, cmd)
			if err != nil {
				obs.ObserveReconcile("failed")
				if s.Logger != nil {
					s.Logger.Warn("entity repair failed", "entity", entity.Key(), "error", err)
				}
				return nil
			}
			if report.Repaired {
				obs.ObserveReconcile("repaired")
			} else {
				obs.ObserveReconcile("clean")
			}
			return nil
		})
	}
	return g.Wait()
}
