package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/apisync/internal/model"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
)

type JobRunner interface {
	Run(ctx context.Context, job *model.Job) (*model.RunReport, error)
}

type JobSource interface {
	List(ctx context.Context) ([]model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
}

type LastRunStore interface {
	LastRun(ctx context.Context, jobID string) (int64, error)
	SetLastRun(ctx context.Context, jobID string, ts int64) error
}

// SyncGate decides which jobs run on a scheduler tick and runs them one after
// another in weight order. Ticks and triggers share one worker slot, so a
// triggered job never overlaps a scheduled one.
type SyncGate struct {
	mu      sync.Mutex
	jobs    JobSource
	lastRun LastRunStore
	runner  JobRunner
	now     func() time.Time
}

func NewSyncGate(jobs JobSource, lastRun LastRunStore, runner JobRunner) *SyncGate {
	return &SyncGate{jobs: jobs, lastRun: lastRun, runner: runner, now: time.Now}
}

// Tick evaluates every scheduled job once. A failing job never stops the
// ones after it; all failures are returned together.
func (g *SyncGate) Tick(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	jobs, err := g.jobs.List(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	scheduled := make([]model.Job, 0, len(jobs))
	for _, job := range jobs {
		if job.Interval.IsExternalOnly() {
			continue
		}
		scheduled = append(scheduled, job)
	}
	sort.SliceStable(scheduled, func(i, j int) bool {
		return scheduled[i].Weight < scheduled[j].Weight
	})

	var errs []error
	for i := range scheduled {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := g.runIfDue(ctx, &scheduled[i]); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", scheduled[i].ID, err))
		}
	}
	return errors.Join(errs...)
}

func (g *SyncGate) runIfDue(ctx context.Context, job *model.Job) error {
	logger := logutil.GetLogger(ctx).With(zap.String("job", job.ID))
	if !job.Active {
		logger.Debug("skip inactive job")
		return nil
	}
	last, err := g.lastRun.LastRun(ctx, job.ID)
	if err != nil {
		return err
	}
	now := g.now().Unix()
	// the stamp moves on every check, so the interval counts from the last
	// evaluation rather than the last actual run
	if err := g.lastRun.SetLastRun(ctx, job.ID, now); err != nil {
		return err
	}
	if now-last < int64(job.Interval)*60 {
		logger.Debug("job interval not elapsed", zap.Int64("last_run", last))
		return nil
	}
	_, err = g.runner.Run(ctx, job)
	return err
}

// Trigger runs one job immediately, ignoring its interval. Inactive jobs are
// refused.
func (g *SyncGate) Trigger(ctx context.Context, jobID string) (*model.RunReport, error) {
	job, err := g.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Active {
		return nil, fmt.Errorf("job %s: %w", jobID, appErr.ErrJobInactive)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.lastRun.SetLastRun(ctx, job.ID, g.now().Unix()); err != nil {
		logutil.GetLogger(ctx).Warn("record trigger time failed", zap.String("job", job.ID), zap.Error(err))
	}
	return g.runner.Run(ctx, job)
}
