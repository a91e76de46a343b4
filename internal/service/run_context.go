package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/apisync/internal/metrics"
	"github.com/xxxsen/apisync/internal/model"
)

const (
	outcomeNew     = "new"
	outcomeUpdated = "updated"
	outcomeSkipped = "skipped"
	outcomeDeleted = "deleted"
	outcomeError   = "error"
)

type runStateSaver interface {
	Save(ctx context.Context, jobID string, state model.RunState) error
}

// runContext carries the progress of one run and mirrors it into the state
// store whenever it is flushed.
type runContext struct {
	job      *model.Job
	store    runStateSaver
	counters model.RunCounters
	status   string
	message  string
	errors   []model.ItemError
}

func newRunContext(job *model.Job, store runStateSaver) *runContext {
	return &runContext{job: job, store: store, status: model.RunStatusOK}
}

func (rc *runContext) snapshot() model.RunState {
	return model.RunState{
		RunCounters: rc.counters,
		Status:      rc.status,
		Message:     rc.message,
	}
}

// flush persists the current progress. It runs detached from cancellation so
// an interrupted run still records how far it got.
func (rc *runContext) flush(ctx context.Context) {
	if err := rc.store.Save(context.WithoutCancel(ctx), rc.job.ID, rc.snapshot()); err != nil {
		logutil.GetLogger(ctx).Error("save run state failed",
			zap.String("job", rc.job.ID),
			zap.Error(err),
		)
	}
}

func (rc *runContext) outcome(outcome string) {
	metrics.SyncItems.WithLabelValues(rc.job.ID, outcome).Inc()
}

func (rc *runContext) itemError(ctx context.Context, itemErr model.ItemError) {
	itemErr.JobID = rc.job.ID
	rc.counters.Error++
	rc.errors = append(rc.errors, itemErr)
	rc.message = itemErr.Error()
	rc.outcome(outcomeError)
	logutil.GetLogger(ctx).Warn("sync item failed",
		zap.String("job", rc.job.ID),
		zap.String("kind", string(itemErr.Kind)),
		zap.String("sync_key", itemErr.SyncKey),
		zap.String("item_id", itemErr.ItemID),
		zap.String("message", itemErr.Message),
	)
}

func (rc *runContext) fail(message string) {
	rc.status = model.RunStatusError
	rc.message = message
}

// finish settles the final status and message of a run that got through its
// item loop.
func (rc *runContext) finish(cancelled bool) {
	c := rc.counters
	switch {
	case cancelled:
		rc.status = model.RunStatusError
		rc.message = fmt.Sprintf("Cancelled after %d of %d items", c.New+c.Updated+c.Skipped+c.Error, c.Count)
	case c.Error > 0:
		rc.status = model.RunStatusError
		rc.message = fmt.Sprintf("Finished with %d errors, last: %s", c.Error, rc.message)
	default:
		rc.status = model.RunStatusOK
		rc.message = fmt.Sprintf("Synced %d items: %d new, %d updated, %d skipped, %d deleted",
			c.Count, c.New, c.Updated, c.Skipped, c.Deleted)
	}
}

func (rc *runContext) report(cancelled bool, startedAt, endedAt int64) *model.RunReport {
	return &model.RunReport{
		JobID:     rc.job.ID,
		Counters:  rc.counters,
		Status:    rc.status,
		Message:   rc.message,
		Errors:    rc.errors,
		Cancelled: cancelled,
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}
}
