package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/apisync/internal/mapping"
	"github.com/xxxsen/apisync/internal/metrics"
	"github.com/xxxsen/apisync/internal/model"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
	"github.com/xxxsen/apisync/internal/project"
	"github.com/xxxsen/apisync/internal/reconcile"
)

type ListFetcher interface {
	FetchList(ctx context.Context, rawURL string) ([]map[string]interface{}, error)
}

type RecordStore interface {
	Find(ctx context.Context, q model.RecordQuery) ([]model.Record, error)
	Create(ctx context.Context, rec *model.Record) error
	Update(ctx context.Context, rec *model.Record) error
	Delete(ctx context.Context, id string) error
}

type BundleStore interface {
	Get(ctx context.Context, name string) (*model.Bundle, error)
}

// SyncRunner executes one job end to end: fetch, reconcile against local
// records, delete stale ones, then create or update every remote item.
type SyncRunner struct {
	fetcher   ListFetcher
	records   RecordStore
	bundles   BundleStore
	refs      project.RefResolver
	projector *project.Projector
	state     runStateSaver
	now       func() time.Time
}

func NewSyncRunner(fetcher ListFetcher, records RecordStore, bundles BundleStore, refs project.RefResolver, projector *project.Projector, state runStateSaver) *SyncRunner {
	return &SyncRunner{
		fetcher:   fetcher,
		records:   records,
		bundles:   bundles,
		refs:      refs,
		projector: projector,
		state:     state,
		now:       time.Now,
	}
}

// run-scoped inputs shared by every step.
type runScope struct {
	job   *model.Job
	kind  project.RecordKind
	label string
	set   mapping.Set
	// records written so far in this run, by sync key
	written map[string]*model.Record
}

// Run returns a report even when it fails. The error is non-nil only when the
// run aborted before processing items or was cancelled.
func (r *SyncRunner) Run(ctx context.Context, job *model.Job) (*model.RunReport, error) {
	startedAt := r.now()
	logger := logutil.GetLogger(ctx).With(zap.String("job", job.ID))
	rc := newRunContext(job, r.state)
	rc.message = "Fetching " + job.URL
	rc.flush(ctx)

	report, err := r.run(ctx, rc, job)
	endedAt := r.now()
	if report == nil {
		report = rc.report(false, startedAt.Unix(), endedAt.Unix())
	}
	report.StartedAt = startedAt.Unix()
	report.EndedAt = endedAt.Unix()

	metrics.SyncRuns.WithLabelValues(job.ID, report.Status).Inc()
	metrics.SyncRunDuration.WithLabelValues(job.ID).Observe(endedAt.Sub(startedAt).Seconds())
	if err != nil {
		logger.Error("sync run aborted", zap.Error(err), zap.Bool("cancelled", report.Cancelled))
		return report, err
	}
	logger.Info("sync run finished",
		zap.String("status", report.Status),
		zap.Int("count", report.Counters.Count),
		zap.Int("new", report.Counters.New),
		zap.Int("updated", report.Counters.Updated),
		zap.Int("skipped", report.Counters.Skipped),
		zap.Int("deleted", report.Counters.Deleted),
		zap.Int("error", report.Counters.Error),
	)
	return report, nil
}

func (r *SyncRunner) run(ctx context.Context, rc *runContext, job *model.Job) (*model.RunReport, error) {
	items, err := r.fetcher.FetchList(ctx, job.URL)
	if err != nil {
		return nil, r.abort(ctx, rc, fmt.Errorf("fetch %s: %w", job.URL, err))
	}
	rc.counters.Count = len(items)

	bundle, err := r.bundles.Get(ctx, job.Bundle)
	if err != nil {
		if appErr.IsNotFound(err) {
			err = appErr.ErrUnknownBundle
		}
		return nil, r.abort(ctx, rc, fmt.Errorf("bundle %s: %w", job.Bundle, err))
	}
	kind, err := project.KindFor(bundle.Kind, r.refs)
	if err != nil {
		return nil, r.abort(ctx, rc, err)
	}
	local, err := r.records.Find(ctx, kind.IndexQuery(job))
	if err != nil {
		return nil, r.abort(ctx, rc, fmt.Errorf("index local records: %w", err))
	}

	set := mapping.FromJob(job)
	for _, lineErr := range set.LineErrors() {
		logutil.GetLogger(ctx).Warn("skip malformed mapping line",
			zap.String("job", job.ID),
			zap.Error(lineErr),
		)
	}

	plan := reconcile.Build(job.Bundle, job.UniqueIDField, local, items)
	r.deleteStale(ctx, rc, append(plan.Stale, plan.Duplicates...))
	rc.flush(ctx)

	scope := &runScope{
		job:     job,
		kind:    kind,
		label:   bundle.Label(),
		set:     set,
		written: make(map[string]*model.Record, len(plan.Steps)),
	}

	cancelled := false
	for _, step := range plan.Steps {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		r.processStep(ctx, rc, scope, step)
		rc.flush(ctx)
	}

	rc.finish(cancelled)
	rc.flush(ctx)
	report := rc.report(cancelled, 0, 0)
	if cancelled {
		return report, fmt.Errorf("sync %s cancelled: %w", job.ID, ctx.Err())
	}
	return report, nil
}

func (r *SyncRunner) abort(ctx context.Context, rc *runContext, err error) error {
	rc.fail(err.Error())
	rc.flush(ctx)
	return err
}

func (r *SyncRunner) deleteStale(ctx context.Context, rc *runContext, stale []model.Record) {
	for _, rec := range stale {
		if err := r.records.Delete(ctx, rec.ID); err != nil {
			if appErr.IsNotFound(err) {
				continue
			}
			rc.itemError(ctx, model.ItemError{
				Kind:    model.ItemErrorDelete,
				ItemID:  rec.ID,
				SyncKey: rec.SyncKey,
				Message: err.Error(),
			})
			continue
		}
		rc.counters.Deleted++
		rc.outcome(outcomeDeleted)
	}
}

func (r *SyncRunner) processStep(ctx context.Context, rc *runContext, scope *runScope, step reconcile.Step) {
	switch step.Action {
	case reconcile.ActionInvalid:
		rc.itemError(ctx, model.ItemError{
			Kind:    model.ItemErrorMissingID,
			Message: fmt.Sprintf("item %d has no value for %s", step.Index, scope.job.UniqueIDField),
		})
	case reconcile.ActionCreate:
		r.createRecord(ctx, rc, scope, step)
	case reconcile.ActionUpdate:
		r.updateRecord(ctx, rc, scope, step, step.Existing)
	case reconcile.ActionRepeat:
		// a repeated key targets whatever its earlier occurrence left behind
		existing := scope.written[step.Key]
		if existing == nil {
			existing = step.Existing
		}
		if existing == nil {
			r.createRecord(ctx, rc, scope, step)
			return
		}
		r.updateRecord(ctx, rc, scope, step, existing)
	}
}

func (r *SyncRunner) createRecord(ctx context.Context, rc *runContext, scope *runScope, step reconcile.Step) {
	rc.counters.New++
	rec := scope.kind.New(scope.job, uuid.NewString(), step.Key)
	b := project.NewBuilder(rec, true, scope.label)
	if err := r.build(ctx, scope, step, b); err != nil {
		rc.counters.New--
		rc.itemError(ctx, mappingError(step, err))
		return
	}
	out := b.Record(r.now())
	if err := r.records.Create(ctx, out); err != nil {
		rc.counters.New--
		rc.itemError(ctx, saveError(step, err))
		return
	}
	scope.written[step.Key] = out
	rc.message = "Created " + b.Label()
	rc.outcome(outcomeNew)
}

func (r *SyncRunner) updateRecord(ctx context.Context, rc *runContext, scope *runScope, step reconcile.Step, existing *model.Record) {
	if !r.needsUpdate(ctx, scope.job, step.Item, existing) {
		rc.counters.Skipped++
		rc.outcome(outcomeSkipped)
		return
	}
	rc.counters.Updated++
	b := project.NewBuilder(existing, false, scope.label)
	if err := r.build(ctx, scope, step, b); err != nil {
		rc.counters.Updated--
		rc.itemError(ctx, mappingError(step, err))
		return
	}
	out := b.Record(r.now())
	if err := r.records.Update(ctx, out); err != nil {
		rc.counters.Updated--
		rc.itemError(ctx, saveError(step, err))
		return
	}
	scope.written[step.Key] = out
	rc.message = "Updated " + b.Label()
	rc.outcome(outcomeUpdated)
}

func (r *SyncRunner) build(ctx context.Context, scope *runScope, step reconcile.Step, b *project.Builder) error {
	if err := r.projector.Project(ctx, scope.job, scope.set, step.Item, b); err != nil {
		return err
	}
	return scope.kind.Finalize(ctx, b, scope.job, step.Item)
}

// needsUpdate compares the remote updated stamp with the local changed time.
// Without a usable remote stamp the record is always rewritten.
func (r *SyncRunner) needsUpdate(ctx context.Context, job *model.Job, item map[string]interface{}, existing *model.Record) bool {
	if job.UpdatedField == "" {
		return true
	}
	v := mapping.Resolve(item, job.UpdatedField)
	if v.Kind != mapping.Scalar || v.Scalar == nil {
		return true
	}
	ts, err := project.ParseTimestamp(v.Scalar)
	if err != nil {
		logutil.GetLogger(ctx).Debug("unparseable updated value, forcing update",
			zap.String("job", job.ID),
			zap.String("sync_key", existing.SyncKey),
			zap.Error(err),
		)
		return true
	}
	return ts > existing.Changed
}

func mappingError(step reconcile.Step, err error) model.ItemError {
	return model.ItemError{
		Kind:    model.ItemErrorMapping,
		ItemID:  step.ID,
		SyncKey: step.Key,
		Message: err.Error(),
	}
}

func saveError(step reconcile.Step, err error) model.ItemError {
	return model.ItemError{
		Kind:    model.ItemErrorSave,
		ItemID:  step.ID,
		SyncKey: step.Key,
		Message: err.Error(),
	}
}
