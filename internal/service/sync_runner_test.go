package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/apisync/internal/config"
	"github.com/xxxsen/apisync/internal/fetch"
	"github.com/xxxsen/apisync/internal/model"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
	"github.com/xxxsen/apisync/internal/project"
	"github.com/xxxsen/apisync/internal/repo"
	"github.com/xxxsen/apisync/internal/testutil"
)

type staticFetcher struct {
	items []map[string]interface{}
	err   error
	calls int
}

func (f *staticFetcher) FetchList(ctx context.Context, rawURL string) ([]map[string]interface{}, error) {
	f.calls++
	return f.items, f.err
}

type failingRecords struct {
	RecordStore
	failCreate string
}

func (f *failingRecords) Create(ctx context.Context, rec *model.Record) error {
	if rec.SyncKey == f.failCreate {
		return errors.New("disk full")
	}
	return f.RecordStore.Create(ctx, rec)
}

type cancellingRecords struct {
	RecordStore
	cancel context.CancelFunc
}

func (c *cancellingRecords) Create(ctx context.Context, rec *model.Record) error {
	defer c.cancel()
	return c.RecordStore.Create(ctx, rec)
}

type runnerFixture struct {
	records *repo.RecordRepo
	bundles *repo.BundleRepo
	state   *RunStateStore
	fetcher *staticFetcher
	runner  *SyncRunner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.OpenTestDB(t)
	f := &runnerFixture{
		records: repo.NewRecordRepo(db),
		bundles: repo.NewBundleRepo(db),
		state:   NewRunStateStore(repo.NewStateRepo(db)),
		fetcher: &staticFetcher{},
	}
	require.NoError(t, f.bundles.Upsert(ctx, &model.Bundle{
		Name: "bundle",
		Kind: model.KindContent,
		Fields: []model.BundleField{
			{Name: "field_color", AllowedValues: map[string]string{"red": "Red", "blue": "Blue"}},
		},
	}))
	require.NoError(t, f.bundles.Upsert(ctx, &model.Bundle{Name: "tags", Kind: model.KindTerm}))
	f.runner = f.newRunner(f.records)
	return f
}

func (f *runnerFixture) newRunner(records RecordStore) *SyncRunner {
	refs := NewRefResolver(f.bundles, f.records)
	projector := project.NewProjector(refs, nil, f.bundles, "")
	return NewSyncRunner(f.fetcher, records, f.bundles, refs, projector, f.state)
}

func (f *runnerFixture) seed(t *testing.T, id, key string, changed int64) {
	t.Helper()
	require.NoError(t, f.records.Create(context.Background(), &model.Record{
		ID:         id,
		Kind:       model.KindContent,
		Bundle:     "bundle",
		Langcode:   "en",
		SyncField:  "field_sync_id",
		SyncKey:    key,
		Attributes: map[string]interface{}{"title": "old"},
		Created:    changed,
		Changed:    changed,
	}))
}

func (f *runnerFixture) all(t *testing.T) []model.Record {
	t.Helper()
	recs, err := f.records.Find(context.Background(), model.RecordQuery{Bundle: "bundle"})
	require.NoError(t, err)
	return recs
}

func baseJob() *model.Job {
	return &model.Job{
		ID:            "acme",
		Label:         "Acme",
		URL:           "http://remote.test/items",
		UserID:        "7",
		Bundle:        "bundle",
		Langcode:      "en",
		SyncField:     "field_sync_id",
		UniqueIDField: "id",
		TextMap:       "name|title",
		Active:        true,
	}
}

func TestRunCreatesRecord(t *testing.T) {
	f := newRunnerFixture(t)
	f.fetcher.items = []map[string]interface{}{{"id": "1", "name": "Acme"}}

	report, err := f.runner.Run(context.Background(), baseJob())
	require.NoError(t, err)
	require.Equal(t, model.RunCounters{New: 1, Count: 1}, report.Counters)
	require.Equal(t, model.RunStatusOK, report.Status)

	recs := f.all(t)
	require.Len(t, recs, 1)
	require.Equal(t, "bundle_sync_1", recs[0].SyncKey)
	require.Equal(t, "field_sync_id", recs[0].SyncField)
	require.Equal(t, "Acme", recs[0].Attributes["title"])
	require.Equal(t, "7", recs[0].OwnerID)
	require.True(t, recs[0].Published)
	require.NotZero(t, recs[0].Created)

	state, err := f.state.Load(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, 1, state.New)
	require.Equal(t, 1, state.Count)
	require.Equal(t, model.RunStatusOK, state.Status)
}

func TestRunUpdatesWithoutUpdatedField(t *testing.T) {
	f := newRunnerFixture(t)
	f.seed(t, "r1", "bundle_sync_1", 100)
	f.fetcher.items = []map[string]interface{}{{"id": "1", "name": "Acme"}}

	report, err := f.runner.Run(context.Background(), baseJob())
	require.NoError(t, err)
	require.Equal(t, model.RunCounters{Updated: 1, Count: 1}, report.Counters)

	recs := f.all(t)
	require.Len(t, recs, 1)
	require.Equal(t, "r1", recs[0].ID)
	require.Equal(t, "Acme", recs[0].Attributes["title"])
	require.Equal(t, int64(100), recs[0].Created)
	require.Greater(t, recs[0].Changed, int64(100))

	// never skips without a timestamp to compare
	report, err = f.runner.Run(context.Background(), baseJob())
	require.NoError(t, err)
	require.Equal(t, model.RunCounters{Updated: 1, Count: 1}, report.Counters)
}

func TestRunDeletesStaleRecords(t *testing.T) {
	f := newRunnerFixture(t)
	f.seed(t, "r1", "bundle_sync_1", 100)
	f.seed(t, "r2", "bundle_sync_2", 100)
	f.fetcher.items = []map[string]interface{}{{"id": "1", "name": "Acme"}}

	report, err := f.runner.Run(context.Background(), baseJob())
	require.NoError(t, err)
	require.Equal(t, 1, report.Counters.Deleted)
	require.Equal(t, 1, report.Counters.Updated)

	recs := f.all(t)
	require.Len(t, recs, 1)
	require.Equal(t, "bundle_sync_1", recs[0].SyncKey)
}

func TestRunDeletesDuplicateLocalRecords(t *testing.T) {
	f := newRunnerFixture(t)
	f.seed(t, "r1", "bundle_sync_1", 100)
	f.seed(t, "r2", "bundle_sync_1", 100)
	f.fetcher.items = []map[string]interface{}{{"id": "1", "name": "Acme"}}

	report, err := f.runner.Run(context.Background(), baseJob())
	require.NoError(t, err)
	require.Equal(t, 1, report.Counters.Deleted)
	require.Len(t, f.all(t), 1)
}

func TestRunIsIdempotentWithUpdatedField(t *testing.T) {
	f := newRunnerFixture(t)
	job := baseJob()
	job.UpdatedField = "modified"
	f.fetcher.items = []map[string]interface{}{
		{"id": "1", "name": "One", "modified": "1600000000"},
		{"id": "2", "name": "Two", "modified": "2020-09-13T12:26:40Z"},
	}

	report, err := f.runner.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, 2, report.Counters.New)

	report, err = f.runner.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, model.RunCounters{Skipped: 2, Count: 2}, report.Counters)
}

func TestRunUpdatesOnlyNewerItems(t *testing.T) {
	f := newRunnerFixture(t)
	f.seed(t, "r1", "bundle_sync_1", 1000)
	f.seed(t, "r2", "bundle_sync_2", 1000)
	f.seed(t, "r3", "bundle_sync_3", 1000)
	job := baseJob()
	job.UpdatedField = "meta.modified"
	f.fetcher.items = []map[string]interface{}{
		{"id": "1", "name": "Same", "meta": map[string]interface{}{"modified": "1000"}},
		{"id": "2", "name": "Newer", "meta": map[string]interface{}{"modified": "1001"}},
		{"id": "3", "name": "NoStamp"},
	}

	report, err := f.runner.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, model.RunCounters{Updated: 2, Skipped: 1, Count: 3}, report.Counters)
}

func TestRunUpdatesItemsWithCompactDates(t *testing.T) {
	f := newRunnerFixture(t)
	seeded := time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local).Unix()
	f.seed(t, "r1", "bundle_sync_1", seeded)
	f.seed(t, "r2", "bundle_sync_2", seeded)
	job := baseJob()
	job.UpdatedField = "modified"
	f.fetcher.items = []map[string]interface{}{
		{"id": "1", "name": "Newer", "modified": "20240115"},
		{"id": "2", "name": "Older", "modified": "20240105"},
	}

	report, err := f.runner.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, model.RunCounters{Updated: 1, Skipped: 1, Count: 2}, report.Counters)

	titles := map[string]interface{}{}
	for _, rec := range f.all(t) {
		titles[rec.ID] = rec.Attributes["title"]
	}
	require.Equal(t, map[string]interface{}{"r1": "Newer", "r2": "old"}, titles)
}

func TestRunItemErrorsDoNotAbort(t *testing.T) {
	f := newRunnerFixture(t)
	job := baseJob()
	job.ListMap = "color|field_color"
	f.fetcher.items = []map[string]interface{}{
		{"name": "no id"},
		{"id": "1", "name": "Bad", "color": "green"},
		{"id": "2", "name": "Good", "color": "red"},
	}

	report, err := f.runner.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, model.RunCounters{New: 1, Error: 2, Count: 3}, report.Counters)
	require.Equal(t, model.RunStatusError, report.Status)
	require.Len(t, report.Errors, 2)
	require.Equal(t, model.ItemErrorMissingID, report.Errors[0].Kind)
	require.Equal(t, model.ItemErrorMapping, report.Errors[1].Kind)
	require.Equal(t, "bundle_sync_1", report.Errors[1].SyncKey)

	recs := f.all(t)
	require.Len(t, recs, 1)
	require.Equal(t, "red", recs[0].Attributes["field_color"])
}

func TestRunSaveFailureRollsBackNew(t *testing.T) {
	f := newRunnerFixture(t)
	runner := f.newRunner(&failingRecords{RecordStore: f.records, failCreate: "bundle_sync_1"})
	f.fetcher.items = []map[string]interface{}{
		{"id": "1", "name": "Broken"},
		{"id": "2", "name": "Fine"},
	}

	report, err := runner.Run(context.Background(), baseJob())
	require.NoError(t, err)
	require.Equal(t, model.RunCounters{New: 1, Error: 1, Count: 2}, report.Counters)
	require.Equal(t, model.ItemErrorSave, report.Errors[0].Kind)
}

func TestRunRepeatedKeyUpdatesJustCreatedRecord(t *testing.T) {
	f := newRunnerFixture(t)
	f.fetcher.items = []map[string]interface{}{
		{"id": "1", "name": "First"},
		{"id": "1", "name": "Second"},
	}

	report, err := f.runner.Run(context.Background(), baseJob())
	require.NoError(t, err)
	require.Equal(t, model.RunCounters{New: 1, Updated: 1, Count: 2}, report.Counters)

	recs := f.all(t)
	require.Len(t, recs, 1)
	require.Equal(t, "Second", recs[0].Attributes["title"])
}

func TestRunRepeatedKeyFallsBackToLocalRecord(t *testing.T) {
	f := newRunnerFixture(t)
	f.seed(t, "r1", "bundle_sync_1", 100)
	job := baseJob()
	job.ListMap = "color|field_color"
	f.fetcher.items = []map[string]interface{}{
		{"id": "1", "name": "Bad", "color": "green"},
		{"id": "1", "name": "Good", "color": "red"},
	}

	report, err := f.runner.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, model.RunCounters{Updated: 1, Error: 1, Count: 2}, report.Counters)

	recs := f.all(t)
	require.Len(t, recs, 1)
	require.Equal(t, "r1", recs[0].ID)
	require.Equal(t, "Good", recs[0].Attributes["title"])
}

func TestRunRepeatedKeyCreatesAfterFailedCreate(t *testing.T) {
	f := newRunnerFixture(t)
	job := baseJob()
	job.ListMap = "color|field_color"
	f.fetcher.items = []map[string]interface{}{
		{"id": "1", "name": "Bad", "color": "green"},
		{"id": "1", "name": "Good", "color": "red"},
	}

	report, err := f.runner.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, model.RunCounters{New: 1, Error: 1, Count: 2}, report.Counters)
	require.Len(t, f.all(t), 1)
}

func TestRunSiblingReferenceResolvesInBatchOrder(t *testing.T) {
	f := newRunnerFixture(t)
	job := baseJob()
	job.ReferenceMap = "related[bundle]|field_related"
	f.fetcher.items = []map[string]interface{}{
		{"id": "1", "name": "Parent"},
		{"id": "2", "name": "Child", "related": "1"},
		{"id": "3", "name": "Early", "related": "4"},
		{"id": "4", "name": "Late"},
	}

	report, err := f.runner.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, 4, report.Counters.New)
	require.Zero(t, report.Counters.Error)

	byKey := map[string]model.Record{}
	for _, rec := range f.all(t) {
		byKey[rec.SyncKey] = rec
	}
	require.Equal(t, []interface{}{byKey["bundle_sync_1"].ID}, byKey["bundle_sync_2"].Attributes["field_related"])
	_, ok := byKey["bundle_sync_3"].Attributes["field_related"]
	require.False(t, ok)
}

func TestRunGeolocationNeverPartial(t *testing.T) {
	f := newRunnerFixture(t)
	job := baseJob()
	job.GeoMap = "lat_key+long_key|field_location"
	f.fetcher.items = []map[string]interface{}{{"id": "1", "name": "Acme", "lat_key": "52.1", "long_key": ""}}

	_, err := f.runner.Run(context.Background(), job)
	require.NoError(t, err)
	recs := f.all(t)
	require.Len(t, recs, 1)
	_, ok := recs[0].Attributes["field_location"]
	require.False(t, ok)
}

func TestRunTermParents(t *testing.T) {
	f := newRunnerFixture(t)
	job := baseJob()
	job.Bundle = "tags"
	job.TextMap = "name|name"
	f.fetcher.items = []map[string]interface{}{
		{"id": "10", "name": "Root"},
		{"id": "11", "name": "Leaf", "parent_id": "10"},
		{"id": "12", "name": "Orphan", "parent_id": "99"},
	}

	report, err := f.runner.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, 3, report.Counters.New)

	recs, err := f.records.Find(context.Background(), model.RecordQuery{Bundle: "tags"})
	require.NoError(t, err)
	byKey := map[string]model.Record{}
	for _, rec := range recs {
		byKey[rec.SyncKey] = rec
	}
	require.Equal(t, model.KindTerm, byKey["tags_sync_10"].Kind)
	require.Equal(t, byKey["tags_sync_10"].ID, byKey["tags_sync_11"].ParentID)
	require.Empty(t, byKey["tags_sync_12"].ParentID)
}

func TestRunAbortsOnFetchFailure(t *testing.T) {
	f := newRunnerFixture(t)
	f.seed(t, "r1", "bundle_sync_1", 100)
	f.fetcher.err = appErr.ErrFetchFailed

	report, err := f.runner.Run(context.Background(), baseJob())
	require.ErrorIs(t, err, appErr.ErrFetchFailed)
	require.Equal(t, model.RunStatusError, report.Status)
	require.Zero(t, report.Counters.Deleted)
	require.Len(t, f.all(t), 1)

	state, err := f.state.Load(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusError, state.Status)
	require.Contains(t, state.Message, "fetch")
}

func TestRunAbortsOnUnknownBundle(t *testing.T) {
	f := newRunnerFixture(t)
	job := baseJob()
	job.Bundle = "missing"
	f.fetcher.items = []map[string]interface{}{{"id": "1"}}

	_, err := f.runner.Run(context.Background(), job)
	require.ErrorIs(t, err, appErr.ErrUnknownBundle)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	f := newRunnerFixture(t)
	f.fetcher.items = []map[string]interface{}{{"id": "1", "name": "A"}, {"id": "2", "name": "B"}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := f.newRunner(&cancellingRecords{RecordStore: f.records, cancel: cancel})

	report, err := runner.Run(ctx, baseJob())
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, report.Cancelled)
	require.Equal(t, 1, report.Counters.New)
	require.Len(t, f.all(t), 1)

	state, err := f.state.Load(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusError, state.Status)
	require.Equal(t, 1, state.New)
	require.Equal(t, 2, state.Count)
}

func TestRunWithHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": 9007199254740993, "name": "Big"}]`))
	}))
	defer srv.Close()

	f := newRunnerFixture(t)
	refs := NewRefResolver(f.bundles, f.records)
	runner := NewSyncRunner(fetch.New(config.FetchConfig{TimeoutSeconds: 5, MaxBodyBytes: 1 << 20, BreakerMinRequests: 3, BreakerFailureRatio: 0.6, BreakerOpenSeconds: 60}),
		f.records, f.bundles, refs, project.NewProjector(refs, nil, f.bundles, ""), f.state)
	job := baseJob()
	job.URL = srv.URL

	report, err := runner.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, 1, report.Counters.New)
	recs := f.all(t)
	require.Len(t, recs, 1)
	require.Equal(t, "bundle_sync_9007199254740993", recs[0].SyncKey)
}
