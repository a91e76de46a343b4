package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/apisync/internal/model"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
	"github.com/xxxsen/apisync/internal/repo"
	"github.com/xxxsen/apisync/internal/testutil"
)

const testCatalog = `{
	"bundles": [
		{"name": "article", "kind": "content", "fields": [{"name": "field_color", "allowed_values": {"red": "Red"}}]},
		{"name": "tags", "kind": "term"}
	],
	"jobs": [
		{
			"id": "articles",
			"label": "Articles",
			"url": "https://remote.test/articles.json",
			"bundle": "article",
			"langcode": "en",
			"sync_field": "field_sync",
			"unique_id_field": "id",
			"text_map": "name|title",
			"interval": "-",
			"active": true
		}
	]
}`

type jobServiceFixture struct {
	svc     *JobService
	jobs    *repo.JobRepo
	records *repo.RecordRepo
	state   *RunStateStore
}

func newJobServiceFixture(t *testing.T) *jobServiceFixture {
	t.Helper()
	db := testutil.OpenTestDB(t)
	f := &jobServiceFixture{
		jobs:    repo.NewJobRepo(db),
		records: repo.NewRecordRepo(db),
		state:   NewRunStateStore(repo.NewStateRepo(db)),
	}
	bundles := repo.NewBundleRepo(db)
	f.svc = NewJobService(f.jobs, bundles, f.records, f.state, NewRefResolver(bundles, f.records), "s3cret")
	catalog, err := ParseCatalog(strings.NewReader(testCatalog))
	require.NoError(t, err)
	res, err := f.svc.Import(context.Background(), catalog)
	require.NoError(t, err)
	require.Equal(t, &ImportResult{Bundles: 2, Jobs: 1}, res)
	return f
}

func TestImportKeepsJobUUID(t *testing.T) {
	f := newJobServiceFixture(t)
	ctx := context.Background()
	job, err := f.jobs.GetByID(ctx, "articles")
	require.NoError(t, err)
	require.NotEmpty(t, job.UUID)
	require.True(t, job.Interval.IsExternalOnly())

	catalog, err := ParseCatalog(strings.NewReader(testCatalog))
	require.NoError(t, err)
	catalog.Jobs[0].Label = "Renamed"
	_, err = f.svc.Import(ctx, catalog)
	require.NoError(t, err)

	again, err := f.jobs.GetByID(ctx, "articles")
	require.NoError(t, err)
	require.Equal(t, job.UUID, again.UUID)
	require.Equal(t, "Renamed", again.Label)
}

func TestImportRejectsInvalidJobs(t *testing.T) {
	f := newJobServiceFixture(t)
	_, err := f.svc.Save(context.Background(), &model.Job{ID: "broken", Label: "x", URL: "not a url", Bundle: "article", SyncField: "s", UniqueIDField: "id"})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = f.svc.Save(context.Background(), &model.Job{ID: "orphan", Label: "x", URL: "https://a.test", Bundle: "nope", SyncField: "s", UniqueIDField: "id"})
	require.ErrorIs(t, err, appErr.ErrUnknownBundle)

	_, err = ParseCatalog(strings.NewReader("{"))
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func (f *jobServiceFixture) seed(t *testing.T, id, key string) {
	t.Helper()
	require.NoError(t, f.records.Create(context.Background(), &model.Record{
		ID:         id,
		Kind:       model.KindContent,
		Bundle:     "article",
		Langcode:   "en",
		SyncField:  "field_sync",
		SyncKey:    key,
		Attributes: map[string]interface{}{},
	}))
}

func TestListAndPurge(t *testing.T) {
	f := newJobServiceFixture(t)
	ctx := context.Background()
	f.seed(t, "r1", "article_sync_1")
	f.seed(t, "r2", "article_sync_2")
	f.seed(t, "manual", "")
	require.NoError(t, f.state.Save(ctx, "articles", model.RunState{
		RunCounters: model.RunCounters{New: 2, Count: 2},
		Status:      model.RunStatusError,
		Message:     "boom",
	}))

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 2, list[0].ItemsInSync)
	require.Equal(t, model.RunStatusError, list[0].State.Status)
	require.Equal(t, 2, list[0].State.New)

	deleted, err := f.svc.Purge(ctx, "articles")
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	status, err := f.svc.Get(ctx, "articles")
	require.NoError(t, err)
	require.Zero(t, status.ItemsInSync)
	require.Equal(t, model.RunStatusOK, status.State.Status)
	require.Empty(t, status.State.Message)

	left, err := f.records.Find(ctx, model.RecordQuery{Bundle: "article"})
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, "manual", left[0].ID)
}

type vanishingRecords struct {
	recordCounter
	gone string
}

func (v *vanishingRecords) Delete(ctx context.Context, id string) error {
	if id == v.gone {
		return appErr.ErrNotFound
	}
	return v.recordCounter.Delete(ctx, id)
}

func TestPurgeCountsOnlyDeletedRecords(t *testing.T) {
	f := newJobServiceFixture(t)
	ctx := context.Background()
	f.seed(t, "r1", "article_sync_1")
	f.seed(t, "r2", "article_sync_2")
	f.svc.records = &vanishingRecords{recordCounter: f.records, gone: "r1"}

	deleted, err := f.svc.Purge(ctx, "articles")
	require.NoError(t, err)
	require.Equal(t, 1, deleted)
}

func TestPurgeTermsBySyncValue(t *testing.T) {
	f := newJobServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.Save(ctx, &model.Job{
		ID:            "tags",
		Label:         "Tags",
		URL:           "https://remote.test/tags.json",
		Bundle:        "tags",
		Langcode:      "en",
		SyncField:     "field_sync",
		UniqueIDField: "id",
		Interval:      model.Interval(5),
	})
	require.NoError(t, err)
	for _, r := range []struct{ id, key, lang string }{
		{"t1", "tags_sync_1", "en"},
		{"t2", "legacy_2", "nl"},
		{"t3", "", "en"},
	} {
		require.NoError(t, f.records.Create(ctx, &model.Record{
			ID: r.id, Kind: model.KindTerm, Bundle: "tags", Langcode: r.lang,
			SyncField: "field_sync", SyncKey: r.key, Attributes: map[string]interface{}{},
		}))
	}

	deleted, err := f.svc.Purge(ctx, "tags")
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	left, err := f.records.Find(ctx, model.RecordQuery{Bundle: "tags"})
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, "t3", left[0].ID)
}

func TestTriggerTokenRoundTrip(t *testing.T) {
	f := newJobServiceFixture(t)
	ctx := context.Background()

	token, err := f.svc.TriggerToken(ctx, "articles", time.Hour)
	require.NoError(t, err)
	jobID, err := f.svc.ResolveTrigger(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "articles", jobID)

	_, err = f.svc.ResolveTrigger(ctx, token+"x")
	require.ErrorIs(t, err, appErr.ErrUnauthorized)

	// a recreated job gets a new uuid and old tokens stop working
	require.NoError(t, f.svc.Delete(ctx, "articles"))
	catalog, err := ParseCatalog(strings.NewReader(testCatalog))
	require.NoError(t, err)
	_, err = f.svc.Import(ctx, catalog)
	require.NoError(t, err)
	_, err = f.svc.ResolveTrigger(ctx, token)
	require.ErrorIs(t, err, appErr.ErrUnauthorized)
}

func TestRunStateLastRun(t *testing.T) {
	f := newJobServiceFixture(t)
	ctx := context.Background()

	last, err := f.state.LastRun(ctx, "articles")
	require.NoError(t, err)
	require.Zero(t, last)

	require.NoError(t, f.state.SetLastRun(ctx, "articles", 1234))
	last, err = f.state.LastRun(ctx, "articles")
	require.NoError(t, err)
	require.Equal(t, int64(1234), last)

	state, err := f.state.Load(ctx, "articles")
	require.NoError(t, err)
	require.Equal(t, int64(1234), state.LastRun)
	require.Equal(t, model.RunStatusOK, state.Status)
}
