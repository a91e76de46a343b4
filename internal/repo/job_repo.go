package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/apisync/internal/model"
	"github.com/xxxsen/apisync/internal/pkg/dbutil"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
)

var jobColumns = []string{
	"id", "uuid", "label", "url", "user_id", "bundle", "langcode", "sync_field", "unique_id_field",
	"updated_field", "parent_field", "text_map", "rich_text_map", "rich_text_markdown", "list_map",
	"reference_map", "image_map", "image_root", "date_map", "integer_map", "geo_map", "weight",
	"interval_minutes", "active", "ctime", "mtime",
}

type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) Upsert(ctx context.Context, job *model.Job) error {
	sqlStr := `
		INSERT INTO jobs (id, uuid, label, url, user_id, bundle, langcode, sync_field, unique_id_field,
			updated_field, parent_field, text_map, rich_text_map, rich_text_markdown, list_map,
			reference_map, image_map, image_root, date_map, integer_map, geo_map, weight,
			interval_minutes, active, ctime, mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET
			label = EXCLUDED.label,
			url = EXCLUDED.url,
			user_id = EXCLUDED.user_id,
			bundle = EXCLUDED.bundle,
			langcode = EXCLUDED.langcode,
			sync_field = EXCLUDED.sync_field,
			unique_id_field = EXCLUDED.unique_id_field,
			updated_field = EXCLUDED.updated_field,
			parent_field = EXCLUDED.parent_field,
			text_map = EXCLUDED.text_map,
			rich_text_map = EXCLUDED.rich_text_map,
			rich_text_markdown = EXCLUDED.rich_text_markdown,
			list_map = EXCLUDED.list_map,
			reference_map = EXCLUDED.reference_map,
			image_map = EXCLUDED.image_map,
			image_root = EXCLUDED.image_root,
			date_map = EXCLUDED.date_map,
			integer_map = EXCLUDED.integer_map,
			geo_map = EXCLUDED.geo_map,
			weight = EXCLUDED.weight,
			interval_minutes = EXCLUDED.interval_minutes,
			active = EXCLUDED.active,
			mtime = EXCLUDED.mtime
	`
	args := []interface{}{
		job.ID, job.UUID, job.Label, job.URL, job.UserID, job.Bundle, job.Langcode, job.SyncField, job.UniqueIDField,
		job.UpdatedField, job.ParentField, job.TextMap, job.RichTextMap, boolInt(job.RichTextMarkdown), job.ListMap,
		job.ReferenceMap, job.ImageMap, job.ImageRoot, job.DateMap, job.IntegerMap, job.GeoMap, job.Weight,
		int(job.Interval), boolInt(job.Active), job.Ctime, job.Mtime,
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	jobs, err := r.query(ctx, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &jobs[0], nil
}

// List returns all jobs ordered by weight, then id.
func (r *JobRepo) List(ctx context.Context) ([]model.Job, error) {
	return r.query(ctx, map[string]interface{}{"_orderby": "weight asc, id asc"})
}

func (r *JobRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("jobs", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *JobRepo) query(ctx context.Context, where map[string]interface{}) ([]model.Job, error) {
	sqlStr, args, err := builder.BuildSelect("jobs", where, jobColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	jobs := make([]model.Job, 0)
	for rows.Next() {
		var (
			job              model.Job
			markdown, active int
			interval         int
		)
		if err := rows.Scan(&job.ID, &job.UUID, &job.Label, &job.URL, &job.UserID, &job.Bundle, &job.Langcode,
			&job.SyncField, &job.UniqueIDField, &job.UpdatedField, &job.ParentField, &job.TextMap, &job.RichTextMap,
			&markdown, &job.ListMap, &job.ReferenceMap, &job.ImageMap, &job.ImageRoot, &job.DateMap, &job.IntegerMap,
			&job.GeoMap, &job.Weight, &interval, &active, &job.Ctime, &job.Mtime); err != nil {
			return nil, err
		}
		job.RichTextMarkdown = markdown != 0
		job.Active = active != 0
		job.Interval = model.Interval(interval)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
