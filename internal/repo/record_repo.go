package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/goccy/go-json"

	"github.com/xxxsen/apisync/internal/model"
	"github.com/xxxsen/apisync/internal/pkg/dbutil"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
)

var recordColumns = []string{
	"id", "kind", "bundle", "langcode", "sync_field", "sync_key", "owner_id",
	"published", "parent_id", "attributes", "created", "changed",
}

// recordColumnFields are record attributes stored as plain columns and
// therefore queryable without going through the sync key.
var recordColumnFields = map[string]string{
	"id":        "id",
	"langcode":  "langcode",
	"owner_id":  "owner_id",
	"parent_id": "parent_id",
}

type RecordRepo struct {
	db *sql.DB
}

func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

func (r *RecordRepo) Create(ctx context.Context, rec *model.Record) error {
	data, err := recordData(rec)
	if err != nil {
		return err
	}
	data["id"] = rec.ID
	sqlStr, args, err := builder.BuildInsert("records", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *RecordRepo) Update(ctx context.Context, rec *model.Record) error {
	data, err := recordData(rec)
	if err != nil {
		return err
	}
	sqlStr, args, err := builder.BuildUpdate("records", map[string]interface{}{"id": rec.ID}, data)
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

func (r *RecordRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("records", map[string]interface{}{"id": id})
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

// Find returns records of the bundle matching every condition. Conditions on
// fields other than the plain columns address the record's sync attribute.
func (r *RecordRepo) Find(ctx context.Context, q model.RecordQuery) ([]model.Record, error) {
	where, err := buildRecordWhere(q)
	if err != nil {
		return nil, err
	}
	where["_orderby"] = "sync_key asc, id asc"
	return r.query(ctx, where)
}

func (r *RecordRepo) Count(ctx context.Context, q model.RecordQuery) (int, error) {
	where, err := buildRecordWhere(q)
	if err != nil {
		return 0, err
	}
	sqlStr, args, err := builder.BuildSelect("records", where, []string{"COUNT(1)"})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var count int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func buildRecordWhere(q model.RecordQuery) (map[string]interface{}, error) {
	if q.Bundle == "" {
		return nil, fmt.Errorf("record query needs a bundle: %w", appErr.ErrInvalid)
	}
	where := map[string]interface{}{"bundle": q.Bundle}
	if q.Kind != "" {
		where["kind"] = string(q.Kind)
	}
	if q.Langcode != "" {
		where["langcode"] = q.Langcode
	}
	syncField := ""
	for i, c := range q.Conditions {
		column, plain := recordColumnFields[c.Field]
		if !plain {
			if syncField != "" && syncField != c.Field {
				return nil, fmt.Errorf("conditions on %s and %s: %w", syncField, c.Field, appErr.ErrInvalid)
			}
			syncField = c.Field
			where["sync_field"] = c.Field
			column = "sync_key"
		}
		switch c.Op {
		case model.OpEqual, "":
			where[column] = c.Value
		case model.OpStartsWith:
			where[fmt.Sprintf("_custom_prefix_%d", i)] = builder.Custom(column+` LIKE ? ESCAPE '\'`, dbutil.EscapeLike(c.Value)+"%")
		case model.OpNotEmpty:
			where[column+" !="] = ""
		default:
			return nil, fmt.Errorf("unsupported condition %q: %w", c.Op, appErr.ErrInvalid)
		}
	}
	return where, nil
}

func (r *RecordRepo) query(ctx context.Context, where map[string]interface{}) ([]model.Record, error) {
	sqlStr, args, err := builder.BuildSelect("records", where, recordColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	items := make([]model.Record, 0)
	for rows.Next() {
		var (
			item      model.Record
			kind      string
			published int
			attrs     string
		)
		if err := rows.Scan(&item.ID, &kind, &item.Bundle, &item.Langcode, &item.SyncField, &item.SyncKey,
			&item.OwnerID, &published, &item.ParentID, &attrs, &item.Created, &item.Changed); err != nil {
			return nil, err
		}
		item.Kind = model.RecordKind(kind)
		item.Published = published != 0
		item.Attributes = map[string]interface{}{}
		if attrs != "" {
			if err := json.Unmarshal([]byte(attrs), &item.Attributes); err != nil {
				return nil, fmt.Errorf("decode attributes of record %s: %w", item.ID, err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func recordData(rec *model.Record) (map[string]interface{}, error) {
	attrs := rec.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	published := 0
	if rec.Published {
		published = 1
	}
	return map[string]interface{}{
		"kind":       string(rec.Kind),
		"bundle":     rec.Bundle,
		"langcode":   rec.Langcode,
		"sync_field": rec.SyncField,
		"sync_key":   rec.SyncKey,
		"owner_id":   rec.OwnerID,
		"published":  published,
		"parent_id":  rec.ParentID,
		"attributes": string(raw),
		"created":    rec.Created,
		"changed":    rec.Changed,
	}, nil
}

func toArgs(values []string) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}
