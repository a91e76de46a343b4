package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/goccy/go-json"

	"github.com/xxxsen/apisync/internal/model"
	"github.com/xxxsen/apisync/internal/pkg/dbutil"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
)

type BundleRepo struct {
	db *sql.DB
}

func NewBundleRepo(db *sql.DB) *BundleRepo {
	return &BundleRepo{db: db}
}

// Upsert replaces the bundle definition and its declared fields.
func (r *BundleRepo) Upsert(ctx context.Context, bundle *model.Bundle) error {
	now := time.Now().Unix()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	sqlStr := `
		INSERT INTO bundles (name, kind, label_field, ctime, mtime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name)
		DO UPDATE SET
			kind = EXCLUDED.kind,
			label_field = EXCLUDED.label_field,
			mtime = EXCLUDED.mtime
	`
	args := []interface{}{bundle.Name, string(bundle.Kind), bundle.LabelField, now, now}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}

	sqlStr, args, err = builder.BuildDelete("bundle_fields", map[string]interface{}{"bundle": bundle.Name})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	if len(bundle.Fields) > 0 {
		rows := make([]map[string]interface{}, 0, len(bundle.Fields))
		for _, field := range bundle.Fields {
			allowed := ""
			if field.AllowedValues != nil {
				raw, err := json.Marshal(field.AllowedValues)
				if err != nil {
					return fmt.Errorf("encode allowed values of %s.%s: %w", bundle.Name, field.Name, err)
				}
				allowed = string(raw)
			}
			rows = append(rows, map[string]interface{}{
				"bundle":         bundle.Name,
				"name":           field.Name,
				"allowed_values": allowed,
			})
		}
		sqlStr, args, err = builder.BuildInsert("bundle_fields", rows)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *BundleRepo) Get(ctx context.Context, name string) (*model.Bundle, error) {
	sqlStr, args, err := builder.BuildSelect("bundles", map[string]interface{}{"name": name}, []string{"name", "kind", "label_field"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var (
		bundle model.Bundle
		kind   string
	)
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&bundle.Name, &kind, &bundle.LabelField); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	bundle.Kind = model.RecordKind(kind)
	fields, err := r.listFields(ctx, name)
	if err != nil {
		return nil, err
	}
	bundle.Fields = fields
	return &bundle, nil
}

// Kind resolves which record kind a bundle belongs to.
func (r *BundleRepo) Kind(ctx context.Context, name string) (model.RecordKind, error) {
	bundle, err := r.Get(ctx, name)
	if err != nil {
		if appErr.IsNotFound(err) {
			return "", fmt.Errorf("bundle %q: %w", name, appErr.ErrUnknownBundle)
		}
		return "", err
	}
	return bundle.Kind, nil
}

// AllowedValues reports the declared allowed values of a field. ok is false
// when the field declares no allowed-value set.
func (r *BundleRepo) AllowedValues(ctx context.Context, bundle, field string) (map[string]string, bool, error) {
	sqlStr, args, err := builder.BuildSelect("bundle_fields", map[string]interface{}{"bundle": bundle, "name": field}, []string{"allowed_values"})
	if err != nil {
		return nil, false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var raw string
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	if raw == "" {
		return nil, false, nil
	}
	values := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, false, fmt.Errorf("decode allowed values of %s.%s: %w", bundle, field, err)
	}
	return values, true, nil
}

func (r *BundleRepo) listFields(ctx context.Context, bundle string) ([]model.BundleField, error) {
	sqlStr, args, err := builder.BuildSelect("bundle_fields", map[string]interface{}{"bundle": bundle, "_orderby": "name asc"}, []string{"name", "allowed_values"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	fields := make([]model.BundleField, 0)
	for rows.Next() {
		var (
			field model.BundleField
			raw   string
		)
		if err := rows.Scan(&field.Name, &raw); err != nil {
			return nil, err
		}
		if raw != "" {
			field.AllowedValues = map[string]string{}
			if err := json.Unmarshal([]byte(raw), &field.AllowedValues); err != nil {
				return nil, err
			}
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}
