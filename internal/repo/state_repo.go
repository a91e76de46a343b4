package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/apisync/internal/pkg/dbutil"
)

// StateRepo is a flat key/value store for run progress and last-run stamps.
type StateRepo struct {
	db *sql.DB
}

func NewStateRepo(db *sql.DB) *StateRepo {
	return &StateRepo{db: db}
}

const upsertStateSQL = `
	INSERT INTO sync_state (state_key, state_value, mtime)
	VALUES (?, ?, ?)
	ON CONFLICT (state_key)
	DO UPDATE SET
		state_value = EXCLUDED.state_value,
		mtime = EXCLUDED.mtime
`

func (r *StateRepo) Set(ctx context.Context, key, value string) error {
	return r.SetMany(ctx, map[string]string{key: value})
}

// SetMany writes all pairs in one transaction.
func (r *StateRepo) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now().Unix()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for key, value := range values {
		sqlStr, args := dbutil.Finalize(upsertStateSQL, []interface{}{key, value, now})
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetMany returns the stored values; missing keys are left out.
func (r *StateRepo) GetMany(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	sqlStr, args, err := builder.BuildSelect("sync_state", map[string]interface{}{"_custom_keys": builder.In{"state_key": toArgs(keys)}}, []string{"state_key", "state_value"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

func (r *StateRepo) Get(ctx context.Context, key string) (string, bool, error) {
	values, err := r.GetMany(ctx, []string{key})
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}
