package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/apisync/internal/model"
	"github.com/xxxsen/apisync/internal/pkg/dbutil"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
)

const assetTable = "assets"

var assetColumns = []string{"id", "source_url", "file_key", "content_type", "size", "ctime", "mtime"}

// AssetRepo tracks files downloaded for image attributes. One row per source
// URL; its id is what record attributes point at.
type AssetRepo struct {
	db *sql.DB
}

func NewAssetRepo(db *sql.DB) *AssetRepo {
	return &AssetRepo{db: db}
}

// Save stores the asset for its source URL and returns the id in use. A URL
// seen before keeps its original id and ctime.
func (r *AssetRepo) Save(ctx context.Context, asset *model.Asset) (string, error) {
	existing, err := r.GetBySourceURL(ctx, asset.SourceURL)
	switch {
	case err == nil:
		return existing.ID, r.refresh(ctx, existing.ID, asset)
	case !appErr.IsNotFound(err):
		return "", err
	}
	sqlStr, args, err := builder.BuildInsert(assetTable, []map[string]interface{}{{
		"id":           asset.ID,
		"source_url":   asset.SourceURL,
		"file_key":     asset.FileKey,
		"content_type": asset.ContentType,
		"size":         asset.Size,
		"ctime":        asset.Ctime,
		"mtime":        asset.Mtime,
	}})
	if err != nil {
		return "", err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if !dbutil.IsConflict(err) {
			return "", err
		}
		// lost a race for the same url
		existing, err := r.GetBySourceURL(ctx, asset.SourceURL)
		if err != nil {
			return "", err
		}
		return existing.ID, r.refresh(ctx, existing.ID, asset)
	}
	return asset.ID, nil
}

func (r *AssetRepo) refresh(ctx context.Context, id string, asset *model.Asset) error {
	sqlStr, args, err := builder.BuildUpdate(assetTable, map[string]interface{}{"id": id}, map[string]interface{}{
		"file_key":     asset.FileKey,
		"content_type": asset.ContentType,
		"size":         asset.Size,
		"mtime":        asset.Mtime,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *AssetRepo) GetBySourceURL(ctx context.Context, sourceURL string) (*model.Asset, error) {
	return r.first(ctx, map[string]interface{}{"source_url": sourceURL})
}

func (r *AssetRepo) GetByID(ctx context.Context, id string) (*model.Asset, error) {
	return r.first(ctx, map[string]interface{}{"id": id})
}

func (r *AssetRepo) first(ctx context.Context, where map[string]interface{}) (*model.Asset, error) {
	sqlStr, args, err := builder.BuildSelect(assetTable, where, assetColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var a model.Asset
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&a.ID, &a.SourceURL, &a.FileKey, &a.ContentType, &a.Size, &a.Ctime, &a.Mtime,
	)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
