package service

import (
	"context"

	"github.com/xxxsen/apisync/internal/model"
)

type bundleKinds interface {
	Kind(ctx context.Context, name string) (model.RecordKind, error)
}

type recordFinder interface {
	Find(ctx context.Context, q model.RecordQuery) ([]model.Record, error)
}

// RefResolver looks up previously synced records by their sync key.
type RefResolver struct {
	bundles bundleKinds
	records recordFinder
}

func NewRefResolver(bundles bundleKinds, records recordFinder) *RefResolver {
	return &RefResolver{bundles: bundles, records: records}
}

func (r *RefResolver) ResolveRef(ctx context.Context, bundle, syncField, key string) (string, bool, error) {
	kind, err := r.bundles.Kind(ctx, bundle)
	if err != nil {
		return "", false, err
	}
	recs, err := r.records.Find(ctx, model.RecordQuery{
		Kind:   kind,
		Bundle: bundle,
		Conditions: []model.Condition{
			{Field: syncField, Op: model.OpEqual, Value: key},
		},
	})
	if err != nil {
		return "", false, err
	}
	if len(recs) == 0 {
		return "", false, nil
	}
	return recs[0].ID, true, nil
}
