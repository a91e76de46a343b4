package project

import (
	"context"
	"fmt"

	"github.com/xxxsen/apisync/internal/mapping"
	"github.com/xxxsen/apisync/internal/model"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
	"github.com/xxxsen/apisync/internal/reconcile"
)

// RecordKind captures what differs between destination kinds.
type RecordKind interface {
	Kind() model.RecordKind
	New(job *model.Job, id, key string) *model.Record
	// IndexQuery selects the local records a job reconciles against.
	IndexQuery(job *model.Job) model.RecordQuery
	// PurgeQuery selects the records a bulk delete of the job removes.
	PurgeQuery(job *model.Job) model.RecordQuery
	Finalize(ctx context.Context, b *Builder, job *model.Job, item map[string]interface{}) error
}

func KindFor(kind model.RecordKind, refs RefResolver) (RecordKind, error) {
	switch kind {
	case model.KindContent:
		return contentKind{}, nil
	case model.KindTerm:
		return termKind{refs: refs}, nil
	default:
		return nil, fmt.Errorf("record kind %q: %w", kind, appErr.ErrUnknownBundle)
	}
}

func syncPrefixCondition(job *model.Job) model.Condition {
	return model.Condition{Field: job.SyncField, Op: model.OpStartsWith, Value: reconcile.KeyPrefix(job.Bundle)}
}

type contentKind struct{}

func (contentKind) Kind() model.RecordKind {
	return model.KindContent
}

func (contentKind) New(job *model.Job, id, key string) *model.Record {
	return &model.Record{
		ID:         id,
		Kind:       model.KindContent,
		Bundle:     job.Bundle,
		Langcode:   job.Langcode,
		SyncField:  job.SyncField,
		SyncKey:    key,
		Attributes: map[string]interface{}{},
	}
}

func (contentKind) IndexQuery(job *model.Job) model.RecordQuery {
	return model.RecordQuery{
		Kind:       model.KindContent,
		Bundle:     job.Bundle,
		Langcode:   job.Langcode,
		Conditions: []model.Condition{syncPrefixCondition(job)},
	}
}

func (k contentKind) PurgeQuery(job *model.Job) model.RecordQuery {
	return k.IndexQuery(job)
}

func (contentKind) Finalize(ctx context.Context, b *Builder, job *model.Job, item map[string]interface{}) error {
	_ = ctx
	_ = item
	b.SetPublished(true)
	b.SetOwner(job.UserID)
	return nil
}

type termKind struct {
	refs RefResolver
}

func (termKind) Kind() model.RecordKind {
	return model.KindTerm
}

func (termKind) New(job *model.Job, id, key string) *model.Record {
	return &model.Record{
		ID:         id,
		Kind:       model.KindTerm,
		Bundle:     job.Bundle,
		Langcode:   job.Langcode,
		SyncField:  job.SyncField,
		SyncKey:    key,
		Published:  true,
		Attributes: map[string]interface{}{},
	}
}

func (termKind) IndexQuery(job *model.Job) model.RecordQuery {
	return model.RecordQuery{
		Kind:       model.KindTerm,
		Bundle:     job.Bundle,
		Conditions: []model.Condition{syncPrefixCondition(job)},
	}
}

// PurgeQuery takes every term of the vocabulary that carries any sync value,
// in all languages.
func (termKind) PurgeQuery(job *model.Job) model.RecordQuery {
	return model.RecordQuery{
		Kind:       model.KindTerm,
		Bundle:     job.Bundle,
		Conditions: []model.Condition{{Field: job.SyncField, Op: model.OpNotEmpty}},
	}
}

// Finalize points the term at its parent within the same bundle. A parent
// that is missing or not imported yet leaves the term at the root.
func (k termKind) Finalize(ctx context.Context, b *Builder, job *model.Job, item map[string]interface{}) error {
	parentID, ok := reconcile.ExternalID(item, job.ParentKey())
	if !ok {
		b.SetParent("")
		return nil
	}
	id, found, err := k.refs.ResolveRef(ctx, job.Bundle, job.SyncField, reconcile.DeriveKey(job.Bundle, parentID))
	if err != nil {
		return &FieldError{Kind: mapping.KindReference, Field: job.ParentKey(), Err: err}
	}
	if !found {
		b.SetParent("")
		return nil
	}
	b.SetParent(id)
	return nil
}
