package project

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/xxxsen/apisync/internal/image"
	"github.com/xxxsen/apisync/internal/mapping"
	"github.com/xxxsen/apisync/internal/model"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
	"github.com/xxxsen/apisync/internal/reconcile"
)

type RefResolver interface {
	// ResolveRef finds the record of bundle whose sync attribute equals key.
	ResolveRef(ctx context.Context, bundle, syncField, key string) (string, bool, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

type FieldSchema interface {
	AllowedValues(ctx context.Context, bundle, field string) (map[string]string, bool, error)
}

type FieldError struct {
	Kind  mapping.Kind
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s field %s: %v", e.Kind, e.Field, e.Err)
}

func (e *FieldError) Unwrap() []error {
	return []error{appErr.ErrMapping, e.Err}
}

type Projector struct {
	refs           RefResolver
	images         ImageFetcher
	schema         FieldSchema
	richTextFormat string
	markdown       goldmark.Markdown
}

func NewProjector(refs RefResolver, images ImageFetcher, schema FieldSchema, richTextFormat string) *Projector {
	if richTextFormat == "" {
		richTextFormat = "filtered_html"
	}
	return &Projector{
		refs:           refs,
		images:         images,
		schema:         schema,
		richTextFormat: richTextFormat,
		markdown:       goldmark.New(),
	}
}

// Project writes every mapping of the set onto the builder, kind by kind in
// projection order. Soft failures are logged; hard failures are collected and
// returned together once every kind has run.
func (p *Projector) Project(ctx context.Context, job *model.Job, set mapping.Set, item map[string]interface{}, b *Builder) error {
	var errs []error
	for _, kind := range mapping.ProjectionOrder {
		for _, entry := range set.Table(kind).Entries {
			if err := p.apply(ctx, job, kind, entry, item, b); err != nil {
				var fe *FieldError
				if !errors.As(err, &fe) {
					err = &FieldError{Kind: kind, Field: entry.Target, Err: err}
				}
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (p *Projector) apply(ctx context.Context, job *model.Job, kind mapping.Kind, entry mapping.Entry, item map[string]interface{}, b *Builder) error {
	switch kind {
	case mapping.KindText:
		return p.applyText(entry, item, b)
	case mapping.KindRichText:
		return p.applyRichText(job, entry, item, b)
	case mapping.KindList:
		return p.applyList(ctx, job, entry, item, b)
	case mapping.KindReference:
		return p.applyReference(ctx, job, entry, item, b)
	case mapping.KindImage:
		p.applyImage(ctx, job, entry, item, b)
		return nil
	case mapping.KindDate:
		return p.applyDate(job, entry, item, b)
	case mapping.KindInteger:
		return p.applyInteger(entry, item, b)
	case mapping.KindGeolocation:
		return p.applyGeolocation(entry, item, b)
	default:
		return fmt.Errorf("unsupported mapping kind %s", kind)
	}
}

func (p *Projector) applyText(entry mapping.Entry, item map[string]interface{}, b *Builder) error {
	v := mapping.Resolve(item, entry.Source)
	values := texts(v)
	if len(values) == 0 {
		return nil
	}
	b.Set(entry.Target, scalarOrList(v, values))
	return nil
}

func (p *Projector) applyRichText(job *model.Job, entry mapping.Entry, item map[string]interface{}, b *Builder) error {
	v := mapping.Resolve(item, entry.Source)
	values := texts(v)
	if len(values) == 0 {
		return nil
	}
	wrapped := make([]map[string]interface{}, 0, len(values))
	for _, text := range values {
		if job.RichTextMarkdown {
			var buf bytes.Buffer
			if err := p.markdown.Convert([]byte(text), &buf); err != nil {
				return fmt.Errorf("render markdown: %w", err)
			}
			text = buf.String()
		}
		wrapped = append(wrapped, map[string]interface{}{"value": text, "format": p.richTextFormat})
	}
	b.Set(entry.Target, scalarOrList(v, wrapped))
	return nil
}

func (p *Projector) applyList(ctx context.Context, job *model.Job, entry mapping.Entry, item map[string]interface{}, b *Builder) error {
	v := mapping.Resolve(item, entry.Source)
	values := texts(v)
	if len(values) == 0 {
		return nil
	}
	allowed, declared, err := p.schema.AllowedValues(ctx, job.Bundle, entry.Target)
	if err != nil {
		return err
	}
	if !declared {
		return fmt.Errorf("%s.%s declares no allowed values", job.Bundle, entry.Target)
	}
	for _, value := range values {
		if _, ok := allowed[value]; !ok {
			return fmt.Errorf("value %q is not allowed", value)
		}
	}
	b.Set(entry.Target, scalarOrList(v, values))
	return nil
}

func (p *Projector) applyReference(ctx context.Context, job *model.Job, entry mapping.Entry, item map[string]interface{}, b *Builder) error {
	if entry.Err != nil {
		return entry.Err
	}
	v := mapping.Resolve(item, entry.Source)
	for i, elem := range v.Values() {
		if isEmpty(elem) {
			continue
		}
		key := reconcile.DeriveKey(entry.Bundle, toText(elem))
		id, found, err := p.refs.ResolveRef(ctx, entry.Bundle, job.SyncField, key)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if i == 0 {
			b.Set(entry.Target, []interface{}{id})
			continue
		}
		b.Append(entry.Target, id)
	}
	return nil
}

func (p *Projector) applyImage(ctx context.Context, job *model.Job, entry mapping.Entry, item map[string]interface{}, b *Builder) {
	v := mapping.Resolve(item, entry.Source)
	for i, elem := range v.Values() {
		if isEmpty(elem) {
			continue
		}
		rawURL := image.ResolveURL(job.ImageRoot, toText(elem))
		fileID, err := p.images.Fetch(ctx, rawURL)
		if err != nil {
			logutil.GetLogger(ctx).Warn("image fetch failed, field left unchanged",
				zap.String("job", job.ID),
				zap.String("field", entry.Target),
				zap.String("url", rawURL),
				zap.Error(err),
			)
			continue
		}
		switch {
		case v.Kind == mapping.Scalar:
			b.Set(entry.Target, fileID)
		case i == 0:
			b.Set(entry.Target, []interface{}{fileID})
		default:
			b.Append(entry.Target, fileID)
		}
	}
}

const (
	createdField = "created"
	changedField = "changed"
)

func (p *Projector) applyDate(job *model.Job, entry mapping.Entry, item map[string]interface{}, b *Builder) error {
	v := mapping.Resolve(item, entry.Source)
	if v.Kind != mapping.Scalar || isEmpty(v.Scalar) {
		return nil
	}
	if entry.Target == createdField && job.UpdatedField != "" {
		updated := mapping.Resolve(item, job.UpdatedField)
		if updated.Kind == mapping.Scalar && !isEmpty(updated.Scalar) {
			ts, err := ParseTimestamp(updated.Scalar)
			if err != nil {
				return &FieldError{Kind: mapping.KindDate, Field: changedField, Err: err}
			}
			b.SetChanged(ts)
			return nil
		}
	}
	ts, err := ParseTimestamp(v.Scalar)
	if err != nil {
		return err
	}
	switch entry.Target {
	case createdField:
		b.SetCreated(ts)
	case changedField:
		b.SetChanged(ts)
	default:
		b.Set(entry.Target, ts)
	}
	return nil
}

func (p *Projector) applyInteger(entry mapping.Entry, item map[string]interface{}, b *Builder) error {
	v := mapping.Resolve(item, entry.Source)
	values := make([]int64, 0, len(v.Values()))
	for _, elem := range v.Values() {
		if isEmpty(elem) {
			continue
		}
		n, err := parseInteger(elem)
		if err != nil {
			return err
		}
		values = append(values, n)
	}
	if len(values) == 0 {
		return nil
	}
	b.Set(entry.Target, scalarOrList(v, values))
	return nil
}

func (p *Projector) applyGeolocation(entry mapping.Entry, item map[string]interface{}, b *Builder) error {
	lat := mapping.Resolve(item, entry.Lat)
	lng := mapping.Resolve(item, entry.Lng)
	if lat.Kind != mapping.Scalar || lng.Kind != mapping.Scalar || isEmpty(lat.Scalar) || isEmpty(lng.Scalar) {
		return nil
	}
	latF, err := parseCoordinate(lat.Scalar)
	if err != nil {
		return err
	}
	lngF, err := parseCoordinate(lng.Scalar)
	if err != nil {
		return err
	}
	b.Set(entry.Target, map[string]interface{}{"lat": latF, "lng": lngF})
	return nil
}
