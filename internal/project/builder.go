package project

import (
	"time"

	"github.com/xxxsen/apisync/internal/model"
)

// Builder accumulates attribute writes for one record. It works on a copy so
// a failed projection leaves the original record untouched.
type Builder struct {
	rec        model.Record
	isNew      bool
	labelField string
	changedSet bool
	createdSet bool
}

func NewBuilder(rec *model.Record, isNew bool, labelField string) *Builder {
	cp := *rec
	cp.Attributes = make(map[string]interface{}, len(rec.Attributes))
	for k, v := range rec.Attributes {
		cp.Attributes[k] = v
	}
	return &Builder{rec: cp, isNew: isNew, labelField: labelField}
}

func (b *Builder) IsNew() bool {
	return b.isNew
}

func (b *Builder) Set(field string, value interface{}) {
	b.rec.Attributes[field] = value
}

// Append adds value to a multi-valued attribute, keeping what is there.
func (b *Builder) Append(field string, value interface{}) {
	current, ok := b.rec.Attributes[field]
	if !ok || current == nil {
		b.rec.Attributes[field] = []interface{}{value}
		return
	}
	var list []interface{}
	switch c := current.(type) {
	case []interface{}:
		list = append(make([]interface{}, 0, len(c)+1), c...)
	case []string:
		list = make([]interface{}, 0, len(c)+1)
		for _, s := range c {
			list = append(list, s)
		}
	default:
		list = []interface{}{c}
	}
	b.rec.Attributes[field] = append(list, value)
}

func (b *Builder) Get(field string) (interface{}, bool) {
	v, ok := b.rec.Attributes[field]
	return v, ok
}

func (b *Builder) SetCreated(ts int64) {
	b.rec.Created = ts
	b.createdSet = true
}

func (b *Builder) SetChanged(ts int64) {
	b.rec.Changed = ts
	b.changedSet = true
}

func (b *Builder) SetOwner(ownerID string) {
	b.rec.OwnerID = ownerID
}

func (b *Builder) SetPublished(published bool) {
	b.rec.Published = published
}

func (b *Builder) SetParent(parentID string) {
	b.rec.ParentID = parentID
}

func (b *Builder) Label() string {
	v, _ := b.rec.Attributes[b.labelField].(string)
	return v
}

// Record stamps timestamps not written by a mapping and returns the result.
func (b *Builder) Record(now time.Time) *model.Record {
	out := b.rec
	if !b.changedSet {
		out.Changed = now.Unix()
	}
	if b.isNew && !b.createdSet && out.Created == 0 {
		out.Created = now.Unix()
	}
	return &out
}
