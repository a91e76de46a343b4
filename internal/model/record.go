package model

type RecordKind string

const (
	KindContent RecordKind = "content"
	KindTerm    RecordKind = "term"
)

type Record struct {
	ID         string                 `json:"id"`
	Kind       RecordKind             `json:"kind"`
	Bundle     string                 `json:"bundle"`
	Langcode   string                 `json:"langcode"`
	SyncField  string                 `json:"sync_field"`
	SyncKey    string                 `json:"sync_key"`
	OwnerID    string                 `json:"owner_id"`
	Published  bool                   `json:"published"`
	ParentID   string                 `json:"parent_id"`
	Attributes map[string]interface{} `json:"attributes"`
	Created    int64                  `json:"created"`
	Changed    int64                  `json:"changed"`
}

type Bundle struct {
	Name       string        `json:"name" validate:"required"`
	Kind       RecordKind    `json:"kind" validate:"oneof=content term"`
	LabelField string        `json:"label_field"`
	Fields     []BundleField `json:"fields" validate:"dive"`
}

type BundleField struct {
	Name          string            `json:"name" validate:"required"`
	AllowedValues map[string]string `json:"allowed_values"`
}

func (b *Bundle) Label() string {
	if b.LabelField != "" {
		return b.LabelField
	}
	if b.Kind == KindTerm {
		return "name"
	}
	return "title"
}

type ConditionOp string

const (
	OpEqual      ConditionOp = "eq"
	OpStartsWith ConditionOp = "starts_with"
	OpNotEmpty   ConditionOp = "not_empty"
)

type Condition struct {
	Field string
	Op    ConditionOp
	Value string
}

type RecordQuery struct {
	Kind       RecordKind
	Bundle     string
	Langcode   string
	Conditions []Condition
}
