package reconcile

import (
	"sort"

	"github.com/xxxsen/apisync/internal/model"
)

type Action int

const (
	// ActionCreate is the first occurrence of a key with no local record.
	ActionCreate Action = iota
	// ActionUpdate is the first occurrence of a key with a local record.
	ActionUpdate
	// ActionRepeat is a later occurrence of a key already seen in the batch.
	// Existing is set when the key had a local record before the run.
	ActionRepeat
	// ActionInvalid is an item without a usable identifier.
	ActionInvalid
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionRepeat:
		return "repeat"
	default:
		return "invalid"
	}
}

type Step struct {
	Index    int
	Item     map[string]interface{}
	ID       string
	Key      string
	Action   Action
	Existing *model.Record
}

type Plan struct {
	Steps []Step
	// Stale are local records whose key no longer appears in the batch.
	Stale []model.Record
	// Duplicates are extra local records sharing a key with an indexed one.
	Duplicates []model.Record
}

// Index keys local records by sync key. When several records share a key
// the first one wins and the rest are reported as duplicates.
func Index(records []model.Record) (map[string]*model.Record, []model.Record) {
	index := make(map[string]*model.Record, len(records))
	var dups []model.Record
	for i := range records {
		rec := &records[i]
		if rec.SyncKey == "" {
			continue
		}
		if _, ok := index[rec.SyncKey]; ok {
			dups = append(dups, *rec)
			continue
		}
		index[rec.SyncKey] = rec
	}
	return index, dups
}

// Build classifies every item of the batch against the local index. Steps keep
// batch order; stale records are sorted by key.
func Build(bundle, idField string, local []model.Record, items []map[string]interface{}) Plan {
	index, dups := Index(local)
	seen := make(map[string]struct{}, len(items))
	plan := Plan{Steps: make([]Step, 0, len(items)), Duplicates: dups}
	for i, item := range items {
		step := Step{Index: i, Item: item}
		id, ok := ExternalID(item, idField)
		if !ok {
			step.Action = ActionInvalid
			plan.Steps = append(plan.Steps, step)
			continue
		}
		step.ID = id
		step.Key = DeriveKey(bundle, id)
		step.Existing = index[step.Key]
		switch _, dup := seen[step.Key]; {
		case dup:
			step.Action = ActionRepeat
		case step.Existing != nil:
			step.Action = ActionUpdate
		default:
			step.Action = ActionCreate
		}
		seen[step.Key] = struct{}{}
		plan.Steps = append(plan.Steps, step)
	}
	for key, rec := range index {
		if _, ok := seen[key]; ok {
			continue
		}
		plan.Stale = append(plan.Stale, *rec)
	}
	sort.SliceStable(plan.Stale, func(i, j int) bool {
		return plan.Stale[i].SyncKey < plan.Stale[j].SyncKey
	})
	return plan
}
