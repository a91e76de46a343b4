package service

import (
	"context"
	"strconv"

	"github.com/spf13/cast"

	"github.com/xxxsen/apisync/internal/model"
)

const (
	stateNew     = "new"
	stateUpdated = "updated"
	stateSkipped = "skipped"
	stateDeleted = "deleted"
	stateError   = "error"
	stateCount   = "count"
	stateStatus  = "status"
	stateMessage = "message"
	stateLastRun = "last_run"
)

var runStateFields = []string{
	stateNew, stateUpdated, stateSkipped, stateDeleted, stateError, stateCount, stateStatus, stateMessage, stateLastRun,
}

type keyValueStore interface {
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
	GetMany(ctx context.Context, keys []string) (map[string]string, error)
	Get(ctx context.Context, key string) (string, bool, error)
}

// RunStateStore keeps per-job counters, status and last-run stamps under
// keys of the form "<job id>.<name>".
type RunStateStore struct {
	kv keyValueStore
}

func NewRunStateStore(kv keyValueStore) *RunStateStore {
	return &RunStateStore{kv: kv}
}

func stateKey(jobID, name string) string {
	return jobID + "." + name
}

// Save writes counters, status and message. The last-run stamp is owned by
// the scheduler and left alone.
func (s *RunStateStore) Save(ctx context.Context, jobID string, state model.RunState) error {
	return s.kv.SetMany(ctx, map[string]string{
		stateKey(jobID, stateNew):     strconv.Itoa(state.New),
		stateKey(jobID, stateUpdated): strconv.Itoa(state.Updated),
		stateKey(jobID, stateSkipped): strconv.Itoa(state.Skipped),
		stateKey(jobID, stateDeleted): strconv.Itoa(state.Deleted),
		stateKey(jobID, stateError):   strconv.Itoa(state.Error),
		stateKey(jobID, stateCount):   strconv.Itoa(state.Count),
		stateKey(jobID, stateStatus):  state.Status,
		stateKey(jobID, stateMessage): state.Message,
	})
}

func (s *RunStateStore) Load(ctx context.Context, jobID string) (model.RunState, error) {
	keys := make([]string, 0, len(runStateFields))
	for _, name := range runStateFields {
		keys = append(keys, stateKey(jobID, name))
	}
	values, err := s.kv.GetMany(ctx, keys)
	if err != nil {
		return model.RunState{}, err
	}
	get := func(name string) string {
		return values[stateKey(jobID, name)]
	}
	state := model.RunState{
		RunCounters: model.RunCounters{
			New:     cast.ToInt(get(stateNew)),
			Updated: cast.ToInt(get(stateUpdated)),
			Skipped: cast.ToInt(get(stateSkipped)),
			Deleted: cast.ToInt(get(stateDeleted)),
			Error:   cast.ToInt(get(stateError)),
			Count:   cast.ToInt(get(stateCount)),
		},
		Status:  get(stateStatus),
		Message: get(stateMessage),
		LastRun: cast.ToInt64(get(stateLastRun)),
	}
	if state.Status == "" {
		state.Status = model.RunStatusOK
	}
	return state, nil
}

// LastRun returns 0 when the job has never been checked.
func (s *RunStateStore) LastRun(ctx context.Context, jobID string) (int64, error) {
	raw, ok, err := s.kv.Get(ctx, stateKey(jobID, stateLastRun))
	if err != nil || !ok {
		return 0, err
	}
	return cast.ToInt64E(raw)
}

func (s *RunStateStore) SetLastRun(ctx context.Context, jobID string, ts int64) error {
	return s.kv.Set(ctx, stateKey(jobID, stateLastRun), strconv.FormatInt(ts, 10))
}

// ResetStatus marks the job healthy and clears its message.
func (s *RunStateStore) ResetStatus(ctx context.Context, jobID string) error {
	return s.kv.SetMany(ctx, map[string]string{
		stateKey(jobID, stateStatus):  model.RunStatusOK,
		stateKey(jobID, stateMessage): "",
	})
}
