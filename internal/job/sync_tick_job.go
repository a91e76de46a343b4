package job

import (
	"context"
)

type Ticker interface {
	Tick(ctx context.Context) error
}

// SyncTickJob hands every scheduler tick to the sync gate, which decides
// which jobs are due.
type SyncTickJob struct {
	gate Ticker
}

func NewSyncTickJob(gate Ticker) *SyncTickJob {
	return &SyncTickJob{gate: gate}
}

func (j *SyncTickJob) Name() string {
	return "sync_tick"
}

func (j *SyncTickJob) Run(ctx context.Context) error {
	if j.gate == nil {
		return nil
	}
	return j.gate.Tick(ctx)
}
