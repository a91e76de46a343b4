package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	block chan struct{}
	err   error
}

func (j *countingJob) Name() string {
	return j.name
}

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestAddJobRejectsBadSpecAndDuplicates(t *testing.T) {
	s := NewCronScheduler()
	require.Error(t, s.AddJob(&countingJob{name: "bad"}, "not a spec"))
	require.NoError(t, s.AddJob(&countingJob{name: "tick"}, "* * * * *"))
	require.Error(t, s.AddJob(&countingJob{name: "tick"}, "@hourly"))
}

func TestNextAfterStart(t *testing.T) {
	s := NewCronScheduler()
	require.NoError(t, s.AddJob(&countingJob{name: "tick"}, "@every 1h"))
	_, ok := s.Next("missing")
	require.False(t, ok)

	s.Start(context.Background())
	defer s.Stop()
	require.Eventually(t, func() bool {
		next, ok := s.Next("tick")
		return ok && next.After(time.Now())
	}, time.Second, 10*time.Millisecond)
}

func TestWrapSkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "slow", block: make(chan struct{}), err: errors.New("boom")}
	run := s.wrap(job)

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	run()
	require.Equal(t, int32(1), job.runs.Load())

	close(job.block)
	<-done
	run()
	require.Equal(t, int32(2), job.runs.Load())
}

func TestWrapSkipsAfterContextDone(t *testing.T) {
	s := NewCronScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
	defer s.Stop()

	job := &countingJob{name: "late"}
	s.wrap(job)()
	require.Zero(t, job.runs.Load())
}
