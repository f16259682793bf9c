package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/evquant/pkg/logger"
)

type countingJob struct {
	name     string
	schedule string
	failures int32 // attempts that fail before succeeding
	runs     atomic.Int32
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return j.schedule }
func (j *countingJob) Run(ctx context.Context) error {
	if j.runs.Add(1) <= j.failures {
		return errors.New("upstream timeout")
	}
	return nil
}

func newTestScheduler() *Scheduler {
	return New(logger.Nop(), time.UTC, WithRetry(2, time.Millisecond))
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddJob(&countingJob{name: "b", schedule: "0 0 18 * * *"}))
	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "@daily"}))
	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	assert.Error(t, s.AddJob(&countingJob{name: "a", schedule: "@daily"}))
	assert.Error(t, s.AddJob(&countingJob{name: "c", schedule: "not a schedule"}))
}

func TestRemoveJob(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "@daily"}))

	require.NoError(t, s.RemoveJob("a"))
	assert.Empty(t, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("a"))
}

func TestRunJob_Retries(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "flaky", schedule: "@daily", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(3), job.runs.Load())

	history, err := s.GetJobHistory("flaky")
	require.NoError(t, err)
	require.Len(t, history.Results, 1)
	assert.Equal(t, 1.0, history.GetSuccessRate())
}

func TestRunJob_GivesUp(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "broken", schedule: "@daily", failures: 100}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "upstream timeout", result.Error)
	assert.Equal(t, int32(3), job.runs.Load())

	stats := s.GetJobStats()["broken"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	require.NotNil(t, stats.LastFailure)
	assert.Nil(t, stats.LastSuccess)
}

func TestRunJob_StopsRetryingWhenCancelled(t *testing.T) {
	s := New(logger.Nop(), time.UTC, WithRetry(5, time.Hour))
	job := &countingJob{name: "broken", schedule: "@daily", failures: 100}
	require.NoError(t, s.AddJob(job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.RunJob(ctx, "broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestRunJob_Unknown(t *testing.T) {
	_, err := newTestScheduler().RunJob(context.Background(), "missing")
	assert.Error(t, err)

	_, err = newTestScheduler().GetJobHistory("missing")
	assert.Error(t, err)
}

func TestNextRun(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "0 0 18 * * *"}))

	s.Start()
	defer s.Stop()

	next, err := s.NextRun("a")
	require.NoError(t, err)
	assert.Equal(t, 18, next.Hour())
	assert.True(t, next.After(time.Now()))
}

func TestNextRun_BeforeStart(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "0 30 15 * * MON-FRI"}))

	next, err := s.NextRun("a")
	require.NoError(t, err)
	assert.Equal(t, 15, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.NotEqual(t, time.Saturday, next.Weekday())
	assert.NotEqual(t, time.Sunday, next.Weekday())

	_, err = s.NextRun("missing")
	assert.Error(t, err)
}

func TestJobHistory_Bounded(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < maxHistory+5; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, maxHistory)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Empty(t, (&JobHistory{}).GetLatestResults(3))
	assert.Equal(t, 0.0, (&JobHistory{}).GetSuccessRate())
}
