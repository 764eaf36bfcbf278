package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"mortgage-ledger-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu   sync.Mutex
	runs []models.JobRun
	jobs []string
}

func (r *recordingRunner) Run(ctx context.Context, job string) (*models.BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run := models.GetJobRun(ctx); run != nil {
		r.runs = append(r.runs, *run)
	}
	r.jobs = append(r.jobs, job)
	return &models.BatchResult{Job: job}, nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func TestNewSchedulerRejectsInvalidSchedule(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{
		Runner:          &recordingRunner{},
		NightlySchedule: "0 0 23 * *",
		MorningSchedule: "0 0 9 * * *",
	})
	assert.ErrorContains(t, err, JobProcessApplications)
}

func TestRunOnceAttachesJobRun(t *testing.T) {
	runner := &recordingRunner{}
	s, err := NewScheduler(SchedulerConfig{
		Runner:          runner,
		NightlySchedule: "0 0 23 * * *",
		MorningSchedule: "0 0 9 * * *",
		RunTimeout:      time.Minute,
	})
	require.NoError(t, err)

	result, err := s.RunOnce(context.Background(), JobSendOffers)
	require.NoError(t, err)
	assert.Equal(t, JobSendOffers, result.Job)

	require.Len(t, runner.runs, 1)
	assert.Equal(t, JobSendOffers, runner.runs[0].Job)
	assert.Equal(t, TriggerManual, runner.runs[0].Trigger)
	assert.NotEmpty(t, runner.runs[0].RunId)
}

func TestSchedulerFiresAndStops(t *testing.T) {
	runner := &recordingRunner{}
	s, err := NewScheduler(SchedulerConfig{
		Runner:          runner,
		NightlySchedule: "* * * * * *",
		MorningSchedule: "0 0 9 1 1 *",
	})
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return runner.count() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, JobProcessApplications, runner.jobs[0])
	assert.Equal(t, TriggerSchedule, runner.runs[0].Trigger)
}

// blockingRunner holds every run until released or cancelled.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, job string) (*models.BatchResult, error) {
	r.once.Do(func() { close(r.started) })
	select {
	case <-r.release:
		return &models.BatchResult{Job: job}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func startBlockedScheduler(t *testing.T, runner *blockingRunner) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerConfig{
		Runner:          runner,
		NightlySchedule: "* * * * * *",
		MorningSchedule: "0 0 9 1 1 *",
	})
	require.NoError(t, err)

	s.Start()
	select {
	case <-runner.started:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job never started")
	}
	return s
}

func TestShutdownWithoutTimeoutWaitsForRunningJob(t *testing.T) {
	runner := newBlockingRunner()
	s := startBlockedScheduler(t, runner)

	done := make(chan error, 1)
	go func() { done <- s.Shutdown(0) }()

	select {
	case err := <-done:
		t.Fatalf("shutdown returned while a job was running: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	close(runner.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown did not return after the job finished")
	}
}

func TestShutdownTimeoutCancelsRunningJob(t *testing.T) {
	runner := newBlockingRunner()
	s := startBlockedScheduler(t, runner)

	err := s.Shutdown(50 * time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
