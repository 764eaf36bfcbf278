/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pipeline

import (
	"context"
	"fmt"
	"time"

	"mortgage-ledger-go/internal/models"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Runner executes a named job.
type Runner interface {
	Run(ctx context.Context, job string) (*models.BatchResult, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job string) (*models.BatchResult, error)

func (f RunnerFunc) Run(ctx context.Context, job string) (*models.BatchResult, error) {
	return f(ctx, job)
}

// SchedulerConfig contains configuration for Scheduler
type SchedulerConfig struct {
	Runner          Runner
	NightlySchedule string
	MorningSchedule string
	RunTimeout      time.Duration
}

// Scheduler fires the nightly and morning jobs on cron schedules with
// second precision. Overlapping firings of the same job are skipped.
type Scheduler struct {
	runner     Runner
	cron       *cron.Cron
	runTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	logger := cronLogger{log: zap.L().Named("cron")}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner:     cfg.Runner,
		cron:       c,
		runTimeout: cfg.RunTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}

	jobs := []struct {
		name     string
		schedule string
	}{
		{name: JobProcessApplications, schedule: cfg.NightlySchedule},
		{name: JobSendOffers, schedule: cfg.MorningSchedule},
	}
	for _, job := range jobs {
		name := job.name
		if _, err := c.AddFunc(job.schedule, func() { s.fire(name) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", job.schedule, name, err)
		}
		zap.L().Info("Job scheduled", zap.String("job", name), zap.String("schedule", job.schedule))
	}

	return s, nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	zap.L().Info("Starting scheduler")
	s.cron.Start()
}

// Stop prevents further firings and waits for running jobs to finish or for
// ctx to expire, whichever comes first. Running jobs are cancelled on expiry.
func (s *Scheduler) Stop(ctx context.Context) error {
	zap.L().Info("Stopping scheduler")
	drained := s.cron.Stop()

	select {
	case <-drained.Done():
		s.cancel()
		zap.L().Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("scheduler did not drain: %w", ctx.Err())
	}
}

// Shutdown stops the scheduler and waits at most timeout for running jobs
// before cancelling them. A zero timeout waits until they finish.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.Stop(ctx)
}

// RunOnce executes a job immediately, outside the schedule.
func (s *Scheduler) RunOnce(ctx context.Context, job string) (*models.BatchResult, error) {
	return s.run(ctx, job, TriggerManual)
}

func (s *Scheduler) fire(job string) {
	if _, err := s.run(s.ctx, job, TriggerSchedule); err != nil {
		zap.L().Error("Scheduled job failed", zap.String("job", job), zap.Error(err))
	}
}

func (s *Scheduler) run(ctx context.Context, job, trigger string) (*models.BatchResult, error) {
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	run := &models.JobRun{
		Job:       job,
		RunId:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	zap.L().Info("Job started",
		zap.String("job", job),
		zap.String("run_id", run.RunId),
		zap.String("trigger", trigger))

	return s.runner.Run(models.WithJobRun(ctx, run), job)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
