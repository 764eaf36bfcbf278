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

package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"mortgage-ledger-go/internal/api"
	"mortgage-ledger-go/internal/common"
	"mortgage-ledger-go/internal/config"
	"mortgage-ledger-go/internal/pipeline"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var onceJobs = map[string]string{
	"nightly": pipeline.JobProcessApplications,
	"morning": pipeline.JobSendOffers,
}

func runOnce(ctx context.Context, scheduler *pipeline.Scheduler, job string) error {
	summary, err := scheduler.RunOnce(ctx, job)
	if summary != nil {
		common.PrintHeader(fmt.Sprintf("JOB %s", job), common.DefaultWidth)
		fmt.Printf("Processed:  %d\n", summary.Processed)
		fmt.Printf("Approved:   %d\n", summary.Approved)
		fmt.Printf("Rejected:   %d\n", summary.Rejected)
		fmt.Printf("Sent:       %d\n", summary.Sent)
		fmt.Printf("Failed:     %d\n", summary.Failed)
		fmt.Printf("Reconciled: %d\n", summary.Reconciled)
		fmt.Printf("Duration:   %s\n", summary.Duration.Round(time.Millisecond))
		common.PrintSeparator("=", common.DefaultWidth)
	}
	return err
}

func main() {
	onceFlag := flag.String("once", "", "Run one job immediately and exit: nightly or morning")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting mortgage batch scheduler")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	batch, err := services.InitializePipeline(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize pipeline", zap.Error(err))
	}

	scheduler, err := pipeline.NewScheduler(pipeline.SchedulerConfig{
		Runner:          batch,
		NightlySchedule: cfg.Pipeline.NightlySchedule,
		MorningSchedule: cfg.Pipeline.MorningSchedule,
		RunTimeout:      cfg.Pipeline.RunTimeout,
	})
	if err != nil {
		zap.L().Fatal("Failed to create scheduler", zap.Error(err))
	}

	if *onceFlag != "" {
		job, ok := onceJobs[*onceFlag]
		if !ok {
			zap.L().Fatal("Unknown job for -once (expected nightly or morning)", zap.String("once", *onceFlag))
		}
		if err := runOnce(ctx, scheduler, job); err != nil {
			zap.L().Error("Job failed", zap.String("job", job), zap.Error(err))
		}
		return
	}

	server := api.NewServer(cfg.Server.SchedulerAddr,
		api.NewLedgerService(services.Repository, pipeline.RunnerFunc(scheduler.RunOnce)))

	scheduler.Start()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gCtx)
	})
	g.Go(func() error {
		<-gCtx.Done()
		return scheduler.Shutdown(cfg.Pipeline.ShutdownTimeout)
	})

	zap.L().Info("Scheduler running; press Ctrl+C to stop",
		zap.String("nightly", cfg.Pipeline.NightlySchedule),
		zap.String("morning", cfg.Pipeline.MorningSchedule),
		zap.String("trigger_addr", cfg.Server.SchedulerAddr))

	if err := g.Wait(); err != nil {
		zap.L().Error("Scheduler stopped with error", zap.Error(err))
		return
	}
	zap.L().Info("Scheduler stopped gracefully")
}
