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

	"mortgage-ledger-go/internal/common"
	"mortgage-ledger-go/internal/config"
	"mortgage-ledger-go/internal/models"

	"go.uber.org/zap"
)

type seedStats struct {
	created int
	failed  []string
}

// seedApplications submits every application in the seed file. A failing
// entry is logged and the rest are still submitted.
func seedApplications(ctx context.Context, services *common.Services, seedFile string) seedStats {
	zap.L().Info("Loading application seeds", zap.String("file", seedFile))
	requests, err := common.LoadApplicationSeeds(seedFile)
	if err != nil {
		zap.L().Fatal("Failed to load application seeds", zap.Error(err))
	}
	zap.L().Info("Application seeds loaded", zap.Int("count", len(requests)))

	stats := seedStats{}
	for _, req := range requests {
		app, err := services.Repository.SubmitApplication(ctx, req)
		if err != nil && app == nil {
			zap.L().Error("Failed to submit seeded application",
				zap.String("email", req.ApplicantEmail),
				zap.Error(err))
			stats.failed = append(stats.failed, req.ApplicantEmail)
			continue
		}
		if err != nil {
			zap.L().Warn("Seeded application stored without income snapshot",
				zap.Int64("application_id", app.Id),
				zap.Error(err))
		}
		stats.created++
		fmt.Printf("✓ #%d %s (%s) requests %s on income %s\n",
			app.Id, app.ApplicantName, app.ApplicantEmail,
			common.FormatAmount(app.RequestedAmount), common.FormatAmount(app.YearlyIncome))
	}

	if len(stats.failed) > 0 {
		zap.L().Warn("Seeding completed with some failures",
			zap.Int("created", stats.created),
			zap.Strings("failed", stats.failed))
	} else {
		zap.L().Info("Seeding completed successfully", zap.Int("created", stats.created))
	}
	return stats
}

func reconcile(ctx context.Context, services *common.Services) {
	removed, err := services.Repository.ReconcileDuplicates(ctx)
	if err != nil {
		zap.L().Fatal("Failed to reconcile duplicate applications", zap.Error(err))
	}
	zap.L().Info("Reconciliation complete", zap.Int("removed", removed))
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	seedFlag := flag.String("seed", "", "Optional YAML file of applications to submit")
	reconcileFlag := flag.Bool("reconcile", false, "Remove stale copies left by interrupted state transitions")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Tables and the id counter are created during initialization.
	zap.L().Info("Setting up table store", zap.String("backend", cfg.Store.Backend))
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader("STORE READY", common.DefaultWidth)
	fmt.Printf("Backend: %s\n", cfg.Store.Backend)
	for _, state := range models.AllStates {
		fmt.Printf("%s partition: %s\n", common.BoxPrefix(state == models.StateOfferDelivered), state)
	}
	common.PrintSeparator("=", common.DefaultWidth)

	if *reconcileFlag {
		reconcile(ctx, services)
	}

	if *seedFlag == "" {
		return
	}

	stats := seedApplications(ctx, services, *seedFlag)
	common.PrintFooter(fmt.Sprintf("SEEDED: %d applications (%d failed)", stats.created, len(stats.failed)), common.DefaultWidth)
}
