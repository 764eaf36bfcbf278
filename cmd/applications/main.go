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

type reportStats struct {
	states            int
	statesWithEntries int
	applications      int
}

func printApplication(app models.MortgageApplication, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	detail := common.BoxDetailPrefix(isLast)

	fmt.Printf("%s #%-6d %-28s requested %15s  income %13s\n",
		symbol,
		app.Id,
		app.ApplicantEmail,
		common.FormatAmount(app.RequestedAmount),
		common.FormatAmount(app.YearlyIncome))

	if !app.ApprovedAmount.IsZero() || app.OfferDocumentRef != "" {
		fmt.Printf("%s   approved %s, document %s\n",
			detail,
			common.FormatAmount(app.ApprovedAmount),
			common.FormatDocumentRef(app.OfferDocumentRef))
	}
	fmt.Printf("%s   submitted %s, updated %s (rev %d)\n",
		detail,
		app.SubmittedAt.Format("2006-01-02 15:04:05"),
		app.UpdatedAt.Format("2006-01-02 15:04:05"),
		app.Revision)
}

func printStateHeader(report common.StateReport) {
	fmt.Printf("\n┌─ State: %s\n", report.State)
	fmt.Printf("│  Applications: %d\n", len(report.Applications))
	common.PrintBoxSeparator(78)
}

func generateReport(reports []common.StateReport) reportStats {
	stats := reportStats{}

	for _, report := range reports {
		stats.states++
		if len(report.Applications) == 0 {
			continue
		}
		stats.statesWithEntries++
		stats.applications += len(report.Applications)

		printStateHeader(report)
		for i, app := range report.Applications {
			printApplication(app, i == len(report.Applications)-1)
		}
	}

	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	stateFlag := flag.String("state", "", "Filter by application state (optional)")
	flag.Parse()

	logger.Info("Starting application report")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	reports, err := common.CollectStateReports(ctx, services.Repository, *stateFlag, logger)
	if err != nil {
		logger.Fatal("Failed to collect applications", zap.Error(err))
	}

	common.PrintHeader("MORTGAGE APPLICATION REPORT", common.WideWidth)

	stats := generateReport(reports)

	summary := fmt.Sprintf("SUMMARY: %d applications across %d states (%d states queried)",
		stats.applications, stats.statesWithEntries, stats.states)
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Application report completed",
		zap.Int("states_queried", stats.states),
		zap.Int("applications", stats.applications))
}
