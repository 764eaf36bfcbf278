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
	"time"

	"mortgage-ledger-go/internal/common"
	"mortgage-ledger-go/internal/config"
	"mortgage-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	monthFlag := flag.String("month", models.IncomeMonth(time.Now()), "Month to report in YYYY-MM (default: current month, UTC)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	incomes, err := services.Repository.IncomeForMonth(ctx, *monthFlag)
	if err != nil {
		zap.L().Fatal("Failed to read income ledger", zap.String("month", *monthFlag), zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("APPLICANT INCOME LEDGER %s", *monthFlag), common.DefaultWidth)

	total := decimal.Zero
	for i, income := range incomes {
		fmt.Printf("%s #%-6d %-36s %16s\n",
			common.BoxPrefix(i == len(incomes)-1),
			income.ApplicationId,
			income.ApplicantEmail,
			common.FormatAmount(income.YearlyIncome))
		total = total.Add(income.YearlyIncome)
	}

	average := decimal.Zero
	if len(incomes) > 0 {
		average = total.Div(decimal.NewFromInt(int64(len(incomes)))).Round(2)
	}

	common.PrintFooter(fmt.Sprintf("SUMMARY: %d applicants, total %s, average %s",
		len(incomes), common.FormatAmount(total), common.FormatAmount(average)), common.DefaultWidth)

	zap.L().Info("Income report completed",
		zap.String("month", *monthFlag),
		zap.Int("applicants", len(incomes)),
		zap.String("total", total.String()))
}
