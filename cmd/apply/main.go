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
	"errors"
	"flag"
	"fmt"

	"mortgage-ledger-go/internal/common"
	"mortgage-ledger-go/internal/config"
	"mortgage-ledger-go/internal/ledger"
	"mortgage-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func parseFlags() (models.CreateApplicationRequest, error) {
	nameFlag := flag.String("name", "", "Applicant's full name (required)")
	emailFlag := flag.String("email", "", "Applicant's email address (required)")
	incomeFlag := flag.String("income", "", "Yearly income (required)")
	amountFlag := flag.String("amount", "", "Requested loan amount (required)")
	propertyFlag := flag.Int64("property", 0, "Property id (required)")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" || *incomeFlag == "" || *amountFlag == "" || *propertyFlag == 0 {
		return models.CreateApplicationRequest{}, fmt.Errorf("all flags are required: --name, --email, --income, --amount, --property")
	}

	income, err := decimal.NewFromString(*incomeFlag)
	if err != nil {
		return models.CreateApplicationRequest{}, fmt.Errorf("invalid income format: %w", err)
	}
	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return models.CreateApplicationRequest{}, fmt.Errorf("invalid amount format: %w", err)
	}

	req := models.CreateApplicationRequest{
		ApplicantEmail:  *emailFlag,
		ApplicantName:   *nameFlag,
		YearlyIncome:    income,
		RequestedAmount: amount,
		PropertyId:      *propertyFlag,
	}
	if err := req.Validate(); err != nil {
		return models.CreateApplicationRequest{}, err
	}
	return req, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseFlags()
	if err != nil {
		zap.L().Fatal("Invalid application", zap.Error(err))
	}

	zap.L().Info("Starting application submission",
		zap.String("name", req.ApplicantName),
		zap.String("email", req.ApplicantEmail))

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	app, err := services.Repository.SubmitApplication(ctx, req)
	if err != nil && app == nil {
		if errors.Is(err, ledger.ErrDuplicateApplication) {
			zap.L().Fatal("Application id already in use; check the counter", zap.Error(err))
		}
		zap.L().Fatal("Failed to submit application", zap.Error(err))
	}
	if err != nil {
		zap.L().Warn("Application stored but income snapshot failed", zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("APPLICATION SUBMITTED", common.DefaultWidth)
	fmt.Printf("ID:        %d\n", app.Id)
	fmt.Printf("Name:      %s\n", app.ApplicantName)
	fmt.Printf("Email:     %s\n", app.ApplicantEmail)
	fmt.Printf("Income:    %s\n", common.FormatAmount(app.YearlyIncome))
	fmt.Printf("Requested: %s\n", common.FormatAmount(app.RequestedAmount))
	fmt.Printf("Property:  %d\n", app.PropertyId)
	fmt.Printf("State:     %s\n", app.State)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("Application submitted successfully", zap.Int64("id", app.Id))
}
