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

	"go.uber.org/zap"
)

type transitionRequest struct {
	id    int64
	state models.ApplicationState
}

func parseAndValidateFlags() (*transitionRequest, error) {
	idFlag := flag.Int64("id", 0, "Application id (required)")
	stateFlag := flag.String("state", "", "Target state, e.g. UnderProcessing or Declined (required)")
	flag.Parse()

	if *idFlag <= 0 || *stateFlag == "" {
		return nil, fmt.Errorf("all flags are required: --id, --state")
	}

	state, err := models.ParseApplicationState(*stateFlag)
	if err != nil {
		return nil, err
	}

	return &transitionRequest{id: *idFlag, state: state}, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid arguments", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	before, err := services.Repository.GetApplicationById(ctx, req.id)
	if err != nil {
		zap.L().Fatal("Failed to read application", zap.Int64("id", req.id), zap.Error(err))
	}
	if before == nil {
		zap.L().Fatal("Application not found", zap.Int64("id", req.id))
	}

	if before.State == req.state {
		fmt.Printf("\nApplication #%d is already %s\n\n", before.Id, before.State)
		return
	}

	app, err := services.Repository.TransitionState(ctx, req.id, req.state)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidTransition):
			zap.L().Fatal("Transition not allowed by the application lifecycle",
				zap.String("from", before.State.String()),
				zap.String("to", req.state.String()))
		case errors.Is(err, ledger.ErrConcurrentTransition), errors.Is(err, ledger.ErrStateMismatch):
			zap.L().Fatal("Application changed while transitioning, retry", zap.Error(err))
		default:
			zap.L().Fatal("Failed to transition application", zap.Error(err))
		}
	}

	fmt.Println()
	common.PrintHeader("APPLICATION TRANSITIONED", common.DefaultWidth)
	fmt.Printf("ID:       %d\n", app.Id)
	fmt.Printf("From:     %s\n", before.State)
	fmt.Printf("To:       %s\n", app.State)
	fmt.Printf("Revision: %d\n", app.Revision)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}
