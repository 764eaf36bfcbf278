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

package common

import (
	"context"
	"fmt"

	"mortgage-ledger-go/internal/models"

	"go.uber.org/zap"
)

// StateReport lists the applications found in one state.
type StateReport struct {
	State        models.ApplicationState
	Applications []models.MortgageApplication
}

type applicationLister interface {
	ListByState(ctx context.Context, state models.ApplicationState) ([]models.MortgageApplication, error)
}

// CollectStateReports lists the requested state, or every state when
// stateFilter is empty.
func CollectStateReports(ctx context.Context, lister applicationLister, stateFilter string, logger *zap.Logger) ([]StateReport, error) {
	states := models.AllStates
	if stateFilter != "" {
		state, err := models.ParseApplicationState(stateFilter)
		if err != nil {
			return nil, err
		}
		logger.Info("Filtering by state", zap.String("state", state.String()))
		states = []models.ApplicationState{state}
	}

	reports := make([]StateReport, 0, len(states))
	total := 0
	for _, state := range states {
		apps, err := lister.ListByState(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s applications: %w", state, err)
		}
		reports = append(reports, StateReport{State: state, Applications: apps})
		total += len(apps)
	}

	logger.Info("Retrieved applications", zap.Int("states", len(reports)), zap.Int("count", total))
	return reports, nil
}
