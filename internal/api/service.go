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

package api

import (
	"context"
	"fmt"

	"mortgage-ledger-go/internal/ledger"
	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/pipeline"
)

// Applications is the ledger surface exposed over HTTP.
type Applications interface {
	SubmitApplication(ctx context.Context, req models.CreateApplicationRequest) (*models.MortgageApplication, error)
	GetApplicationById(ctx context.Context, id int64) (*models.MortgageApplication, error)
	ListByState(ctx context.Context, state models.ApplicationState) ([]models.MortgageApplication, error)
	TransitionState(ctx context.Context, id int64, newState models.ApplicationState) (*models.MortgageApplication, error)
}

// Compile-time check: *ledger.Repository must satisfy Applications.
var _ Applications = (*ledger.Repository)(nil)

// LedgerService provides minimal API
type LedgerService struct {
	applications Applications
	jobs         pipeline.Runner
}

// NewLedgerService wires the HTTP-facing service. Either dependency may be
// nil, in which case the matching routes are not registered.
func NewLedgerService(applications Applications, jobs pipeline.Runner) *LedgerService {
	return &LedgerService{
		applications: applications,
		jobs:         jobs,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if s.applications == nil {
		return nil
	}
	_, err := s.applications.ListByState(ctx, models.StateAwaitingReview)
	if err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}
