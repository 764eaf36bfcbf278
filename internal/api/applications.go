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
	"errors"
	"fmt"

	"mortgage-ledger-go/internal/ledger"
	"mortgage-ledger-go/internal/models"

	"go.uber.org/zap"
)

// SubmitApplication stores a new application. A failed income snapshot is a
// store failure like any other and is returned to the caller.
func (s *LedgerService) SubmitApplication(ctx context.Context, req models.CreateApplicationRequest) (*models.MortgageApplication, error) {
	zap.L().Info("Submitting mortgage application",
		zap.String("email", req.ApplicantEmail),
		zap.String("yearly_income", req.YearlyIncome.String()),
		zap.String("requested_amount", req.RequestedAmount.String()),
		zap.Int64("property_id", req.PropertyId))

	app, err := s.applications.SubmitApplication(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidApplication):
			zap.L().Info("Rejected invalid application", zap.Error(err))
		case app != nil:
			zap.L().Error("Application stored without income snapshot",
				zap.Int64("application_id", app.Id),
				zap.Error(err))
		default:
			zap.L().Error("Application submission failed", zap.Error(err))
		}
		return nil, err
	}
	return app, nil
}

// GetApplication returns ledger.ErrApplicationNotFound for unknown ids.
func (s *LedgerService) GetApplication(ctx context.Context, id int64) (*models.MortgageApplication, error) {
	app, err := s.applications.GetApplicationById(ctx, id)
	if err != nil {
		zap.L().Error("Failed to get application", zap.Int64("application_id", id), zap.Error(err))
		return nil, err
	}
	if app == nil {
		return nil, fmt.Errorf("%w: %d", ledger.ErrApplicationNotFound, id)
	}
	return app, nil
}

// ListApplications returns the applications in a state given by name.
func (s *LedgerService) ListApplications(ctx context.Context, state string) (*models.ApplicationsResponse, error) {
	parsed, err := models.ParseApplicationState(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidState, err)
	}

	apps, err := s.applications.ListByState(ctx, parsed)
	if err != nil {
		zap.L().Error("Failed to list applications", zap.String("state", parsed.String()), zap.Error(err))
		return nil, err
	}
	if apps == nil {
		apps = []models.MortgageApplication{}
	}

	return &models.ApplicationsResponse{
		State:        parsed,
		Count:        len(apps),
		Applications: apps,
	}, nil
}

// UpdateStatus applies a manual lifecycle transition.
func (s *LedgerService) UpdateStatus(ctx context.Context, id int64, status string) (*models.MortgageApplication, error) {
	next, err := models.ParseApplicationState(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidState, err)
	}

	app, err := s.applications.TransitionState(ctx, id, next)
	if err != nil {
		zap.L().Warn("Status update rejected",
			zap.Int64("application_id", id),
			zap.String("status", next.String()),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Application status updated",
		zap.Int64("application_id", id),
		zap.String("status", app.State.String()))
	return app, nil
}
