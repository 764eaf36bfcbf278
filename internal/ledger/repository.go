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

package ledger

import (
	"context"
	"fmt"
	"time"

	"mortgage-ledger-go/internal/counter"
	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Repository is the public surface over the application store, the income
// ledger and the id sequencer.
type Repository struct {
	applications *ApplicationStore
	incomes      *IncomeLedger
	ids          counter.Sequencer
	now          func() time.Time
}

func NewRepository(table store.TableStore, ids counter.Sequencer) *Repository {
	return &Repository{
		applications: NewApplicationStore(table),
		incomes:      NewIncomeLedger(table),
		ids:          ids,
		now:          time.Now,
	}
}

// EnsureTables creates the applications and income tables.
func (r *Repository) EnsureTables(ctx context.Context) error {
	if err := r.applications.EnsureTable(ctx); err != nil {
		return fmt.Errorf("unable to create %s: %w", ApplicationsTable, err)
	}
	if err := r.incomes.EnsureTable(ctx); err != nil {
		return fmt.Errorf("unable to create %s: %w", IncomeTable, err)
	}
	return nil
}

// SaveNewApplication allocates an id and stores the application. State
// defaults to AwaitingReview and SubmittedAt to now.
func (r *Repository) SaveNewApplication(ctx context.Context, app *models.MortgageApplication) (*models.MortgageApplication, error) {
	id, err := r.ids.NextId(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to allocate application id: %w", err)
	}

	saved := *app
	saved.Id = id
	if saved.State == "" {
		saved.State = models.StateAwaitingReview
	}
	if saved.SubmittedAt.IsZero() {
		saved.SubmittedAt = r.now().UTC()
	}
	saved.UpdatedAt = saved.SubmittedAt

	if err := r.applications.Insert(ctx, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// SaveApplicantIncome records the income snapshot of an application under its
// submission month.
func (r *Repository) SaveApplicantIncome(ctx context.Context, app *models.MortgageApplication) error {
	return r.incomes.Record(ctx, models.ApplicantIncome{
		Month:          models.IncomeMonth(app.SubmittedAt),
		ApplicationId:  app.Id,
		ApplicantEmail: app.ApplicantEmail,
		YearlyIncome:   app.YearlyIncome,
		RecordedAt:     r.now().UTC(),
	})
}

// SubmitApplication validates an intake request, stores the application and
// records the applicant's income. When only the income write fails, the stored
// application is returned along with ErrIncomeNotRecorded.
func (r *Repository) SubmitApplication(ctx context.Context, req models.CreateApplicationRequest) (*models.MortgageApplication, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidApplication, err)
	}

	app, err := r.SaveNewApplication(ctx, &models.MortgageApplication{
		ApplicantEmail:  req.ApplicantEmail,
		ApplicantName:   req.ApplicantName,
		YearlyIncome:    req.YearlyIncome,
		RequestedAmount: req.RequestedAmount,
		PropertyId:      req.PropertyId,
	})
	if err != nil {
		return nil, err
	}

	if err := r.SaveApplicantIncome(ctx, app); err != nil {
		zap.L().Error("Application stored but income snapshot failed",
			zap.Int64("application_id", app.Id),
			zap.Error(err))
		return app, fmt.Errorf("%w: %w", ErrIncomeNotRecorded, err)
	}

	zap.L().Info("Application submitted",
		zap.Int64("application_id", app.Id),
		zap.String("email", app.ApplicantEmail),
		zap.String("requested_amount", app.RequestedAmount.String()))
	return app, nil
}

// GetApplicationById returns nil, nil when no application has the id.
func (r *Repository) GetApplicationById(ctx context.Context, id int64) (*models.MortgageApplication, error) {
	return r.applications.FindById(ctx, id)
}

func (r *Repository) ListByState(ctx context.Context, state models.ApplicationState) ([]models.MortgageApplication, error) {
	return r.applications.ScanPartition(ctx, state)
}

// TransitionState moves an application to newState if the lifecycle allows it.
func (r *Repository) TransitionState(ctx context.Context, id int64, newState models.ApplicationState) (*models.MortgageApplication, error) {
	if !newState.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, newState)
	}

	current, err := r.applications.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %d", ErrApplicationNotFound, id)
	}
	if !current.State.CanTransitionTo(newState) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.State, newState)
	}

	return r.applications.Move(ctx, id, current.State, newState)
}

// Move is the pipeline's transition primitive; it does not enforce the
// lifecycle graph.
func (r *Repository) Move(ctx context.Context, id int64, from, to models.ApplicationState, mutations ...Mutation) (*models.MortgageApplication, error) {
	return r.applications.Move(ctx, id, from, to, mutations...)
}

func (r *Repository) ReconcileDuplicates(ctx context.Context) (int, error) {
	return r.applications.ReconcileDuplicates(ctx)
}

func (r *Repository) IncomeForMonth(ctx context.Context, month string) ([]models.ApplicantIncome, error) {
	return r.incomes.ForMonth(ctx, month)
}
