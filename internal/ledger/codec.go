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
	"fmt"
	"strconv"
	"time"

	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

const (
	propApplicantEmail   = "ApplicantEmail"
	propApplicantName    = "ApplicantName"
	propYearlyIncome     = "YearlyIncome"
	propRequestedAmount  = "RequestedAmount"
	propPropertyId       = "PropertyId"
	propSubmittedAt      = "SubmittedAt"
	propOfferDocumentRef = "OfferDocumentRef"
	propApprovedAmount   = "ApprovedAmount"
	propRevision         = "Revision"
	propUpdatedAt        = "UpdatedAt"

	propApplicationId = "ApplicationId"
	propRecordedAt    = "RecordedAt"
)

func rowKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func applicationToEntity(app models.MortgageApplication) store.Entity {
	properties := map[string]string{
		propApplicantEmail:  app.ApplicantEmail,
		propApplicantName:   app.ApplicantName,
		propYearlyIncome:    app.YearlyIncome.String(),
		propRequestedAmount: app.RequestedAmount.String(),
		propPropertyId:      strconv.FormatInt(app.PropertyId, 10),
		propSubmittedAt:     app.SubmittedAt.UTC().Format(time.RFC3339Nano),
		propRevision:        strconv.FormatInt(app.Revision, 10),
		propUpdatedAt:       app.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if app.OfferDocumentRef != "" {
		properties[propOfferDocumentRef] = app.OfferDocumentRef
	}
	if !app.ApprovedAmount.IsZero() {
		properties[propApprovedAmount] = app.ApprovedAmount.String()
	}

	return store.Entity{
		PartitionKey: app.State.String(),
		RowKey:       rowKey(app.Id),
		Properties:   properties,
	}
}

func entityToApplication(entity store.Entity) (models.MortgageApplication, error) {
	var app models.MortgageApplication
	var err error

	if app.Id, err = strconv.ParseInt(entity.RowKey, 10, 64); err != nil {
		return app, fmt.Errorf("invalid application row key %q: %w", entity.RowKey, err)
	}
	state, err := models.ParseApplicationState(entity.PartitionKey)
	if err != nil {
		return app, err
	}
	app.State = state

	app.ApplicantEmail = entity.Get(propApplicantEmail)
	app.ApplicantName = entity.Get(propApplicantName)
	app.OfferDocumentRef = entity.Get(propOfferDocumentRef)

	if app.YearlyIncome, err = parseDecimal(entity, propYearlyIncome); err != nil {
		return app, err
	}
	if app.RequestedAmount, err = parseDecimal(entity, propRequestedAmount); err != nil {
		return app, err
	}
	if app.ApprovedAmount, err = parseDecimal(entity, propApprovedAmount); err != nil {
		return app, err
	}
	if app.PropertyId, err = parseInt(entity, propPropertyId); err != nil {
		return app, err
	}
	if app.Revision, err = parseInt(entity, propRevision); err != nil {
		return app, err
	}
	if app.SubmittedAt, err = parseTime(entity, propSubmittedAt); err != nil {
		return app, err
	}
	if app.UpdatedAt, err = parseTime(entity, propUpdatedAt); err != nil {
		return app, err
	}
	return app, nil
}

func incomeToEntity(income models.ApplicantIncome) store.Entity {
	return store.Entity{
		PartitionKey: income.Month,
		RowKey:       rowKey(income.ApplicationId),
		Properties: map[string]string{
			propApplicantEmail: income.ApplicantEmail,
			propYearlyIncome:   income.YearlyIncome.String(),
			propApplicationId:  rowKey(income.ApplicationId),
			propRecordedAt:     income.RecordedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func entityToIncome(entity store.Entity) (models.ApplicantIncome, error) {
	income := models.ApplicantIncome{
		Month:          entity.PartitionKey,
		ApplicantEmail: entity.Get(propApplicantEmail),
	}
	var err error
	if income.ApplicationId, err = strconv.ParseInt(entity.RowKey, 10, 64); err != nil {
		return income, fmt.Errorf("invalid income row key %q: %w", entity.RowKey, err)
	}
	if income.YearlyIncome, err = parseDecimal(entity, propYearlyIncome); err != nil {
		return income, err
	}
	if income.RecordedAt, err = parseTime(entity, propRecordedAt); err != nil {
		return income, err
	}
	return income, nil
}

func parseDecimal(entity store.Entity, key string) (decimal.Decimal, error) {
	value := entity.Get(key)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q on row %s: %w", key, value, entity.RowKey, err)
	}
	return d, nil
}

func parseInt(entity store.Entity, key string) (int64, error) {
	value := entity.Get(key)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q on row %s: %w", key, value, entity.RowKey, err)
	}
	return n, nil
}

func parseTime(entity store.Entity, key string) (time.Time, error) {
	value := entity.Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q on row %s: %w", key, value, entity.RowKey, err)
	}
	return t, nil
}
