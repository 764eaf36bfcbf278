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

	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/store"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const IncomeTable = "ApplicantIncome"

// IncomeLedger records income snapshots per submission month. Writes are
// upserts so a retried submission overwrites rather than fails.
type IncomeLedger struct {
	table       store.TableStore
	maxAttempts uint
}

func NewIncomeLedger(table store.TableStore) *IncomeLedger {
	return &IncomeLedger{table: table, maxAttempts: 3}
}

func (l *IncomeLedger) EnsureTable(ctx context.Context) error {
	return l.table.CreateTableIfNotExists(ctx, IncomeTable)
}

func (l *IncomeLedger) Record(ctx context.Context, income models.ApplicantIncome) error {
	if income.Month == "" {
		return fmt.Errorf("income record for application %d has no month", income.ApplicationId)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 50 * time.Millisecond
	_, err := backoff.Retry(ctx, func() (store.Entity, error) {
		return l.table.UpsertEntity(ctx, IncomeTable, incomeToEntity(income))
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(l.maxAttempts))
	if err != nil {
		return fmt.Errorf("unable to record income for application %d: %w", income.ApplicationId, err)
	}

	zap.L().Debug("Income recorded",
		zap.Int64("application_id", income.ApplicationId),
		zap.String("month", income.Month))
	return nil
}

// ForMonth returns every income recorded in a YYYY-MM bucket.
func (l *IncomeLedger) ForMonth(ctx context.Context, month string) ([]models.ApplicantIncome, error) {
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", month, err)
	}

	entities, err := l.table.QueryEntities(ctx, IncomeTable, store.Filter{PartitionKey: month})
	if err != nil {
		return nil, fmt.Errorf("unable to query incomes for %s: %w", month, err)
	}

	incomes := make([]models.ApplicantIncome, 0, len(entities))
	for _, entity := range entities {
		income, err := entityToIncome(entity)
		if err != nil {
			return nil, err
		}
		incomes = append(incomes, income)
	}
	return incomes, nil
}
