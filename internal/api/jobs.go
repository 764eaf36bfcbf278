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

	"mortgage-ledger-go/internal/models"

	"go.uber.org/zap"
)

// TriggerJob runs a batch job immediately and returns its summary.
func (s *LedgerService) TriggerJob(ctx context.Context, job string) (*models.BatchResult, error) {
	zap.L().Info("Manual job trigger", zap.String("job", job))

	result, err := s.jobs.Run(ctx, job)
	if err != nil {
		zap.L().Error("Manual job failed", zap.String("job", job), zap.Error(err))
		return result, err
	}
	return result, nil
}
