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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mortgage-ledger-go/internal/store"

	"go.uber.org/zap"
)

func (s *Service) CreateTableIfNotExists(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, queryRegisterTable, table); err != nil {
		return fmt.Errorf("unable to create table %s: %w", table, err)
	}
	zap.L().Debug("Table ready", zap.String("table", table))
	return nil
}

func (s *Service) AddEntity(ctx context.Context, table string, entity store.Entity) (store.Entity, error) {
	properties, err := encodeProperties(entity.Properties)
	if err != nil {
		return store.Entity{}, err
	}
	now := s.now().UTC()

	result, err := s.db.ExecContext(ctx, queryInsertEntity, table, entity.PartitionKey, entity.RowKey, properties, now)
	if err != nil {
		return store.Entity{}, fmt.Errorf("unable to insert entity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.Entity{}, fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.Entity{}, fmt.Errorf("%w: %s/%s/%s", store.ErrEntityExists, table, entity.PartitionKey, entity.RowKey)
	}

	stored := entity.Clone()
	stored.ETag = formatVersion(1)
	stored.Timestamp = now
	return stored, nil
}

func (s *Service) GetEntity(ctx context.Context, table, partitionKey, rowKey string) (store.Entity, error) {
	row := s.db.QueryRowContext(ctx, queryGetEntity, table, partitionKey, rowKey)
	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Entity{}, fmt.Errorf("%w: %s/%s/%s", store.ErrEntityNotFound, table, partitionKey, rowKey)
		}
		return store.Entity{}, fmt.Errorf("unable to query entity: %w", err)
	}
	return entity, nil
}

func (s *Service) UpdateEntity(ctx context.Context, table string, entity store.Entity) (store.Entity, error) {
	if entity.ETag == "" {
		return store.Entity{}, store.ErrMissingETag
	}
	expected, err := strconv.ParseInt(entity.ETag, 10, 64)
	if err != nil {
		return store.Entity{}, fmt.Errorf("%w: malformed etag %q", store.ErrVersionMismatch, entity.ETag)
	}
	properties, err := encodeProperties(entity.Properties)
	if err != nil {
		return store.Entity{}, err
	}
	now := s.now().UTC()

	var version int64
	err = s.db.QueryRowContext(ctx, queryUpdateEntity,
		properties, now, table, entity.PartitionKey, entity.RowKey, expected).Scan(&version)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return store.Entity{}, fmt.Errorf("unable to update entity: %w", err)
		}
		exists, existsErr := s.entityExists(ctx, table, entity.PartitionKey, entity.RowKey)
		if existsErr != nil {
			return store.Entity{}, existsErr
		}
		if !exists {
			return store.Entity{}, fmt.Errorf("%w: %s/%s/%s", store.ErrEntityNotFound, table, entity.PartitionKey, entity.RowKey)
		}
		return store.Entity{}, fmt.Errorf("%w: %s/%s/%s at etag %s", store.ErrVersionMismatch, table, entity.PartitionKey, entity.RowKey, entity.ETag)
	}

	stored := entity.Clone()
	stored.ETag = formatVersion(version)
	stored.Timestamp = now
	return stored, nil
}

func (s *Service) UpsertEntity(ctx context.Context, table string, entity store.Entity) (store.Entity, error) {
	properties, err := encodeProperties(entity.Properties)
	if err != nil {
		return store.Entity{}, err
	}
	now := s.now().UTC()

	var version int64
	err = s.db.QueryRowContext(ctx, queryUpsertEntity,
		table, entity.PartitionKey, entity.RowKey, properties, now).Scan(&version)
	if err != nil {
		return store.Entity{}, fmt.Errorf("unable to upsert entity: %w", err)
	}

	stored := entity.Clone()
	stored.ETag = formatVersion(version)
	stored.Timestamp = now
	return stored, nil
}

func (s *Service) DeleteEntity(ctx context.Context, table, partitionKey, rowKey string) error {
	result, err := s.db.ExecContext(ctx, queryDeleteEntity, table, partitionKey, rowKey)
	if err != nil {
		return fmt.Errorf("unable to delete entity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s/%s", store.ErrEntityNotFound, table, partitionKey, rowKey)
	}
	return nil
}

func (s *Service) QueryEntities(ctx context.Context, table string, filter store.Filter) ([]store.Entity, error) {
	query, args := buildEntityQuery(table, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		zap.L().Error("Failed to query entities", zap.String("table", table), zap.Error(err))
		return nil, fmt.Errorf("unable to query entities: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var entities []store.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			zap.L().Error("Failed to scan entity row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan entity row: %w", err)
		}
		entities = append(entities, entity)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during entity row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating entity rows: %w", err)
	}

	zap.L().Debug("Queried entities",
		zap.String("table", table),
		zap.String("partition", filter.PartitionKey),
		zap.Int("count", len(entities)))
	return entities, nil
}

func (s *Service) entityExists(ctx context.Context, table, partitionKey, rowKey string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryEntityExists, table, partitionKey, rowKey).Scan(&count); err != nil {
		return false, fmt.Errorf("unable to check entity existence: %w", err)
	}
	return count > 0, nil
}

func buildEntityQuery(table string, filter store.Filter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(querySelectEntities)
	args := []any{table}

	if filter.PartitionKey != "" {
		sb.WriteString(" AND partition_key = ?")
		args = append(args, filter.PartitionKey)
	}
	if len(filter.RowKeys) > 0 {
		sb.WriteString(" AND row_key IN (")
		sb.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(filter.RowKeys)), ", "))
		sb.WriteString(")")
		for _, rowKey := range filter.RowKeys {
			args = append(args, rowKey)
		}
	}
	sb.WriteString(orderEntities)
	return sb.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (store.Entity, error) {
	var (
		entity     store.Entity
		properties string
		version    int64
		updatedAt  time.Time
	)
	if err := row.Scan(&entity.PartitionKey, &entity.RowKey, &properties, &version, &updatedAt); err != nil {
		return store.Entity{}, err
	}
	if err := json.Unmarshal([]byte(properties), &entity.Properties); err != nil {
		return store.Entity{}, fmt.Errorf("unable to decode properties: %w", err)
	}
	if entity.Properties == nil {
		entity.Properties = map[string]string{}
	}
	entity.ETag = formatVersion(version)
	entity.Timestamp = updatedAt
	return entity, nil
}

func encodeProperties(properties map[string]string) (string, error) {
	if properties == nil {
		properties = map[string]string{}
	}
	data, err := json.Marshal(properties)
	if err != nil {
		return "", fmt.Errorf("unable to encode properties: %w", err)
	}
	return string(data), nil
}

func formatVersion(version int64) string {
	return strconv.FormatInt(version, 10)
}
