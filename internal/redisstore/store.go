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

package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/store"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time checks: *Store must satisfy store.TableStore and store.Incrementer.
var (
	_ store.TableStore  = (*Store)(nil)
	_ store.Incrementer = (*Store)(nil)
)

// Optimistic retries for unconditional writes (upsert, delete) that race with
// another writer on the same key.
const (
	maxTxRetries     = 10
	txInitialBackoff = 2 * time.Millisecond
	txMaxBackoff     = 100 * time.Millisecond
)

const mgetBatch = 500

// Store keeps each entity as a JSON document under its own key and tracks
// partition membership in sets:
//
//	<prefix>:<table>:e:<partition>:<row>  entity document
//	<prefix>:<table>:p:<partition>        set of row keys
//	<prefix>:<table>:partitions           set of partition keys
type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type document struct {
	Properties map[string]string `json:"properties"`
	Version    int64             `json:"version"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func NewStore(ctx context.Context, cfg models.RedisConfig) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	zap.L().Info("Connecting to Redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	zap.L().Info("Redis store initialized successfully")
	return NewFromClient(client, cfg.KeyPrefix), nil
}

// NewFromClient wraps an existing client. The store takes ownership and closes
// it on Close.
func NewFromClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "mortgage"
	}
	return &Store{client: client, prefix: prefix, now: time.Now}
}

func (s *Store) tablesKey() string {
	return s.prefix + ":tables"
}

func (s *Store) entityKey(table, partitionKey, rowKey string) string {
	return fmt.Sprintf("%s:%s:e:%s:%s", s.prefix, table, partitionKey, rowKey)
}

func (s *Store) partitionKey(table, partitionKey string) string {
	return fmt.Sprintf("%s:%s:p:%s", s.prefix, table, partitionKey)
}

func (s *Store) partitionsKey(table string) string {
	return fmt.Sprintf("%s:%s:partitions", s.prefix, table)
}

func (s *Store) counterKey(table, partitionKey, rowKey string) string {
	return fmt.Sprintf("%s:%s:ctr:%s:%s", s.prefix, table, partitionKey, rowKey)
}

func (s *Store) CreateTableIfNotExists(ctx context.Context, table string) error {
	if err := s.client.SAdd(ctx, s.tablesKey(), table).Err(); err != nil {
		return fmt.Errorf("unable to create table %s: %w", table, err)
	}
	return nil
}

func (s *Store) AddEntity(ctx context.Context, table string, entity store.Entity) (store.Entity, error) {
	key := s.entityKey(table, entity.PartitionKey, entity.RowKey)
	doc := document{Properties: entity.Properties, Version: 1, UpdatedAt: s.now().UTC()}
	data, err := encodeDocument(doc)
	if err != nil {
		return store.Entity{}, err
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return store.ErrEntityExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeDocument(ctx, pipe, table, entity, data)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
	case errors.Is(err, store.ErrEntityExists), errors.Is(err, redis.TxFailedErr):
		// A concurrent writer touched the key between WATCH and EXEC.
		return store.Entity{}, fmt.Errorf("%w: %s/%s/%s", store.ErrEntityExists, table, entity.PartitionKey, entity.RowKey)
	default:
		return store.Entity{}, fmt.Errorf("unable to insert entity: %w", err)
	}

	return toEntity(entity.PartitionKey, entity.RowKey, doc), nil
}

func (s *Store) GetEntity(ctx context.Context, table, partitionKey, rowKey string) (store.Entity, error) {
	raw, err := s.client.Get(ctx, s.entityKey(table, partitionKey, rowKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.Entity{}, fmt.Errorf("%w: %s/%s/%s", store.ErrEntityNotFound, table, partitionKey, rowKey)
		}
		return store.Entity{}, fmt.Errorf("unable to get entity: %w", err)
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return store.Entity{}, err
	}
	return toEntity(partitionKey, rowKey, doc), nil
}

func (s *Store) UpdateEntity(ctx context.Context, table string, entity store.Entity) (store.Entity, error) {
	if entity.ETag == "" {
		return store.Entity{}, store.ErrMissingETag
	}
	key := s.entityKey(table, entity.PartitionKey, entity.RowKey)

	var next document
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrEntityNotFound
			}
			return err
		}
		current, err := decodeDocument(raw)
		if err != nil {
			return err
		}
		if formatVersion(current.Version) != entity.ETag {
			return store.ErrVersionMismatch
		}

		next = document{Properties: entity.Properties, Version: current.Version + 1, UpdatedAt: s.now().UTC()}
		data, err := encodeDocument(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return toEntity(entity.PartitionKey, entity.RowKey, next), nil
	case errors.Is(err, store.ErrEntityNotFound):
		return store.Entity{}, fmt.Errorf("%w: %s/%s/%s", store.ErrEntityNotFound, table, entity.PartitionKey, entity.RowKey)
	case errors.Is(err, store.ErrVersionMismatch), errors.Is(err, redis.TxFailedErr):
		return store.Entity{}, fmt.Errorf("%w: %s/%s/%s at etag %s", store.ErrVersionMismatch, table, entity.PartitionKey, entity.RowKey, entity.ETag)
	default:
		return store.Entity{}, fmt.Errorf("unable to update entity: %w", err)
	}
}

func (s *Store) UpsertEntity(ctx context.Context, table string, entity store.Entity) (store.Entity, error) {
	key := s.entityKey(table, entity.PartitionKey, entity.RowKey)

	var next document
	err := s.retryTx(ctx, func(tx *redis.Tx) error {
		version := int64(0)
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			current, err := decodeDocument(raw)
			if err != nil {
				return err
			}
			version = current.Version
		case !errors.Is(err, redis.Nil):
			return err
		}

		next = document{Properties: entity.Properties, Version: version + 1, UpdatedAt: s.now().UTC()}
		data, err := encodeDocument(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeDocument(ctx, pipe, table, entity, data)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return store.Entity{}, fmt.Errorf("unable to upsert entity: %w", err)
	}
	return toEntity(entity.PartitionKey, entity.RowKey, next), nil
}

func (s *Store) DeleteEntity(ctx context.Context, table, partitionKey, rowKey string) error {
	key := s.entityKey(table, partitionKey, rowKey)

	err := s.retryTx(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return store.ErrEntityNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.partitionKey(table, partitionKey), rowKey)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrEntityNotFound):
		return fmt.Errorf("%w: %s/%s/%s", store.ErrEntityNotFound, table, partitionKey, rowKey)
	default:
		return fmt.Errorf("unable to delete entity: %w", err)
	}
}

func (s *Store) QueryEntities(ctx context.Context, table string, filter store.Filter) ([]store.Entity, error) {
	partitions := []string{filter.PartitionKey}
	if filter.PartitionKey == "" {
		all, err := s.client.SMembers(ctx, s.partitionsKey(table)).Result()
		if err != nil {
			return nil, fmt.Errorf("unable to list partitions: %w", err)
		}
		partitions = all
	}

	var refs []entityRef
	if len(filter.RowKeys) > 0 {
		// Row keys address documents directly; partition sets are not read.
		rowKeys := slices.Compact(slices.Sorted(slices.Values(filter.RowKeys)))
		for _, partition := range partitions {
			for _, rowKey := range rowKeys {
				refs = append(refs, entityRef{partition: partition, row: rowKey})
			}
		}
	} else {
		for _, partition := range partitions {
			rowKeys, err := s.client.SMembers(ctx, s.partitionKey(table, partition)).Result()
			if err != nil {
				return nil, fmt.Errorf("unable to list rows of partition %s: %w", partition, err)
			}
			for _, rowKey := range rowKeys {
				refs = append(refs, entityRef{partition: partition, row: rowKey})
			}
		}
	}

	entities, err := s.loadEntities(ctx, table, refs)
	if err != nil {
		return nil, err
	}

	store.SortEntities(entities)
	zap.L().Debug("Queried entities",
		zap.String("table", table),
		zap.String("partition", filter.PartitionKey),
		zap.Int("row_keys", len(filter.RowKeys)),
		zap.Int("count", len(entities)))
	return entities, nil
}

type entityRef struct {
	partition string
	row       string
}

// loadEntities fetches documents with MGET in batches. Missing keys are
// skipped.
func (s *Store) loadEntities(ctx context.Context, table string, refs []entityRef) ([]store.Entity, error) {
	var entities []store.Entity
	for start := 0; start < len(refs); start += mgetBatch {
		batch := refs[start:min(start+mgetBatch, len(refs))]

		keys := make([]string, len(batch))
		for i, ref := range batch {
			keys[i] = s.entityKey(table, ref.partition, ref.row)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("unable to load entities of table %s: %w", table, err)
		}

		for i, value := range values {
			raw, ok := value.(string)
			if !ok {
				// Absent, or deleted between SMEMBERS and MGET.
				continue
			}
			doc, err := decodeDocument([]byte(raw))
			if err != nil {
				return nil, err
			}
			entities = append(entities, toEntity(batch[i].partition, batch[i].row, doc))
		}
	}
	return entities, nil
}

// Increment atomically advances a named counter with INCR and returns the new
// value. Counters live outside the entity keyspace.
func (s *Store) Increment(ctx context.Context, table, partitionKey, rowKey string) (int64, error) {
	value, err := s.client.Incr(ctx, s.counterKey(table, partitionKey, rowKey)).Result()
	if err != nil {
		return 0, fmt.Errorf("unable to increment counter: %w", err)
	}
	return value, nil
}

func (s *Store) Close() {
	if err := s.client.Close(); err != nil {
		zap.L().Warn("Failed to close redis client", zap.Error(err))
	}
}

func (s *Store) writeDocument(ctx context.Context, pipe redis.Pipeliner, table string, entity store.Entity, data []byte) {
	pipe.Set(ctx, s.entityKey(table, entity.PartitionKey, entity.RowKey), data, 0)
	pipe.SAdd(ctx, s.partitionKey(table, entity.PartitionKey), entity.RowKey)
	pipe.SAdd(ctx, s.partitionsKey(table), entity.PartitionKey)
}

// retryTx runs fn under WATCH, retrying with backoff only when another writer
// touched a watched key before EXEC.
func (s *Store) retryTx(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = txInitialBackoff
	expo.MaxInterval = txMaxBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.client.Watch(ctx, fn, keys...)
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(maxTxRetries))
	return err
}

func encodeDocument(doc document) ([]byte, error) {
	if doc.Properties == nil {
		doc.Properties = map[string]string{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("unable to encode entity: %w", err)
	}
	return data, nil
}

func decodeDocument(raw []byte) (document, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}, fmt.Errorf("unable to decode entity: %w", err)
	}
	return doc, nil
}

func toEntity(partitionKey, rowKey string, doc document) store.Entity {
	entity := store.Entity{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		ETag:         formatVersion(doc.Version),
		Timestamp:    doc.UpdatedAt,
		Properties:   doc.Properties,
	}
	return entity.Clone()
}

func formatVersion(version int64) string {
	return strconv.FormatInt(version, 10)
}
