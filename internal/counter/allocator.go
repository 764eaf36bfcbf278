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

package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"mortgage-ledger-go/internal/metrics"
	"mortgage-ledger-go/internal/store"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	Table              = "Counters"
	Partition          = "Counter"
	ApplicationCounter = "MortgageApplicationCounter"

	propertyCurrentId = "CurrentId"
)

// ErrContention is returned when every retry lost the race for the counter.
var ErrContention = errors.New("counter contention: retries exhausted")

// Strategy selects how ids are allocated.
type Strategy string

const (
	// StrategyAuto uses the backend's atomic increment when it has one and
	// falls back to compare-and-swap otherwise.
	StrategyAuto Strategy = "auto"
	// StrategyCAS always uses read, increment and conditional write.
	StrategyCAS Strategy = "cas"
)

// Sequencer hands out strictly increasing ids.
type Sequencer interface {
	NextId(ctx context.Context) (int64, error)
}

// Policy bounds the compare-and-swap retry loop.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     50,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// Compile-time check: *Allocator must satisfy Sequencer.
var _ Sequencer = (*Allocator)(nil)

// Allocator allocates ids from a single counter entity. Writers coordinate only
// through the store's conditional update, so any number of processes may share
// one counter.
type Allocator struct {
	table       store.TableStore
	incrementer store.Incrementer
	name        string
	policy      Policy
}

func NewAllocator(table store.TableStore, name string, policy Policy, strategy Strategy) *Allocator {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultPolicy().InitialInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}

	a := &Allocator{table: table, name: name, policy: policy}
	if incrementer, ok := table.(store.Incrementer); ok && strategy == StrategyAuto {
		a.incrementer = incrementer
	}

	zap.L().Info("Counter allocator ready",
		zap.String("counter", name),
		zap.Bool("atomic", a.incrementer != nil),
		zap.Int("max_attempts", policy.MaxAttempts))
	return a
}

// EnsureTable creates the counters table.
func (a *Allocator) EnsureTable(ctx context.Context) error {
	return a.table.CreateTableIfNotExists(ctx, Table)
}

// NextId returns the next id. Ids are strictly increasing across all callers;
// the first id ever issued is 1.
func (a *Allocator) NextId(ctx context.Context) (int64, error) {
	if a.incrementer != nil {
		id, err := a.incrementer.Increment(ctx, Table, Partition, a.name)
		if err != nil {
			return 0, fmt.Errorf("unable to increment counter %s: %w", a.name, err)
		}
		metrics.CounterAllocations.WithLabelValues(string(StrategyAuto)).Inc()
		return id, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = a.policy.InitialInterval
	expo.MaxInterval = a.policy.MaxInterval

	attempts := 0
	id, err := backoff.Retry(ctx, func() (int64, error) {
		attempts++
		id, err := a.advance(ctx)
		if err == nil {
			return id, nil
		}
		if isConflict(err) {
			metrics.CounterConflicts.Inc()
			return 0, err
		}
		return 0, backoff.Permanent(err)
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(uint(a.policy.MaxAttempts)))
	if err != nil {
		if isConflict(err) {
			zap.L().Warn("Counter retries exhausted",
				zap.String("counter", a.name),
				zap.Int("attempts", attempts))
			return 0, fmt.Errorf("%w after %d attempts on %s: %v", ErrContention, attempts, a.name, err)
		}
		return 0, fmt.Errorf("unable to allocate id from %s: %w", a.name, err)
	}

	if attempts > 1 {
		zap.L().Debug("Allocated id after retries",
			zap.String("counter", a.name),
			zap.Int64("id", id),
			zap.Int("attempts", attempts))
	}
	metrics.CounterAllocations.WithLabelValues(string(StrategyCAS)).Inc()
	return id, nil
}

// advance makes a single read-increment-conditional-write attempt.
func (a *Allocator) advance(ctx context.Context) (int64, error) {
	entity, err := a.table.GetEntity(ctx, Table, Partition, a.name)
	if errors.Is(err, store.ErrEntityNotFound) {
		// A racing creator surfaces as ErrEntityExists, which is retried.
		_, err := a.table.AddEntity(ctx, Table, store.Entity{
			PartitionKey: Partition,
			RowKey:       a.name,
			Properties:   map[string]string{propertyCurrentId: "1"},
		})
		if err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}

	current, err := strconv.ParseInt(entity.Get(propertyCurrentId), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds invalid value %q: %w", a.name, entity.Get(propertyCurrentId), err)
	}

	next := current + 1
	entity.Properties[propertyCurrentId] = strconv.FormatInt(next, 10)
	if _, err := a.table.UpdateEntity(ctx, Table, entity); err != nil {
		return 0, err
	}
	return next, nil
}

func isConflict(err error) bool {
	return errors.Is(err, store.ErrVersionMismatch) || errors.Is(err, store.ErrEntityExists)
}
