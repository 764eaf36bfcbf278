// Package storetest holds a behavioural test suite that every TableStore
// backend runs against itself.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"mortgage-ledger-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = "ConformanceEntities"

func entity(partition, row, value string) store.Entity {
	return store.Entity{
		PartitionKey: partition,
		RowKey:       row,
		Properties:   map[string]string{"value": value},
	}
}

// Run exercises newStore with the full TableStore contract. newStore must
// return an empty store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.TableStore) {
	t.Run("AddThenGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTableIfNotExists(ctx, table))
		require.NoError(t, s.CreateTableIfNotExists(ctx, table))

		added, err := s.AddEntity(ctx, table, entity("p1", "r1", "a"))
		require.NoError(t, err)
		assert.NotEmpty(t, added.ETag)

		got, err := s.GetEntity(ctx, table, "p1", "r1")
		require.NoError(t, err)
		assert.Equal(t, "a", got.Get("value"))
		assert.Equal(t, added.ETag, got.ETag)
	})

	t.Run("AddDuplicateFails", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTableIfNotExists(ctx, table))

		_, err := s.AddEntity(ctx, table, entity("p1", "r1", "a"))
		require.NoError(t, err)
		_, err = s.AddEntity(ctx, table, entity("p1", "r1", "b"))
		assert.ErrorIs(t, err, store.ErrEntityExists)

		// Same row key in another partition is a distinct entity.
		_, err = s.AddEntity(ctx, table, entity("p2", "r1", "c"))
		assert.NoError(t, err)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTableIfNotExists(ctx, table))

		_, err := s.GetEntity(ctx, table, "p1", "nope")
		assert.ErrorIs(t, err, store.ErrEntityNotFound)
	})

	t.Run("ConditionalUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTableIfNotExists(ctx, table))

		added, err := s.AddEntity(ctx, table, entity("p1", "r1", "a"))
		require.NoError(t, err)

		next := added.Clone()
		next.Properties["value"] = "b"
		updated, err := s.UpdateEntity(ctx, table, next)
		require.NoError(t, err)
		assert.NotEqual(t, added.ETag, updated.ETag)

		// The original token is now stale.
		stale := added.Clone()
		stale.Properties["value"] = "c"
		_, err = s.UpdateEntity(ctx, table, stale)
		assert.ErrorIs(t, err, store.ErrVersionMismatch)

		got, err := s.GetEntity(ctx, table, "p1", "r1")
		require.NoError(t, err)
		assert.Equal(t, "b", got.Get("value"))
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTableIfNotExists(ctx, table))

		missing := entity("p1", "ghost", "a")
		missing.ETag = "1"
		_, err := s.UpdateEntity(ctx, table, missing)
		assert.ErrorIs(t, err, store.ErrEntityNotFound)

		missing.ETag = ""
		_, err = s.UpdateEntity(ctx, table, missing)
		assert.ErrorIs(t, err, store.ErrMissingETag)
	})

	t.Run("UpsertCreatesAndReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTableIfNotExists(ctx, table))

		first, err := s.UpsertEntity(ctx, table, entity("p1", "r1", "a"))
		require.NoError(t, err)
		second, err := s.UpsertEntity(ctx, table, entity("p1", "r1", "b"))
		require.NoError(t, err)
		assert.NotEqual(t, first.ETag, second.ETag)

		got, err := s.GetEntity(ctx, table, "p1", "r1")
		require.NoError(t, err)
		assert.Equal(t, "b", got.Get("value"))
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTableIfNotExists(ctx, table))

		_, err := s.AddEntity(ctx, table, entity("p1", "r1", "a"))
		require.NoError(t, err)
		require.NoError(t, s.DeleteEntity(ctx, table, "p1", "r1"))

		_, err = s.GetEntity(ctx, table, "p1", "r1")
		assert.ErrorIs(t, err, store.ErrEntityNotFound)
		assert.ErrorIs(t, s.DeleteEntity(ctx, table, "p1", "r1"), store.ErrEntityNotFound)

		// A deleted key can be added again.
		_, err = s.AddEntity(ctx, table, entity("p1", "r1", "b"))
		assert.NoError(t, err)
	})

	t.Run("QueryFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTableIfNotExists(ctx, table))

		for _, e := range []store.Entity{
			entity("p2", "r2", "x"),
			entity("p1", "r2", "y"),
			entity("p1", "r1", "z"),
			entity("p3", "r3", "w"),
		} {
			_, err := s.AddEntity(ctx, table, e)
			require.NoError(t, err)
		}

		all, err := s.QueryEntities(ctx, table, store.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, []string{"p1/r1", "p1/r2", "p2/r2", "p3/r3"}, keys(all))

		p1, err := s.QueryEntities(ctx, table, store.Filter{PartitionKey: "p1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"p1/r1", "p1/r2"}, keys(p1))

		r2, err := s.QueryEntities(ctx, table, store.Filter{RowKeys: []string{"r2"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"p1/r2", "p2/r2"}, keys(r2))

		both, err := s.QueryEntities(ctx, table, store.Filter{PartitionKey: "p2", RowKeys: []string{"r2", "r3"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"p2/r2"}, keys(both))

		none, err := s.QueryEntities(ctx, table, store.Filter{PartitionKey: "empty"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("TablesAreIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTableIfNotExists(ctx, table))
		require.NoError(t, s.CreateTableIfNotExists(ctx, table+"Other"))

		_, err := s.AddEntity(ctx, table, entity("p1", "r1", "a"))
		require.NoError(t, err)
		_, err = s.AddEntity(ctx, table+"Other", entity("p1", "r1", "b"))
		require.NoError(t, err)

		got, err := s.GetEntity(ctx, table+"Other", "p1", "r1")
		require.NoError(t, err)
		assert.Equal(t, "b", got.Get("value"))
	})

	t.Run("ConcurrentConditionalUpdates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTableIfNotExists(ctx, table))

		added, err := s.AddEntity(ctx, table, entity("p1", "r1", "start"))
		require.NoError(t, err)

		// Every writer holds the same token, so exactly one may win.
		const writers = 10
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				next := added.Clone()
				next.Properties["value"] = fmt.Sprintf("w%d", i)
				if _, err := s.UpdateEntity(ctx, table, next); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, store.ErrVersionMismatch)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func keys(entities []store.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.PartitionKey + "/" + e.RowKey
	}
	return out
}
