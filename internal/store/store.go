package store

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"time"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrEntityNotFound  = errors.New("entity not found")
	ErrEntityExists    = errors.New("entity already exists")
	ErrVersionMismatch = errors.New("entity version mismatch")
	ErrMissingETag     = errors.New("conditional update requires an etag")
)

// Entity is a single row of a partitioned table. ETag is an opaque version
// token assigned by the backend on every write.
type Entity struct {
	PartitionKey string
	RowKey       string
	ETag         string
	Timestamp    time.Time
	Properties   map[string]string
}

// Get returns a property value, or "" when absent.
func (e Entity) Get(key string) string {
	return e.Properties[key]
}

// Clone returns a copy whose property map can be mutated independently.
func (e Entity) Clone() Entity {
	out := e
	out.Properties = maps.Clone(e.Properties)
	if out.Properties == nil {
		out.Properties = map[string]string{}
	}
	return out
}

// Filter selects entities for QueryEntities. Empty fields match everything.
type Filter struct {
	PartitionKey string
	RowKeys      []string
}

func (f Filter) Matches(e Entity) bool {
	if f.PartitionKey != "" && e.PartitionKey != f.PartitionKey {
		return false
	}
	if len(f.RowKeys) > 0 && !slices.Contains(f.RowKeys, e.RowKey) {
		return false
	}
	return true
}

// TableStore defines the contract that every backend (memory, SQLite, Redis)
// must satisfy. Queries return entities ordered by partition key, then row key.
type TableStore interface {
	CreateTableIfNotExists(ctx context.Context, table string) error

	// AddEntity fails with ErrEntityExists when the key is taken.
	AddEntity(ctx context.Context, table string, entity Entity) (Entity, error)
	// GetEntity fails with ErrEntityNotFound when the key is absent.
	GetEntity(ctx context.Context, table, partitionKey, rowKey string) (Entity, error)
	// UpdateEntity replaces an entity only if entity.ETag matches the stored
	// version, failing with ErrVersionMismatch otherwise.
	UpdateEntity(ctx context.Context, table string, entity Entity) (Entity, error)
	UpsertEntity(ctx context.Context, table string, entity Entity) (Entity, error)
	DeleteEntity(ctx context.Context, table, partitionKey, rowKey string) error
	QueryEntities(ctx context.Context, table string, filter Filter) ([]Entity, error)

	Close()
}

// Incrementer is implemented by backends with a native atomic counter.
type Incrementer interface {
	Increment(ctx context.Context, table, partitionKey, rowKey string) (int64, error)
}

// SortEntities orders entities by partition key, then row key.
func SortEntities(entities []Entity) {
	slices.SortFunc(entities, func(a, b Entity) int {
		if c := cmp.Compare(a.PartitionKey, b.PartitionKey); c != 0 {
			return c
		}
		return cmp.Compare(a.RowKey, b.RowKey)
	})
}
