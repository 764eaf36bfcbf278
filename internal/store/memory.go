package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Compile-time check: *MemoryStore must satisfy TableStore.
var _ TableStore = (*MemoryStore)(nil)

// MemoryStore is an in-process TableStore used by tests and by the "memory"
// backend for local runs. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	tables  map[string]map[string]Entity
	version int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]map[string]Entity),
		now:    time.Now,
	}
}

func memoryKey(partitionKey, rowKey string) string {
	return partitionKey + "\x00" + rowKey
}

func (m *MemoryStore) CreateTableIfNotExists(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table(table)
	return nil
}

func (m *MemoryStore) table(name string) map[string]Entity {
	t, ok := m.tables[name]
	if !ok {
		t = make(map[string]Entity)
		m.tables[name] = t
	}
	return t
}

func (m *MemoryStore) stamp(entity Entity) Entity {
	m.version++
	out := entity.Clone()
	out.ETag = strconv.FormatInt(m.version, 10)
	out.Timestamp = m.now().UTC()
	return out
}

func (m *MemoryStore) AddEntity(ctx context.Context, table string, entity Entity) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(table)
	key := memoryKey(entity.PartitionKey, entity.RowKey)
	if _, exists := t[key]; exists {
		return Entity{}, fmt.Errorf("%w: %s/%s/%s", ErrEntityExists, table, entity.PartitionKey, entity.RowKey)
	}
	stored := m.stamp(entity)
	t[key] = stored
	return stored.Clone(), nil
}

func (m *MemoryStore) GetEntity(ctx context.Context, table, partitionKey, rowKey string) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, ok := m.tables[table][memoryKey(partitionKey, rowKey)]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s/%s/%s", ErrEntityNotFound, table, partitionKey, rowKey)
	}
	return entity.Clone(), nil
}

func (m *MemoryStore) UpdateEntity(ctx context.Context, table string, entity Entity) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	if entity.ETag == "" {
		return Entity{}, ErrMissingETag
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(table)
	key := memoryKey(entity.PartitionKey, entity.RowKey)
	current, ok := t[key]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s/%s/%s", ErrEntityNotFound, table, entity.PartitionKey, entity.RowKey)
	}
	if current.ETag != entity.ETag {
		return Entity{}, fmt.Errorf("%w: expected %s, found %s", ErrVersionMismatch, entity.ETag, current.ETag)
	}
	stored := m.stamp(entity)
	t[key] = stored
	return stored.Clone(), nil
}

func (m *MemoryStore) UpsertEntity(ctx context.Context, table string, entity Entity) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.stamp(entity)
	m.table(table)[memoryKey(entity.PartitionKey, entity.RowKey)] = stored
	return stored.Clone(), nil
}

func (m *MemoryStore) DeleteEntity(ctx context.Context, table, partitionKey, rowKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(table)
	key := memoryKey(partitionKey, rowKey)
	if _, ok := t[key]; !ok {
		return fmt.Errorf("%w: %s/%s/%s", ErrEntityNotFound, table, partitionKey, rowKey)
	}
	delete(t, key)
	return nil
}

func (m *MemoryStore) QueryEntities(ctx context.Context, table string, filter Filter) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entity
	for _, entity := range m.tables[table] {
		if filter.Matches(entity) {
			out = append(out, entity.Clone())
		}
	}
	SortEntities(out)
	return out, nil
}

func (m *MemoryStore) Close() {}
