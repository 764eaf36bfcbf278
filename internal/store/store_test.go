package store_test

import (
	"testing"

	"mortgage-ledger-go/internal/store"
	"mortgage-ledger-go/internal/store/storetest"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.TableStore {
		return store.NewMemoryStore()
	})
}

func TestFilterMatches(t *testing.T) {
	e := store.Entity{PartitionKey: "Accepted", RowKey: "7"}

	tests := []struct {
		name   string
		filter store.Filter
		want   bool
	}{
		{"empty filter", store.Filter{}, true},
		{"partition hit", store.Filter{PartitionKey: "Accepted"}, true},
		{"partition miss", store.Filter{PartitionKey: "Declined"}, false},
		{"row hit", store.Filter{RowKeys: []string{"3", "7"}}, true},
		{"row miss", store.Filter{RowKeys: []string{"3"}}, false},
		{"both hit", store.Filter{PartitionKey: "Accepted", RowKeys: []string{"7"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(e))
		})
	}
}

func TestEntityCloneIsIndependent(t *testing.T) {
	original := store.Entity{Properties: map[string]string{"k": "v"}}
	clone := original.Clone()
	clone.Properties["k"] = "changed"
	assert.Equal(t, "v", original.Get("k"))

	empty := store.Entity{}.Clone()
	assert.NotNil(t, empty.Properties)
}
