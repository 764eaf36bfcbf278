package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/store"
	"mortgage-ledger-go/internal/store/storetest"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTableTestDB(t *testing.T) *Service {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	service := NewTableService(db)
	if err := service.InitSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(service.Close)
	return service
}

func TestSQLiteConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.TableStore {
		return setupTableTestDB(t)
	})
}

func TestBuildEntityQuery(t *testing.T) {
	query, args := buildEntityQuery("Apps", store.Filter{PartitionKey: "Accepted", RowKeys: []string{"1", "2"}})

	assert.Contains(t, query, "AND partition_key = ?")
	assert.Contains(t, query, "AND row_key IN (?, ?)")
	assert.Equal(t, []any{"Apps", "Accepted", "1", "2"}, args)

	query, args = buildEntityQuery("Apps", store.Filter{})
	assert.NotContains(t, query, "partition_key = ?")
	assert.NotContains(t, query, "row_key IN")
	assert.Equal(t, []any{"Apps"}, args)
}

func TestUpdateEntity_MalformedETag(t *testing.T) {
	service := setupTableTestDB(t)
	ctx := context.Background()

	_, err := service.AddEntity(ctx, "T", store.Entity{PartitionKey: "p", RowKey: "r"})
	require.NoError(t, err)

	_, err = service.UpdateEntity(ctx, "T", store.Entity{PartitionKey: "p", RowKey: "r", ETag: "W/\"abc\""})
	assert.ErrorIs(t, err, store.ErrVersionMismatch)
}

func TestAddEntity_PersistsTimestamp(t *testing.T) {
	service := setupTableTestDB(t)
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }
	ctx := context.Background()

	_, err := service.AddEntity(ctx, "T", store.Entity{PartitionKey: "p", RowKey: "r"})
	require.NoError(t, err)

	got, err := service.GetEntity(ctx, "T", "p", "r")
	require.NoError(t, err)
	assert.True(t, fixed.Equal(got.Timestamp), "timestamp %v", got.Timestamp)
	assert.Equal(t, "1", got.ETag)
}

func TestStoreFailuresAreWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewTableService(db)
	ctx := context.Background()
	diskErr := errors.New("disk I/O error")

	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO table_entities")).
		WillReturnError(diskErr)
	_, err = service.AddEntity(ctx, "T", store.Entity{PartitionKey: "p", RowKey: "r"})
	assert.ErrorIs(t, err, diskErr)
	assert.NotErrorIs(t, err, store.ErrEntityExists)

	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO table_entities")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = service.AddEntity(ctx, "T", store.Entity{PartitionKey: "p", RowKey: "r"})
	assert.ErrorIs(t, err, store.ErrEntityExists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT partition_key, row_key, properties, version, updated_at")).
		WillReturnError(diskErr)
	_, err = service.QueryEntities(ctx, "T", store.Filter{PartitionKey: "p"})
	assert.ErrorIs(t, err, diskErr)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM table_entities")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = service.DeleteEntity(ctx, "T", "p", "r")
	assert.ErrorIs(t, err, store.ErrEntityNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewService_ValidatesConfig(t *testing.T) {
	ctx := context.Background()
	valid := models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	}

	tests := []struct {
		name   string
		mutate func(*models.DatabaseConfig)
	}{
		{"empty path", func(c *models.DatabaseConfig) { c.Path = "" }},
		{"zero open conns", func(c *models.DatabaseConfig) { c.MaxOpenConns = 0 }},
		{"negative idle conns", func(c *models.DatabaseConfig) { c.MaxIdleConns = -1 }},
		{"zero ping timeout", func(c *models.DatabaseConfig) { c.PingTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := NewService(ctx, cfg); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}

	service, err := NewService(ctx, valid)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	service.Close()
}
