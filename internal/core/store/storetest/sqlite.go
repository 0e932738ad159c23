// Package storetest 提供測試用的儲存層
package storetest

import (
	"context"
	"strings"
	"testing"

	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/infrastructure/database"

	"github.com/stretchr/testify/require"
)

// NewSQLite 以測試名稱建立獨立的記憶體 sqlite 資料庫並完成遷移
func NewSQLite(t testing.TB) *store.SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared&_foreign_keys=on",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, db))
	s := store.NewSQLStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ForEach 以記憶體與 sqlite 兩種實作執行同一組測試
func ForEach(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, store.NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, NewSQLite(t)) })
}
