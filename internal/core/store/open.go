package store

import (
	"context"
	"fmt"

	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/infrastructure/database"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// Open 依設定建立儲存層；SQL 驅動會先連線再執行遷移
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		common.LogInfo("使用記憶體儲存層，資料不會保留")
		return NewMemoryStore(), nil
	case config.DriverPostgres, config.DriverSQLite:
	default:
		return nil, common.NewConfigurationError(fmt.Sprintf("unknown database driver %q", cfg.Driver))
	}

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	common.LogInfo("儲存層已就緒", zap.String("driver", cfg.Driver))
	return NewSQLStore(db), nil
}
