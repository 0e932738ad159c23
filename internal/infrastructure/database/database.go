// Package database 負責建立 sqlx 連線池並執行結構遷移
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

func newConnectBackoff(maxElapsed time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = maxElapsed
	return bo
}

// isRetryableError 判斷是否為暫時性的連線錯誤
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "i/o timeout", "bad connection", "the database system is starting up", "database is locked"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Connect 依設定開啟資料庫，暫時性錯誤會以指數退避重試
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.Driver != config.DriverPostgres && cfg.Driver != config.DriverSQLite {
		return nil, common.NewConfigurationError(fmt.Sprintf("unsupported SQL driver %q", cfg.Driver))
	}

	maxElapsed := cfg.ConnectTimeout
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}

	var db *sqlx.DB
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		conn, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			if isRetryableError(err) {
				common.LogWarn("資料庫連線失敗，準備重試",
					zap.String("driver", cfg.Driver),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return err
			}
			return backoff.Permanent(err)
		}
		db = conn
		return nil
	}, backoff.WithContext(newConnectBackoff(maxElapsed), ctx))
	if err != nil {
		return nil, common.NewPersistenceFailure("failed to connect to database", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// sqlite 只允許單一寫入者
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	common.LogInfo("資料庫已連線", zap.String("driver", cfg.Driver), zap.Int("attempts", attempt))
	return db, nil
}

// Migrate 建立資料表、索引與（postgres）稽核預存程序
func Migrate(ctx context.Context, db *sqlx.DB) error {
	var stmts []string
	switch db.DriverName() {
	case config.DriverPostgres:
		stmts = postgresSchema
	case config.DriverSQLite:
		stmts = sqliteSchema
	default:
		return common.NewConfigurationError(fmt.Sprintf("no schema for driver %q", db.DriverName()))
	}

	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return common.NewPersistenceFailure(fmt.Sprintf("migration step %d failed", i+1), err)
		}
	}
	common.LogDebug("資料庫結構已就緒", zap.String("driver", db.DriverName()), zap.Int("statements", len(stmts)))
	return nil
}
