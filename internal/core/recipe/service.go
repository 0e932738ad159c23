// Package recipe 將驗證過的生成結果與其關聯列以全有或全無的方式寫入
package recipe

import (
	"context"
	"fmt"

	"recipe-ingest/internal/core/audit"
	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/core/validation"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// Writer 食譜寫入器
type Writer struct {
	store     store.Store
	validator *validation.Validator
	audit     *audit.Recorder
	owner     string
}

// NewWriter 創建新的食譜寫入器
func NewWriter(s store.Store, v *validation.Validator, rec *audit.Recorder, owner string) *Writer {
	if rec == nil {
		rec = audit.NewRecorder(nil)
	}
	return &Writer{store: s, validator: v, audit: rec, owner: owner}
}

// step 一個可補償的寫入步驟
type step struct {
	name string
	do   func(ctx context.Context) error
	// undo 在 do 失敗時也會執行，步驟可能只完成一部分
	undo func(ctx context.Context) error
}

// withRollbackOnFailure 依序執行；任一步失敗時反向補償已執行的步驟，回傳原始錯誤
func withRollbackOnFailure(ctx context.Context, steps []step) error {
	for i, s := range steps {
		err := s.do(ctx)
		if err == nil {
			continue
		}

		// 補償不受呼叫端取消影響
		rctx := context.WithoutCancel(ctx)
		for j := i; j >= 0; j-- {
			if steps[j].undo == nil {
				continue
			}
			if uerr := steps[j].undo(rctx); uerr != nil {
				common.LogError("回滾步驟失敗",
					zap.String("step", steps[j].name),
					zap.Error(uerr),
				)
			}
		}
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}
