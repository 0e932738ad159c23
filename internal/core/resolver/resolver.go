// Package resolver 以正規化名稱查找或建立食材與器具，保證同名實體只建立一次
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"recipe-ingest/internal/core/audit"
	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/core/validation"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// Identity 由解析器指派給新實體的欄位
type Identity struct {
	ID             string
	NormalizedName string
	OwnerID        string
	CreatedAt      time.Time
}

// Definition 單一實體種類的行為
type Definition[T store.Entity, G any] struct {
	Kind     string
	Name     func(G) string
	Validate func(G) validation.Result
	Build    func(G, Identity) T
	// Enrich 選填：驗證失敗時補齊資料，之後再驗證一次
	Enrich func(ctx context.Context, item G) (G, error)
}

// Result 單筆建立結果
type Result[T store.Entity] struct {
	Data    T
	Created bool
}

// BatchResult 批次建立結果；失敗不會中斷其他項目
type BatchResult[T store.Entity] struct {
	Created  []T
	Existing []T
	Failed   map[string]error
}

// Resolver 查找或建立實體
type Resolver[T store.Entity, G any] struct {
	repo  store.EntityRepository[T]
	def   Definition[T, G]
	locks *KeyedMutex
	audit *audit.Recorder
	owner string
}

// New 建立解析器；locks 應由所有並行的項目共用
func New[T store.Entity, G any](repo store.EntityRepository[T], def Definition[T, G], locks *KeyedMutex, rec *audit.Recorder, owner string) *Resolver[T, G] {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if rec == nil {
		rec = audit.NewRecorder(nil)
	}
	return &Resolver[T, G]{repo: repo, def: def, locks: locks, audit: rec, owner: owner}
}

func isZero[T any](v T) bool {
	var zero T
	return any(v) == any(zero)
}

// FindByNormalizedName 先以正規化鍵查找，找不到再以不分大小寫的完整名稱查找；找不到時 found 為 false
func (r *Resolver[T, G]) FindByNormalizedName(ctx context.Context, name string) (entity T, found bool, err error) {
	key := common.NormalizeName(name)
	if key != "" {
		entity, err = r.repo.FindByNormalizedName(ctx, key)
		if err != nil {
			return entity, false, common.NewPersistenceFailure(fmt.Sprintf("lookup %s %q", r.def.Kind, name), err)
		}
		if !isZero(entity) {
			return entity, true, nil
		}
	}

	entity, err = r.repo.FindByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return entity, false, common.NewPersistenceFailure(fmt.Sprintf("lookup %s %q", r.def.Kind, name), err)
	}
	return entity, !isZero(entity), nil
}

// Create 冪等建立：已存在則回傳既有實體（Created=false）
func (r *Resolver[T, G]) Create(ctx context.Context, item G) (*Result[T], error) {
	start := time.Now()
	name := strings.TrimSpace(r.def.Name(item))
	key := common.NormalizeName(name)
	if key == "" {
		err := common.NewValidationError(fmt.Sprintf("%s sans nom", r.def.Kind))
		r.audit.LogEntityOperation(ctx, r.def.Kind, audit.ActionError, nil, audit.WithError(err))
		return nil, err
	}

	unlock := r.locks.Lock(r.def.Kind + ":" + key)
	defer unlock()

	if existing, found, err := r.FindByNormalizedName(ctx, name); err != nil {
		r.fail(ctx, name, err, start)
		return nil, err
	} else if found {
		r.skip(ctx, name, existing, start)
		return &Result[T]{Data: existing}, nil
	}

	item, err := r.validate(ctx, item, name)
	if err != nil {
		r.fail(ctx, name, err, start)
		return nil, err
	}

	entity := r.def.Build(item, Identity{
		ID:             common.GenerateUUID(),
		NormalizedName: key,
		OwnerID:        r.owner,
		CreatedAt:      time.Now().UTC(),
	})

	if err := r.repo.Insert(ctx, entity); err != nil {
		if !errors.Is(err, store.ErrUniqueViolation) {
			err = common.NewPersistenceFailure(fmt.Sprintf("insert %s %q", r.def.Kind, name), err)
			r.fail(ctx, name, err, start)
			return nil, err
		}
		// 其他程序在查找與寫入之間建立了同名實體
		existing, found, ferr := r.FindByNormalizedName(ctx, name)
		if ferr != nil || !found {
			err = common.NewPersistenceFailure(fmt.Sprintf("insert %s %q: conflicting row not found", r.def.Kind, name), errors.Join(err, ferr))
			r.fail(ctx, name, err, start)
			return nil, err
		}
		common.LogDebug("唯一鍵衝突，改用既有實體", zap.String("kind", r.def.Kind), zap.String("name", name))
		r.skip(ctx, name, existing, start)
		return &Result[T]{Data: existing}, nil
	}

	r.audit.LogEntityOperation(ctx, r.def.Kind, audit.ActionCreated,
		map[string]interface{}{"nom": entity.GetName()},
		audit.WithEntityID(entity.GetID()),
		audit.WithDuration(time.Since(start)),
	)
	return &Result[T]{Data: entity, Created: true}, nil
}

// validate 驗證失敗時嘗試補齊一次
func (r *Resolver[T, G]) validate(ctx context.Context, item G, name string) (G, error) {
	res := r.def.Validate(item)
	if res.IsValid {
		return item, nil
	}
	if r.def.Enrich == nil {
		return item, res.Err(fmt.Sprintf("%s %q invalide", r.def.Kind, name))
	}

	common.LogInfo("實體資料不完整，請求補齊",
		zap.String("kind", r.def.Kind),
		zap.String("name", name),
		zap.Strings("errors", res.Errors),
	)
	enriched, err := r.def.Enrich(ctx, item)
	if err != nil {
		return item, err
	}
	if res = r.def.Validate(enriched); !res.IsValid {
		return item, res.Err(fmt.Sprintf("%s %q invalide après enrichissement", r.def.Kind, name))
	}
	return enriched, nil
}

func (r *Resolver[T, G]) skip(ctx context.Context, name string, existing T, start time.Time) {
	r.audit.LogEntityOperation(ctx, r.def.Kind, audit.ActionSkipped,
		map[string]interface{}{"nom": name, "reason": "existe déjà"},
		audit.WithEntityID(existing.GetID()),
		audit.WithDuration(time.Since(start)),
	)
}

func (r *Resolver[T, G]) fail(ctx context.Context, name string, err error, start time.Time) {
	r.audit.LogEntityOperation(ctx, r.def.Kind, audit.ActionError,
		map[string]interface{}{"nom": name},
		audit.WithError(err),
		audit.WithDuration(time.Since(start)),
	)
}

// CreateBatch 依序建立；同一批內重複的名稱只處理一次
func (r *Resolver[T, G]) CreateBatch(ctx context.Context, items []G) *BatchResult[T] {
	out := &BatchResult[T]{Failed: make(map[string]error)}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		name := r.def.Name(item)
		key := common.NormalizeName(name)
		if _, dup := seen[key]; dup && key != "" {
			continue
		}
		seen[key] = struct{}{}

		res, err := r.Create(ctx, item)
		switch {
		case err != nil:
			out.Failed[name] = err
		case res.Created:
			out.Created = append(out.Created, res.Data)
		default:
			out.Existing = append(out.Existing, res.Data)
		}
	}
	return out
}

// EnsureExist 回傳正規化名稱到實體的對照；失敗的項目不在對照表中，而是列在 failed
func (r *Resolver[T, G]) EnsureExist(ctx context.Context, items []G) (resolved map[string]T, failed map[string]error) {
	resolved = make(map[string]T, len(items))
	failed = make(map[string]error)

	var missing []G
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		name := r.def.Name(item)
		key := common.NormalizeName(name)
		if _, dup := seen[key]; dup && key != "" {
			continue
		}
		seen[key] = struct{}{}
		if key == "" {
			missing = append(missing, item)
			continue
		}

		existing, found, err := r.FindByNormalizedName(ctx, name)
		if err != nil {
			failed[name] = err
			continue
		}
		if found {
			r.skip(ctx, name, existing, time.Now())
			resolved[key] = existing
			continue
		}
		missing = append(missing, item)
	}

	// 以請求的鍵建立對照，舊資料的 nom_normalise 可能為空
	for _, item := range missing {
		name := r.def.Name(item)
		res, err := r.Create(ctx, item)
		if err != nil {
			failed[name] = err
			continue
		}
		resolved[common.NormalizeName(name)] = res.Data
	}
	if len(failed) > 0 {
		common.LogWarn("部分實體無法建立",
			zap.String("kind", r.def.Kind),
			zap.Int("failed", len(failed)),
		)
	}
	return resolved, failed
}
