// Package pipeline 驅動每個輸入項目走完生成、驗證、實體解析與寫入的流程
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"recipe-ingest/internal/core/audit"
	"recipe-ingest/internal/core/recipe"
	"recipe-ingest/internal/core/resolver"
	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/core/validation"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Generator 管線需要的生成能力
type Generator interface {
	GenerateName(ctx context.Context, req common.GenerationRequest) (string, error)
	GenerateFull(ctx context.Context, req common.GenerationRequest, name string) (*common.GeneratedRecipe, error)
	resolver.DetailGenerator
}

// Options 單次執行的選項
type Options struct {
	DryRun bool
	// Workers 同時處理的項目數，<= 0 時使用設定值
	Workers int
}

// Orchestrator 批次協調器；可同時執行多個批次，鍵鎖在批次之間共用
type Orchestrator struct {
	store     store.Store
	generator Generator
	validator *validation.Validator
	cfg       config.PipelineConfig

	entityLocks *resolver.KeyedMutex
	recipeLocks *resolver.KeyedMutex
}

// NewOrchestrator 創建新的協調器
func NewOrchestrator(s store.Store, gen Generator, cfg config.PipelineConfig) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Precheck.MaxKeywords <= 0 {
		cfg.Precheck.MaxKeywords = 4
	}
	if cfg.Precheck.MinOverlap <= 0 {
		cfg.Precheck.MinOverlap = 2
	}
	return &Orchestrator{
		store:       s,
		generator:   gen,
		validator:   validation.New(cfg),
		cfg:         cfg,
		entityLocks: resolver.NewKeyedMutex(),
		recipeLocks: resolver.NewKeyedMutex(),
	}
}

// Validator 協調器使用的驗證器
func (o *Orchestrator) Validator() *validation.Validator {
	return o.validator
}

// batch 單一批次的協作者，記錄器與解析器不跨批次共用
type batch struct {
	name        string
	dryRun      bool
	audit       *audit.Recorder
	ingredients *resolver.IngredientResolver
	utensils    *resolver.UtensilResolver
	writer      *recipe.Writer
}

func (o *Orchestrator) newBatch(name string, dryRun bool) *batch {
	var repo store.AuditRepository
	if !dryRun {
		repo = o.store.Audit()
	}
	rec := audit.NewRecorder(repo)
	owner := o.cfg.SystemOwner
	return &batch{
		name:        name,
		dryRun:      dryRun,
		audit:       rec,
		ingredients: resolver.NewIngredientResolver(o.store.Ingredients(), o.validator, o.generator, o.entityLocks, rec, owner),
		utensils:    resolver.NewUtensilResolver(o.store.Utensils(), o.validator, o.generator, o.entityLocks, rec, owner),
		writer:      recipe.NewWriter(o.store, o.validator, rec, owner),
	}
}

// Run 執行一個批次；單一項目的失敗不會中斷其他項目，只有輸入本身無效時才回傳錯誤
func (o *Orchestrator) Run(ctx context.Context, input *Input, opts Options) (*Report, error) {
	if input == nil {
		return nil, common.NewValidationError("lot invalide", "document manquant")
	}
	if err := o.validator.ValidateInputBatch(input.Recettes).Err("lot invalide"); err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = o.cfg.Workers
	}
	start := time.Now()
	b := o.newBatch(input.Metadata.BatchName, opts.DryRun)

	b.audit.StartBatch(ctx, b.name, map[string]interface{}{
		"items":   len(input.Recettes),
		"dry_run": opts.DryRun,
		"workers": workers,
	})

	outcomes := make([]Outcome, len(input.Recettes))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, req := range input.Recettes {
		i, req := i, req
		g.Go(func() error {
			outcomes[i] = o.runItem(ctx, b, i, req)
			return nil
		})
	}
	_ = g.Wait()

	report := newReport(b.name, opts.DryRun, outcomes, time.Since(start))
	errMsg := ""
	if report.HasErrors() {
		errMsg = fmt.Sprintf("%d élément(s) en erreur sur %d", report.Summary.Errors, report.Summary.Total)
	}
	summary := b.audit.EndBatch(ctx, !report.HasErrors(), errMsg)
	report.Audit = &summary

	common.LogInfo("批次處理完成",
		zap.String("batch", b.name),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("total", report.Summary.Total),
		zap.Int("created", report.Summary.Created),
		zap.Int("skipped", report.Summary.Skipped),
		zap.Int("errors", report.Summary.Errors),
	)
	return report, nil
}

// runItem 隔離單一項目：錯誤與 panic 都轉為該項目的 error 結果
func (o *Orchestrator) runItem(ctx context.Context, b *batch, index int, req common.GenerationRequest) (out Outcome) {
	start := time.Now()
	it := &item{o: o, b: b, req: req, out: Outcome{Index: index, Description: req.Description, Stage: StagePreCheck}}

	defer func() {
		if p := recover(); p != nil {
			common.LogError("項目處理發生 panic",
				zap.Int("index", index),
				zap.String("stage", string(it.out.Stage)),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			it.out.fail(fmt.Errorf("panic: %v", p))
		}
		out = it.out
		out.Duration = time.Since(start)
		o.record(ctx, b, out)
	}()

	if err := ctx.Err(); err != nil {
		it.out.fail(err)
		return
	}
	it.run(ctx)
	return
}

// record 記錄項目層級的稽核：略過、驗證通過與錯誤；建立由寫入器記錄
func (o *Orchestrator) record(ctx context.Context, b *batch, out Outcome) {
	data := map[string]interface{}{
		"description": out.Description,
		"stage":       string(out.Stage),
	}
	switch out.Status {
	case StatusError:
		b.audit.LogEntityOperation(ctx, audit.KindRecipe, audit.ActionError, data,
			audit.WithError(out.Err), audit.WithDuration(out.Duration))
		common.LogWarn("項目失敗",
			zap.String("batch", b.name),
			zap.Int("index", out.Index),
			zap.String("stage", string(out.Stage)),
			zap.Error(out.Err),
		)
	case StatusValidated:
		data["nom"] = out.Name
		b.audit.LogEntityOperation(ctx, audit.KindRecipe, audit.ActionValidated, data, audit.WithDuration(out.Duration))
	case StatusSkipped:
		// 寫入器已記錄名稱衝突造成的略過
		if out.Stage == StagePreCheck || out.Stage == StageNameCheck {
			data["nom"] = out.Name
			data["reason"] = out.Reason
			b.audit.LogEntityOperation(ctx, audit.KindRecipe, audit.ActionSkipped, data,
				audit.WithEntityID(out.ID), audit.WithDuration(out.Duration))
		}
	}
}
