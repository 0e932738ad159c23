// Package audit 記錄批次與實體操作，並彙總每個批次的計數
package audit

import (
	"context"
	"sync"
	"time"

	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// 操作種類
const (
	KindBatch      = "batch"
	KindRecipe     = "recipe"
	KindIngredient = "ingredient"
	KindUtensil    = "utensil"
)

// 動作
const (
	ActionStarted   = "started"
	ActionCompleted = "completed"
	ActionCreated   = "created"
	ActionSkipped   = "skipped"
	ActionValidated = "validated"
	ActionError     = "error"
)

// auditWriteTimeout 單筆稽核寫入的上限
const auditWriteTimeout = 5 * time.Second

// Counts 依種類、動作分組的計數
type Counts map[string]map[string]int

func (c Counts) add(kind, action string) {
	if c[kind] == nil {
		c[kind] = make(map[string]int)
	}
	c[kind][action]++
}

func (c Counts) clone() Counts {
	out := make(Counts, len(c))
	for kind, actions := range c {
		m := make(map[string]int, len(actions))
		for a, n := range actions {
			m[a] = n
		}
		out[kind] = m
	}
	return out
}

// Get 回傳指定種類與動作的次數
func (c Counts) Get(kind, action string) int {
	return c[kind][action]
}

// Stats 批次進行中的即時統計
type Stats struct {
	BatchName string `json:"batch_name"`
	Counts    Counts `json:"counts"`
	ElapsedMs int64  `json:"elapsed_ms"`
	// WriteFailures 寫入失敗的稽核筆數
	WriteFailures int `json:"write_failures"`
}

// Summary 批次結束時的彙總
type Summary struct {
	BatchName     string    `json:"batch_name"`
	Success       bool      `json:"success"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Counts        Counts    `json:"counts"`
	StartedAt     time.Time `json:"started_at"`
	DurationMs    int64     `json:"duration_ms"`
	WriteFailures int       `json:"write_failures"`
}

// Recorder 每個批次一個實例；計數受 mutex 保護，可供並行的項目共用
type Recorder struct {
	repo store.AuditRepository

	mu            sync.Mutex
	batchName     string
	startedAt     time.Time
	counts        Counts
	writeFailures int
}

// NewRecorder 建立稽核記錄器；repo 為 nil 時只計數不寫入（dry-run）
func NewRecorder(repo store.AuditRepository) *Recorder {
	return &Recorder{repo: repo, counts: make(Counts)}
}

// Option 單筆操作的附加資訊
type Option func(*store.AuditRecord)

// WithEntityID 關聯的實體 ID
func WithEntityID(id string) Option {
	return func(r *store.AuditRecord) { r.EntityID = id }
}

// WithError 錯誤訊息與錯誤分類
func WithError(err error) Option {
	return func(r *store.AuditRecord) {
		if err == nil {
			return
		}
		r.ErrorMessage = err.Error()
		if r.Metadata == nil {
			r.Metadata = store.JSONMap{}
		}
		r.Metadata["error_code"] = common.ErrorCode(err)
	}
}

// WithDuration 處理耗時
func WithDuration(d time.Duration) Option {
	return func(r *store.AuditRecord) { r.ProcessingTimeMs = d.Milliseconds() }
}

// StartBatch 重設計數並寫入批次開始紀錄
func (r *Recorder) StartBatch(ctx context.Context, name string, metadata map[string]interface{}) {
	r.mu.Lock()
	r.batchName = name
	r.startedAt = time.Now()
	r.counts = make(Counts)
	r.writeFailures = 0
	r.mu.Unlock()

	common.LogInfo("批次開始", zap.String("batch", name))
	r.write(ctx, KindBatch, ActionStarted, metadata)
}

// EndBatch 寫入批次彙總並重設計數
func (r *Recorder) EndBatch(ctx context.Context, success bool, errMsg string) Summary {
	r.mu.Lock()
	summary := Summary{
		BatchName:    r.batchName,
		Success:      success,
		ErrorMessage: errMsg,
		Counts:       r.counts.clone(),
		StartedAt:    r.startedAt,
		DurationMs:   time.Since(r.startedAt).Milliseconds(),
	}
	r.mu.Unlock()

	metadata := map[string]interface{}{
		"success": success,
		"counts":  summary.Counts,
	}
	var opts []Option
	if errMsg != "" {
		opts = append(opts, func(rec *store.AuditRecord) { rec.ErrorMessage = errMsg })
	}
	opts = append(opts, WithDuration(time.Duration(summary.DurationMs)*time.Millisecond))
	r.write(ctx, KindBatch, ActionCompleted, metadata, opts...)

	r.mu.Lock()
	summary.WriteFailures = r.writeFailures
	r.counts = make(Counts)
	r.writeFailures = 0
	r.mu.Unlock()

	common.LogInfo("批次結束",
		zap.String("batch", summary.BatchName),
		zap.Bool("success", success),
		zap.Int64("duration_ms", summary.DurationMs),
	)
	return summary
}

// LogEntityOperation 記錄一次實體操作；寫入失敗只記日誌，不影響呼叫端
func (r *Recorder) LogEntityOperation(ctx context.Context, kind, action string, data map[string]interface{}, opts ...Option) {
	r.mu.Lock()
	r.counts.add(kind, action)
	r.mu.Unlock()

	r.write(ctx, kind, action, data, opts...)
}

// GetCurrentStats 目前批次的計數快照
func (r *Recorder) GetCurrentStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var elapsed int64
	if !r.startedAt.IsZero() {
		elapsed = time.Since(r.startedAt).Milliseconds()
	}
	return Stats{
		BatchName:     r.batchName,
		Counts:        r.counts.clone(),
		ElapsedMs:     elapsed,
		WriteFailures: r.writeFailures,
	}
}

func (r *Recorder) write(ctx context.Context, kind, action string, data map[string]interface{}, opts ...Option) {
	if r.repo == nil {
		return
	}

	r.mu.Lock()
	batch := r.batchName
	r.mu.Unlock()

	rec := &store.AuditRecord{
		ID:            common.GenerateUUID(),
		BatchName:     batch,
		OperationType: kind,
		Action:        action,
		CreatedAt:     time.Now().UTC(),
	}
	if len(data) > 0 {
		rec.Metadata = make(store.JSONMap, len(data))
		for k, v := range data {
			rec.Metadata[k] = v
		}
	}
	for _, opt := range opts {
		opt(rec)
	}

	// 項目被取消時仍要留下錯誤紀錄
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	if err := r.repo.Record(wctx, rec); err != nil {
		r.mu.Lock()
		r.writeFailures++
		r.mu.Unlock()
		common.LogWarn("稽核紀錄寫入失敗",
			zap.String("batch", batch),
			zap.String("kind", kind),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
