package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"recipe-ingest/internal/core/audit"
)

// Status 項目最終分類
type Status string

const (
	StatusCreated   Status = "created"
	StatusSkipped   Status = "skipped"
	StatusValidated Status = "validated"
	StatusError     Status = "error"
)

// Summary 報告統計
type Summary struct {
	Total       int     `json:"total"`
	Created     int     `json:"created"`
	Skipped     int     `json:"skipped"`
	Validated   int     `json:"validated"`
	Errors      int     `json:"errors"`
	SuccessRate float64 `json:"success_rate"`
	DurationMs  int64   `json:"duration_ms"`
}

// CreatedItem 新建立的食譜
type CreatedItem struct {
	Name     string   `json:"name"`
	ID       string   `json:"id"`
	Warnings []string `json:"warnings,omitempty"`
}

// SkippedItem 略過的項目
type SkippedItem struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	ID     string `json:"id,omitempty"`
}

// ValidatedItem dry-run 下通過驗證的項目
type ValidatedItem struct {
	Name     string   `json:"name"`
	Warnings []string `json:"warnings,omitempty"`
}

// ErrorItem 失敗的項目
type ErrorItem struct {
	Description string `json:"description"`
	Error       string `json:"error"`
	Code        string `json:"code"`
	Stage       Stage  `json:"stage"`
}

// Report 批次報告
type Report struct {
	Timestamp time.Time       `json:"timestamp"`
	BatchName string          `json:"batch_name"`
	DryRun    bool            `json:"dry_run"`
	Summary   Summary         `json:"summary"`
	Created   []CreatedItem   `json:"created"`
	Skipped   []SkippedItem   `json:"skipped"`
	Validated []ValidatedItem `json:"validated,omitempty"`
	Errors    []ErrorItem     `json:"errors"`
	Audit     *audit.Summary  `json:"audit,omitempty"`
}

// newReport 依輸入順序彙整每個項目的結果
func newReport(batchName string, dryRun bool, outcomes []Outcome, elapsed time.Duration) *Report {
	r := &Report{
		Timestamp: time.Now().UTC(),
		BatchName: batchName,
		DryRun:    dryRun,
		Created:   []CreatedItem{},
		Skipped:   []SkippedItem{},
		Errors:    []ErrorItem{},
	}
	for _, o := range outcomes {
		switch o.Status {
		case StatusCreated:
			r.Created = append(r.Created, CreatedItem{Name: o.Name, ID: o.ID, Warnings: o.Warnings})
		case StatusSkipped:
			r.Skipped = append(r.Skipped, SkippedItem{Name: o.Name, Reason: o.Reason, ID: o.ID})
		case StatusValidated:
			r.Validated = append(r.Validated, ValidatedItem{Name: o.Name, Warnings: o.Warnings})
		default:
			msg := "unknown error"
			if o.Err != nil {
				msg = o.Err.Error()
			}
			r.Errors = append(r.Errors, ErrorItem{Description: o.Description, Error: msg, Code: o.Code, Stage: o.Stage})
		}
	}

	s := &r.Summary
	s.Total = len(outcomes)
	s.Created = len(r.Created)
	s.Skipped = len(r.Skipped)
	s.Validated = len(r.Validated)
	s.Errors = len(r.Errors)
	s.DurationMs = elapsed.Milliseconds()
	if s.Total > 0 {
		rate := float64(s.Total-s.Errors) / float64(s.Total) * 100
		s.SuccessRate = math.Round(rate*100) / 100
	}
	return r
}

// HasErrors 是否有任何項目失敗
func (r *Report) HasErrors() bool {
	return r.Summary.Errors > 0
}

// WriteFile 以 JSON 寫出報告
func (r *Report) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// StatsLine 單行統計，供 CLI 輸出
func (r *Report) StatsLine() string {
	s := r.Summary
	return fmt.Sprintf("total=%d created=%d skipped=%d validated=%d errors=%d success_rate=%.2f%% duration=%dms",
		s.Total, s.Created, s.Skipped, s.Validated, s.Errors, s.SuccessRate, s.DurationMs)
}
