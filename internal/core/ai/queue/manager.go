// Package queue 限制同時進行的模型呼叫數量
package queue

import (
	"context"
	"sync/atomic"

	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Status 隊列狀態
type Status struct {
	QueueLength    int `json:"queue_length"`
	InFlight       int `json:"in_flight"`
	ProcessedCount int `json:"processed_count"`
	FailedCount    int `json:"failed_count"`
	MaxQueueSize   int `json:"max_queue_size"`
	Workers        int `json:"workers"`
}

// Manager 生成槽位管理器
type Manager struct {
	slots     *semaphore.Weighted
	workers   int
	maxSize   int
	waiting   atomic.Int64
	inFlight  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// NewManager 創建新的隊列管理器
func NewManager(cfg config.QueueConfig) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		slots:   semaphore.NewWeighted(int64(workers)),
		workers: workers,
		maxSize: cfg.MaxSize,
	}
}

// Acquire 取得一個生成槽位；等待者超過上限時立即拒絕
func (m *Manager) Acquire(ctx context.Context) (release func(err error), err error) {
	if m.maxSize > 0 && int(m.waiting.Load()) >= m.maxSize {
		return nil, common.ErrTooManyRequests
	}

	m.waiting.Add(1)
	err = m.slots.Acquire(ctx, 1)
	m.waiting.Add(-1)
	if err != nil {
		return nil, err
	}
	m.inFlight.Add(1)

	var done atomic.Bool
	return func(callErr error) {
		if !done.CompareAndSwap(false, true) {
			return
		}
		m.inFlight.Add(-1)
		if callErr != nil {
			m.failed.Add(1)
		} else {
			m.processed.Add(1)
		}
		m.slots.Release(1)
	}, nil
}

// Do 在槽位內執行 fn
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := m.Acquire(ctx)
	if err != nil {
		common.LogWarn("無法取得生成槽位", zap.Error(err))
		return err
	}
	err = fn(ctx)
	release(err)
	return err
}

// GetQueueStatus 獲取隊列狀態
func (m *Manager) GetQueueStatus() *Status {
	return &Status{
		QueueLength:    int(m.waiting.Load()),
		InFlight:       int(m.inFlight.Load()),
		ProcessedCount: int(m.processed.Load()),
		FailedCount:    int(m.failed.Load()),
		MaxQueueSize:   m.maxSize,
		Workers:        m.workers,
	}
}
