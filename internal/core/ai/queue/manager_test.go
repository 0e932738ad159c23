package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"recipe-ingest/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerLimitsConcurrency(t *testing.T) {
	m := NewManager(config.QueueConfig{Workers: 2})
	var current, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Do(context.Background(), func(ctx context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				current.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	st := m.GetQueueStatus()
	assert.Equal(t, 6, st.ProcessedCount)
	assert.Zero(t, st.InFlight)
}

func TestManagerCountsFailures(t *testing.T) {
	m := NewManager(config.QueueConfig{Workers: 1})
	err := m.Do(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, 1, m.GetQueueStatus().FailedCount)
}

func TestManagerAcquireHonorsContext(t *testing.T) {
	m := NewManager(config.QueueConfig{Workers: 1})
	release, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer release(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
