package storage

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingJob(n *atomic.Int64) WriteJob {
	return WriteJobFunc(func(ctx context.Context, pool *pgxpool.Pool) error {
		n.Add(1)
		return nil
	})
}

func TestBatchWriterFlushesOnBatchSize(t *testing.T) {
	var executed atomic.Int64
	w := NewBatchWriter(nil, 100, 2, 10_000)
	defer w.Shutdown()

	w.Enqueue(countingJob(&executed))
	w.Enqueue(countingJob(&executed))

	require.Eventually(t, func() bool {
		return executed.Load() == 2
	}, time.Second, 5*time.Millisecond, "full batch flushes without waiting for the timer")
}

func TestBatchWriterFlushesOnTimer(t *testing.T) {
	var executed atomic.Int64
	w := NewBatchWriter(nil, 100, 1000, 20)
	defer w.Shutdown()

	w.Enqueue(countingJob(&executed))

	require.Eventually(t, func() bool {
		return executed.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBatchWriterShutdownDrains(t *testing.T) {
	var executed atomic.Int64
	w := NewBatchWriter(nil, 100, 1000, 10_000)

	for i := 0; i < 7; i++ {
		w.Enqueue(countingJob(&executed))
	}
	w.Shutdown()

	assert.Equal(t, int64(7), executed.Load())
}

func TestBatchWriterDropsWhenFull(t *testing.T) {
	var executed atomic.Int64
	blocker := make(chan struct{})
	w := NewBatchWriter(nil, 1, 1, 10_000)

	// Occupy the flush loop so the buffer stays full.
	w.Enqueue(WriteJobFunc(func(ctx context.Context, pool *pgxpool.Pool) error {
		<-blocker
		return nil
	}))

	time.Sleep(20 * time.Millisecond)
	w.Enqueue(countingJob(&executed)) // fills the buffer
	w.Enqueue(countingJob(&executed)) // dropped, must not block
	assert.Equal(t, int64(0), executed.Load())

	close(blocker)
	w.Shutdown()
	assert.Equal(t, int64(1), executed.Load(), "the buffered job survives, the overflow job is gone")
}
