package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsAndDrainsOnClose(t *testing.T) {
	q := New(2, 16, time.Second)

	var ran int32
	for i := 0; i < 10; i++ {
		ok := q.Submit("count", func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
		require.True(t, ok)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran))

	// closed queue rejects new work
	assert.False(t, q.Submit("late", func(ctx context.Context) error { return nil }))
}

func TestQueueSurvivesFailingTasks(t *testing.T) {
	q := New(1, 4, time.Second)

	var after int32
	q.Submit("fails", func(ctx context.Context) error { return errors.New("boom") })
	q.Submit("panics", func(ctx context.Context) error { panic("boom") })
	q.Submit("ok", func(ctx context.Context) error {
		atomic.StoreInt32(&after, 1)
		return nil
	})

	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&after))
}

func TestQueueFullDropsTask(t *testing.T) {
	block := make(chan struct{})
	q := New(1, 1, time.Second)

	started := make(chan struct{})
	q.Submit("blocker", func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	})
	<-started

	assert.True(t, q.Submit("queued", func(ctx context.Context) error { return nil }))
	assert.False(t, q.Submit("dropped", func(ctx context.Context) error { return nil }))

	close(block)
	require.NoError(t, q.Close(context.Background()))
}

func TestInlineRunsImmediately(t *testing.T) {
	var ran bool
	Inline{}.Submit("now", func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.True(t, ran)
}
