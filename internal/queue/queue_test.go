package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	ZoneName string
	Attempt  int
}

func TestEnqueueDequeueFIFOOrder(t *testing.T) {
	q, err := OpenTyped[testItem](t.TempDir())
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Enqueue(testItem{ZoneName: "a.example.com"}))
	require.NoError(t, q.Enqueue(testItem{ZoneName: "b.example.com"}))
	require.NoError(t, q.Enqueue(testItem{ZoneName: "c.example.com"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, want := range []string{"a.example.com", "b.example.com", "c.example.com"} {
		item, ack, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, item.ZoneName)
		require.NoError(t, ack())
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q, err := OpenTyped[testItem](t.TempDir())
	require.NoError(t, err)
	defer q.Close()

	done := make(chan testItem, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		item, ack, err := q.Dequeue(ctx)
		if err == nil {
			_ = ack()
			done <- item
		}
	}()

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, q.Enqueue(testItem{ZoneName: "late.example.com"}))

	select {
	case item := <-done:
		assert.Equal(t, "late.example.com", item.ZoneName)
	case <-time.After(3 * time.Second):
		t.Fatal("dequeue never observed the enqueued item")
	}
}

func TestUnackedItemSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	q, err := OpenTyped[testItem](dir)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(testItem{ZoneName: "crash.example.com"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err = q.Dequeue(ctx) // deliberately never ack
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q2, err := OpenTyped[testItem](dir)
	require.NoError(t, err)
	defer q2.Close()

	n, err := q2.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "unacked item must be redelivered after restart")
}

func TestDequeueCancellation(t *testing.T) {
	q, err := OpenTyped[testItem](t.TempDir())
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, _, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTryDequeueReturnsFalseWhenEmpty(t *testing.T) {
	q, err := OpenTyped[testItem](t.TempDir())
	require.NoError(t, err)
	defer q.Close()

	_, _, ok, err := q.TryDequeue()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTryDequeueReturnsOldestWithoutBlocking(t *testing.T) {
	q, err := OpenTyped[testItem](t.TempDir())
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Enqueue(testItem{ZoneName: "first"}))
	require.NoError(t, q.Enqueue(testItem{ZoneName: "second"}))

	item, ack, ok, err := q.TryDequeue()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", item.ZoneName)
	require.NoError(t, ack())

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLenCountsPendingItems(t *testing.T) {
	q, err := OpenTyped[testItem](t.TempDir())
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Enqueue(testItem{ZoneName: "x"}))
	require.NoError(t, q.Enqueue(testItem{ZoneName: "y"}))

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
