package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchexec/watchexec/internal/models"
)

func fsEvent(path string) models.Event {
	return models.Event{Tags: []models.Tag{
		models.PathTag{Path: path},
		models.SourceTag{Source: models.SourceFilesystem},
	}}
}

func internalEvent() models.Event {
	return models.Event{Tags: []models.Tag{
		models.SourceTag{Source: models.SourceInternal},
	}}
}

func TestPriorityOrder(t *testing.T) {
	ctx := context.Background()
	q := New(16)

	require.NoError(t, q.Send(ctx, fsEvent("/normal-1"), models.PriorityNormal))
	require.NoError(t, q.Send(ctx, fsEvent("/low"), models.PriorityLow))
	require.NoError(t, q.Send(ctx, fsEvent("/urgent"), models.PriorityUrgent))
	require.NoError(t, q.Send(ctx, fsEvent("/normal-2"), models.PriorityNormal))
	require.NoError(t, q.Send(ctx, fsEvent("/high"), models.PriorityHigh))

	var got []string
	for i := 0; i < 5; i++ {
		item, ok, err := q.Recv(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		got = append(got, item.Event.Paths()[0].Path)
	}

	assert.Equal(t, []string{"/urgent", "/high", "/normal-1", "/normal-2", "/low"}, got)
}

func TestFIFOWithinClass(t *testing.T) {
	ctx := context.Background()
	q := New(64)

	for _, p := range []string{"/a", "/b", "/c", "/d"} {
		require.NoError(t, q.Send(ctx, fsEvent(p), models.PriorityNormal))
	}

	for _, want := range []string{"/a", "/b", "/c", "/d"} {
		item, ok, err := q.Recv(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, item.Event.Paths()[0].Path)
	}
}

func TestCloseDrainsThenEnds(t *testing.T) {
	ctx := context.Background()
	q := New(16)

	require.NoError(t, q.Send(ctx, fsEvent("/pending"), models.PriorityNormal))
	q.Close()

	assert.ErrorIs(t, q.Send(ctx, fsEvent("/late"), models.PriorityNormal), ErrClosed)

	item, ok, err := q.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/pending", item.Event.Paths()[0].Path)

	_, ok, err = q.Recv(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInternalEventsDropWhenFull(t *testing.T) {
	ctx := context.Background()
	q := New(1)

	require.NoError(t, q.Send(ctx, fsEvent("/keep"), models.PriorityNormal))
	assert.ErrorIs(t, q.Send(ctx, internalEvent(), models.PriorityLow), ErrFull)
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestSendBlocksUntilRoom(t *testing.T) {
	ctx := context.Background()
	q := New(1)
	require.NoError(t, q.Send(ctx, fsEvent("/first"), models.PriorityNormal))

	done := make(chan error, 1)
	go func() {
		done <- q.Send(ctx, fsEvent("/second"), models.PriorityNormal)
	}()

	select {
	case <-done:
		t.Fatal("send should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	item, ok, err := q.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/first", item.Event.Paths()[0].Path)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocked send never completed")
	}
}

func TestRecvRespectsContext(t *testing.T) {
	q := New(4)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err := q.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
