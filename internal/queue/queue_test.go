package queue

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelwatch/server/internal/models"
)

func TestNewObservationQueue(t *testing.T) {
	logger := logrus.New()
	q := NewObservationQueue(10, logger)
	assert.NotNil(t, q)
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.IsClosed())
}

func TestObservationQueue_PushNext(t *testing.T) {
	logger := logrus.New()
	q := NewObservationQueue(2, logger)
	ctx := context.Background()

	batch := []*models.Observation{
		{SourceName: "mls", SourceListingID: "A1"},
		{SourceName: "zillow", SourceListingID: "Z9"},
	}
	require.NoError(t, q.Push(ctx, batch))
	assert.Equal(t, 1, q.Len())

	got, err := q.Next(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A1", got[0].SourceListingID)
	assert.Equal(t, "Z9", got[1].SourceListingID)
	assert.Equal(t, 0, q.Len())
}

func TestObservationQueue_PushBlocksUntilCancelled(t *testing.T) {
	logger := logrus.New()
	q := NewObservationQueue(1, logger)

	require.NoError(t, q.Push(context.Background(), []*models.Observation{{SourceListingID: "A1"}}))

	// Buffer full: the next push blocks until its context is cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Push(ctx, []*models.Observation{{SourceListingID: "A2"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestObservationQueue_NextUnblocksOnCancel(t *testing.T) {
	logger := logrus.New()
	q := NewObservationQueue(1, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Next(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock on cancel")
	}
}

func TestObservationQueue_Close(t *testing.T) {
	logger := logrus.New()
	q := NewObservationQueue(10, logger)
	ctx := context.Background()

	// Buffered batches survive the close and drain first
	require.NoError(t, q.Push(ctx, []*models.Observation{{SourceListingID: "A1"}}))

	require.NoError(t, q.Close())
	assert.True(t, q.IsClosed())

	err := q.Push(ctx, []*models.Observation{{SourceListingID: "A2"}})
	assert.Equal(t, ErrQueueClosed, err)

	got, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A1", got[0].SourceListingID)

	_, err = q.Next(ctx)
	assert.Equal(t, ErrQueueClosed, err)

	// Second close is a no-op
	require.NoError(t, q.Close())
}
