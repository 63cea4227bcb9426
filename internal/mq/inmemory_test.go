package mq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishReceive(t *testing.T) {
	q, err := NewInMemoryMQ(4)
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, "jobs:1", []byte("one")))
	require.NoError(t, q.Publish(ctx, "jobs:1", []byte("two")))

	msg, err := q.Receive(ctx, "jobs:1")
	require.NoError(t, err)
	data, err := q.GetMessageData(msg)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)
	require.NoError(t, q.Ack("jobs:1", msg))

	msg, err = q.Receive(ctx, "jobs:1")
	require.NoError(t, err)
	data, err = q.GetMessageData(msg)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)
}

func TestInMemoryTopicsAreIndependent(t *testing.T) {
	q, err := NewInMemoryMQ(4)
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, "jobs:a", []byte("a")))
	require.NoError(t, q.Publish(ctx, "jobs:b", []byte("b")))

	msg, err := q.Receive(ctx, "jobs:b")
	require.NoError(t, err)
	data, _ := q.GetMessageData(msg)
	assert.Equal(t, []byte("b"), data)
}

func TestInMemoryPublishAppliesBackpressure(t *testing.T) {
	q, err := NewInMemoryMQ(1)
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, "jobs:1", []byte("one")))

	// A full topic stalls the publisher instead of dropping the message.
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(short, "jobs:1", []byte("stalled")), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- q.Publish(ctx, "jobs:1", []byte("two")) }()

	msg, err := q.Receive(ctx, "jobs:1")
	require.NoError(t, err)
	data, _ := q.GetMessageData(msg)
	assert.Equal(t, []byte("one"), data)

	// Draining a slot unblocks the waiting publish.
	require.NoError(t, <-done)

	msg, err = q.Receive(ctx, "jobs:1")
	require.NoError(t, err)
	data, _ = q.GetMessageData(msg)
	assert.Equal(t, []byte("two"), data)
}

func TestInMemoryReceiveHonorsContext(t *testing.T) {
	q, err := NewInMemoryMQ(1)
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = q.Receive(ctx, "empty")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryCloseTopicDrainsThenEnds(t *testing.T) {
	q, err := NewInMemoryMQ(4)
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, "jobs:1", []byte("last")))
	require.NoError(t, q.CloseTopic("jobs:1"))

	msg, err := q.Receive(ctx, "jobs:1")
	require.NoError(t, err, "buffered messages survive topic close")
	data, _ := q.GetMessageData(msg)
	assert.Equal(t, []byte("last"), data)

	_, err = q.Receive(ctx, "jobs:1")
	assert.ErrorIs(t, err, ErrTopicClosed)
}

func TestInMemoryCloseTopicUnknown(t *testing.T) {
	q, err := NewInMemoryMQ(4)
	require.NoError(t, err)
	defer q.Close()

	assert.ErrorIs(t, q.CloseTopic("missing"), ErrTopicNotExists)
}

func TestInMemoryGetMessageDataRejectsForeignType(t *testing.T) {
	q, err := NewInMemoryMQ(4)
	require.NoError(t, err)
	defer q.Close()

	_, err = q.GetMessageData("not-bytes")
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestInMemoryClosedQueue(t *testing.T) {
	q, err := NewInMemoryMQ(4)
	require.NoError(t, err)
	require.NoError(t, q.Close())

	ctx := context.Background()
	assert.ErrorIs(t, q.Publish(ctx, "jobs:1", []byte("x")), ErrQueueClosed)
	_, err = q.Receive(ctx, "jobs:1")
	assert.ErrorIs(t, err, ErrQueueClosed)
}
