package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRxFanout(t *testing.T) {
	source := make(chan UnifiedCANMessage)
	f := newRxFanout(context.Background(), source)

	a, _ := f.Subscribe(4)
	b, cancelB := f.Subscribe(1)

	source <- UnifiedCANMessage{ID: 1}
	source <- UnifiedCANMessage{ID: 2}
	// a third send guarantees the second was dispatched before we look
	source <- UnifiedCANMessage{ID: 3}

	assert.Equal(t, uint32(1), (<-a).ID)
	assert.Equal(t, uint32(2), (<-a).ID)
	assert.GreaterOrEqual(t, f.Dropped(), uint64(1), "a full subscriber misses later messages")

	cancelB()
	msg, ok := <-b
	require.True(t, ok)
	assert.Equal(t, uint32(1), msg.ID)
	_, ok = <-b
	assert.False(t, ok)
	cancelB()

	close(source)
	f.Close()
	assert.Equal(t, uint32(3), (<-a).ID)
	_, ok = <-a
	assert.False(t, ok)

	late, cancel := f.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok, "subscriptions after close are closed")
	cancel()
}

func TestRxFanoutStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newRxFanout(ctx, make(chan UnifiedCANMessage))
	sub, _ := f.Subscribe(1)
	cancel()
	_, ok := <-sub
	require.False(t, ok)
	f.Close()
}
