package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
)

func waitForSessionEvent(t *testing.T, ch <-chan *entities.SessionEvent) *entities.SessionEvent {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return nil
	}
}

func TestMemoryEventBus_Fanout(t *testing.T) {
	bus := NewMemoryEventBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := providers.GetSessionChannel("s-1")
	sub1, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	sub2, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, providers.GetSessionChannel("s-2"))
	require.NoError(t, err)

	event := entities.NewSessionEvent("s-1", entities.SessionEventStoreSelected, map[string]interface{}{"store_id": 3})
	require.NoError(t, bus.Publish(context.Background(), channel, event))

	assert.Equal(t, event.ID, waitForSessionEvent(t, sub1).ID)
	assert.Equal(t, event.ID, waitForSessionEvent(t, sub2).ID)

	select {
	case e := <-other:
		t.Fatalf("unexpected event on other channel: %v", e)
	default:
	}
}

func TestMemoryEventBus_UnsubscribeOnCancel(t *testing.T) {
	bus := NewMemoryEventBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, "locator:session:x")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-sub:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel was not closed")
	}
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus()
	sub, err := bus.Subscribe(context.Background(), "locator:session:y")
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	_, ok := <-sub
	assert.False(t, ok)

	assert.Error(t, bus.Publish(context.Background(), "locator:session:y", entities.NewSessionEvent("y", entities.SessionEventClosed, nil)))
	_, err = bus.Subscribe(context.Background(), "locator:session:y")
	assert.Error(t, err)
}
