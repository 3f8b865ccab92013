package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	e := Event{Type: SessionStarted, ProjectID: "p-1", SessionID: "s-1", RoomName: "p-1_room"}
	payload, err := e.ToJSON()
	require.NoError(t, err)
	assert.False(t, e.Timestamp.IsZero())

	parsed, err := ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, SessionStarted, parsed.Type)
	assert.Equal(t, "s-1", parsed.SessionID)
	assert.Equal(t, "p-1_room", parsed.RoomName)

	_, err = ParseEvent([]byte(`{"type":"session.started"}`))
	assert.ErrorIs(t, err, errEmptyProject)

	_, err = ParseEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestBuildChannel(t *testing.T) {
	assert.Equal(t, "events:p-1", ProjectEvents.buildChannel("p-1"))
	assert.Equal(t, "syncflow.events.p-1", natsSubject("p-1"))
}

func TestMemoryBus(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()

	sub, err := bus.Subscribe(ctx, "p-1")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "p-2")
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, bus.Publish(ctx, Event{Type: EgressStarted, ProjectID: "p-1", EgressID: "EG_1"}))

	select {
	case e := <-sub.Events():
		assert.Equal(t, EgressStarted, e.Type)
		assert.Equal(t, "EG_1", e.EgressID)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}

	select {
	case e := <-other.Events():
		t.Fatalf("unexpected event for another project: %+v", e)
	default:
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	_, open := <-sub.Events()
	assert.False(t, open)

	assert.Error(t, bus.Publish(ctx, Event{Type: EgressStarted}))
}
