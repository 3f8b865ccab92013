package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func newTestNATS(t *testing.T) *nats.Conn {
	srv := natsserver.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

// waitClosed drains events and fails when the channel stays open.
func waitClosed(t *testing.T, events <-chan *Event) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events channel is still open after Close")
	}
}

func expectEvent(t *testing.T, sub Subscription) *Event {
	t.Helper()

	select {
	case e, ok := <-sub.Events():
		require.True(t, ok, "events channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
	return nil
}

func testBus(t *testing.T, bus interface {
	Publisher
	Subscriber
}) {
	ctx := context.Background()

	t.Run("delivers per project", func(t *testing.T) {
		sub, err := bus.Subscribe(ctx, "p-1")
		require.NoError(t, err)
		defer sub.Close()
		other, err := bus.Subscribe(ctx, "p-2")
		require.NoError(t, err)
		defer other.Close()

		require.NoError(t, bus.Publish(ctx, Event{Type: SessionStopped, ProjectID: "p-1", SessionID: "s-1"}))

		e := expectEvent(t, sub)
		assert.Equal(t, SessionStopped, e.Type)
		assert.Equal(t, "s-1", e.SessionID)

		select {
		case e := <-other.Events():
			t.Fatalf("unexpected event for another project: %+v", e)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("close ends the consumer", func(t *testing.T) {
		sub, err := bus.Subscribe(ctx, "p-1")
		require.NoError(t, err)

		require.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
		waitClosed(t, sub.Events())
	})

	t.Run("close ends a stalled consumer", func(t *testing.T) {
		sub, err := bus.Subscribe(ctx, "p-3")
		require.NoError(t, err)

		// nobody reads, the buffer overflows
		for i := 0; i < 200; i++ {
			require.NoError(t, bus.Publish(ctx, Event{Type: EgressUpdated, ProjectID: "p-3", EgressID: "EG_1"}))
		}
		time.Sleep(100 * time.Millisecond)

		require.NoError(t, sub.Close())
		waitClosed(t, sub.Events())
	})
}

func TestRedisBus(t *testing.T) {
	testBus(t, RedisPubSub(newTestRedis(t)))
}

func TestNATSBus(t *testing.T) {
	testBus(t, NewNATSBus(newTestNATS(t)))
}

func TestMemoryBusContract(t *testing.T) {
	testBus(t, NewMemory())
}
