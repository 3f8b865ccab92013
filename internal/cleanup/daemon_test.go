package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/syncflow/internal/eventbus"
	"github.com/isqad/syncflow/internal/service"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*Message
	err      error
}

func (p *recordingPublisher) Publish(_ string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	m, err := ParseMessage(data)
	if err != nil {
		return err
	}
	p.messages = append(p.messages, m)
	return nil
}

type stubStopper struct {
	result *service.StopAllResult
	err    error
	rooms  []string
}

func (s *stubStopper) StopAllActive(_ context.Context, roomName string) (*service.StopAllResult, error) {
	s.rooms = append(s.rooms, roomName)
	return s.result, s.err
}

func newTestDaemon(stopper Stopper, events eventbus.Publisher) (*Daemon, *recordingPublisher, *[]time.Duration) {
	pub := &recordingPublisher{}
	d := newDaemon(NewScheduler(pub, "syncflow.egress.cleanup"), Options{
		Subject: "syncflow.egress.cleanup",
		Stopper: stopper,
		Events:  events,
		Backoff: time.Second,
	})

	waits := &[]time.Duration{}
	d.after = func(wait time.Duration, f func()) {
		*waits = append(*waits, wait)
		f()
	}
	return d, pub, waits
}

func TestParseMessage(t *testing.T) {
	m, err := ParseMessage([]byte(`{"project_id":"P","room_name":"P_abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "P_abc", m.RoomName)
	assert.Equal(t, 1, m.Attempt)

	_, err = ParseMessage([]byte(`{"project_id":"P"}`))
	assert.Error(t, err)

	_, err = ParseMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestScheduleCleanup(t *testing.T) {
	pub := &recordingPublisher{}
	scheduler := NewScheduler(pub, "syncflow.egress.cleanup")

	require.NoError(t, scheduler.ScheduleCleanup(context.Background(), "P", "P_abc"))
	require.Len(t, pub.messages, 1)
	assert.Equal(t, Message{ProjectID: "P", RoomName: "P_abc", Attempt: 1}, *pub.messages[0])

	pub.err = errors.New("nats: connection closed")
	assert.Error(t, scheduler.ScheduleCleanup(context.Background(), "P", "P_abc"))
}

func TestHandleSuccess(t *testing.T) {
	stopper := &stubStopper{result: &service.StopAllResult{}}
	d, pub, _ := newTestDaemon(stopper, nil)

	require.NoError(t, d.handle(context.Background(), []byte(`{"project_id":"P","room_name":"P_abc","attempt":1}`)))

	assert.Equal(t, []string{"P_abc"}, stopper.rooms)
	assert.Empty(t, pub.messages)
}

func TestHandleRetriesWithBackoff(t *testing.T) {
	stopper := &stubStopper{result: &service.StopAllResult{
		Failed: []service.EgressFailure{{EgressID: "EG_1", Message: "timeout"}},
	}}
	d, pub, waits := newTestDaemon(stopper, nil)

	require.NoError(t, d.handle(context.Background(), []byte(`{"project_id":"P","room_name":"P_abc","attempt":2}`)))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, 3, pub.messages[0].Attempt)
	assert.Equal(t, []time.Duration{2 * time.Second}, *waits)
}

func TestHandleGivesUp(t *testing.T) {
	events := eventbus.NewMemory()
	sub, err := events.Subscribe(context.Background(), "P")
	require.NoError(t, err)
	defer sub.Close()

	stopper := &stubStopper{err: errors.New("media server unavailable")}
	d, pub, _ := newTestDaemon(stopper, events)

	require.NoError(t, d.handle(context.Background(), []byte(`{"project_id":"P","room_name":"P_abc","attempt":5}`)))
	assert.Empty(t, pub.messages)

	select {
	case event := <-sub.Events():
		assert.Equal(t, eventbus.EgressCleanupFailed, event.Type)
		assert.Equal(t, "P_abc", event.RoomName)
		assert.Equal(t, "media server unavailable", event.Reason)
	case <-time.After(time.Second):
		t.Fatal("no cleanup failure event")
	}
}

func TestHandleRejectsGarbage(t *testing.T) {
	stopper := &stubStopper{result: &service.StopAllResult{}}
	d, _, _ := newTestDaemon(stopper, nil)

	assert.Error(t, d.handle(context.Background(), []byte(`{}`)))
	assert.Empty(t, stopper.rooms)
}
