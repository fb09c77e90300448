package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventSink struct {
	mu      sync.Mutex
	batches [][]Event
	ch      chan struct{}
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan struct{}, 16)}
}

func (s *eventSink) callback(ctx context.Context, events []Event) {
	s.mu.Lock()
	s.batches = append(s.batches, events)
	s.mu.Unlock()
	s.ch <- struct{}{}
}

func (s *eventSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func (s *eventSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

type countingRecorder struct {
	mu     sync.Mutex
	tables []string
}

func (c *countingRecorder) RecordRealtimeEvent(table string) {
	c.mu.Lock()
	c.tables = append(c.tables, table)
	c.mu.Unlock()
}

func TestHubCoalescesEventsWithinWindow(t *testing.T) {
	hub := NewHub(HubConfig{Debounce: 50 * time.Millisecond, Workers: 1})
	hub.Start(context.Background())
	defer hub.Stop()

	sink := newEventSink()
	hub.Subscribe("students", sink.callback)

	hub.Publish(Event{Table: "students", Op: OpInsert, ID: "s-1"})
	hub.Publish(Event{Table: "students", Op: OpUpdate, ID: "s-1"})
	hub.Publish(Event{Table: "students", Op: OpDelete, ID: "s-2"})

	sink.wait(t)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, sink.count())
	assert.Len(t, sink.batches[0], 3)
}

func TestHubRoutesByTable(t *testing.T) {
	recorder := &countingRecorder{}
	hub := NewHub(HubConfig{Workers: 2, Metrics: recorder})
	hub.Start(context.Background())
	defer hub.Stop()

	students := newEventSink()
	everything := newEventSink()
	hub.Subscribe("students", students.callback)
	hub.Subscribe(AllTables, everything.callback)

	hub.Publish(Event{Table: "requisitions", Op: OpUpdate, ID: "rq-1"})
	everything.wait(t)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, students.count())
	assert.Equal(t, 1, everything.count())
	recorder.mu.Lock()
	assert.Equal(t, []string{"requisitions"}, recorder.tables)
	recorder.mu.Unlock()
}

func TestHubUnsubscribeStopsCallbacks(t *testing.T) {
	hub := NewHub(HubConfig{Workers: 1})
	hub.Start(context.Background())
	defer hub.Stop()

	sink := newEventSink()
	sub := hub.Subscribe("projects", sink.callback)
	assert.Equal(t, 1, hub.Subscribers("projects"))

	hub.Unsubscribe(sub)
	assert.Equal(t, 0, hub.Subscribers("projects"))

	hub.Publish(Event{Table: "projects", Op: OpInsert, ID: "p-1"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}

func TestHubRecoversFromPanickingCallback(t *testing.T) {
	hub := NewHub(HubConfig{Workers: 1})
	hub.Start(context.Background())
	defer hub.Stop()

	hub.Subscribe("members", func(context.Context, []Event) { panic("boom") })
	sink := newEventSink()
	hub.Subscribe("members", sink.callback)

	hub.Publish(Event{Table: "members", Op: OpUpdate, ID: "m-1"})
	sink.wait(t)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent(`{"table":"deletion_requests","op":"update","id":"dr-1"}`)
	require.NoError(t, err)
	assert.Equal(t, Event{Table: "deletion_requests", Op: OpUpdate, ID: "dr-1"}, ev)

	_, err = ParseEvent(`{"op":"INSERT"}`)
	assert.Error(t, err)
	_, err = ParseEvent(`not json`)
	assert.Error(t, err)
}

type publishRecorder struct {
	events []Event
}

func (p *publishRecorder) Publish(ev Event) {
	p.events = append(p.events, ev)
}

func TestListenerRelay(t *testing.T) {
	rec := &publishRecorder{}
	l := NewListener("", "table_changes", rec, nil)

	l.relay(nil)
	l.relay(&pq.Notification{Channel: "table_changes", Extra: `{"table":"students","op":"DELETE","id":"s-1"}`})
	l.relay(&pq.Notification{Channel: "table_changes", Extra: "garbage"})

	require.Len(t, rec.events, 1)
	assert.Equal(t, OpDelete, rec.events[0].Op)
}

type fakeStream struct {
	listenErr error
	notify    chan *pq.Notification
	closed    bool
}

func (f *fakeStream) Listen(string) error { return f.listenErr }

func (f *fakeStream) NotificationChannel() <-chan *pq.Notification { return f.notify }

func (f *fakeStream) Ping() error { return nil }

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type syncPublisher struct {
	events chan Event
}

func (p *syncPublisher) Publish(ev Event) {
	p.events <- ev
}

func TestListenerRetriesInitialListen(t *testing.T) {
	pub := &syncPublisher{events: make(chan Event, 1)}
	l := NewListener("", "table_changes", pub, nil)
	l.retryMin = time.Millisecond
	l.retryMax = 4 * time.Millisecond

	var (
		mu     sync.Mutex
		opened []*fakeStream
	)
	live := &fakeStream{notify: make(chan *pq.Notification, 1)}
	l.open = func() changeStream {
		mu.Lock()
		defer mu.Unlock()
		if len(opened) < 3 {
			s := &fakeStream{listenErr: errors.New("connection refused")}
			opened = append(opened, s)
			return s
		}
		opened = append(opened, live)
		return live
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	live.notify <- &pq.Notification{Channel: "table_changes", Extra: `{"table":"projects","op":"update","id":"p-1"}`}
	select {
	case ev := <-pub.events:
		assert.Equal(t, "projects", ev.Table)
		assert.Equal(t, OpUpdate, ev.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not relayed after retries")
	}

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, opened, 4)
	for _, s := range opened[:3] {
		assert.True(t, s.closed, "failed streams are closed before retrying")
	}
}

func TestListenerStopsRetryingOnCancel(t *testing.T) {
	l := NewListener("", "table_changes", &publishRecorder{}, nil)
	l.retryMin = time.Hour
	l.open = func() changeStream { return &fakeStream{listenErr: errors.New("down")} }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNextBackoffIsCapped(t *testing.T) {
	assert.Equal(t, 20*time.Second, nextBackoff(10*time.Second, time.Minute))
	assert.Equal(t, time.Minute, nextBackoff(40*time.Second, time.Minute))
	assert.Equal(t, time.Minute, nextBackoff(time.Minute, time.Minute))
}
