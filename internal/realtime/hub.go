package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/institute-backoffice-api/pkg/jobs"
)

// Callback receives the events coalesced for one table during a debounce window.
type Callback func(ctx context.Context, events []Event)

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	id    uint64
	table string
	cb    Callback
}

// Table returns the subscribed table name.
func (s *Subscription) Table() string {
	return s.table
}

type eventRecorder interface {
	RecordRealtimeEvent(table string)
}

// HubConfig tunes the hub.
type HubConfig struct {
	Debounce time.Duration
	Workers  int
	Logger   *zap.Logger
	Metrics  eventRecorder
}

type dispatch struct {
	sub    *Subscription
	events []Event
}

// Hub fans committed changes out to per table subscribers. Events for a table
// are buffered for the debounce window, then every subscriber of that table
// is invoked once on the worker queue.
type Hub struct {
	debounce time.Duration
	logger   *zap.Logger
	metrics  eventRecorder
	queue    *jobs.Queue[dispatch]

	mu      sync.Mutex
	nextID  uint64
	subs    map[string]map[uint64]*Subscription
	pending map[string][]Event
	timers  map[string]*time.Timer
}

// NewHub constructs a hub. Call Start before publishing.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	h := &Hub{
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		subs:     make(map[string]map[uint64]*Subscription),
		pending:  make(map[string][]Event),
		timers:   make(map[string]*time.Timer),
	}
	h.queue = jobs.NewQueue("realtime", h.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: 256,
		Logger:     cfg.Logger,
	})
	return h
}

// Start launches the callback workers.
func (h *Hub) Start(ctx context.Context) {
	h.queue.Start(ctx)
}

// Stop cancels pending flushes and waits for running callbacks.
func (h *Hub) Stop() {
	h.mu.Lock()
	for table, timer := range h.timers {
		timer.Stop()
		delete(h.timers, table)
	}
	h.pending = make(map[string][]Event)
	h.mu.Unlock()
	h.queue.Stop()
}

// Subscribe registers cb for table, or for every table with AllTables.
func (h *Hub) Subscribe(table string, cb Callback) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{id: h.nextID, table: table, cb: cb}
	if h.subs[table] == nil {
		h.subs[table] = make(map[uint64]*Subscription)
	}
	h.subs[table][sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription. Callbacks already queued for it are skipped.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.subs[sub.table]; set != nil {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(h.subs, sub.table)
		}
	}
}

// Subscribers reports how many subscriptions target table exactly.
func (h *Hub) Subscribers(table string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[table])
}

// Publish records a change. It never blocks on subscribers.
func (h *Hub) Publish(ev Event) {
	if ev.Table == "" {
		return
	}
	h.mu.Lock()
	h.pending[ev.Table] = append(h.pending[ev.Table], ev)
	if _, scheduled := h.timers[ev.Table]; scheduled {
		h.mu.Unlock()
		return
	}
	if h.debounce == 0 {
		h.mu.Unlock()
		h.flush(ev.Table)
		return
	}
	table := ev.Table
	h.timers[table] = time.AfterFunc(h.debounce, func() { h.flush(table) })
	h.mu.Unlock()
}

func (h *Hub) flush(table string) {
	h.mu.Lock()
	events := h.pending[table]
	delete(h.pending, table)
	delete(h.timers, table)
	targets := make([]*Subscription, 0, len(h.subs[table])+len(h.subs[AllTables]))
	for _, sub := range h.subs[table] {
		targets = append(targets, sub)
	}
	for _, sub := range h.subs[AllTables] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	if len(events) == 0 {
		return
	}
	if h.metrics != nil {
		h.metrics.RecordRealtimeEvent(table)
	}
	for _, sub := range targets {
		job := jobs.Job[dispatch]{
			Key:     fmt.Sprintf("%s-%d", table, sub.id),
			Payload: dispatch{sub: sub, events: events},
		}
		if err := h.queue.TryEnqueue(job); err != nil {
			h.logger.Warn("realtime dispatch dropped", zap.String("table", table), zap.Error(err))
		}
	}
}

func (h *Hub) handle(ctx context.Context, job jobs.Job[dispatch]) error {
	d := job.Payload
	if !h.active(d.sub) {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("realtime callback panicked", zap.String("table", d.sub.table), zap.Any("panic", r))
		}
	}()
	d.sub.cb(ctx, d.events)
	return nil
}

func (h *Hub) active(sub *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[sub.table][sub.id]
	return ok
}
