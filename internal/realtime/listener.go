package realtime

import (
	"context"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	listenerPingInterval = 90 * time.Second
)

// Publisher accepts change events.
type Publisher interface {
	Publish(ev Event)
}

// changeStream is the part of *pq.Listener the relay loop uses.
type changeStream interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Listener relays Postgres NOTIFY payloads from the table change triggers
// into a Publisher, so writes made by other instances reach local subscribers.
type Listener struct {
	dsn       string
	channel   string
	publisher Publisher
	logger    *zap.Logger
	open      func() changeStream
	retryMin  time.Duration
	retryMax  time.Duration
}

// NewListener constructs a Listener for channel.
func NewListener(dsn, channel string, publisher Publisher, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Listener{
		dsn:       dsn,
		channel:   channel,
		publisher: publisher,
		logger:    logger,
		retryMin:  minReconnectInterval,
		retryMax:  maxReconnectInterval,
	}
	l.open = l.openPostgres
	return l
}

func (l *Listener) openPostgres() changeStream {
	return pq.NewListener(l.dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.Warn("postgres listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
}

// Run listens until ctx is cancelled. A failing initial LISTEN is retried
// with capped exponential backoff; afterwards pq reconnects on its own.
func (l *Listener) Run(ctx context.Context) error {
	stream, ok := l.subscribe(ctx)
	if !ok {
		return nil
	}
	defer stream.Close()
	l.logger.Info("listening for table changes", zap.String("channel", l.channel))

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-stream.NotificationChannel():
			l.relay(n)
		case <-ticker.C:
			if err := stream.Ping(); err != nil {
				l.logger.Warn("postgres listener ping failed", zap.Error(err))
			}
		}
	}
}

// subscribe opens a stream and issues LISTEN, retrying until it succeeds or
// ctx ends.
func (l *Listener) subscribe(ctx context.Context) (changeStream, bool) {
	delay := l.retryMin
	for attempt := 1; ; attempt++ {
		stream := l.open()
		err := stream.Listen(l.channel)
		if err == nil {
			return stream, true
		}
		_ = stream.Close()
		l.logger.Warn("postgres listen failed",
			zap.String("channel", l.channel),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}
		delay = nextBackoff(delay, l.retryMax)
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit || next <= 0 {
		return limit
	}
	return next
}

func (l *Listener) relay(n *pq.Notification) {
	// nil after a reconnect; notifications sent while disconnected are lost
	if n == nil {
		return
	}
	ev, err := ParseEvent(n.Extra)
	if err != nil {
		l.logger.Warn("ignoring malformed change notification", zap.String("payload", n.Extra), zap.Error(err))
		return
	}
	l.publisher.Publish(ev)
}
