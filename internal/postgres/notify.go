// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/arkforge/eventstore/internal/eventstore"
	"github.com/arkforge/eventstore/pkg/errutil"
)

const notifyChannel = "events_changed"

// connIface abstracts the single dedicated connection a Listener holds,
// so tests can exercise the reconnect-and-parse logic with a mock instead
// of a real database.
type connIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type pgxConnAdapter struct{ *pgx.Conn }

func (a pgxConnAdapter) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return a.Conn.WaitForNotification(ctx)
}

func defaultConnector(ctx context.Context, dsn string) (connIface, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return pgxConnAdapter{conn}, nil
}

// Listener holds one dedicated (non-pooled) LISTEN connection and fans out
// every notification it receives to every currently registered subscriber
// channel, dropping (and logging) for any subscriber whose buffer is full
// rather than ever blocking the listen loop. Grounded on
// internal/core/broadcaster.go's drop-on-full pattern, generalized from a
// per-stream channel registry to a single store-wide channel matching the
// one "events_changed" Postgres channel the schema uses.
type Listener struct {
	dsn       string
	connector func(ctx context.Context, dsn string) (connIface, error)

	reconnectInitial time.Duration
	reconnectMax     time.Duration
	reconnectFactor  float64

	mu   sync.Mutex
	subs []chan eventstore.Notification

	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a Listener against dsn. Call Start to begin the
// background listen loop.
func NewListener(dsn string) *Listener {
	return &Listener{
		dsn:              dsn,
		connector:        defaultConnector,
		reconnectInitial: 100 * time.Millisecond,
		reconnectMax:     30 * time.Second,
		reconnectFactor:  2.0,
	}
}

// Subscribe registers a new channel that receives every future
// notification until ctx is cancelled.
func (l *Listener) Subscribe(ctx context.Context) <-chan eventstore.Notification {
	ch := make(chan eventstore.Notification, 64)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, c := range l.subs {
			if c == ch {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (l *Listener) broadcast(n eventstore.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- n:
		default:
			slog.Warn("dropping event store notification for slow subscriber", "stream", n.Stream)
		}
	}
}

// Start begins the background listen loop. It reconnects with exponential
// backoff whenever the dedicated connection is lost, and exits cleanly
// when ctx is cancelled.
func (l *Listener) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
}

// Close stops the listen loop and waits for it to exit.
func (l *Listener) Close() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
	}
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	backoff := l.reconnectInitial

	for {
		if ctx.Err() != nil {
			return
		}
		if err := l.listenOnce(ctx); err != nil {
			errutil.LogError(slog.With("backoff", backoff), "event store listener lost connection, reconnecting", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = time.Duration(float64(backoff) * l.reconnectFactor)
			if backoff > l.reconnectMax {
				backoff = l.reconnectMax
			}
			continue
		}
		backoff = l.reconnectInitial
	}
}

// listenOnce opens one dedicated connection, issues LISTEN, and loops on
// WaitForNotification until it errors or ctx is cancelled. A nil error
// return only happens on clean context cancellation.
func (l *Listener) listenOnce(ctx context.Context) error {
	conn, err := l.connector(ctx, l.dsn)
	if err != nil {
		return oops.Code("TRANSPORT_ERROR").Wrap(err)
	}
	defer conn.Close(context.Background()) //nolint:errcheck // best-effort on an already-failing connection

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return oops.Code("TRANSPORT_ERROR").Wrap(err)
	}

	for {
		notice, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
		n, ok := parseNotification(notice.Payload)
		if !ok {
			slog.Warn("ignoring malformed event store notification payload", "payload", notice.Payload)
			continue
		}
		l.broadcast(n)
	}
}

func parseNotification(payload string) (eventstore.Notification, bool) {
	kind, stream, found := strings.Cut(payload, ":")
	if !found {
		return eventstore.Notification{}, false
	}
	var k eventstore.NotificationKind
	switch kind {
	case "append":
		k = eventstore.NotifyAppend
	case "delete":
		k = eventstore.NotifyDelete
	default:
		return eventstore.Notification{}, false
	}
	return eventstore.Notification{Kind: k, Stream: eventstore.StreamID(stream)}, true
}

// Notifications implements eventstore.Notifier, lazily starting the
// store's shared Listener on first call.
func (s *Store) Notifications(ctx context.Context) (<-chan eventstore.Notification, error) {
	s.mu.Lock()
	if s.listener == nil {
		s.listener = NewListener(s.cfg.DSN)
		s.listener.Start(context.Background())
	}
	l := s.listener
	s.mu.Unlock()
	return l.Subscribe(ctx), nil
}
