// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subscription

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/arkforge/eventstore/internal/eventstore"
	"github.com/arkforge/eventstore/internal/observability"
	"github.com/arkforge/eventstore/pkg/errutil"
)

// worker drives one subscription's lifecycle end to end: acquiring (and
// renewing) the single-active-consumer lease, reading catch-up batches
// until it reaches the stream's end, then switching to notification-driven
// live delivery, all the while dispatching events to the registered
// Consumer with bounded concurrency and advancing the checkpoint only past
// contiguously acked events.
//
// Grounded on internal/access/policy/cache.go's WithReconnectConfig +
// listenLoop shape (a control loop whose job is "stay connected, reload on
// signal, back off on failure"), generalized here to "stay the active
// consumer, catch up on signal, back off on lease contention".
type worker struct {
	store       eventstore.Store
	checkpoints CheckpointStore
	consumerID  string
	opts        Options
	consumer    Consumer
	metrics     *observability.Metrics

	window *inflightWindow

	mu        sync.Mutex
	st        State
	lastError error

	cancel context.CancelFunc
	done   chan struct{}

	checkpoint atomic.Int64 // eventstore.StreamVersion, last durably saved
}

func newWorker(store eventstore.Store, checkpoints CheckpointStore, consumerID string, opts Options, consumer Consumer, metrics *observability.Metrics) *worker {
	return &worker{
		store:       store,
		checkpoints: checkpoints,
		consumerID:  consumerID,
		opts:        opts,
		consumer:    consumer,
		metrics:     metrics,
		window:      newInflightWindow(opts.MaxInFlight),
		st:          StateInitial,
		done:        make(chan struct{}),
	}
}

func (w *worker) state() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st
}

func (w *worker) setState(s State) {
	w.mu.Lock()
	w.st = s
	w.mu.Unlock()
}

func (w *worker) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(ctx)
}

func (w *worker) stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.checkpoints.ReleaseActive(context.WithoutCancel(ctx), w.opts.Name, w.consumerID)

	cp, err := w.checkpoints.LoadOrCreate(ctx, w.opts)
	if err != nil {
		w.setState(StatePaused)
		w.mu.Lock()
		w.lastError = err
		w.mu.Unlock()
		return
	}
	w.checkpoint.Store(int64(cp))

	// Lease-acquisition waits back off exponentially, capped at the
	// consumer timeout, the same emitWithRetry shape the teacher's
	// internal/world/events.go uses for transient failures, applied here to
	// "another consumer still holds the lease" instead of "append failed".
	backoff := retry.WithCappedDuration(w.opts.ConsumerTimeout, retry.NewExponential(50*time.Millisecond))

	for {
		if ctx.Err() != nil {
			return
		}
		acquired, err := w.checkpoints.TryAcquireActive(ctx, w.opts.Name, w.consumerID, w.opts.ConsumerTimeout)
		if err != nil {
			errutil.LogError(slog.With("name", w.opts.Name), "subscription lease acquisition failed", err)
		}
		if err != nil || !acquired {
			w.setState(StateDisconnected)
			if !w.sleep(ctx, backoff) {
				return
			}
			continue
		}
		backoff = retry.WithCappedDuration(w.opts.ConsumerTimeout, retry.NewExponential(50*time.Millisecond))
		if w.runActive(ctx) {
			return
		}
		// runActive returned false: lost the lease or hit a transient
		// error. Loop back and try to reacquire.
	}
}

// runActive runs catch-up then live delivery while holding the active
// lease, heartbeating periodically. It returns true if the worker should
// exit entirely (context cancelled), false if it should loop back and
// retry lease acquisition (lease lost or a recoverable error).
func (w *worker) runActive(ctx context.Context) bool {
	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	go w.heartbeatLoop(hbCtx)

	if err := w.catchUp(ctx); err != nil {
		if ctx.Err() != nil {
			return true
		}
		errutil.LogError(slog.With("name", w.opts.Name), "subscription catch-up failed", err)
		return false
	}
	if ctx.Err() != nil {
		return true
	}

	w.setState(StateSubscribed)
	err := w.liveLoop(ctx)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		errutil.LogError(slog.With("name", w.opts.Name), "subscription live loop exited", err)
	}
	return false
}

func (w *worker) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(w.opts.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.checkpoints.Heartbeat(ctx, w.opts.Name, w.consumerID); err != nil {
				errutil.LogError(slog.With("name", w.opts.Name), "subscription heartbeat failed", err)
			}
		}
	}
}

// catchUp reads forward from the checkpoint in batches until a batch comes
// back shorter than the requested size, meaning the stream's current end
// has been reached.
func (w *worker) catchUp(ctx context.Context) error {
	w.setState(StateCatchingUp)
	for {
		from := eventstore.StreamVersion(w.checkpoint.Load() + 1)
		events, err := w.store.Read(ctx, w.opts.Stream, eventstore.ReadOptions{
			Direction:   eventstore.Forward,
			FromVersion: from,
			Limit:       w.opts.CatchUpBatchSize,
		})
		if eventstore.Is(err, eventstore.KindStreamNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(events) == 0 {
			w.metrics.SetCheckpointLag(w.opts.Name, 0)
			return nil
		}
		if err := w.deliverBatch(ctx, events); err != nil {
			return err
		}
		if len(events) < w.opts.CatchUpBatchSize {
			w.metrics.SetCheckpointLag(w.opts.Name, 0)
			return nil
		}
		w.metrics.SetCheckpointLag(w.opts.Name, float64(len(events)))
	}
}

// liveLoop waits on store notifications for this subscription's stream (or
// any append, for the $all stream) and re-runs a catch-up-style read after
// each one, since a notification is only a wake-up signal and carries no
// payload of its own.
func (w *worker) liveLoop(ctx context.Context) error {
	notifications, err := w.store.Notifications(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			if n.Kind == eventstore.NotifyAppend && !w.relevant(n.Stream) {
				continue
			}
			w.setState(StateCatchingUp)
			if err := w.catchUp(ctx); err != nil {
				return err
			}
			w.setState(StateSubscribed)
		}
	}
}

func (w *worker) relevant(stream eventstore.StreamID) bool {
	return w.opts.Stream.IsAll() || stream == w.opts.Stream
}

// deliverBatch dispatches events to the Consumer with concurrency bounded
// by MaxInFlight, then advances and persists the checkpoint past whatever
// contiguous prefix finished resolving.
func (w *worker) deliverBatch(ctx context.Context, events []eventstore.Event) error {
	sem := make(chan struct{}, w.opts.MaxInFlight)
	var wg sync.WaitGroup

	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		tok := w.window.Add(ev)
		sem <- struct{}{}
		wg.Add(1)
		go func(tok Token, ev eventstore.Event) {
			defer wg.Done()
			defer func() { <-sem }()
			w.deliverOne(ctx, tok, ev)
		}(tok, ev)
	}
	wg.Wait()

	if v, ok := w.window.AdvanceCheckpoint(); ok {
		w.checkpoint.Store(int64(v))
		if err := w.checkpoints.SaveCheckpoint(ctx, w.opts.Name, v); err != nil {
			return err
		}
	}
	return nil
}

func (w *worker) deliverOne(ctx context.Context, tok Token, ev eventstore.Event) {
	for {
		ack, action := w.consumer.Handle(Delivery{Token: tok, Event: ev})
		attempts := w.window.BumpAttempts(tok)
		switch resolve(ack, action, attempts, w.opts.MaxRetries) {
		case resolveAck:
			w.metrics.ObserveDelivery(w.opts.Name, "ack")
			w.window.Ack(tok)
			return
		case resolveSkip:
			w.metrics.ObserveDelivery(w.opts.Name, "skip")
			w.window.Ack(tok)
			return
		case resolvePark:
			_ = w.checkpoints.Park(ctx, w.opts.Name, ParkedEvent{
				StreamVersion: ev.StreamVersion,
				EventID:       ev.ID.String(),
				Attempts:      attempts,
				LastError:     "max retries exceeded or consumer requested park",
			})
			w.metrics.ObserveDelivery(w.opts.Name, "park")
			w.metrics.ObserveParked(w.opts.Name)
			w.window.Ack(tok)
			return
		case resolveRedeliver:
			if ctx.Err() != nil {
				return
			}
			continue
		}
	}
}

func (w *worker) sleep(ctx context.Context, b retry.Backoff) bool {
	d, _ := b.Next()
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
