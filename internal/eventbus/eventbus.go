// Package eventbus implements the Event Bus (spec §4.8): typed topic
// broadcast with per-subscriber blocking or queued delivery. Grounded on the
// teacher's internal/api/http/ws_hub.go, which runs one goroutine draining a
// register/unregister/broadcast channel set and fans out to per-client
// bounded send channels, dropping on a full channel. Here the same
// single-dispatcher, bounded-queue, drop-on-full idiom is generalized from
// "websocket client" to "typed subscriber" and the register/unregister
// channels become a mutex-guarded subscriber list snapshotted per emission
// (spec §5: "an immutable snapshot is taken for each emission so add/remove
// during delivery is safe").
package eventbus

import (
	"log/slog"
	"sync"
)

// Topic identifies one of the engine's outbound event streams (spec §6).
type Topic string

const (
	OnFrame                Topic = "on_frame"
	OnError                Topic = "on_error"
	OnMediaLoaded          Topic = "on_media_loaded"
	OnMediaStateChanged    Topic = "on_media_state_changed"
	OnPlaybackStateChanged Topic = "on_playback_state_changed"
)

// Token identifies a subscription for later Unsubscribe calls.
type Token int

type subscriber struct {
	id       Token
	topic    Topic
	fn       func(any)
	blocking bool
}

type dispatchItem struct {
	sub     *subscriber
	payload any
}

// Bus is a typed, best-effort, non-blocking publish/subscribe broadcaster.
// At most one dispatcher goroutine runs per Bus (spec §5), shared by every
// queued (non-blocking) subscriber across all topics.
type Bus struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[Topic][]*subscriber
	nextID Token

	queue chan dispatchItem
	done  chan struct{}
	once  sync.Once
}

// New starts a Bus with the given queued-subscriber backlog size.
func New(logger *slog.Logger, queueSize int) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	b := &Bus{
		logger: logger,
		subs:   make(map[Topic][]*subscriber),
		queue:  make(chan dispatchItem, queueSize),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	for {
		select {
		case <-b.done:
			return
		case item := <-b.queue:
			b.deliver(item.sub, item.payload)
		}
	}
}

// deliver invokes a subscriber's callback, recovering any panic so a faulty
// subscriber can never affect another subscriber or the publisher (spec §4.8).
func (b *Bus) deliver(sub *subscriber, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event bus subscriber panicked",
				slog.String("topic", string(sub.topic)),
				slog.Any("recover", r))
		}
	}()
	sub.fn(payload)
}

// Subscribe registers fn on topic. If blocking is true, Publish invokes fn
// synchronously on the publisher's goroutine; otherwise fn runs on the
// shared dispatcher goroutine via a bounded queue that drops the newest
// item (with a warning) when full.
func (b *Bus) Subscribe(topic Topic, fn func(payload any), blocking bool) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscriber{id: b.nextID, topic: topic, fn: fn, blocking: blocking}
	b.subs[topic] = append(b.subs[topic], sub)
	return sub.id
}

// Unsubscribe removes a prior subscription. A no-op if token is unknown.
func (b *Bus) Unsubscribe(token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.subs {
		for i, s := range subs {
			if s.id == token {
				b.subs[topic] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers payload to every current subscriber of topic. Blocking
// subscribers run synchronously, in registration order, before Publish
// returns; queued subscribers are handed to the dispatcher and may still be
// in flight when Publish returns.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.Lock()
	snapshot := append([]*subscriber(nil), b.subs[topic]...)
	b.mu.Unlock()

	for _, sub := range snapshot {
		if sub.blocking {
			b.deliver(sub, payload)
			continue
		}
		select {
		case b.queue <- dispatchItem{sub: sub, payload: payload}:
		default:
			b.logger.Warn("event bus queue full, dropping event",
				slog.String("topic", string(topic)))
		}
	}
}

// Close stops the dispatcher goroutine. Subsequent Publish calls still
// deliver to blocking subscribers but queued subscribers will no longer be
// drained.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.done) })
}
