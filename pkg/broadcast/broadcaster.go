// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package broadcast provides per-scope fan-out of live events to any
// number of subscribers, with a bounded replay buffer so late subscribers
// see recent history.
package broadcast

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Default configuration values
const (
	// DefaultReplayCapacity is the default replay buffer size per channel.
	DefaultReplayCapacity = 100

	// DefaultSubscriberBuffer is the default channel buffer for a
	// subscriber, on top of the replay backlog it receives up front.
	DefaultSubscriberBuffer = 256
)

// Broadcaster fans events of one type out to a dynamic set of subscribers.
// Every published event is appended to a bounded FIFO replay buffer
// (oldest evicted first) and pushed to each live subscriber independently.
// A subscriber that cannot keep up is pruned; it never stalls delivery to
// the others. All operations are safe for concurrent use.
type Broadcaster[T any] struct {
	mu sync.Mutex

	scope    string
	channel  string
	capacity int

	// Replay buffer, oldest first. Never exceeds capacity.
	buffer []T

	// Subscription ID → subscription
	subscribers map[string]*Subscription[T]

	logger *zap.Logger

	// Statistics (atomic counters)
	totalPublished atomic.Int64
	totalDelivered atomic.Int64
	totalPruned    atomic.Int64
}

// Subscription is one subscriber's handle onto a Broadcaster. Events
// arrive on Channel in publish order, starting with the replay backlog
// that existed at subscribe time.
type Subscription[T any] struct {
	ID      string
	Channel <-chan T

	b       *Broadcaster[T]
	channel chan T
	closed  bool // guarded by b.mu
}

// New creates a Broadcaster for one logical channel of one scope.
// capacity <= 0 selects DefaultReplayCapacity.
func New[T any](scope, channel string, capacity int, logger *zap.Logger) *Broadcaster[T] {
	if capacity <= 0 {
		capacity = DefaultReplayCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster[T]{
		scope:       scope,
		channel:     channel,
		capacity:    capacity,
		buffer:      make([]T, 0, capacity),
		subscribers: make(map[string]*Subscription[T]),
		logger:      logger,
	}
}

// Publish appends event to the replay buffer and delivers it to every
// live subscriber. Delivery is non-blocking per subscriber: a full or
// abandoned subscriber is pruned immediately and does not delay the rest.
func (b *Broadcaster[T]) Publish(event T) {
	b.mu.Lock()

	if len(b.buffer) == b.capacity {
		copy(b.buffer, b.buffer[1:])
		b.buffer = b.buffer[:b.capacity-1]
	}
	b.buffer = append(b.buffer, event)

	delivered := 0
	pruned := 0
	for id, sub := range b.subscribers {
		select {
		case sub.channel <- event:
			delivered++
		default:
			// Subscriber buffer full - the consumer has stalled.
			delete(b.subscribers, id)
			sub.closed = true
			close(sub.channel)
			pruned++
		}
	}
	b.mu.Unlock()

	b.totalPublished.Add(1)
	b.totalDelivered.Add(int64(delivered))
	b.totalPruned.Add(int64(pruned))

	if pruned > 0 {
		b.logger.Warn("pruned stalled subscribers",
			zap.String("scope", b.scope),
			zap.String("channel", b.channel),
			zap.Int("pruned", pruned))
	}
}

// Subscribe registers a new subscriber and returns its subscription. The
// replay backlog is queued onto the subscription channel before any later
// publish can reach it, so the subscriber observes a single total order
// with no gap and no duplicate across the replay/live handoff.
//
// bufferSize is the live-event headroom on top of the backlog;
// bufferSize <= 0 selects DefaultSubscriberBuffer.
func (b *Broadcaster[T]) Subscribe(bufferSize int) *Subscription[T] {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, bufferSize+len(b.buffer))
	for _, event := range b.buffer {
		ch <- event
	}

	sub := &Subscription[T]{
		ID:      fmt.Sprintf("%s-%s-%d", b.scope, b.channel, time.Now().UnixNano()),
		Channel: ch,
		b:       b,
		channel: ch,
	}
	b.subscribers[sub.ID] = sub

	b.logger.Debug("subscriber attached",
		zap.String("scope", b.scope),
		zap.String("channel", b.channel),
		zap.String("subscription_id", sub.ID),
		zap.Int("replayed", len(b.buffer)))

	return sub
}

// Close detaches the subscription and closes its channel. Idempotent;
// safe to call after the broadcaster has already pruned the subscriber.
func (s *Subscription[T]) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(s.b.subscribers, s.ID)
	close(s.channel)
}

// SubscriberCount returns the number of live subscribers.
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Backlog returns a copy of the current replay buffer, oldest first.
func (b *Broadcaster[T]) Backlog() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.buffer))
	copy(out, b.buffer)
	return out
}
