// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package broadcast

import (
	"go.uber.org/zap"

	"github.com/teradata-labs/agentdeck/internal/csync"
	"github.com/teradata-labs/agentdeck/pkg/events"
)

// GlobalScope is the scope shared by events not tied to one network.
const GlobalScope = "global"

// Hub bundles the broadcasters of one scope: the internal agent trace and
// the raw log tail. A hub is long-lived; it survives subscriber churn so
// that an operator attaching later still sees recent history, and two
// browser tabs chatting against the same network observe each other's
// trace and log events.
type Hub struct {
	Scope string
	Trace *Broadcaster[events.TraceStep]
	Logs  *Broadcaster[events.LogLine]

	logger *zap.Logger
}

// LogEvent publishes a log line to the scope's log channel and mirrors it
// to the process logger.
func (h *Hub) LogEvent(message, source string) {
	h.logger.Info(message, zap.String("scope", h.Scope), zap.String("source", source))
	h.Logs.Publish(events.NewLogLine(message, source))
}

// PublishTrace publishes one agent-trace step to the scope's trace channel.
func (h *Hub) PublishTrace(step events.TraceStep) {
	h.Trace.Publish(step)
}

// Registry maps scope keys (network names, or GlobalScope) to their hubs.
// Hubs are created lazily on first access and never removed: scope
// cardinality is bounded by the number of configured networks, so process
// lifetime bounds memory growth.
type Registry struct {
	hubs     *csync.Map[string, *Hub]
	capacity int
	logger   *zap.Logger
}

// NewRegistry creates a hub registry. capacity is the replay buffer size
// applied to every broadcaster; capacity <= 0 selects DefaultReplayCapacity.
func NewRegistry(capacity int, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		hubs:     csync.NewMap[string, *Hub](),
		capacity: capacity,
		logger:   logger,
	}
}

// Hub returns the hub for scope, creating it on first access. Concurrent
// first accesses for the same scope all receive the same instance.
func (r *Registry) Hub(scope string) *Hub {
	if scope == "" {
		scope = GlobalScope
	}
	return r.hubs.GetOrSet(scope, func() *Hub {
		r.logger.Info("creating broadcast hub", zap.String("scope", scope))
		return &Hub{
			Scope:  scope,
			Trace:  New[events.TraceStep](scope, "trace", r.capacity, r.logger),
			Logs:   New[events.LogLine](scope, "logs", r.capacity, r.logger),
			logger: r.logger,
		}
	})
}

// Scopes returns the currently materialized scope keys.
func (r *Registry) Scopes() []string {
	scopes := make([]string, 0, r.hubs.Len())
	for scope := range r.hubs.Seq2() {
		scopes = append(scopes, scope)
	}
	return scopes
}
