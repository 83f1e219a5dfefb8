// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package session tracks per-client conversation state across chat turns.
package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/agentdeck/internal/csync"
)

// Context is the conversation state owned by one client connection. The
// continuation context is the opaque token the runtime returns with every
// response; sending it back on the next turn lets the runtime reconstruct
// the conversation.
type Context struct {
	ClientID  string
	Network   string
	CreatedAt time.Time

	// The socket read loop reads the continuation for the next inbound
	// message while the previous turn's goroutine may still be writing it.
	mu           sync.RWMutex
	continuation map[string]any
}

// Continuation returns the stored continuation context, or nil before the
// first completed turn.
func (c *Context) Continuation() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.continuation
}

// SetContinuation replaces the continuation context.
func (c *Context) SetContinuation(continuation map[string]any) {
	c.mu.Lock()
	c.continuation = continuation
	c.mu.Unlock()
}

// Store holds one Context per connected client identity. Entries are
// created on the first message of a connection and removed when the
// connection closes. Updates for an identity that has already been
// removed are stale-session no-ops: background turns may outlive their
// connection.
type Store struct {
	sessions *csync.Map[string, *Context]
	logger   *zap.Logger
}

// NewStore creates an empty session store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessions: csync.NewMap[string, *Context](),
		logger:   logger,
	}
}

// GetOrCreate returns the session for clientID, creating it if absent.
func (s *Store) GetOrCreate(clientID, network string) *Context {
	return s.sessions.GetOrSet(clientID, func() *Context {
		s.logger.Debug("session created",
			zap.String("client_id", clientID),
			zap.String("network", network))
		return &Context{
			ClientID:  clientID,
			Network:   network,
			CreatedAt: time.Now(),
		}
	})
}

// Continuation returns the stored continuation context for clientID, or
// nil when the session is unknown or has not completed a turn yet.
func (s *Store) Continuation(clientID string) map[string]any {
	sess, ok := s.sessions.Get(clientID)
	if !ok {
		return nil
	}
	return sess.Continuation()
}

// UpdateContinuation replaces the continuation context after a completed
// turn. Unknown identities are ignored.
func (s *Store) UpdateContinuation(clientID string, continuation map[string]any) {
	sess, ok := s.sessions.Get(clientID)
	if !ok {
		s.logger.Debug("continuation update for stale session",
			zap.String("client_id", clientID))
		return
	}
	sess.SetContinuation(continuation)
}

// Remove discards the session for clientID. Idempotent.
func (s *Store) Remove(clientID string) {
	s.sessions.Delete(clientID)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.sessions.Len()
}
