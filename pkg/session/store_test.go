// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))

	sess := s.GetOrCreate("client-1", "demo")
	require.NotNil(t, sess)
	assert.Equal(t, "demo", sess.Network)
	assert.False(t, sess.CreatedAt.IsZero())
	assert.Nil(t, s.Continuation("client-1"))

	// Same identity, same session.
	assert.Same(t, sess, s.GetOrCreate("client-1", "demo"))

	s.UpdateContinuation("client-1", map[string]any{"state": "abc"})
	assert.Equal(t, map[string]any{"state": "abc"}, s.Continuation("client-1"))

	s.Remove("client-1")
	assert.Equal(t, 0, s.Len())
}

func TestStoreStaleUpdateIsNoOp(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))

	s.GetOrCreate("client-1", "demo")
	s.Remove("client-1")

	// A turn finishing after disconnect must not resurrect the session.
	s.UpdateContinuation("client-1", map[string]any{"state": "late"})
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Continuation("client-1"))

	s.Remove("client-1")
}

func TestStoreIsolatesClients(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))

	s.GetOrCreate("a", "demo")
	s.GetOrCreate("b", "demo")
	s.UpdateContinuation("a", map[string]any{"owner": "a"})

	assert.Nil(t, s.Continuation("b"))
	assert.Equal(t, map[string]any{"owner": "a"}, s.Continuation("a"))
}

func TestContinuationConcurrentReadWrite(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	s.GetOrCreate("client-1", "demo")

	// A client sending its next message while the previous turn is still
	// finishing reads the continuation concurrently with the update.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.UpdateContinuation("client-1", map[string]any{"writer": g, "turn": i})
				_ = s.Continuation("client-1")
			}
		}(g)
	}
	wg.Wait()

	assert.NotNil(t, s.Continuation("client-1"))
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithClientID(context.Background(), "client-9")

	assert.Equal(t, "client-9", ClientIDFromContext(ctx))
	assert.Empty(t, ClientIDFromContext(context.Background()))
	assert.Equal(t, context.Background(), WithClientID(context.Background(), ""))
}
