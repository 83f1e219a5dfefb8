// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package server

import (
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/teradata-labs/agentdeck/pkg/broadcast"
	"github.com/teradata-labs/agentdeck/pkg/registry"
	"github.com/teradata-labs/agentdeck/pkg/runtime"
	"github.com/teradata-labs/agentdeck/pkg/session"
	"github.com/teradata-labs/agentdeck/pkg/transcript"
)

// testServer bundles a Server with a fake upstream runtime and an
// httptest listener.
type testServer struct {
	srv  *Server
	http *httptest.Server
	reg  *registry.Registry
	tx   *transcript.Store
}

// startUpstream serves the runtime API through a generic stream handler.
// A nil handler leaves the upstream unreachable.
func startUpstream(t *testing.T, handler grpc.StreamHandler) runtime.Target {
	t.Helper()
	if handler == nil {
		return runtime.Target{Host: "127.0.0.1", Port: 1}
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcSrv := grpc.NewServer(grpc.UnknownServiceHandler(handler))
	go func() { _ = grpcSrv.Serve(lis) }()
	t.Cleanup(grpcSrv.Stop)

	return runtime.Target{Host: "127.0.0.1", Port: lis.Addr().(*net.TCPAddr).Port}
}

func newTestServer(t *testing.T, handler grpc.StreamHandler) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	reg, err := registry.New(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	tx, err := transcript.Open(filepath.Join(t.TempDir(), "transcripts.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Close() })

	srv := New(Config{SubscriberBuffer: 64}, Deps{
		Runtime: runtime.NewClient(runtime.Config{
			Target:      startUpstream(t, handler),
			CallTimeout: 5 * time.Second,
		}, logger),
		Hubs:        broadcast.NewRegistry(broadcast.DefaultReplayCapacity, logger),
		Sessions:    session.NewStore(logger),
		Registry:    reg,
		Transcripts: tx,
		Logger:      logger,
	})

	hs := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(hs.Close)

	return &testServer{srv: srv, http: hs, reg: reg, tx: tx}
}

func (ts *testServer) dialWS(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	return conn
}

func upstreamMsg(t *testing.T, resp map[string]any) *structpb.Struct {
	t.Helper()
	msg, err := structpb.NewStruct(map[string]any{"response": resp})
	require.NoError(t, err)
	return msg
}

// echoTurnHandler answers every turn with two agent steps and a final
// AI message carrying continuation state.
func echoTurnHandler(t *testing.T) grpc.StreamHandler {
	return func(_ any, stream grpc.ServerStream) error {
		var req structpb.Struct
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}

		_ = stream.SendMsg(upstreamMsg(t, map[string]any{
			"type":   "AGENT",
			"text":   "routing the request",
			"origin": []any{map[string]any{"tool": "Router"}},
		}))
		_ = stream.SendMsg(upstreamMsg(t, map[string]any{
			"type":   "AGENT_TOOL_RESULT",
			"text":   "lookup done",
			"origin": []any{map[string]any{"tool": "Router"}, map[string]any{"tool": "searcher"}},
		}))
		_ = stream.SendMsg(upstreamMsg(t, map[string]any{
			"type":         "AI",
			"text":         "Here is your answer",
			"chat_context": map[string]any{"state": "turn-1"},
		}))
		return nil
	}
}

func TestChatTurnFansOutToAllChannels(t *testing.T) {
	ts := newTestServer(t, echoTurnHandler(t))

	chat := ts.dialWS(t, "/api/v1/ws/chat/demo")
	internal := ts.dialWS(t, "/api/v1/ws/internalchat/demo")
	logs := ts.dialWS(t, "/api/v1/ws/logs/demo")

	require.NoError(t, chat.WriteJSON(map[string]any{"message": "hello"}))

	// Final answer arrives only on the chat socket, one-to-one.
	var answer map[string]any
	require.NoError(t, chat.ReadJSON(&answer))
	message := answer["message"].(map[string]any)
	assert.Equal(t, "AI", message["type"])
	assert.Equal(t, "Here is your answer", message["text"])

	// Both agent messages surface as trace steps, in order.
	var step1, step2 map[string]any
	require.NoError(t, internal.ReadJSON(&step1))
	require.NoError(t, internal.ReadJSON(&step2))
	assert.Equal(t, []any{"Router"}, step1["otrace"])
	assert.Equal(t, "routing the request", step1["text"])
	assert.Equal(t, []any{"Router", "searcher"}, step2["otrace"])

	// Every upstream message, the AI one included, produces a log line.
	for i := 0; i < 3; i++ {
		var line map[string]any
		require.NoError(t, logs.ReadJSON(&line))
		assert.NotEmpty(t, line["timestamp"], i)
		assert.Equal(t, "runtime", line["source"], i)
		assert.Contains(t, line["message"], "otrace", i)
	}

	// The finished turn lands in the transcript store.
	assert.Eventually(t, func() bool {
		entries, err := ts.tx.Recent(t.Context(), "demo", 10)
		return err == nil && len(entries) == 1 && entries[0].Status == transcript.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestChatTurnCarriesContinuationAcrossTurns(t *testing.T) {
	contexts := make(chan any, 2)
	handler := func(_ any, stream grpc.ServerStream) error {
		var req structpb.Struct
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		contexts <- req.AsMap()["chat_context"]

		_ = stream.SendMsg(upstreamMsg(t, map[string]any{
			"type":         "AI",
			"text":         "ok",
			"chat_context": map[string]any{"state": "carried"},
		}))
		return nil
	}

	ts := newTestServer(t, handler)
	chat := ts.dialWS(t, "/api/v1/ws/chat/demo")

	var answer map[string]any
	require.NoError(t, chat.WriteJSON(map[string]any{"message": "first"}))
	require.NoError(t, chat.ReadJSON(&answer))
	require.NoError(t, chat.WriteJSON(map[string]any{"message": "second"}))
	require.NoError(t, chat.ReadJSON(&answer))

	assert.Nil(t, <-contexts)
	assert.Equal(t, map[string]any{"state": "carried"}, <-contexts)
}

func TestChatTurnFailureYieldsErrorNotSilence(t *testing.T) {
	ts := newTestServer(t, nil) // upstream unreachable

	chat := ts.dialWS(t, "/api/v1/ws/chat/demo")
	logs := ts.dialWS(t, "/api/v1/ws/logs/demo")
	require.NoError(t, chat.WriteJSON(map[string]any{"message": "hello"}))

	var reply map[string]any
	require.NoError(t, chat.ReadJSON(&reply))
	assert.NotEmpty(t, reply["error"])

	// The failure is classified: an unreachable runtime logs as such.
	var line map[string]any
	require.NoError(t, logs.ReadJSON(&line))
	assert.Contains(t, line["message"], "agent runtime unreachable")

	assert.Eventually(t, func() bool {
		entries, err := ts.tx.Recent(t.Context(), "demo", 10)
		return err == nil && len(entries) == 1 && entries[0].Status == transcript.StatusFailed
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDisconnectDoesNotCancelInFlightTurn(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan error, 1)
	handler := func(_ any, stream grpc.ServerStream) error {
		var req structpb.Struct
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		_ = stream.SendMsg(upstreamMsg(t, map[string]any{
			"type":   "AGENT",
			"text":   "working",
			"origin": []any{map[string]any{"tool": "Router"}},
		}))
		<-release
		err := stream.SendMsg(upstreamMsg(t, map[string]any{
			"type": "AI",
			"text": "too late",
		}))
		finished <- err
		return nil
	}

	ts := newTestServer(t, handler)

	chat := ts.dialWS(t, "/api/v1/ws/chat/demo")
	internal := ts.dialWS(t, "/api/v1/ws/internalchat/demo")

	require.NoError(t, chat.WriteJSON(map[string]any{"message": "hello"}))

	// Wait until the turn is demonstrably in flight, then vanish.
	var step map[string]any
	require.NoError(t, internal.ReadJSON(&step))
	require.NoError(t, chat.Close())
	close(release)

	// The upstream stream runs to completion; the undeliverable answer
	// is recorded as orphaned.
	require.NoError(t, <-finished)
	assert.Eventually(t, func() bool {
		entries, err := ts.tx.Recent(t.Context(), "demo", 10)
		return err == nil && len(entries) == 1 &&
			entries[0].Status == transcript.StatusOrphaned &&
			entries[0].Answer == "too late"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestInternalChatReplaysRecentTrace(t *testing.T) {
	ts := newTestServer(t, echoTurnHandler(t))

	chat := ts.dialWS(t, "/api/v1/ws/chat/demo")
	require.NoError(t, chat.WriteJSON(map[string]any{"message": "hello"}))
	var answer map[string]any
	require.NoError(t, chat.ReadJSON(&answer))

	// A subscriber attaching after the turn still sees its trace.
	late := ts.dialWS(t, "/api/v1/ws/internalchat/demo")
	var step map[string]any
	require.NoError(t, late.ReadJSON(&step))
	assert.Equal(t, []any{"Router"}, step["otrace"])
}

func TestTwoTabsSeeTheSameTrace(t *testing.T) {
	ts := newTestServer(t, echoTurnHandler(t))

	tabA := ts.dialWS(t, "/api/v1/ws/internalchat/demo")
	tabB := ts.dialWS(t, "/api/v1/ws/internalchat/demo")

	chat := ts.dialWS(t, "/api/v1/ws/chat/demo")
	require.NoError(t, chat.WriteJSON(map[string]any{"message": "hello"}))

	for _, tab := range []*websocket.Conn{tabA, tabB} {
		var step1, step2 map[string]any
		require.NoError(t, tab.ReadJSON(&step1))
		require.NoError(t, tab.ReadJSON(&step2))
		assert.Equal(t, []any{"Router"}, step1["otrace"])
		assert.Equal(t, []any{"Router", "searcher"}, step2["otrace"])
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	ts := newTestServer(t, nil)

	chat := ts.dialWS(t, "/api/v1/ws/chat/demo")
	require.NoError(t, chat.WriteJSON(map[string]any{"message": "   "}))

	var reply map[string]any
	require.NoError(t, chat.ReadJSON(&reply))
	assert.Equal(t, "empty message", reply["error"])

	require.NoError(t, chat.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, chat.ReadJSON(&reply))
	assert.Equal(t, "invalid message", reply["error"])
}

func TestGlobalLogsSocket(t *testing.T) {
	ts := newTestServer(t, nil)

	global := ts.dialWS(t, "/api/v1/ws/logs")
	ts.srv.hubs.Hub("").LogEvent("server started", "system")

	var line map[string]any
	require.NoError(t, global.ReadJSON(&line))
	assert.Equal(t, "server started", line["message"])
	assert.Equal(t, "system", line["source"])
}
