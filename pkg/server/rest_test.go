// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const restDemoNetwork = `
tools = [
  {
    name = "frontman"
    instructions = "Answer the user."
    tools = ["helper"]
  },
  {
    name = "helper"
    command = "Help out."
  }
]
`

func (ts *testServer) getJSON(t *testing.T, path string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(ts.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (ts *testServer) putJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, ts.http.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t, nil)

	health := ts.getJSON(t, "/health", http.StatusOK)
	assert.Equal(t, "healthy", health["status"])

	version := ts.getJSON(t, "/api/v1/version", http.StatusOK)
	assert.NotEmpty(t, version["version"])
}

func TestNetworksAndTopologyEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	require.NoError(t, ts.reg.SaveDefinition("demo", restDemoNetwork))

	resp := ts.putJSON(t, "/api/v1/networks/demo/definition", map[string]string{
		"definition": restDemoNetwork,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	topo := ts.getJSON(t, "/api/v1/networks/demo", http.StatusOK)
	nodes := topo["nodes"].([]any)
	require.Len(t, nodes, 2)
	assert.Equal(t, "frontman", nodes[0].(map[string]any)["id"])

	def := ts.getJSON(t, "/api/v1/networks/demo/definition", http.StatusOK)
	assert.Equal(t, restDemoNetwork, def["definition"])

	local := ts.getJSON(t, "/api/v1/networks/demo/connectivity", http.StatusOK)
	assert.Len(t, local["connectivity"].([]any), 2)

	ts.getJSON(t, "/api/v1/networks/ghost", http.StatusNotFound)
}

func TestPutDefinitionRejectsBadHOCON(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.putJSON(t, "/api/v1/networks/demo/definition", map[string]string{
		"definition": "tools = [ {{{",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRuntimeTargetRoundTrip(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.putJSON(t, "/api/v1/config/runtime", map[string]any{
		"host": "10.0.0.5",
		"port": 30011,
		"tls":  true,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	target := ts.getJSON(t, "/api/v1/config/runtime", http.StatusOK)
	assert.Equal(t, "10.0.0.5", target["host"])
	assert.Equal(t, float64(30011), target["port"])
	assert.Equal(t, true, target["tls"])

	bad := ts.putJSON(t, "/api/v1/config/runtime", map[string]any{"host": ""})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestProxiedRuntimeEndpoints(t *testing.T) {
	handler := func(_ any, stream grpc.ServerStream) error {
		var req structpb.Struct
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		out, err := structpb.NewStruct(map[string]any{
			"connectivity_info": []any{
				map[string]any{"origin": "frontman", "tools": []any{"helper"}},
			},
		})
		if err != nil {
			return err
		}
		return stream.SendMsg(out)
	}
	ts := newTestServer(t, handler)

	conn := ts.getJSON(t, "/api/v1/connectivity/demo", http.StatusOK)
	assert.Len(t, conn["connectivity_info"].([]any), 1)
}

func TestProxiedEndpointsReport503WhenRuntimeDown(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.getJSON(t, "/api/v1/list", http.StatusServiceUnavailable)
	ts.getJSON(t, "/api/v1/connectivity/demo", http.StatusServiceUnavailable)
}

func TestTranscriptsEndpoint(t *testing.T) {
	ts := newTestServer(t, echoTurnHandler(t))

	chat := ts.dialWS(t, "/api/v1/ws/chat/demo")
	require.NoError(t, chat.WriteJSON(map[string]any{"message": "hello"}))
	var answer map[string]any
	require.NoError(t, chat.ReadJSON(&answer))

	assert.Eventually(t, func() bool {
		resp, err := http.Get(ts.http.URL + "/api/v1/transcripts?network=demo")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return false
		}
		entries, _ := out["transcripts"].([]any)
		if len(entries) != 1 {
			return false
		}
		entry := entries[0].(map[string]any)
		return entry["user_text"] == "hello" && entry["answer"] == "Here is your answer"
	}, 5*time.Second, 20*time.Millisecond)

	bad, err := http.Get(ts.http.URL + "/api/v1/transcripts?limit=zero")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, ts.http.URL+"/api/v1/networks", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PUT")
}

func TestSSELogTailReplaysThenStreams(t *testing.T) {
	ts := newTestServer(t, nil)

	hub := ts.srv.hubs.Hub("demo")
	hub.LogEvent("before subscribe", "system")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.http.URL+"/api/v1/sse/logs/demo", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	hub.LogEvent("after subscribe", "system")

	var messages []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var logLine map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &logLine))
		messages = append(messages, logLine["message"].(string))
		if len(messages) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"before subscribe", "after subscribe"}, messages)
}

func TestStreamingChatEmitsJSONLines(t *testing.T) {
	ts := newTestServer(t, echoTurnHandler(t))

	body, err := json.Marshal(map[string]any{"message": "hello"})
	require.NoError(t, err)
	resp, err := http.Post(ts.http.URL+"/api/v1/streaming_chat/demo", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var types []string
	dec := json.NewDecoder(resp.Body)
	for {
		var msg map[string]any
		if err := dec.Decode(&msg); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("decode stream: %v", err)
		}
		types = append(types, fmt.Sprint(msg["type"]))
	}
	assert.Equal(t, []string{"AGENT", "AGENT_TOOL_RESULT", "AI"}, types)
}
