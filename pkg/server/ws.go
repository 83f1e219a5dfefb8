// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teradata-labs/agentdeck/pkg/broadcast"
	"github.com/teradata-labs/agentdeck/pkg/events"
	"github.com/teradata-labs/agentdeck/pkg/runtime"
)

var errSocketClosed = errors.New("socket closed")

// chatInbound is one user-submitted chat message.
type chatInbound struct {
	Message string         `json:"message"`
	SlyData map[string]any `json:"sly_data,omitempty"`
}

// wsSink serializes writes to one websocket. gorilla/websocket allows a
// single concurrent writer, and chat answers arrive from per-turn
// goroutines.
type wsSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (s *wsSink) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSocketClosed
	}
	return s.conn.WriteJSON(v)
}

func (s *wsSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		_ = s.conn.Close()
	}
}

// handleChatSocket is the duplex conversation socket. Each inbound
// message starts one turn; the turn's final answer (or error) is written
// back to this socket only. The turn itself runs detached: closing the
// socket mid-turn abandons the answer but never cancels the turn.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	network := pathTail(r, "/api/v1/ws/chat/")
	if network == "" {
		http.Error(w, "network required", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("chat socket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.NewString()
	s.sessions.GetOrCreate(clientID, network)
	hub := s.hubs.Hub(network)
	sink := &wsSink{conn: conn}

	s.logger.Info("chat client connected",
		zap.String("client_id", clientID),
		zap.String("network", network))

	defer func() {
		s.sessions.Remove(clientID)
		sink.close()
		s.logger.Info("chat client disconnected",
			zap.String("client_id", clientID),
			zap.String("network", network))
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var in chatInbound
		if err := json.Unmarshal(payload, &in); err != nil {
			_ = sink.writeJSON(map[string]any{"error": "invalid message"})
			continue
		}
		if strings.TrimSpace(in.Message) == "" {
			_ = sink.writeJSON(map[string]any{"error": "empty message"})
			continue
		}

		req := runtime.TurnRequest{
			UserText:     in.Message,
			SlyData:      in.SlyData,
			Continuation: s.sessions.Continuation(clientID),
		}

		go func(userText string, req runtime.TurnRequest) {
			res := s.runTurn(clientID, network, req, hub)

			var writeErr error
			if res.err != nil {
				writeErr = sink.writeJSON(map[string]any{"error": res.err.Error()})
			} else {
				writeErr = sink.writeJSON(map[string]any{
					"message": map[string]any{
						"type": string(events.MessageTypeAI),
						"text": res.answer,
					},
				})
			}
			s.recordTranscript(clientID, network, userText, res, writeErr == nil)
		}(in.Message, req)
	}
}

// handleInternalChatSocket pushes the agent-to-agent trace of one
// network: replay first, then live.
func (s *Server) handleInternalChatSocket(w http.ResponseWriter, r *http.Request) {
	network := pathTail(r, "/api/v1/ws/internalchat/")
	if network == "" {
		http.Error(w, "network required", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("internalchat socket upgrade failed", zap.Error(err))
		return
	}

	sub := s.hubs.Hub(network).Trace.Subscribe(s.cfg.SubscriberBuffer)
	pumpSocket(conn, sub)
}

// handleLogsSocket pushes the log tail of one network, or of the global
// scope when no network is named.
func (s *Server) handleLogsSocket(w http.ResponseWriter, r *http.Request) {
	network := pathTail(r, "/api/v1/ws/logs")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("logs socket upgrade failed", zap.Error(err))
		return
	}

	sub := s.hubs.Hub(network).Logs.Subscribe(s.cfg.SubscriberBuffer)
	pumpSocket(conn, sub)
}

// pumpSocket writes every subscribed event to the socket until the
// client disconnects or the subscription is pruned. The read loop only
// consumes control frames; these sockets are push-only.
func pumpSocket[T any](conn *websocket.Conn, sub *broadcast.Subscription[T]) {
	defer sub.Close()
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.Channel:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// handleLogsSSE is the EventSource flavor of the log tail: replays the
// buffer, then streams.
func (s *Server) handleLogsSSE(w http.ResponseWriter, r *http.Request) {
	network := pathTail(r, "/api/v1/sse/logs/")
	if network == "" {
		writeError(w, http.StatusNotFound, "network required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	sub := s.hubs.Hub(network).Logs.Subscribe(s.cfg.SubscriberBuffer)
	defer sub.Close()

	for {
		select {
		case line, ok := <-sub.Channel:
			if !ok {
				return
			}
			data, err := json.Marshal(line)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleStreamingChat is the sessionless REST flavor of a chat turn: the
// raw upstream messages stream back as JSON lines. The caller carries
// its own chat_context between requests.
func (s *Server) handleStreamingChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	network := pathTail(r, "/api/v1/streaming_chat/")
	if network == "" {
		writeError(w, http.StatusNotFound, "network required")
		return
	}

	var in struct {
		Message     string         `json:"message"`
		SlyData     map[string]any `json:"sly_data,omitempty"`
		ChatContext map[string]any `json:"chat_context,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(in.Message) == "" {
		writeError(w, http.StatusBadRequest, "empty message")
		return
	}

	stream, err := s.runtime.OpenTurn(r.Context(), network, runtime.TurnRequest{
		UserText:     in.Message,
		SlyData:      in.SlyData,
		Continuation: in.ChatContext,
	})
	if err != nil {
		writeError(w, runtime.HTTPStatus(err), err.Error())
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/json")
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for {
		raw, err := stream.Recv()
		if err != nil {
			// Headers are gone; a mid-stream failure just ends the body.
			return
		}
		if err := enc.Encode(rawToWire(raw)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// rawToWire renders one upstream message in the dictionary shape the
// runtime itself uses.
func rawToWire(raw events.RawResponse) map[string]any {
	out := map[string]any{
		"type": string(raw.Type),
		"text": raw.Text,
	}
	if len(raw.Origin) > 0 {
		origin := make([]any, 0, len(raw.Origin))
		for _, o := range raw.Origin {
			origin = append(origin, map[string]any{"tool": o.Tool})
		}
		out["origin"] = origin
	}
	if raw.ChatContext != nil {
		out["chat_context"] = raw.ChatContext
	}
	return out
}
