// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package runtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/teradata-labs/agentdeck/pkg/events"
)

// ChatFilterMaximal requests the full message stream, internal agent
// chatter included.
const ChatFilterMaximal = "MAXIMAL"

// TurnRequest is one user-submitted message plus the continuation state
// needed to keep a multi-turn conversation coherent. Consumed once by
// OpenTurn and not retained.
type TurnRequest struct {
	UserText     string
	SlyData      map[string]any
	Continuation map[string]any
	ChatFilter   string
}

func (r TurnRequest) toStruct() (*structpb.Struct, error) {
	req := map[string]any{
		"user_message": map[string]any{
			"type": string(events.MessageTypeHuman),
			"text": r.UserText,
		},
	}
	if len(r.Continuation) > 0 {
		req["chat_context"] = r.Continuation
	}
	if len(r.SlyData) > 0 {
		req["sly_data"] = r.SlyData
	}
	filter := r.ChatFilter
	if filter == "" {
		filter = ChatFilterMaximal
	}
	req["chat_filter"] = map[string]any{"chat_filter_type": filter}

	return structpb.NewStruct(req)
}

// TurnStream is the response side of one in-flight chat turn. Recv
// yields messages in arrival order until the stream completes (io.EOF)
// or fails. Close releases the per-turn connection; it is safe to call
// at any point and after Recv has returned an error.
type TurnStream struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc
}

// OpenTurn issues one chat turn against the named agent network and
// returns the live response stream. The connection is dedicated to this
// turn. Transport failures surface on Recv; the caller treats them as
// "turn abandoned" and must not retry on its own.
//
// ctx governs the whole turn: pass a context detached from the browser
// connection so a client disconnect does not cancel the turn.
func (c *Client) OpenTurn(ctx context.Context, network string, req TurnRequest) (*TurnStream, error) {
	if req.UserText == "" {
		return nil, fmt.Errorf("empty user text")
	}

	msg, err := req.toStruct()
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	conn, err := c.dial()
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.callContext(ctx, network)

	stream, err := conn.NewStream(ctx, &streamingChatDesc, methodStreamingChat)
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("failed to open chat stream: %w", err)
	}
	if err := stream.SendMsg(msg); err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("failed to send chat request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("failed to half-close chat stream: %w", err)
	}

	c.logger.Debug("turn opened",
		zap.String("network", network),
		zap.String("addr", c.Target().Addr()))

	return &TurnStream{conn: conn, stream: stream, cancel: cancel}, nil
}

// Recv returns the next raw response message. io.EOF marks normal
// completion; any other error marks the turn as failed.
func (s *TurnStream) Recv() (events.RawResponse, error) {
	var msg structpb.Struct
	if err := s.stream.RecvMsg(&msg); err != nil {
		return events.RawResponse{}, err
	}
	return parseResponse(&msg), nil
}

// Close tears down the per-turn connection. Idempotent.
func (s *TurnStream) Close() {
	s.cancel()
	_ = s.conn.Close()
}

// parseResponse maps a raw runtime message onto RawResponse. Unexpected
// shapes degrade to zero values; classification downstream treats those
// as log-worthy rather than fatal.
func parseResponse(msg *structpb.Struct) events.RawResponse {
	m := msg.AsMap()

	resp, _ := m["response"].(map[string]any)
	if resp == nil {
		return events.RawResponse{Type: events.MessageTypeOther}
	}

	raw := events.RawResponse{}
	if typ, ok := resp["type"].(string); ok && typ != "" {
		raw.Type = events.MessageType(typ)
	} else {
		raw.Type = events.MessageTypeOther
	}
	raw.Text, _ = resp["text"].(string)

	if origins, ok := resp["origin"].([]any); ok {
		for _, o := range origins {
			entry, ok := o.(map[string]any)
			if !ok {
				continue
			}
			tool, _ := entry["tool"].(string)
			raw.Origin = append(raw.Origin, events.Origin{Tool: tool})
		}
	}

	if cc, ok := resp["chat_context"].(map[string]any); ok && len(cc) > 0 {
		raw.ChatContext = cc
	}
	return raw
}
