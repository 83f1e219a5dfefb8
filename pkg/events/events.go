// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package events defines the typed events extracted from raw agent-runtime
// responses, and the per-turn classifier that produces them.
package events

import "time"

// MessageType is the type tag carried by every raw runtime response.
type MessageType string

const (
	MessageTypeHuman           MessageType = "HUMAN"
	MessageTypeAI              MessageType = "AI"
	MessageTypeAgent           MessageType = "AGENT"
	MessageTypeAgentToolResult MessageType = "AGENT_TOOL_RESULT"
	MessageTypeOther           MessageType = "OTHER"
)

// Origin is one hop in a message's origin trace: an agent that has
// handled the message on its way through the network.
type Origin struct {
	Tool string `json:"tool"`
}

// RawResponse is one message yielded by the upstream streaming call.
// It exists only for the duration of stream iteration.
type RawResponse struct {
	Type        MessageType
	Text        string
	Origin      []Origin
	ChatContext map[string]any
}

// OriginTrace returns the ordered list of agent names in the origin.
func (r RawResponse) OriginTrace() []string {
	trace := make([]string, 0, len(r.Origin))
	for _, o := range r.Origin {
		trace = append(trace, o.Tool)
	}
	return trace
}

// FinalAnswer is the turn's authoritative AI answer. At most one is
// emitted per turn, after the stream completes.
type FinalAnswer struct {
	Text string `json:"text"`
}

// TraceStep is one step of the internal agent trace.
type TraceStep struct {
	OriginTrace []string `json:"otrace"`
	Text        string   `json:"text"`
}

// LogLine is a free-form diagnostic line for operator visibility.
type LogLine struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Source    string `json:"source"`
}

// NewLogLine builds a LogLine stamped with the current UTC time at
// second precision.
func NewLogLine(message, source string) LogLine {
	return LogLine{
		Timestamp: time.Now().UTC().Format("2006-01-02 15:04:05"),
		Message:   message,
		Source:    source,
	}
}
