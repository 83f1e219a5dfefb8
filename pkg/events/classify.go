// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package events

import "encoding/json"

// SourceRuntime marks log lines derived from upstream runtime messages.
const SourceRuntime = "runtime"

// TurnClassifier accumulates classification state for a single chat turn.
// It is owned by one turn goroutine and is not safe for concurrent use.
type TurnClassifier struct {
	finalAnswer string
}

// Classify inspects one raw response message. It returns a TraceStep for
// AGENT and AGENT_TOOL_RESULT messages (nil otherwise) and a LogLine for
// every message. AI messages overwrite the final-answer candidate; the
// last one seen wins.
//
// Messages with an unexpected shape (an AGENT message without an origin,
// an unknown type tag) degrade to a plain LogLine rather than failing
// the turn.
func (c *TurnClassifier) Classify(raw RawResponse) (*TraceStep, LogLine) {
	trace := raw.OriginTrace()

	var step *TraceStep
	switch raw.Type {
	case MessageTypeAI:
		c.finalAnswer = raw.Text
	case MessageTypeAgent, MessageTypeAgentToolResult:
		step = &TraceStep{OriginTrace: trace, Text: raw.Text}
	}

	summary, err := json.Marshal(map[string][]string{"otrace": trace})
	if err != nil {
		// Cannot happen for a string slice; keep the turn alive regardless.
		return step, NewLogLine("unclassifiable message", SourceRuntime)
	}
	return step, NewLogLine(string(summary), SourceRuntime)
}

// FinalAnswer returns the turn's final answer once the stream has
// completed. ok is false when no AI message carried any text, which is a
// legitimate turn outcome, not an error.
func (c *TurnClassifier) FinalAnswer() (FinalAnswer, bool) {
	if c.finalAnswer == "" {
		return FinalAnswer{}, false
	}
	return FinalAnswer{Text: c.finalAnswer}, true
}
