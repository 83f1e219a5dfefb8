// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package server

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/agentdeck/pkg/broadcast"
	"github.com/teradata-labs/agentdeck/pkg/events"
	"github.com/teradata-labs/agentdeck/pkg/runtime"
	"github.com/teradata-labs/agentdeck/pkg/session"
	"github.com/teradata-labs/agentdeck/pkg/transcript"
)

// errNoAnswer marks a turn whose stream completed without any AI message.
var errNoAnswer = errors.New("turn completed without a final answer")

// turnResult is the single completion state of one chat turn.
type turnResult struct {
	answer string
	err    error
}

// runTurn drives one chat turn to completion: it opens the upstream
// stream, classifies every message, publishes trace and log events to
// the network's hub, and updates the session continuation. It blocks
// until the stream ends and always returns exactly one result.
//
// The upstream context is detached from the browser connection on
// purpose: a client disconnect must not cancel an in-flight turn. It does
// carry the client identity so the runtime can attribute the stream.
func (s *Server) runTurn(clientID, network string, req runtime.TurnRequest, hub *broadcast.Hub) turnResult {
	started := time.Now()
	ctx := session.WithClientID(context.Background(), clientID)

	stream, err := s.runtime.OpenTurn(ctx, network, req)
	if err != nil {
		if runtime.Unavailable(err) {
			hub.LogEvent("agent runtime unreachable: "+err.Error(), events.SourceRuntime)
		} else {
			hub.LogEvent("failed to open chat stream: "+err.Error(), events.SourceRuntime)
		}
		return turnResult{err: err}
	}
	defer stream.Close()

	var classifier events.TurnClassifier
	var continuation map[string]any

	for {
		raw, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if runtime.Unavailable(err) {
				hub.LogEvent("agent runtime unreachable: "+err.Error(), events.SourceRuntime)
			} else {
				hub.LogEvent("chat stream failed: "+err.Error(), events.SourceRuntime)
			}
			return turnResult{err: err}
		}

		if raw.ChatContext != nil {
			continuation = raw.ChatContext
		}

		step, line := classifier.Classify(raw)
		if step != nil {
			hub.PublishTrace(*step)
		}
		hub.Logs.Publish(line)
	}

	// Last-seen continuation wins; a no-op when the client is gone.
	if continuation != nil {
		s.sessions.UpdateContinuation(clientID, continuation)
	}

	answer, ok := classifier.FinalAnswer()
	if !ok {
		return turnResult{err: errNoAnswer}
	}

	s.logger.Debug("turn completed",
		zap.String("network", network),
		zap.Duration("elapsed", time.Since(started)))
	return turnResult{answer: answer.Text}
}

// recordTranscript persists one finished turn. Failures are logged and
// swallowed: transcript storage never affects a live conversation.
func (s *Server) recordTranscript(clientID, network, userText string, res turnResult, delivered bool) {
	if s.transcripts == nil {
		return
	}

	status := transcript.StatusCompleted
	switch {
	case res.err != nil:
		status = transcript.StatusFailed
	case !delivered:
		status = transcript.StatusOrphaned
	}

	err := s.transcripts.Record(context.Background(), transcript.Entry{
		ClientID: clientID,
		Network:  network,
		UserText: userText,
		Answer:   res.answer,
		Status:   status,
	})
	if err != nil {
		s.logger.Warn("failed to record transcript",
			zap.String("network", network),
			zap.Error(err))
	}
}
