// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyAgentMessage(t *testing.T) {
	var c TurnClassifier

	step, line := c.Classify(RawResponse{
		Type:   MessageTypeAgent,
		Text:   "routing",
		Origin: []Origin{{Tool: "x"}, {Tool: "y"}},
	})

	require.NotNil(t, step)
	assert.Equal(t, []string{"x", "y"}, step.OriginTrace)
	assert.Equal(t, "routing", step.Text)
	assert.Equal(t, SourceRuntime, line.Source)
	assert.JSONEq(t, `{"otrace":["x","y"]}`, line.Message)
}

func TestClassifyToolResultMessage(t *testing.T) {
	var c TurnClassifier

	step, _ := c.Classify(RawResponse{
		Type:   MessageTypeAgentToolResult,
		Text:   "result",
		Origin: []Origin{{Tool: "searcher"}},
	})

	require.NotNil(t, step)
	assert.Equal(t, []string{"searcher"}, step.OriginTrace)
}

func TestClassifyAIOverwritesFinalAnswer(t *testing.T) {
	var c TurnClassifier

	step, _ := c.Classify(RawResponse{Type: MessageTypeAI, Text: "A"})
	assert.Nil(t, step, "AI messages must not produce a trace step")

	step, _ = c.Classify(RawResponse{Type: MessageTypeAI, Text: "B"})
	assert.Nil(t, step)

	answer, ok := c.FinalAnswer()
	require.True(t, ok)
	assert.Equal(t, "B", answer.Text)
}

func TestClassifyNoAIMeansNoFinalAnswer(t *testing.T) {
	var c TurnClassifier

	c.Classify(RawResponse{Type: MessageTypeAgent, Text: "thinking", Origin: []Origin{{Tool: "a"}}})
	c.Classify(RawResponse{Type: MessageTypeOther, Text: "noise"})

	_, ok := c.FinalAnswer()
	assert.False(t, ok)
}

func TestClassifyAgentWithoutOriginDegrades(t *testing.T) {
	var c TurnClassifier

	step, line := c.Classify(RawResponse{Type: MessageTypeAgent, Text: "orphan"})

	require.NotNil(t, step)
	assert.Empty(t, step.OriginTrace)
	assert.JSONEq(t, `{"otrace":[]}`, line.Message)
}

func TestClassifyEveryMessageYieldsLogLine(t *testing.T) {
	var c TurnClassifier

	for _, typ := range []MessageType{MessageTypeHuman, MessageTypeAI, MessageTypeAgent, MessageTypeOther} {
		_, line := c.Classify(RawResponse{Type: typ})
		assert.NotEmpty(t, line.Timestamp)
		assert.Equal(t, SourceRuntime, line.Source)
	}
}
