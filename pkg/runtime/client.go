// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package runtime is the client for the external agent-orchestration
// runtime. The runtime's API is dictionary-shaped, so calls go over
// generic gRPC streams with structpb messages instead of generated stubs.
package runtime

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/teradata-labs/agentdeck/pkg/session"
)

// Full method names of the runtime surface this backend depends on.
const (
	methodStreamingChat = "/agents.v1.AgentNetworkService/StreamingChat"
	methodConnectivity  = "/agents.v1.AgentNetworkService/Connectivity"
	methodList          = "/agents.v1.ConciergeService/List"
)

// networkHeader carries the agent-network name a call is scoped to.
const networkHeader = "agent-network"

// clientHeader attributes a call to the browser client that caused it.
const clientHeader = "client-id"

// DefaultCallTimeout bounds a single upstream call, streaming included.
const DefaultCallTimeout = 120 * time.Second

var streamingChatDesc = grpc.StreamDesc{
	StreamName:    "StreamingChat",
	ServerStreams: true,
	ClientStreams: true,
}

// Target identifies the runtime endpoint. It is selectable at runtime,
// not just at process start.
type Target struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	TLS  bool   `json:"tls"`
}

// Addr returns the dialable address.
func (t Target) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Config holds client configuration.
type Config struct {
	Target      Target
	CallTimeout time.Duration
}

// Client issues calls against the agent runtime. Connections are
// per-call: each turn dials its own stream and closes it when the stream
// ends, mirroring the one-stream-per-request shape of the upstream API.
// Safe for concurrent use.
type Client struct {
	mu      sync.RWMutex
	target  Target
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a runtime client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		target:  cfg.Target,
		timeout: cfg.CallTimeout,
		logger:  logger,
	}
}

// Target returns the current runtime endpoint.
func (c *Client) Target() Target {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// SetTarget switches the runtime endpoint. In-flight calls keep their
// already-dialed connection; subsequent calls use the new target.
func (c *Client) SetTarget(t Target) {
	c.mu.Lock()
	c.target = t
	c.mu.Unlock()
	c.logger.Info("runtime target changed",
		zap.String("addr", t.Addr()),
		zap.Bool("tls", t.TLS))
}

func (c *Client) dial() (*grpc.ClientConn, error) {
	t := c.Target()

	creds := insecure.NewCredentials()
	if t.TLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	conn, err := grpc.NewClient(t.Addr(), grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to dial runtime at %s: %w", t.Addr(), err)
	}
	return conn, nil
}

// callContext applies the per-call deadline and the routing headers: the
// network the call is scoped to, plus the client identity when the caller
// put one on the context.
func (c *Client) callContext(ctx context.Context, network string) (context.Context, context.CancelFunc) {
	c.mu.RLock()
	timeout := c.timeout
	c.mu.RUnlock()

	ctx = metadata.AppendToOutgoingContext(ctx, networkHeader, network)
	if clientID := session.ClientIDFromContext(ctx); clientID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, clientHeader, clientID)
	}
	return context.WithTimeout(ctx, timeout)
}

// Connectivity returns the topology metadata of one agent network, as
// reported by the runtime ({"connectivity_info": [{origin, tools[]}]}).
func (c *Client) Connectivity(ctx context.Context, network string) (map[string]any, error) {
	return c.unary(ctx, network, methodConnectivity)
}

// ListNetworks returns the networks the runtime is serving.
func (c *Client) ListNetworks(ctx context.Context) (map[string]any, error) {
	return c.unary(ctx, "", methodList)
}

func (c *Client) unary(ctx context.Context, network, method string) (map[string]any, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ctx, cancel := c.callContext(ctx, network)
	defer cancel()

	in, err := structpb.NewStruct(map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, method, in, out); err != nil {
		return nil, fmt.Errorf("runtime call %s failed: %w", method, err)
	}
	return out.AsMap(), nil
}
