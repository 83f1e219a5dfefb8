// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package server is the browser-facing HTTP boundary: websocket and SSE
// transports over the broadcast hubs, plus the REST surface for network
// metadata, configuration and transcripts.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teradata-labs/agentdeck/pkg/broadcast"
	"github.com/teradata-labs/agentdeck/pkg/registry"
	"github.com/teradata-labs/agentdeck/pkg/runtime"
	"github.com/teradata-labs/agentdeck/pkg/session"
	"github.com/teradata-labs/agentdeck/pkg/transcript"
)

// CORSConfig controls the CORS response headers.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig allows any origin; deployments front this server
// with their own proxy when they need something stricter.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}
}

// Config holds HTTP server configuration.
type Config struct {
	Addr             string
	SubscriberBuffer int
	CORS             CORSConfig
}

// Deps are the collaborators the server routes between.
type Deps struct {
	Runtime     *runtime.Client
	Hubs        *broadcast.Registry
	Sessions    *session.Store
	Registry    *registry.Registry
	Transcripts *transcript.Store // optional; nil disables transcript recording
	Logger      *zap.Logger
}

// Server is the HTTP/websocket boundary.
type Server struct {
	cfg         Config
	runtime     *runtime.Client
	hubs        *broadcast.Registry
	sessions    *session.Store
	registry    *registry.Registry
	transcripts *transcript.Store
	logger      *zap.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New assembles the server. It does not start listening.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS = DefaultCORSConfig()
	}

	s := &Server{
		cfg:         cfg,
		runtime:     deps.Runtime,
		hubs:        deps.Hubs,
		sessions:    deps.Sessions,
		registry:    deps.Registry,
		transcripts: deps.Transcripts,
		logger:      deps.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The CORS policy is enforced by the middleware; the socket
			// upgrade itself accepts any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.corsMiddleware(s.Routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses: SSE, JSON lines
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Routes builds the full handler tree. Exposed so tests can mount it on
// an httptest server.
func (s *Server) Routes() http.Handler {
	gw := gwruntime.NewServeMux(
		gwruntime.WithMarshalerOption(gwruntime.MIMEWildcard, &gwruntime.JSONPb{}),
	)
	s.registerREST(gw)

	rootMux := http.NewServeMux()
	rootMux.Handle("/api/v1/", gw)

	rootMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	// Socket and streaming endpoints bypass the gateway mux: they hold
	// the connection open.
	rootMux.HandleFunc("/api/v1/ws/chat/", s.handleChatSocket)
	rootMux.HandleFunc("/api/v1/ws/internalchat/", s.handleInternalChatSocket)
	rootMux.HandleFunc("/api/v1/ws/logs", s.handleLogsSocket)
	rootMux.HandleFunc("/api/v1/ws/logs/", s.handleLogsSocket)
	rootMux.HandleFunc("/api/v1/sse/logs/", s.handleLogsSSE)
	rootMux.HandleFunc("/api/v1/streaming_chat/", s.handleStreamingChat)

	return rootMux
}

// Start listens and serves until the listener fails or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers and short-circuits preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		if s.cfg.CORS.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if len(s.cfg.CORS.AllowedMethods) > 0 {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.cfg.CORS.AllowedMethods, ", "))
		}
		if len(s.cfg.CORS.AllowedHeaders) > 0 {
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.cfg.CORS.AllowedHeaders, ", "))
		}
		if s.cfg.CORS.MaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.cfg.CORS.MaxAge))
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, allowed := range s.cfg.CORS.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return ""
}

// pathTail returns what follows prefix in the request path, with any
// trailing slash removed. Empty means the bare endpoint was hit.
func pathTail(r *http.Request, prefix string) string {
	tail := strings.TrimPrefix(r.URL.Path, prefix)
	return strings.Trim(tail, "/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
