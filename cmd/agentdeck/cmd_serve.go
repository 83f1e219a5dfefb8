// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/agentdeck/internal/log"
	"github.com/teradata-labs/agentdeck/internal/version"
	"github.com/teradata-labs/agentdeck/pkg/broadcast"
	"github.com/teradata-labs/agentdeck/pkg/registry"
	"github.com/teradata-labs/agentdeck/pkg/runtime"
	"github.com/teradata-labs/agentdeck/pkg/server"
	"github.com/teradata-labs/agentdeck/pkg/session"
	"github.com/teradata-labs/agentdeck/pkg/transcript"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AgentDeck HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := log.Init(config.Logging.Level, config.Logging.Format); err != nil {
		return err
	}
	logger := log.Logger()
	defer func() { _ = log.Sync() }()

	logger.Info("starting agentdeck",
		zap.String("version", version.Get()),
		zap.String("addr", config.Server.Addr),
		zap.String("runtime", fmt.Sprintf("%s:%d", config.Runtime.Host, config.Runtime.Port)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := registry.New(config.Registry.Dir, logger)
	if err != nil {
		return fmt.Errorf("failed to open network registry: %w", err)
	}
	defer reg.Close()
	go func() {
		if err := reg.Watch(ctx); err != nil {
			logger.Error("registry watcher stopped", zap.Error(err))
		}
	}()

	var transcripts *transcript.Store
	if config.Transcripts.Path != "" {
		transcripts, err = transcript.Open(config.Transcripts.Path, logger)
		if err != nil {
			return fmt.Errorf("failed to open transcript store: %w", err)
		}
		defer transcripts.Close()
	} else {
		logger.Info("transcript recording disabled")
	}

	srv := server.New(server.Config{
		Addr:             config.Server.Addr,
		SubscriberBuffer: config.Broadcast.SubscriberBuffer,
		CORS: server.CORSConfig{
			AllowedOrigins:   config.Server.CORS.AllowedOrigins,
			AllowedMethods:   config.Server.CORS.AllowedMethods,
			AllowedHeaders:   config.Server.CORS.AllowedHeaders,
			AllowCredentials: config.Server.CORS.AllowCredentials,
			MaxAge:           config.Server.CORS.MaxAge,
		},
	}, server.Deps{
		Runtime: runtime.NewClient(runtime.Config{
			Target: runtime.Target{
				Host: config.Runtime.Host,
				Port: config.Runtime.Port,
				TLS:  config.Runtime.TLS,
			},
			CallTimeout: time.Duration(config.Runtime.CallTimeoutSeconds) * time.Second,
		}, logger),
		Hubs:        broadcast.NewRegistry(config.Broadcast.ReplayCapacity, logger),
		Sessions:    session.NewStore(logger),
		Registry:    reg,
		Transcripts: transcripts,
		Logger:      logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	return nil
}
