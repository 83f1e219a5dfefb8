// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/agentdeck/internal/version"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "agentdeck",
	Short:   "AgentDeck - browser backend for multi-agent network observation",
	Long:    `AgentDeck serves the websocket, SSE and REST surface browsers use to chat with, trace and inspect agent networks hosted on an external agent-orchestration runtime.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./agentdeck.yaml)")

	// Server flags
	rootCmd.PersistentFlags().String("addr", ":4173", "HTTP listen address")

	// Upstream runtime flags
	rootCmd.PersistentFlags().String("runtime-host", "localhost", "agent runtime host")
	rootCmd.PersistentFlags().Int("runtime-port", 30011, "agent runtime gRPC port")
	rootCmd.PersistentFlags().Bool("runtime-tls", false, "use TLS towards the agent runtime")
	rootCmd.PersistentFlags().Int("call-timeout", 120, "upstream call timeout in seconds")

	// Local state flags
	rootCmd.PersistentFlags().String("registry-dir", "registries", "agent network registry directory")
	rootCmd.PersistentFlags().String("db", "agentdeck.db", "transcript SQLite database path (empty disables)")
	rootCmd.PersistentFlags().Int("replay-capacity", 100, "per-channel replay buffer size")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.addr", rootCmd.PersistentFlags().Lookup("addr"))

	_ = viper.BindPFlag("runtime.host", rootCmd.PersistentFlags().Lookup("runtime-host"))
	_ = viper.BindPFlag("runtime.port", rootCmd.PersistentFlags().Lookup("runtime-port"))
	_ = viper.BindPFlag("runtime.tls", rootCmd.PersistentFlags().Lookup("runtime-tls"))
	_ = viper.BindPFlag("runtime.call_timeout_seconds", rootCmd.PersistentFlags().Lookup("call-timeout"))

	_ = viper.BindPFlag("registry.dir", rootCmd.PersistentFlags().Lookup("registry-dir"))
	_ = viper.BindPFlag("transcripts.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("broadcast.replay_capacity", rootCmd.PersistentFlags().Lookup("replay-capacity"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
