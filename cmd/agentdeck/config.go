// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the name of the config file
const DefaultConfigFileName = "agentdeck"

// Config holds all configuration for the AgentDeck server.
// Priority: CLI flags > config file > env vars > defaults
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Runtime     RuntimeConfig     `mapstructure:"runtime"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Transcripts TranscriptsConfig `mapstructure:"transcripts"`
	Broadcast   BroadcastConfig   `mapstructure:"broadcast"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Addr string           `mapstructure:"addr"`
	CORS CORSServerConfig `mapstructure:"cors"`
}

// CORSServerConfig holds CORS configuration for HTTP endpoints. The
// wildcard default suits local development; deployments facing the open
// internet should pin allowed_origins.
type CORSServerConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// RuntimeConfig locates the upstream agent-orchestration runtime.
type RuntimeConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	TLS                bool   `mapstructure:"tls"`
	CallTimeoutSeconds int    `mapstructure:"call_timeout_seconds"`
}

// RegistryConfig locates the local network definitions.
type RegistryConfig struct {
	Dir string `mapstructure:"dir"`
}

// TranscriptsConfig holds transcript storage configuration. An empty
// path disables recording.
type TranscriptsConfig struct {
	Path string `mapstructure:"path"`
}

// BroadcastConfig tunes the fan-out channels.
type BroadcastConfig struct {
	ReplayCapacity   int `mapstructure:"replay_capacity"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration from file, environment and defaults.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/agentdeck/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	viper.SetEnvPrefix("AGENTDECK")
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("server.addr", ":4173")
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})
	viper.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("server.cors.allowed_headers", []string{"Content-Type", "Authorization"})
	viper.SetDefault("server.cors.allow_credentials", false)
	viper.SetDefault("server.cors.max_age", 300)

	viper.SetDefault("runtime.host", "localhost")
	viper.SetDefault("runtime.port", 30011)
	viper.SetDefault("runtime.tls", false)
	viper.SetDefault("runtime.call_timeout_seconds", 120)

	viper.SetDefault("registry.dir", "registries")
	viper.SetDefault("transcripts.path", "agentdeck.db")

	viper.SetDefault("broadcast.replay_capacity", 100)
	viper.SetDefault("broadcast.subscriber_buffer", 256)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
