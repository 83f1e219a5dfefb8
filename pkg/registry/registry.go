// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package registry reads the local agent-network definitions: a
// manifest.hocon naming the enabled networks plus one HOCON file per
// network. Parses are cached and invalidated by a directory watcher.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gurkankaymak/hocon"
	"go.uber.org/zap"
)

// ManifestName is the file listing enabled networks in the registry dir.
const ManifestName = "manifest.hocon"

var (
	// ErrNotFound means the named network has no definition file or is
	// not listed in the manifest.
	ErrNotFound = errors.New("network not found")

	// ErrNoFrontMan means a network definition has no entry agent to
	// root the topology walk at.
	ErrNoFrontMan = errors.New("no front-man agent found in network")
)

// Registry serves parsed network definitions out of one directory.
// Safe for concurrent use; parse results are cached until a file in the
// directory changes.
type Registry struct {
	mu      sync.RWMutex
	dir     string
	cache   map[string][]map[string]any
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// New creates a registry over dir. The directory is created if absent
// so a fresh deployment starts with an empty, editable registry.
func New(dir string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch registry directory: %w", err)
	}

	return &Registry{
		dir:     dir,
		cache:   make(map[string][]map[string]any),
		watcher: watcher,
		logger:  logger,
	}, nil
}

// Dir returns the registry directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Networks lists the enabled networks from the manifest, sorted. A
// missing manifest is an empty registry, not an error.
func (r *Registry) Networks() ([]string, error) {
	manifest := filepath.Join(r.dir, ManifestName)
	if _, err := os.Stat(manifest); os.IsNotExist(err) {
		return []string{}, nil
	}

	cfg, err := hocon.ParseResource(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	root, ok := cfg.GetRoot().(hocon.Object)
	if !ok {
		return []string{}, nil
	}
	return manifestNetworks(root), nil
}

// manifestNetworks extracts enabled entries. Manifest keys are file
// names; a quoted "demo.hocon" key survives as-is while an unquoted one
// parses as a nested object keyed "demo" with a "hocon" leaf, so both
// shapes are accepted.
func manifestNetworks(root hocon.Object) []string {
	var names []string
	for key, val := range root {
		switch v := val.(type) {
		case hocon.Boolean:
			if bool(v) {
				names = append(names, strings.TrimSuffix(strings.Trim(key, `"`), ".hocon"))
			}
		case hocon.Object:
			if enabled, ok := v["hocon"].(hocon.Boolean); ok && bool(enabled) {
				names = append(names, key)
			}
		}
	}
	sort.Strings(names)
	return names
}

// networkPath resolves the definition file for a network name. Names
// are bare identifiers; anything that would escape the registry
// directory is rejected.
func (r *Registry) networkPath(network string) (string, error) {
	if network == "" || strings.ContainsAny(network, `/\`) || strings.Contains(network, "..") {
		return "", fmt.Errorf("%w: invalid network name %q", ErrNotFound, network)
	}
	return filepath.Join(r.dir, network+".hocon"), nil
}

// Definition returns the raw HOCON text of one network definition.
func (r *Registry) Definition(network string) (string, error) {
	path, err := r.networkPath(network)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, network)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read network definition: %w", err)
	}
	return string(data), nil
}

// SaveDefinition replaces one network definition. The text must parse
// as HOCON; a bad save would otherwise take the network offline.
func (r *Registry) SaveDefinition(network, text string) error {
	path, err := r.networkPath(network)
	if err != nil {
		return err
	}
	if _, err := hocon.ParseString(text); err != nil {
		return fmt.Errorf("definition is not valid HOCON: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0640); err != nil {
		return fmt.Errorf("failed to write network definition: %w", err)
	}
	r.invalidate(network)
	return nil
}

// tools returns the parsed tool list of a network, cached.
func (r *Registry) tools(network string) ([]map[string]any, error) {
	r.mu.RLock()
	cached, ok := r.cache[network]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	path, err := r.networkPath(network)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, network)
	}

	cfg, err := hocon.ParseResource(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse network definition %s: %w", network, err)
	}

	var tools []map[string]any
	if arr := cfg.GetArray("tools"); arr != nil {
		for _, v := range arr {
			if m, ok := toGo(v).(map[string]any); ok {
				tools = append(tools, m)
			}
		}
	}

	r.mu.Lock()
	r.cache[network] = tools
	r.mu.Unlock()
	return tools, nil
}

func (r *Registry) invalidate(network string) {
	r.mu.Lock()
	if network == "" {
		r.cache = make(map[string][]map[string]any)
	} else {
		delete(r.cache, network)
	}
	r.mu.Unlock()
}

// Watch invalidates the parse cache whenever a .hocon file in the
// registry directory changes. Blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	r.logger.Info("watching registry directory", zap.String("dir", r.dir))

	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".hocon" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			r.invalidate("")
			r.logger.Info("registry changed, cache invalidated",
				zap.String("file", filepath.Base(event.Name)),
				zap.String("op", event.Op.String()))

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("registry watcher error", zap.Error(err))

		case <-ctx.Done():
			r.logger.Info("stopping registry watcher")
			return nil
		}
	}
}

// Close releases the directory watcher.
func (r *Registry) Close() error {
	return r.watcher.Close()
}

// toGo converts a parsed HOCON value into plain Go types so the rest of
// the code handles network definitions the same way it handles upstream
// structpb payloads.
func toGo(v hocon.Value) any {
	switch val := v.(type) {
	case hocon.Object:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = toGo(item)
		}
		return m
	case hocon.Array:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, toGo(item))
		}
		return out
	case hocon.String:
		return string(val)
	case hocon.Boolean:
		return bool(val)
	case hocon.Int:
		return int(val)
	case nil:
		return nil
	default:
		return v.String()
	}
}
