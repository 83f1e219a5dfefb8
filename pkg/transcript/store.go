// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package transcript persists one row per completed chat turn so past
// conversations survive a backend restart. Writes are fire-and-forget
// from the turn runner; a storage failure never fails a turn.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Turn status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusOrphaned  = "orphaned"
)

// Entry is one recorded chat turn.
type Entry struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Network   string    `json:"network"`
	UserText  string    `json:"user_text"`
	Answer    string    `json:"answer"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a SQLite-backed transcript log.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	network TEXT NOT NULL,
	user_text TEXT NOT NULL,
	answer TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcripts_network ON transcripts(network);
CREATE INDEX IF NOT EXISTS idx_transcripts_client ON transcripts(client_id);
`

// Open opens (and if needed creates) the transcript database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create transcript directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize transcript schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Record writes one turn. A zero ID gets a fresh one; a zero CreatedAt
// gets now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, client_id, network, user_text, answer, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ClientID, e.Network, e.UserText, e.Answer, e.Status, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record transcript: %w", err)
	}

	s.logger.Debug("transcript recorded",
		zap.String("network", e.Network),
		zap.String("status", e.Status))
	return nil
}

// Recent returns the newest turns, newest first. An empty network
// returns turns across all networks.
func (s *Store) Recent(ctx context.Context, network string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, client_id, network, user_text, answer, status, created_at
		FROM transcripts`
	args := []any{}
	if network != "" {
		query += ` WHERE network = ?`
		args = append(args, network)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Network, &e.UserText, &e.Answer, &e.Status, &created); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
