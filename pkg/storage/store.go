// Copyright 2025-2026 Ferdi Gartner

// Package storage persists conversation mappings and participant profiles
// in SQLite so the bridge survives restarts. The contract is deliberately
// small (get-all, upsert, delete); the in-memory index in pkg/bridge owns
// all lookups.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Mapping is one durable conversation-to-topic association.
type Mapping struct {
	ChatID    string
	TopicID   int64
	CreatedAt time.Time
}

// Profile is the durable metadata for one WhatsApp participant.
type Profile struct {
	UserID       string
	DisplayName  string
	Handle       string
	FirstSeen    time.Time
	MessageCount int64
}

// Store is a SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS mappings (
	chat_id    TEXT PRIMARY KEY,
	topic_id   INTEGER NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS profiles (
	user_id       TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL DEFAULT '',
	handle        TEXT NOT NULL DEFAULT '',
	first_seen    INTEGER NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0
);
`

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens the store at path and creates the schema if needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Mappings returns every stored conversation mapping.
func (s *Store) Mappings(ctx context.Context) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, topic_id, created_at FROM mappings`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		var createdAt int64
		if err := rows.Scan(&m.ChatID, &m.TopicID, &createdAt); err != nil {
			return nil, fmt.Errorf("list mappings: %w", err)
		}
		m.CreatedAt = fromMillis(createdAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return out, nil
}

// UpsertMapping inserts or refreshes one mapping row.
func (s *Store) UpsertMapping(ctx context.Context, m Mapping) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mappings (chat_id, topic_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET topic_id = excluded.topic_id`,
		m.ChatID, m.TopicID, toMillis(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}

// DeleteMapping removes one mapping row.
func (s *Store) DeleteMapping(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM mappings WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return nil
}

// Profiles returns every stored participant profile.
func (s *Store) Profiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, display_name, handle, first_seen, message_count FROM profiles`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		var firstSeen int64
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Handle, &firstSeen, &p.MessageCount); err != nil {
			return nil, fmt.Errorf("list profiles: %w", err)
		}
		p.FirstSeen = fromMillis(firstSeen)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

// UpsertProfile inserts or refreshes one profile row. An already-recorded
// display name is never overwritten; only an empty one can be filled in.
func (s *Store) UpsertProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name, handle, first_seen, message_count)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   display_name = CASE
		     WHEN profiles.display_name = '' THEN excluded.display_name
		     ELSE profiles.display_name
		   END,
		   message_count = excluded.message_count`,
		p.UserID, p.DisplayName, p.Handle, toMillis(p.FirstSeen), p.MessageCount)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
