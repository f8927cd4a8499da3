package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"backend-go-assistant/memory"
)

type HistoryStore struct {
	d *DB
}

func (s *HistoryStore) Add(ctx context.Context, sessionID, role, content string) error {
	_, err := s.d.db.ExecContext(
		ctx,
		`INSERT INTO chat_history (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, role, content, s.d.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("insert chat_history: %w", err)
	}
	return nil
}

// GetRecent returns the newest limit rows for the session, oldest first.
func (s *HistoryStore) GetRecent(ctx context.Context, sessionID string, limit int) ([]memory.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.d.db.QueryContext(
		ctx,
		`SELECT id, session_id, role, content, created_at FROM chat_history
		 WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query chat_history: %w", err)
	}
	defer rows.Close()

	var out []memory.ChatMessage
	for rows.Next() {
		var m memory.ChatMessage
		var created string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan chat_history: %w", err)
		}
		m.Timestamp = parseTime(created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat_history: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

type MemoryStore struct {
	d *DB
}

func (s *MemoryStore) Add(ctx context.Context, content, category string, importance int) error {
	if category == "" {
		category = memory.DefaultCategory
	}
	if importance < 1 {
		importance = 1
	}
	_, err := s.d.db.ExecContext(
		ctx,
		`INSERT INTO memory (category, content, importance, created_at) VALUES (?, ?, ?, ?)`,
		category, content, importance, s.d.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// All returns every fact, oldest first.
func (s *MemoryStore) All(ctx context.Context) ([]memory.Fact, error) {
	rows, err := s.d.db.QueryContext(ctx, `SELECT id, category, content, importance, created_at FROM memory ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}
	defer rows.Close()

	var out []memory.Fact
	for rows.Next() {
		var f memory.Fact
		var created string
		if err := rows.Scan(&f.ID, &f.Category, &f.Content, &f.Importance, &created); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		f.CreatedAt = parseTime(created)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory: %w", err)
	}
	return out, nil
}

// GetRelevant ranks every stored fact against query (full table scan).
func (s *MemoryStore) GetRelevant(ctx context.Context, query string, limit int) ([]string, error) {
	facts, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return memory.Rank(query, facts, limit), nil
}

type SummaryStore struct {
	d *DB
}

// Get returns ("", false, nil) when the session has no summary.
func (s *SummaryStore) Get(ctx context.Context, sessionID string) (string, bool, error) {
	var content string
	err := s.d.db.QueryRowContext(ctx, `SELECT content FROM conversation_summary WHERE session_id = ?`, sessionID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query conversation_summary: %w", err)
	}
	return content, true, nil
}

func (s *SummaryStore) Set(ctx context.Context, sessionID, content string) error {
	_, err := s.d.db.ExecContext(
		ctx,
		`INSERT INTO conversation_summary (session_id, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		sessionID, content, s.d.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("upsert conversation_summary: %w", err)
	}
	return nil
}
