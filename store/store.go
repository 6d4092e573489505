// Package store implements the Session Store: an append-only message log
// plus compression-event bookkeeping, backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/agentichat/agentichat-go/llm"
)

// Session is one conversation's durable record.
type Session struct {
	ID        string
	Backend   string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredMessage is one row of the messages table, carrying enough to
// reconstruct an llm.Message plus its persisted token count.
type StoredMessage struct {
	SessionID  string
	CreatedAt  time.Time
	Role       string
	Content    string
	ToolCalls  []llm.ToolCall
	ToolCallID string
	TokenCount int
}

// CompressionRecord is one row of the compressions table.
type CompressionRecord struct {
	SessionID       string
	OriginalCount   int
	CompressedCount int
	Summary         string
	CreatedAt       time.Time
}

// Store opens a short-lived connection per operation rather than holding a
// pool open for the process lifetime:
// the CLI is a single local process with no concurrent writers to
// coordinate, so there is nothing a long-lived pool buys beyond the schema
// already being in place.
type Store struct {
	path string
}

// Open returns a Store backed by the sqlite file at path, creating the
// schema if it does not already exist. The file's parent directory must
// already exist.
func Open(ctx context.Context, path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.withConn(ctx, func(db *sql.DB) error {
		return migrate(ctx, db)
	}); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func (s *Store) withConn(ctx context.Context, fn func(*sql.DB) error) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	return fn(db)
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			backend_name TEXT NOT NULL,
			model_name TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls_json TEXT,
			tool_call_id TEXT,
			token_count INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_created
			ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS compressions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			original_count INTEGER NOT NULL,
			compressed_count INTEGER NOT NULL,
			summary TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	return s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO sessions (id, backend_name, model_name, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			sess.ID, sess.Backend, sess.Model, sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
}

// TouchSession updates a session's updated_at and, if non-empty, its model.
func (s *Store) TouchSession(ctx context.Context, sessionID, model string, at time.Time) error {
	return s.withConn(ctx, func(db *sql.DB) error {
		if model != "" {
			_, err := db.ExecContext(ctx,
				`UPDATE sessions SET updated_at = ?, model_name = ? WHERE id = ?`,
				at.Unix(), model, sessionID)
			return err
		}
		_, err := db.ExecContext(ctx,
			`UPDATE sessions SET updated_at = ? WHERE id = ?`, at.Unix(), sessionID)
		return err
	})
}

// AppendMessages persists newly-appended messages as a side effect after a
// turn. Messages are never mutated in place once written.
func (s *Store) AppendMessages(ctx context.Context, sessionID string, messages []llm.Message, tokenCounts []int) error {
	if len(messages) == 0 {
		return nil
	}
	return s.withConn(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		now := time.Now()
		for i, m := range messages {
			var toolCallsJSON sql.NullString
			if len(m.ToolCalls) > 0 {
				data, err := json.Marshal(m.ToolCalls)
				if err != nil {
					return fmt.Errorf("marshal tool_calls: %w", err)
				}
				toolCallsJSON = sql.NullString{String: string(data), Valid: true}
			}
			tokenCount := 0
			if i < len(tokenCounts) {
				tokenCount = tokenCounts[i]
			}
			// created_at increments by a nanosecond per message so that an
			// ORDER BY created_at query preserves append order even when a
			// whole turn's messages share a wall-clock second.
			ts := now.Add(time.Duration(i) * time.Nanosecond)
			_, err := tx.ExecContext(ctx,
				`INSERT INTO messages (session_id, created_at, role, content, tool_calls_json, tool_call_id, token_count)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				sessionID, ts.UnixNano(), m.Role, m.ContentString(), toolCallsJSON, m.ToolCallID, tokenCount,
			)
			if err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
		}
		return tx.Commit()
	})
}

// LoadSessionMessages returns every message for a session in append order.
func (s *Store) LoadSessionMessages(ctx context.Context, sessionID string) ([]llm.Message, error) {
	var out []llm.Message
	err := s.withConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT role, content, tool_calls_json, tool_call_id
			 FROM messages WHERE session_id = ? ORDER BY created_at ASC, id ASC`,
			sessionID,
		)
		if err != nil {
			return fmt.Errorf("query messages: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var role, content, toolCallID string
			var toolCallsJSON sql.NullString
			if err := rows.Scan(&role, &content, &toolCallsJSON, &toolCallID); err != nil {
				return fmt.Errorf("scan message: %w", err)
			}
			m := llm.Message{Role: role, Content: &content, ToolCallID: toolCallID}
			if toolCallsJSON.Valid {
				if err := json.Unmarshal([]byte(toolCallsJSON.String), &m.ToolCalls); err != nil {
					return fmt.Errorf("unmarshal tool_calls: %w", err)
				}
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

// RecordCompression inserts a compression event row.
func (s *Store) RecordCompression(ctx context.Context, rec CompressionRecord) error {
	return s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO compressions (session_id, original_count, compressed_count, summary, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			rec.SessionID, rec.OriginalCount, rec.CompressedCount, rec.Summary, time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("record compression: %w", err)
		}
		return nil
	})
}

// ListSessions returns sessions ordered by most recently updated first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	var out []Session
	err := s.withConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT id, backend_name, model_name, created_at, updated_at
			 FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit,
		)
		if err != nil {
			return fmt.Errorf("query sessions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var sess Session
			var created, updated int64
			if err := rows.Scan(&sess.ID, &sess.Backend, &sess.Model, &created, &updated); err != nil {
				return fmt.Errorf("scan session: %w", err)
			}
			sess.CreatedAt = time.Unix(created, 0)
			sess.UpdatedAt = time.Unix(updated, 0)
			out = append(out, sess)
		}
		return rows.Err()
	})
	return out, err
}

// MessageCount returns how many messages a session currently has.
func (s *Store) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.withConn(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	})
	return count, err
}

// Stats is the aggregate shape session_stats returns: message
// counts by role, the sum of persisted token_count, and how many times the
// session has been compressed.
type Stats struct {
	SessionID         string
	TotalMessages     int
	UserMessages      int
	AssistantMessages int
	ToolMessages      int
	TotalTokens       int
	CompressionCount  int
}

// SessionStats aggregates a single session's message and compression
// counts.
func (s *Store) SessionStats(ctx context.Context, sessionID string) (Stats, error) {
	stats := Stats{SessionID: sessionID}
	err := s.withConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT role, COUNT(*), COALESCE(SUM(token_count), 0)
			 FROM messages WHERE session_id = ? GROUP BY role`, sessionID)
		if err != nil {
			return fmt.Errorf("query message stats: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var role string
			var count, tokens int
			if err := rows.Scan(&role, &count, &tokens); err != nil {
				return fmt.Errorf("scan message stats: %w", err)
			}
			stats.TotalMessages += count
			stats.TotalTokens += tokens
			switch role {
			case "user":
				stats.UserMessages = count
			case "assistant":
				stats.AssistantMessages = count
			case "tool":
				stats.ToolMessages = count
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		return db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM compressions WHERE session_id = ?`, sessionID,
		).Scan(&stats.CompressionCount)
	})
	return stats, err
}

// DeleteSession removes a session and every message/compression row that
// references it. All three deletes run inside one transaction so a crash
// mid-delete never leaves orphaned message rows behind.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.withConn(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		for _, stmt := range []string{
			`DELETE FROM messages WHERE session_id = ?`,
			`DELETE FROM compressions WHERE session_id = ?`,
			`DELETE FROM sessions WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, sessionID); err != nil {
				return fmt.Errorf("delete session %s: %w", sessionID, err)
			}
		}
		return tx.Commit()
	})
}
