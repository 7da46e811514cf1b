package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ConversationSession groups the turns of one chat conversation.
type ConversationSession struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"user_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}

// ConversationTurn is one immutable message within a session. ToolCalls is only
// set on assistant turns and records the capability invocations made while
// producing the reply.
type ConversationTurn struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Role      string           `json:"role"` // user, assistant, system
	Content   string           `json:"content"`
	ToolCalls []RecordedAction `json:"tool_calls,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// RecordedAction is a capability invocation embedded in an assistant turn.
type RecordedAction struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// CreateConversationSession starts a new session, optionally owned by a user.
func (s *Store) CreateConversationSession(ctx context.Context, userID *string, metadata map[string]any) (string, error) {
	metaBytes, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal session metadata: %w", err)
	}
	var id string
	err = s.DB.QueryRowContext(ctx, `
INSERT INTO conversation_sessions (user_id, metadata) VALUES ($1,$2) RETURNING id
`, userID, metaBytes).Scan(&id)
	return id, err
}

// LatestOpenSession returns the newest open session for a user, if any.
func (s *Store) LatestOpenSession(ctx context.Context, userID string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
SELECT id FROM conversation_sessions
WHERE user_id = $1 AND ended_at IS NULL
ORDER BY started_at DESC
LIMIT 1
`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("open session for user %s: %w", userID, ErrNotFound)
	}
	return id, err
}

// GetConversationSession loads a session row.
func (s *Store) GetConversationSession(ctx context.Context, id string) (ConversationSession, error) {
	var (
		sess      ConversationSession
		metaBytes []byte
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, metadata, started_at, ended_at FROM conversation_sessions WHERE id=$1
`, id).Scan(&sess.ID, &sess.UserID, &metaBytes, &sess.StartedAt, &sess.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationSession{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ConversationSession{}, err
	}
	if len(metaBytes) > 0 {
		_ = json.Unmarshal(metaBytes, &sess.Metadata)
	}
	return sess, nil
}

// EndConversationSession marks a session closed. Ending an already closed
// session is a no-op.
func (s *Store) EndConversationSession(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE conversation_sessions SET ended_at = NOW() WHERE id=$1 AND ended_at IS NULL
`, id)
	return err
}

// AppendTurn records one turn. Turns are append-only.
func (s *Store) AppendTurn(ctx context.Context, sessionID, role, content string, actions []RecordedAction) (string, error) {
	var actionBytes []byte
	if len(actions) > 0 {
		var err error
		actionBytes, err = json.Marshal(actions)
		if err != nil {
			return "", fmt.Errorf("marshal turn actions: %w", err)
		}
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO conversation_turns (session_id, role, content, tool_calls) VALUES ($1,$2,$3,$4) RETURNING id
`, sessionID, role, content, actionBytes).Scan(&id)
	return id, err
}

// RecentTurns returns the latest limit turns of a session in oldest-first order.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]ConversationTurn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, session_id, role, content, tool_calls, created_at FROM (
    SELECT id, session_id, role, content, tool_calls, created_at
    FROM conversation_turns
    WHERE session_id = $1
    ORDER BY created_at DESC
    LIMIT $2
) latest
ORDER BY created_at ASC
`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConversationTurn
	for rows.Next() {
		var (
			t           ConversationTurn
			actionBytes []byte
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &actionBytes, &t.CreatedAt); err != nil {
			return nil, err
		}
		if len(actionBytes) > 0 {
			_ = json.Unmarshal(actionBytes, &t.ToolCalls)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordActivity appends a user activity event (view, cart add, negotiation, order).
func (s *Store) RecordActivity(ctx context.Context, userID, kind string, productID *string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO user_activity (user_id, kind, product_id) VALUES ($1,$2,$3)
`, userID, kind, productID)
	return err
}

// ActivitySummary aggregates a user's recent activity by kind.
type ActivitySummary struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// SummarizeActivity returns per-kind counts of the user's last 30 days of activity.
func (s *Store) SummarizeActivity(ctx context.Context, userID string) ([]ActivitySummary, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT kind, COUNT(*) FROM user_activity
WHERE user_id = $1 AND created_at >= NOW() - INTERVAL '30 days'
GROUP BY kind
ORDER BY COUNT(*) DESC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActivitySummary
	for rows.Next() {
		var a ActivitySummary
		if err := rows.Scan(&a.Kind, &a.Count); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecommendProducts surfaces active products from the categories the user
// interacted with most recently, best-rated first.
func (s *Store) RecommendProducts(ctx context.Context, userID string, limit int) ([]Product, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+productColumns+`
FROM products
WHERE is_active AND category IN (
    SELECT p.category
    FROM user_activity a JOIN products p ON p.id = a.product_id
    WHERE a.user_id = $1
    GROUP BY p.category
    ORDER BY MAX(a.created_at) DESC
    LIMIT 3
)
ORDER BY rating DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
