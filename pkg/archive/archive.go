// Package archive persists finished conversations to SQLite so they survive
// daemon restarts. The in-memory registry remains the source of truth while a
// conversation is live; the archive only ever sees terminal records.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/dispatch/pkg/domain"
)

// Archive stores terminated conversations in SQLite.
type Archive struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

// Close closes the underlying database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		goal TEXT NOT NULL DEFAULT '',
		instructions TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		max_turns INTEGER NOT NULL DEFAULT 0,
		caller TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		turn INTEGER NOT NULL DEFAULT 0,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		final_response TEXT NOT NULL DEFAULT '',
		cancelled INTEGER NOT NULL DEFAULT 0,
		history TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Save upserts a conversation and its history. Callers are expected to pass
// conversations in a terminal status; the archive does not enforce this.
func (a *Archive) Save(ctx context.Context, conv *domain.Conversation, history []domain.HistoryEntry) error {
	if history == nil {
		history = []domain.HistoryEntry{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	createdAt := conv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := conv.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO conversations (id, goal, instructions, model, max_turns, caller, title, status, turn, tokens_used, error, final_response, cancelled, history, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			turn=excluded.turn,
			tokens_used=excluded.tokens_used,
			error=excluded.error,
			final_response=excluded.final_response,
			cancelled=excluded.cancelled,
			history=excluded.history,
			updated_at=excluded.updated_at`,
		conv.ID, conv.Goal, conv.Instructions, conv.Model, conv.MaxTurns,
		conv.Caller, conv.Title, string(conv.Status), conv.Turn, conv.TokensUsed,
		conv.Error, conv.FinalResponse, conv.Cancelled, string(historyJSON),
		createdAt, updatedAt,
	)
	return err
}

// Get returns an archived conversation and its history.
func (a *Archive) Get(ctx context.Context, id string) (*domain.Conversation, []domain.HistoryEntry, error) {
	conv := &domain.Conversation{}
	var status, historyJSON string
	err := a.db.QueryRowContext(ctx,
		`SELECT id, goal, instructions, model, max_turns, caller, title, status, turn, tokens_used, error, final_response, cancelled, history, created_at, updated_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.Goal, &conv.Instructions, &conv.Model, &conv.MaxTurns,
		&conv.Caller, &conv.Title, &status, &conv.Turn, &conv.TokensUsed,
		&conv.Error, &conv.FinalResponse, &conv.Cancelled, &historyJSON,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("conversation not found: %s", id)
	}
	if err != nil {
		return nil, nil, err
	}
	conv.Status = domain.Status(status)

	var history []domain.HistoryEntry
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		return nil, nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return conv, history, nil
}

// List returns archived conversations, newest first. History is omitted.
func (a *Archive) List(ctx context.Context) ([]domain.Conversation, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, goal, instructions, model, max_turns, caller, title, status, turn, tokens_used, error, final_response, cancelled, created_at, updated_at
		 FROM conversations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConversations(rows)
}

// Search returns archived conversations whose goal, title, or final response
// matches the query, newest first.
func (a *Archive) Search(ctx context.Context, query string) ([]domain.Conversation, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, goal, instructions, model, max_turns, caller, title, status, turn, tokens_used, error, final_response, cancelled, created_at, updated_at
		 FROM conversations
		 WHERE goal LIKE '%' || ? || '%' OR title LIKE '%' || ? || '%' OR final_response LIKE '%' || ? || '%'
		 ORDER BY created_at DESC`,
		query, query, query,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConversations(rows)
}

// Delete removes an archived conversation.
func (a *Archive) Delete(ctx context.Context, id string) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM conversations WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

func scanConversations(rows *sql.Rows) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		var status string
		if err := rows.Scan(&conv.ID, &conv.Goal, &conv.Instructions, &conv.Model, &conv.MaxTurns,
			&conv.Caller, &conv.Title, &status, &conv.Turn, &conv.TokensUsed,
			&conv.Error, &conv.FinalResponse, &conv.Cancelled,
			&conv.CreatedAt, &conv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		conv.Status = domain.Status(status)
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}
