package repositoryimpl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
)

const agentTasksSchema = `
CREATE TABLE IF NOT EXISTS agent_tasks (
	conversation_id TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	version         INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL,
	body            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_tasks_user_updated ON agent_tasks (user_id, updated_at DESC);
`

// SQLiteRepository keeps agent tasks in a SQLite table. Version checks are
// done by the database, so several processes may share the file.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at dbPath.
func OpenSQLite(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if _, err := db.ExecContext(ctx, agentTasksSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize agent task schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, t *agenttask.AgentTask) error {
	t.Version = 1
	body, err := json.Marshal(t)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal agent task: %w", err))
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO agent_tasks (conversation_id, user_id, version, updated_at, body)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (conversation_id) DO NOTHING`,
		t.ConversationID, t.UserID, t.Version, t.UpdatedAt.UnixNano(), string(body))
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert agent task: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerr.NewError(cerr.AlreadyExists, "agent task already exists", nil)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, conversationID string) (*agenttask.AgentTask, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT body FROM agent_tasks WHERE conversation_id = ?`, conversationID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "agent task not found", err)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read agent task: %w", err))
	}
	return decodeTask(body)
}

func (r *SQLiteRepository) List(ctx context.Context, userID string, limit, offset int) ([]*agenttask.AgentTask, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_tasks WHERE (? = '' OR user_id = ?)`, userID, userID).Scan(&total); err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count agent tasks: %w", err))
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT body FROM agent_tasks WHERE (? = '' OR user_id = ?)
		 ORDER BY updated_at DESC LIMIT ? OFFSET ?`, userID, userID, limit, offset)
	if err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list agent tasks: %w", err))
	}
	defer rows.Close()

	var tasks []*agenttask.AgentTask
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to scan agent task: %w", err))
		}
		t, err := decodeTask(body)
		if err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list agent tasks: %w", err))
	}
	return tasks, total, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, t *agenttask.AgentTask) error {
	expected := t.Version
	t.Version = expected + 1
	body, err := json.Marshal(t)
	if err != nil {
		t.Version = expected
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal agent task: %w", err))
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE agent_tasks SET user_id = ?, version = ?, updated_at = ?, body = ?
		 WHERE conversation_id = ? AND version = ?`,
		t.UserID, t.Version, t.UpdatedAt.UnixNano(), string(body), t.ConversationID, expected)
	if err != nil {
		t.Version = expected
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update agent task: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	t.Version = expected

	var stored int64
	err = r.db.QueryRowContext(ctx,
		`SELECT version FROM agent_tasks WHERE conversation_id = ?`, t.ConversationID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return cerr.NewError(cerr.NotFound, "agent task not found", err)
	}
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read agent task version: %w", err))
	}
	return cerr.NewConflictError("agent task", expected, stored)
}

func (r *SQLiteRepository) Delete(ctx context.Context, conversationID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM agent_tasks WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete agent task: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerr.NewError(cerr.NotFound, "agent task not found", nil)
	}
	return nil
}

func decodeTask(body string) (*agenttask.AgentTask, error) {
	var t agenttask.AgentTask
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal agent task: %w", err))
	}
	return &t, nil
}
