package store

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
// Timestamps are stored as unix nanoseconds; NULL means unset.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		agent_id TEXT NOT NULL DEFAULT '',
		status INTEGER NOT NULL,
		result TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		created_at INTEGER NOT NULL,
		assigned_at INTEGER,
		started_at INTEGER,
		completed_at INTEGER,
		deadline INTEGER,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_agent_status ON tasks(agent_id, status);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		task_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		PRIMARY KEY (task_id, depends_on_id),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (depends_on_id) REFERENCES tasks(id)
	);

	CREATE INDEX IF NOT EXISTS idx_task_dependencies_depends_on
		ON task_dependencies(depends_on_id);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		type TEXT NOT NULL,
		role INTEGER NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_busy INTEGER NOT NULL DEFAULT 0,
		current_task_id TEXT NOT NULL DEFAULT '',
		tasks_completed INTEGER NOT NULL DEFAULT 0,
		tasks_failed INTEGER NOT NULL DEFAULT 0,
		avg_completion_ns INTEGER NOT NULL DEFAULT 0,
		satisfaction REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_agents_project ON agents(project_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
