package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Marksio90/narrative-dispatch/internal/scheduler"
)

const taskColumns = `id, project_id, type, priority, agent_id, status, result,
	error_message, retry_count, max_retries, created_at, assigned_at,
	started_at, completed_at, deadline, version`

// CreateTask inserts a task and its dependency edges in one transaction.
// Every dependency must already exist; a missing one fails the insert.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *scheduler.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, t.ID).Scan(&exists)
	if err == nil {
		return fmt.Errorf("task %s: %w", t.ID, scheduler.ErrAlreadyExists)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("checking task existence: %w", err)
	}

	t.Version = 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.Type, t.Priority, t.AssignedAgentID, t.Status,
		t.Result, t.ErrorMessage, t.RetryCount, t.MaxRetries,
		t.CreatedAt.UnixNano(), timeToNS(t.AssignedAt), timeToNS(t.StartedAt),
		timeToNS(t.CompletedAt), timeToNS(t.Deadline), t.Version)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", t.ID, err)
	}

	for _, depID := range t.DependsOn {
		var one int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, depID).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("dependency %s: %w", depID, scheduler.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("checking dependency %s: %w", depID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_dependencies (task_id, depends_on_id)
			VALUES (?, ?)
		`, t.ID, depID)
		if err != nil {
			return fmt.Errorf("inserting dependency %s -> %s: %w", t.ID, depID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID, including its dependency list.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*scheduler.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, scheduler.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying task %s: %w", id, err)
	}
	if err := s.loadDependencies(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// PutTask writes the task if its stored version matches expectedVersion,
// advancing t.Version on success. Returns scheduler.ErrVersionConflict when
// another writer got there first.
func (s *SQLiteStore) PutTask(ctx context.Context, t *scheduler.Task, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putTaskTx(ctx, tx, t, expectedVersion); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	t.Version = expectedVersion + 1
	return nil
}

// putTaskTx performs the conditional write inside an open transaction.
// Dependency edges are immutable after creation and are not rewritten here.
func putTaskTx(ctx context.Context, tx *sql.Tx, t *scheduler.Task, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET project_id = ?, type = ?, priority = ?, agent_id = ?, status = ?,
			result = ?, error_message = ?, retry_count = ?, max_retries = ?,
			assigned_at = ?, started_at = ?, completed_at = ?, deadline = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`, t.ProjectID, t.Type, t.Priority, t.AssignedAgentID, t.Status,
		t.Result, t.ErrorMessage, t.RetryCount, t.MaxRetries,
		timeToNS(t.AssignedAt), timeToNS(t.StartedAt), timeToNS(t.CompletedAt),
		timeToNS(t.Deadline), t.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if rows == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, t.ID).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("task %s: %w", t.ID, scheduler.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("checking task %s: %w", t.ID, err)
		}
		return fmt.Errorf("task %s: %w", t.ID, scheduler.ErrVersionConflict)
	}
	return nil
}

// ListTasks returns tasks matching the project and filter, with dependencies
// loaded. Empty projectID matches all projects.
func (s *SQLiteStore) ListTasks(ctx context.Context, projectID string, filter scheduler.TaskFilter) ([]*scheduler.Task, error) {
	var conds []string
	var args []any
	if projectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, projectID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.Statuses)), ",")
		conds = append(conds, "status IN ("+placeholders+")")
		for _, st := range filter.Statuses {
			args = append(args, st)
		}
	}
	if len(filter.Priorities) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.Priorities)), ",")
		conds = append(conds, "priority IN ("+placeholders+")")
		for _, p := range filter.Priorities {
			args = append(args, p)
		}
	}
	if filter.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}

	// Drain the result set before issuing dependency queries: the store runs
	// on a single connection.
	var tasks []*scheduler.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}
	rows.Close()

	for _, t := range tasks {
		if err := s.loadDependencies(ctx, t); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// Dependents returns ids of tasks whose DependsOn includes taskID.
func (s *SQLiteStore) Dependents(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id
		FROM task_dependencies
		WHERE depends_on_id = ?
		ORDER BY task_id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying dependents of %s: %w", taskID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning dependent: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dependents: %w", err)
	}
	return ids, nil
}

// PutTaskAndAgent writes both records in one transaction so a task
// transition and the accompanying agent mutation commit or fail together.
func (s *SQLiteStore) PutTaskAndAgent(ctx context.Context, t *scheduler.Task, taskVersion int64, a *scheduler.Agent, agentVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putTaskTx(ctx, tx, t, taskVersion); err != nil {
		return err
	}
	if err := putAgentTx(ctx, tx, a, agentVersion); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	t.Version = taskVersion + 1
	a.Version = agentVersion + 1
	return nil
}

func (s *SQLiteStore) loadDependencies(ctx context.Context, t *scheduler.Task) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT depends_on_id
		FROM task_dependencies
		WHERE task_id = ?
		ORDER BY depends_on_id
	`, t.ID)
	if err != nil {
		return fmt.Errorf("querying dependencies of %s: %w", t.ID, err)
	}
	defer rows.Close()

	t.DependsOn = nil
	for rows.Next() {
		var depID string
		if err := rows.Scan(&depID); err != nil {
			return fmt.Errorf("scanning dependency: %w", err)
		}
		t.DependsOn = append(t.DependsOn, depID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating dependencies: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*scheduler.Task, error) {
	t := &scheduler.Task{}
	var createdNS int64
	var assignedNS, startedNS, completedNS, deadlineNS sql.NullInt64
	err := row.Scan(&t.ID, &t.ProjectID, &t.Type, &t.Priority, &t.AssignedAgentID,
		&t.Status, &t.Result, &t.ErrorMessage, &t.RetryCount, &t.MaxRetries,
		&createdNS, &assignedNS, &startedNS, &completedNS, &deadlineNS, &t.Version)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = time.Unix(0, createdNS)
	t.AssignedAt = nsToTime(assignedNS)
	t.StartedAt = nsToTime(startedNS)
	t.CompletedAt = nsToTime(completedNS)
	t.Deadline = nsToTime(deadlineNS)
	return t, nil
}

func timeToNS(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nsToTime(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(0, ns.Int64)
	return &t
}
