package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Marksio90/narrative-dispatch/internal/scheduler"
)

const agentColumns = `id, project_id, type, role, is_active, is_busy,
	current_task_id, tasks_completed, tasks_failed, avg_completion_ns,
	satisfaction, created_at, version`

// CreateAgent inserts a new agent record.
func (s *SQLiteStore) CreateAgent(ctx context.Context, a *scheduler.Agent) error {
	a.Version = 1
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ProjectID, a.Type, a.Role, a.IsActive, a.IsBusy,
		a.CurrentTaskID, a.TasksCompleted, a.TasksFailed,
		int64(a.AvgCompletionTime), a.SatisfactionScore,
		a.CreatedAt.UnixNano(), a.Version)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("agent %s: %w", a.ID, scheduler.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*scheduler.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %s: %w", id, scheduler.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent %s: %w", id, err)
	}
	return a, nil
}

// PutAgent writes the agent if its stored version matches expectedVersion,
// advancing a.Version on success.
func (s *SQLiteStore) PutAgent(ctx context.Context, a *scheduler.Agent, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putAgentTx(ctx, tx, a, expectedVersion); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	a.Version = expectedVersion + 1
	return nil
}

func putAgentTx(ctx context.Context, tx *sql.Tx, a *scheduler.Agent, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE agents
		SET project_id = ?, type = ?, role = ?, is_active = ?, is_busy = ?,
			current_task_id = ?, tasks_completed = ?, tasks_failed = ?,
			avg_completion_ns = ?, satisfaction = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, a.ProjectID, a.Type, a.Role, a.IsActive, a.IsBusy, a.CurrentTaskID,
		a.TasksCompleted, a.TasksFailed, int64(a.AvgCompletionTime),
		a.SatisfactionScore, a.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("updating agent %s: %w", a.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if rows == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE id = ?`, a.ID).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("agent %s: %w", a.ID, scheduler.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("checking agent %s: %w", a.ID, err)
		}
		return fmt.Errorf("agent %s: %w", a.ID, scheduler.ErrVersionConflict)
	}
	return nil
}

// ListAgents returns all agents of a project, ordered by id. Empty projectID
// matches all projects.
func (s *SQLiteStore) ListAgents(ctx context.Context, projectID string) ([]*scheduler.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*scheduler.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}
	return agents, nil
}

func scanAgent(row rowScanner) (*scheduler.Agent, error) {
	a := &scheduler.Agent{}
	var avgNS, createdNS int64
	err := row.Scan(&a.ID, &a.ProjectID, &a.Type, &a.Role, &a.IsActive,
		&a.IsBusy, &a.CurrentTaskID, &a.TasksCompleted, &a.TasksFailed,
		&avgNS, &a.SatisfactionScore, &createdNS, &a.Version)
	if err != nil {
		return nil, err
	}
	a.AvgCompletionTime = time.Duration(avgNS)
	a.CreatedAt = time.Unix(0, createdNS)
	return a, nil
}
