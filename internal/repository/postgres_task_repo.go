package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/nimbo/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

const taskColumns = `id, farm_id, kind, description, due_date, sheep_tag, completed, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*model.Task, error) {
	t := &model.Task{}
	var kind string
	err := row.Scan(&t.ID, &t.FarmID, &kind, &t.Description, &t.DueDate, &t.SheepTag,
		&t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Kind = model.TaskKind(kind)
	t.DueDate = t.DueDate.UTC()
	return t, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, t *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.FarmID, string(t.Kind), t.Description, t.DueDate, t.SheepTag, t.Completed, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Update はタスクの内容を更新する。見つからない場合はErrNotFoundを返す。
func (r *PostgresTaskRepo) Update(ctx context.Context, t *model.Task) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET kind = $3, description = $4, due_date = $5, sheep_tag = $6,
		   completed = $7, updated_at = $8
		 WHERE farm_id = $1 AND id = $2`,
		t.FarmID, t.ID, string(t.Kind), t.Description, t.DueDate, t.SheepTag, t.Completed, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID はタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, farmID, id string) (*model.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE farm_id = $1 AND id = $2`,
		farmID, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return t, nil
}

// ListByFarm はタスクを期日の昇順で返す。limitが0以下の場合は制限しない。
func (r *PostgresTaskRepo) ListByFarm(ctx context.Context, farmID string, pendingOnly bool, limit int) ([]*model.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE farm_id = $1`
	args := []any{farmID}
	if pendingOnly {
		q += ` AND completed = FALSE`
	}
	q += ` ORDER BY due_date ASC, created_at ASC`
	if limit > 0 {
		args = append(args, limit)
		q += ` LIMIT $2`
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// Toggle は完了フラグを反転し、反転後のタスクを返す。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) Toggle(ctx context.Context, farmID, id string) (*model.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`UPDATE tasks SET completed = NOT completed, updated_at = now()
		 WHERE farm_id = $1 AND id = $2
		 RETURNING `+taskColumns,
		farmID, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle task: %w", err)
	}
	return t, nil
}

// Delete はタスクを削除する。見つからない場合はErrNotFoundを返す。
func (r *PostgresTaskRepo) Delete(ctx context.Context, farmID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE farm_id = $1 AND id = $2`,
		farmID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
