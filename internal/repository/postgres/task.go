package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
	"earn-platform/internal/repository"
)

type tasks struct {
	db DBTX
}

func (r *tasks) CreateTask(ctx context.Context, task *model.Task) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tasks (id, title, reward, currency, active)
		VALUES ($1, $2, $3, $4, $5)`,
		task.ID, task.Title, task.Reward.Units(), task.Reward.Currency(), task.Active,
	)
	return err
}

func (r *tasks) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return scanTask(r.db.QueryRow(ctx, `
		SELECT id, title, reward, currency, active, created_at
		FROM tasks WHERE id = $1`, id))
}

func (r *tasks) ListActiveTasks(ctx context.Context) ([]*model.Task, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, title, reward, currency, active, created_at
		FROM tasks WHERE active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		task     model.Task
		reward   int64
		currency string
	)
	err := row.Scan(&task.ID, &task.Title, &reward, &currency, &task.Active, &task.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	task.Reward = money.New(reward, currency)
	return &task, nil
}

func (r *tasks) CreateCompletion(ctx context.Context, c *model.TaskCompletion) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO task_completions (id, account_id, task_id, status, reward, currency, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.AccountID, c.TaskID, string(c.Status),
		c.Reward.Units(), c.Reward.Currency(), c.Notes,
	)
	if isUniqueViolation(err, "task_completions_account_task_key") {
		return repository.ErrDuplicateCompletion
	}
	return err
}

func (r *tasks) GetCompletion(ctx context.Context, id string) (*model.TaskCompletion, error) {
	var (
		c        model.TaskCompletion
		reward   int64
		currency string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, account_id, task_id, status, reward, currency, notes, created_at
		FROM task_completions WHERE id = $1`, id).
		Scan(&c.ID, &c.AccountID, &c.TaskID, &c.Status, &reward, &currency, &c.Notes, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrCompletionNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Reward = money.New(reward, currency)
	return &c, nil
}

func (r *tasks) RejectCompletion(ctx context.Context, id, notes string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE task_completions SET status = 'rejected', notes = $2
		WHERE id = $1 AND status = 'completed'`,
		id, notes)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var one int
	err = r.db.QueryRow(ctx, `SELECT 1 FROM task_completions WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, repository.ErrCompletionNotFound
	}
	return false, err
}
