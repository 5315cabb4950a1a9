package memory

import (
	"context"
	"time"

	"earn-platform/internal/model"
	"earn-platform/internal/repository"
)

type tasks struct {
	s *Store
	v *view
}

func (r *tasks) CreateTask(ctx context.Context, task *model.Task) error {
	_, err := run(r.s, r.v, func(st *state) (struct{}, error) {
		cp := *task
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		st.tasks[cp.ID] = &cp
		return struct{}{}, nil
	})
	return err
}

func (r *tasks) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return run(r.s, r.v, func(st *state) (*model.Task, error) {
		task, ok := st.tasks[id]
		if !ok {
			return nil, repository.ErrTaskNotFound
		}
		cp := *task
		return &cp, nil
	})
}

func (r *tasks) ListActiveTasks(ctx context.Context) ([]*model.Task, error) {
	return run(r.s, r.v, func(st *state) ([]*model.Task, error) {
		var out []*model.Task
		for _, task := range st.tasks {
			if task.Active {
				cp := *task
				out = append(out, &cp)
			}
		}
		return out, nil
	})
}

func (r *tasks) CreateCompletion(ctx context.Context, c *model.TaskCompletion) error {
	_, err := run(r.s, r.v, func(st *state) (struct{}, error) {
		var zero struct{}
		key := c.AccountID + "\x00" + c.TaskID
		if _, ok := st.completionByPair[key]; ok {
			return zero, repository.ErrDuplicateCompletion
		}
		cp := *c
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		st.completions[cp.ID] = &cp
		st.completionByPair[key] = cp.ID
		return zero, nil
	})
	return err
}

func (r *tasks) GetCompletion(ctx context.Context, id string) (*model.TaskCompletion, error) {
	return run(r.s, r.v, func(st *state) (*model.TaskCompletion, error) {
		c, ok := st.completions[id]
		if !ok {
			return nil, repository.ErrCompletionNotFound
		}
		cp := *c
		return &cp, nil
	})
}

func (r *tasks) RejectCompletion(ctx context.Context, id, notes string) (bool, error) {
	return run(r.s, r.v, func(st *state) (bool, error) {
		c, ok := st.completions[id]
		if !ok {
			return false, repository.ErrCompletionNotFound
		}
		if c.Status != model.CompletionCompleted {
			return false, nil
		}
		c.Status = model.CompletionRejected
		c.Notes = notes
		return true, nil
	})
}
