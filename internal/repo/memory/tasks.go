package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/geocoder89/taskflow/internal/domain/task"
)

type TasksRepo struct {
	s *Store
}

func (r *TasksRepo) Create(ctx context.Context, req task.CreateTaskRequest) (task.Task, error) {
	req = req.WithDefaults()

	var out task.Task
	err := r.s.write(func(t *tables) error {
		if _, ok := t.users[req.ResponsibleID]; !ok {
			return task.ErrResponsibleNotFound
		}

		now := time.Now().UTC()
		out = task.Task{
			ID:            t.nextID(),
			Title:         req.Title,
			Description:   req.Description,
			Status:        req.Status,
			Priority:      req.Priority,
			ResponsibleID: req.ResponsibleID,
			ExecutorIDs:   t.existingUsers(req.ExecutorIDs),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		t.tasks[out.ID] = out
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}
	return copyTask(out), nil
}

func (r *TasksRepo) List(ctx context.Context) ([]task.Task, error) {
	var out []task.Task
	err := r.s.read(func(t *tables) error {
		out = make([]task.Task, 0, len(t.tasks))
		for _, tk := range t.tasks {
			out = append(out, copyTask(tk))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *TasksRepo) GetByID(ctx context.Context, id int64) (task.Task, error) {
	var out task.Task
	err := r.s.read(func(t *tables) error {
		tk, ok := t.tasks[id]
		if !ok {
			return task.ErrNotFound
		}
		out = copyTask(tk)
		return nil
	})
	return out, err
}

func (r *TasksRepo) Update(ctx context.Context, id int64, req task.UpdateTaskRequest) (task.Task, error) {
	var out task.Task
	err := r.s.write(func(t *tables) error {
		current, ok := t.tasks[id]
		if !ok {
			return task.ErrNotFound
		}
		if req.ResponsibleID != nil {
			if _, ok := t.users[*req.ResponsibleID]; !ok {
				return task.ErrResponsibleNotFound
			}
		}

		updated := current.Apply(req)
		if req.ExecutorIDs != nil {
			updated.ExecutorIDs = t.existingUsers(*req.ExecutorIDs)
		}
		updated.UpdatedAt = time.Now().UTC()

		t.tasks[id] = updated
		out = updated
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}
	return copyTask(out), nil
}

func (r *TasksRepo) Delete(ctx context.Context, id int64) error {
	return r.s.write(func(t *tables) error {
		if _, ok := t.tasks[id]; !ok {
			return task.ErrNotFound
		}
		delete(t.tasks, id)
		return nil
	})
}

func (t *tables) existingUsers(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range task.UniqueIDs(ids) {
		if _, ok := t.users[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func copyTask(tk task.Task) task.Task {
	tk.ExecutorIDs = slices.Clone(tk.ExecutorIDs)
	if tk.ExecutorIDs == nil {
		tk.ExecutorIDs = []int64{}
	}
	return tk
}
