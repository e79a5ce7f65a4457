package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/taskflow/internal/domain/task"
	"github.com/geocoder89/taskflow/internal/observability"
	"github.com/jackc/pgx/v5"
)

type TasksRepo struct {
	db   DBTX
	prom *observability.Prom
}

func NewTasksRepo(db DBTX, prom *observability.Prom) *TasksRepo {
	return &TasksRepo{db: db, prom: prom}
}

const selectTasks = `
	SELECT
		t.id, t.title, t.description, t.status, t.priority, t.responsible_id,
		COALESCE(array_agg(te.user_id ORDER BY te.id) FILTER (WHERE te.user_id IS NOT NULL), '{}') AS executor_ids,
		t.created_at, t.updated_at
	FROM tasks t
	LEFT JOIN task_executors te ON te.task_id = t.id`

func scanTask(row pgx.Row) (task.Task, error) {
	var t task.Task
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.ResponsibleID,
		&t.ExecutorIDs,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if t.ExecutorIDs == nil {
		t.ExecutorIDs = []int64{}
	}
	return t, err
}

// Create expects to run inside a transaction: the task row and its executor
// rows are written by separate statements.
func (r *TasksRepo) Create(ctx context.Context, req task.CreateTaskRequest) (task.Task, error) {
	req = req.WithDefaults()

	var id int64
	err := observe(r.prom, "tasks.create", func() error {
		if err := r.ensureUser(ctx, req.ResponsibleID); err != nil {
			return err
		}

		if err := r.db.QueryRow(ctx,
			`INSERT INTO tasks (title, description, status, priority, responsible_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			req.Title, req.Description, req.Status, req.Priority, req.ResponsibleID,
		).Scan(&id); err != nil {
			return err
		}

		return r.insertExecutors(ctx, id, req.ExecutorIDs)
	})
	if err != nil {
		return task.Task{}, err
	}

	return r.GetByID(ctx, id)
}

func (r *TasksRepo) List(ctx context.Context) ([]task.Task, error) {
	var out []task.Task

	err := observe(r.prom, "tasks.list", func() error {
		rows, err := r.db.Query(ctx, selectTasks+` GROUP BY t.id ORDER BY t.id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]task.Task, 0)
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

func (r *TasksRepo) GetByID(ctx context.Context, id int64) (task.Task, error) {
	var t task.Task

	err := observe(r.prom, "tasks.get_by_id", func() error {
		var err error
		t, err = scanTask(r.db.QueryRow(ctx, selectTasks+` WHERE t.id = $1 GROUP BY t.id`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, task.ErrNotFound
		}
		return task.Task{}, err
	}
	return t, nil
}

func (r *TasksRepo) Update(ctx context.Context, id int64, req task.UpdateTaskRequest) (task.Task, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return task.Task{}, err
	}

	err = observe(r.prom, "tasks.update", func() error {
		if req.ResponsibleID != nil {
			if err := r.ensureUser(ctx, *req.ResponsibleID); err != nil {
				return err
			}
		}

		next := current.Apply(req)
		tag, err := r.db.Exec(ctx,
			`UPDATE tasks
			SET title = $2, description = $3, status = $4, priority = $5, responsible_id = $6, updated_at = NOW()
			WHERE id = $1`,
			id, next.Title, next.Description, next.Status, next.Priority, next.ResponsibleID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return task.ErrNotFound
		}

		if req.ExecutorIDs == nil {
			return nil
		}
		if _, err := r.db.Exec(ctx, `DELETE FROM task_executors WHERE task_id = $1`, id); err != nil {
			return err
		}
		return r.insertExecutors(ctx, id, *req.ExecutorIDs)
	})
	if err != nil {
		return task.Task{}, err
	}

	return r.GetByID(ctx, id)
}

func (r *TasksRepo) Delete(ctx context.Context, id int64) error {
	var deleted int64

	err := observe(r.prom, "tasks.delete", func() error {
		tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}

	if deleted == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (r *TasksRepo) ensureUser(ctx context.Context, id int64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return task.ErrResponsibleNotFound
	}
	return nil
}

// insertExecutors keeps the caller's order, skips duplicates and silently
// drops ids that do not belong to a user.
func (r *TasksRepo) insertExecutors(ctx context.Context, taskID int64, ids []int64) error {
	ids = task.UniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO task_executors (task_id, user_id)
		SELECT $1, x.id
		FROM unnest($2::bigint[]) WITH ORDINALITY AS x(id, ord)
		JOIN users u ON u.id = x.id
		ORDER BY x.ord
		ON CONFLICT (task_id, user_id) DO NOTHING`,
		taskID, ids,
	)
	return err
}
