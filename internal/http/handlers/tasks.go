package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/geocoder89/taskflow/internal/domain/task"
	"github.com/geocoder89/taskflow/internal/store"
	"github.com/gin-gonic/gin"
)

type TasksRepository interface {
	List(ctx context.Context) ([]task.Task, error)
	GetByID(ctx context.Context, id int64) (task.Task, error)
}

type TasksHandler struct {
	tx    store.TxRunner
	tasks TasksRepository
}

// NewTasksHandler reads through tasks and runs every write in its own
// transaction, since a task and its executors span several statements.
func NewTasksHandler(tx store.TxRunner, tasks TasksRepository) *TasksHandler {
	return &TasksHandler{tx: tx, tasks: tasks}
}

func (h *TasksHandler) CreateTask(ctx *gin.Context) {
	var req task.CreateTaskRequest

	if !BindJSON(ctx, &req) {
		return
	}

	var created task.Task
	err := h.tx.WithinTx(ctx.Request.Context(), func(repos store.Repos) error {
		var err error
		created, err = repos.Tasks.Create(ctx.Request.Context(), req)
		return err
	})
	if err != nil {
		if errors.Is(err, task.ErrResponsibleNotFound) {
			RespondBadRequest(ctx, fmt.Sprintf("Responsible user with ID %d not found.", req.ResponsibleID), nil)
			return
		}
		RespondInternal(ctx, err, "Could not create task")
		return
	}

	ctx.JSON(http.StatusCreated, created)
}

func (h *TasksHandler) ListTasks(ctx *gin.Context) {
	tasks, err := h.tasks.List(ctx.Request.Context())
	if err != nil {
		RespondInternal(ctx, err, "Could not list tasks")
		return
	}

	ctx.JSON(http.StatusOK, tasks)
}

func (h *TasksHandler) GetTask(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	t, err := h.tasks.GetByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			RespondNotFound(ctx, "Task not found")
			return
		}
		RespondInternal(ctx, err, "Could not fetch task")
		return
	}

	ctx.JSON(http.StatusOK, t)
}

func (h *TasksHandler) UpdateTask(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req task.UpdateTaskRequest
	if !BindJSON(ctx, &req) {
		return
	}

	var updated task.Task
	err := h.tx.WithinTx(ctx.Request.Context(), func(repos store.Repos) error {
		var err error
		updated, err = repos.Tasks.Update(ctx.Request.Context(), id, req)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, task.ErrNotFound):
			RespondNotFound(ctx, "Task not found")
		case errors.Is(err, task.ErrResponsibleNotFound) && req.ResponsibleID != nil:
			RespondBadRequest(ctx, fmt.Sprintf("Responsible user with ID %d not found.", *req.ResponsibleID), nil)
		default:
			RespondInternal(ctx, err, "Could not update task")
		}
		return
	}

	ctx.JSON(http.StatusOK, updated)
}

func (h *TasksHandler) DeleteTask(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	err := h.tx.WithinTx(ctx.Request.Context(), func(repos store.Repos) error {
		return repos.Tasks.Delete(ctx.Request.Context(), id)
	})
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			RespondNotFound(ctx, "Task not found")
			return
		}
		RespondInternal(ctx, err, "Could not delete task")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"msg": "Task deleted"})
}
