package task

import (
	"errors"
	"time"
)

type Status string

type Priority string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

var (
	ErrNotFound            = errors.New("task not found")
	ErrResponsibleNotFound = errors.New("responsible user not found")
)

type Task struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   *string   `json:"description"`
	Status        Status    `json:"status"`
	Priority      Priority  `json:"priority"`
	ResponsibleID int64     `json:"responsible_id"`
	ExecutorIDs   []int64   `json:"executor_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CreateTaskRequest struct {
	Title         string   `json:"title" binding:"required,min=1,max=200"`
	Description   *string  `json:"description" binding:"omitempty,max=5000"`
	Status        Status   `json:"status" binding:"omitempty,oneof=TODO IN_PROGRESS DONE"`
	Priority      Priority `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH"`
	ResponsibleID int64    `json:"responsible_id" binding:"required,min=1"`
	ExecutorIDs   []int64  `json:"executor_ids"`
}

// UpdateTaskRequest is a partial update; nil fields are left untouched.
// A non-nil ExecutorIDs replaces the whole executor set.
type UpdateTaskRequest struct {
	Title         *string   `json:"title" binding:"omitempty,min=1,max=200"`
	Description   *string   `json:"description" binding:"omitempty,max=5000"`
	Status        *Status   `json:"status" binding:"omitempty,oneof=TODO IN_PROGRESS DONE"`
	Priority      *Priority `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH"`
	ResponsibleID *int64    `json:"responsible_id" binding:"omitempty,min=1"`
	ExecutorIDs   *[]int64  `json:"executor_ids"`
}

// WithDefaults fills in TODO and MEDIUM when status or priority is omitted.
func (r CreateTaskRequest) WithDefaults() CreateTaskRequest {
	if r.Status == "" {
		r.Status = StatusTodo
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	return r
}

// UniqueIDs drops duplicates while keeping first-seen order.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Apply merges a partial update into t. Executors are handled by the store.
func (t Task) Apply(req UpdateTaskRequest) Task {
	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = req.Description
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.ResponsibleID != nil {
		t.ResponsibleID = *req.ResponsibleID
	}
	return t
}
