package gcal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/Veraticus/paperflow/internal/model"
)

// TaskList implements service.TaskList on the Google Tasks API.
type TaskList struct {
	svc    *tasks.Service
	listID string
	logger *slog.Logger
}

// NewTaskList creates a TaskList writing to listID ("@default" when empty).
func NewTaskList(ctx context.Context, client *http.Client, listID string, logger *slog.Logger) (*TaskList, error) {
	svc, err := tasks.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	if listID == "" {
		listID = "@default"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskList{svc: svc, listID: listID, logger: logger}, nil
}

// CreateTask inserts one task. Notes passed in are appended after the
// task's own notes.
func (t *TaskList) CreateTask(ctx context.Context, task model.Task, notes string) (string, error) {
	body := &tasks.Task{
		Title: task.Title,
		Notes: notes,
	}

	if due := normalizeDue(task.DueDate); due != "" {
		body.Due = due
	}

	created, err := t.svc.Tasks.Insert(t.listID, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert task: %w", err)
	}

	t.logger.Info("task created", "title", task.Title, "due", task.DueDate)
	return created.Id, nil
}

// normalizeDue turns YYYYMMDD or YYYY-MM-DD into the RFC3339 midnight the
// Tasks API requires. Unparseable dates are dropped rather than rejected;
// a task without a due date is still worth creating.
func normalizeDue(due string) string {
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, due); err == nil {
			return t.Format("2006-01-02") + "T00:00:00Z"
		}
	}
	return ""
}
