// Package service defines the interfaces for all external collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/paperflow/internal/model"
)

// Vault is the document store the pipeline reads from and files into.
// EnsureFolderPath resolves an ordered list of folder-name segments
// under a parent folder top-down, creating any missing segment, and
// returns the id of the innermost folder.
type Vault interface {
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	Download(ctx context.Context, id string) ([]byte, error)
	Rename(ctx context.Context, id, newName string) error
	Move(ctx context.Context, id, folderID string) error
	EnsureFolderPath(ctx context.Context, parentID string, segments []string) (string, error)
	IsProcessed(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id string) error
}

// Converter turns the first page of a PDF into something the vision model
// accepts. Non-PDF inputs are returned unchanged.
type Converter interface {
	FirstPage(data []byte, mimeType string) ([]byte, string, error)
}

// Classifier produces a validated classification for one document, or nil
// when every model tier failed. A nil result with a nil error never occurs;
// callers treat any error as a null classification.
type Classifier interface {
	Classify(ctx context.Context, data []byte, mimeType, fileName string) (*model.ClassificationResult, error)
	ExtractSchedule(ctx context.Context, data []byte, mimeType, fileName string, today time.Time) (*model.Schedule, error)
}

// PhotoUploader archives an image to the photo service.
type PhotoUploader interface {
	Upload(ctx context.Context, data []byte, description string) (string, error)
}

// Calendar creates events on the household calendar.
type Calendar interface {
	CreateEvent(ctx context.Context, event model.Event, notes string) (string, error)
}

// TaskList creates tasks on the household task list.
type TaskList interface {
	CreateTask(ctx context.Context, task model.Task, notes string) (string, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
