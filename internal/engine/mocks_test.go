package engine

import (
	"context"
	"time"

	"github.com/Veraticus/paperflow/internal/model"
)

// mockVault is an in-memory Vault recording every mutating call.
type mockVault struct {
	doc       *model.Document
	data      []byte
	docErr    error
	dlErr     error
	renameErr error
	moveErr   error
	ensureErr error
	processed bool

	downloads   int
	renamedTo   string
	movedTo     string
	marked      bool
	ensuredPath []string
}

func (m *mockVault) GetDocument(_ context.Context, _ string) (*model.Document, error) {
	if m.docErr != nil {
		return nil, m.docErr
	}
	return m.doc, nil
}

func (m *mockVault) Download(_ context.Context, _ string) ([]byte, error) {
	m.downloads++
	if m.dlErr != nil {
		return nil, m.dlErr
	}
	return m.data, nil
}

func (m *mockVault) Rename(_ context.Context, _, newName string) error {
	if m.renameErr != nil {
		return m.renameErr
	}
	m.renamedTo = newName
	return nil
}

func (m *mockVault) Move(_ context.Context, _, folderID string) error {
	if m.moveErr != nil {
		return m.moveErr
	}
	m.movedTo = folderID
	return nil
}

func (m *mockVault) EnsureFolderPath(_ context.Context, parentID string, segments []string) (string, error) {
	if m.ensureErr != nil {
		return "", m.ensureErr
	}
	m.ensuredPath = segments
	id := parentID
	for _, s := range segments {
		id += "/" + s
	}
	return id, nil
}

func (m *mockVault) IsProcessed(_ context.Context, _ string) (bool, error) {
	return m.processed, nil
}

func (m *mockVault) MarkProcessed(_ context.Context, _ string) error {
	m.marked = true
	m.processed = true
	return nil
}

// mockConverter passes data through, optionally rewriting the mime type.
type mockConverter struct {
	err      error
	outMime  string
	converts int
}

func (m *mockConverter) FirstPage(data []byte, mimeType string) ([]byte, string, error) {
	m.converts++
	if m.err != nil {
		return nil, "", m.err
	}
	if m.outMime != "" {
		return data, m.outMime, nil
	}
	return data, mimeType, nil
}

// mockClassifier replays a canned classification and schedule.
type mockClassifier struct {
	result      *model.ClassificationResult
	classifyErr error
	schedule    *model.Schedule
	scheduleErr error

	classifyCalls int
	extractCalls  int
}

func (m *mockClassifier) Classify(_ context.Context, _ []byte, _, _ string) (*model.ClassificationResult, error) {
	m.classifyCalls++
	return m.result, m.classifyErr
}

func (m *mockClassifier) ExtractSchedule(_ context.Context, _ []byte, _, _ string, _ time.Time) (*model.Schedule, error) {
	m.extractCalls++
	return m.schedule, m.scheduleErr
}

type mockPhotos struct {
	err          error
	descriptions []string
}

func (m *mockPhotos) Upload(_ context.Context, _ []byte, description string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.descriptions = append(m.descriptions, description)
	return "https://photos.example/" + description, nil
}

type createdEvent struct {
	event model.Event
	notes string
}

type mockCalendar struct {
	err     error
	created []createdEvent
}

func (m *mockCalendar) CreateEvent(_ context.Context, event model.Event, notes string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.created = append(m.created, createdEvent{event: event, notes: notes})
	return "event-link", nil
}

type createdTask struct {
	task  model.Task
	notes string
}

type mockTasks struct {
	err     error
	created []createdTask
}

func (m *mockTasks) CreateTask(_ context.Context, task model.Task, notes string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.created = append(m.created, createdTask{task: task, notes: notes})
	return "task-id", nil
}
