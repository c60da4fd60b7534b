package engine

import (
	"context"
	"fmt"

	"github.com/Veraticus/paperflow/internal/model"
)

// applySideEffects dispatches photo archival and calendar/task creation.
// Every side-effect is fire-and-forget: failures are logged and never roll
// back the filing that already happened.
func (e *SortingEngine) applySideEffects(ctx context.Context, data []byte, mimeType string, doc *model.Document, result *model.ClassificationResult, res resolution) {
	shouldArchivePhoto := result.Category == model.CategoryPhotoOther ||
		(result.Category == model.CategoryChildrenEdu && result.SubCategory == model.SubCategoryRecords)

	if e.deps.Photos != nil && shouldArchivePhoto {
		description := fmt.Sprintf("【%s】%s_%s", result.Category, result.Date, result.Summary)
		if url, err := e.deps.Photos.Upload(ctx, data, description); err != nil {
			e.logger.Warn("photo archival failed", "id", doc.ID, "error", err)
		} else {
			e.logger.Info("photo archived", "id", doc.ID, "url", url)
		}
	}

	if result.Category == model.CategoryChildrenEdu {
		e.registerSchedule(ctx, data, mimeType, doc, result, res)
	}
}

// registerSchedule re-invokes the analysis router for a structured
// events/tasks extraction and creates the results on the calendar and task
// list. Each item is independent; one failure does not block the others.
func (e *SortingEngine) registerSchedule(ctx context.Context, data []byte, mimeType string, doc *model.Document, result *model.ClassificationResult, res resolution) {
	if e.deps.Calendar == nil && e.deps.Tasks == nil {
		return
	}

	schedule, err := e.deps.Classifier.ExtractSchedule(ctx, data, mimeType, doc.Name, e.deps.Clock())
	if err != nil {
		e.logger.Warn("schedule extraction failed", "id", doc.ID, "error", err)
		return
	}
	if schedule == nil || schedule.Empty() {
		e.logger.Info("no events or tasks extracted", "id", doc.ID)
		return
	}

	prefix := e.titlePrefix(result, res)
	notes := fmt.Sprintf("📎 元のお便り: %s", doc.WebLink)

	if e.deps.Calendar != nil {
		for _, event := range schedule.Events {
			event.Title = prefix + event.Title
			if _, err := e.deps.Calendar.CreateEvent(ctx, event, notes); err != nil {
				e.logger.Warn("event creation failed", "title", event.Title, "error", err)
			} else {
				e.logger.Info("event created", "title", event.Title, "date", event.Date)
			}
		}
	}

	if e.deps.Tasks != nil {
		for _, task := range mergeTasksByDueDate(schedule.Tasks) {
			task.Title = prefix + task.Title
			taskNotes := notes
			if task.Notes != "" {
				taskNotes += "\n\n" + task.Notes
			}
			if _, err := e.deps.Tasks.CreateTask(ctx, task, taskNotes); err != nil {
				e.logger.Warn("task creation failed", "title", task.Title, "error", err)
			} else {
				e.logger.Info("task created", "title", task.Title, "due", task.DueDate)
			}
		}
	}
}

// titlePrefix picks the bracketed label for created events and tasks.
// Priority: shared-group emoji, then the first child's grade label, then
// the grade emoji, then the bare child name. A readable textual label
// beats a glyph, and a glyph beats a name nobody else knows.
func (e *SortingEngine) titlePrefix(result *model.ClassificationResult, res resolution) string {
	if res.groupEmoji != "" {
		return fmt.Sprintf("[%s] ", res.groupEmoji)
	}

	if len(res.children) > 0 {
		child := res.children[0]
		label, emoji := e.resolver.GradeLabel(e.resolver.GradeCode(child, res.fiscalYear))
		if label != "" {
			return fmt.Sprintf("[%s] ", label)
		}
		if emoji != "" {
			return fmt.Sprintf("[%s] ", emoji)
		}
		return fmt.Sprintf("[%s] ", child)
	}

	if result.ChildName != "" {
		return fmt.Sprintf("[%s] ", result.ChildName)
	}
	return ""
}

// mergeTasksByDueDate folds tasks sharing a due date into a single task so
// one letter does not spawn five same-day reminders. Titles join with
// " / "; notes concatenate. Input order of first appearance is kept.
func mergeTasksByDueDate(tasks []model.Task) []model.Task {
	merged := make(map[string]*model.Task)
	var order []string

	for _, task := range tasks {
		if existing, ok := merged[task.DueDate]; ok {
			existing.Title += " / " + task.Title
			if task.Notes != "" {
				if existing.Notes != "" {
					existing.Notes += "\n"
				}
				existing.Notes += task.Notes
			}
			continue
		}
		t := task
		merged[task.DueDate] = &t
		order = append(order, task.DueDate)
	}

	out := make([]model.Task, 0, len(order))
	for _, due := range order {
		out = append(out, *merged[due])
	}
	return out
}
