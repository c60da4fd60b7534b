// Package engine implements the per-document sorting pipeline: classify,
// resolve identity, route to a destination, rename, move, and dispatch
// side-effects. One invocation processes exactly one document start to
// finish; the only state shared across invocations is the immutable
// configuration and an in-flight guard.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/paperflow/internal/config"
	"github.com/Veraticus/paperflow/internal/grade"
	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/service"
)

// Deps holds the collaborators the engine is composed from. Photos,
// Calendar and TaskList may be nil; the corresponding side-effects are
// then skipped. Clock defaults to time.Now.
type Deps struct {
	Vault      service.Vault
	Converter  service.Converter
	Classifier service.Classifier
	Photos     service.PhotoUploader
	Calendar   service.Calendar
	Tasks      service.TaskList
	Clock      func() time.Time
}

// SortingEngine orchestrates one document's lifecycle.
type SortingEngine struct {
	deps     Deps
	resolver *grade.Resolver
	settings config.Settings
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a sorting engine with the given dependencies.
func New(deps Deps, settings config.Settings, resolver *grade.Resolver, logger *slog.Logger) *SortingEngine {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SortingEngine{
		deps:     deps,
		resolver: resolver,
		settings: settings,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

// resolution carries the children/education identity refinement between
// the routing and side-effect steps.
type resolution struct {
	folder     string
	label      string
	groupEmoji string // set only when a shared group matched
	children   []string
	fiscalYear int
}

// Process runs the full pipeline for one document id. It never panics
// across a document; every failure collapses into the returned outcome.
// The error carries detail for StatusError outcomes and is nil otherwise.
func (e *SortingEngine) Process(ctx context.Context, id string) (model.Outcome, error) {
	outcome := model.Outcome{Status: model.StatusError}

	// Concurrent deliveries of the same file id are common with webhook
	// triggers; only one invocation may own a document at a time.
	if !e.acquire(id) {
		e.logger.Info("document already being processed, skipping", "id", id)
		outcome.Status = model.StatusSkipped
		return outcome, nil
	}
	defer e.release(id)

	doc, err := e.deps.Vault.GetDocument(ctx, id)
	if err != nil {
		return outcome, fmt.Errorf("failed to fetch document metadata: %w", err)
	}
	outcome.Document = *doc

	if inbox := e.settings.Drive.InboxFolderID; inbox != "" && !hasParent(doc, inbox) {
		e.logger.Info("document is outside the inbox, skipping", "id", id, "name", doc.Name)
		outcome.Status = model.StatusSkipped
		return outcome, nil
	}

	if processed, err := e.deps.Vault.IsProcessed(ctx, id); err == nil && processed {
		e.logger.Info("document already processed, skipping", "id", id, "name", doc.Name)
		outcome.Status = model.StatusSkipped
		return outcome, nil
	}

	if !supportedMime(doc.MimeType) {
		e.logger.Info("unsupported mime type, skipping", "id", id, "mime_type", doc.MimeType)
		outcome.Status = model.StatusSkipped
		return outcome, nil
	}

	e.logger.Info("processing document", "id", id, "name", doc.Name, "mime_type", doc.MimeType)

	data, err := e.deps.Vault.Download(ctx, id)
	if err != nil {
		return outcome, fmt.Errorf("download failed: %w", err)
	}

	mimeType := doc.MimeType
	if mimeType == "application/pdf" {
		data, mimeType, err = e.deps.Converter.FirstPage(data, mimeType)
		if err != nil {
			return outcome, fmt.Errorf("pdf conversion failed: %w", err)
		}
	}

	result, err := e.deps.Classifier.Classify(ctx, data, mimeType, doc.Name)
	if err != nil || result == nil {
		return outcome, fmt.Errorf("classification produced no result: %w", err)
	}
	outcome.Category = result.Category

	var res resolution
	if result.Category == model.CategoryChildrenEdu {
		res = e.resolveChildren(result)
	}

	destination, segments, err := e.destinationFolder(ctx, result, res)
	if err != nil {
		return outcome, fmt.Errorf("failed to resolve destination folder: %w", err)
	}
	outcome.Destination = segments

	newName := e.newFileName(result, doc.Name)
	outcome.NewName = newName

	// Rename failure leaves the original name in place; the move still
	// files the document correctly.
	if err := e.deps.Vault.Rename(ctx, id, newName); err != nil {
		e.logger.Warn("rename failed", "id", id, "new_name", newName, "error", err)
	}

	if err := e.deps.Vault.Move(ctx, id, destination); err != nil {
		return outcome, fmt.Errorf("move failed: %w", err)
	}

	// Mark only once the document is filed. A run that fails earlier
	// leaves the document unmarked so a redelivery or sweep retries it;
	// concurrent deliveries of an in-progress document are already
	// deduplicated by the in-flight guard.
	if err := e.deps.Vault.MarkProcessed(ctx, id); err != nil {
		e.logger.Warn("failed to set processed marker", "id", id, "error", err)
	}

	e.logger.Info("document filed",
		"id", id,
		"name", doc.Name,
		"new_name", newName,
		"category", result.Category,
		"destination", strings.Join(segments, "/"))

	e.applySideEffects(ctx, data, mimeType, doc, result, res)

	outcome.Status = model.StatusProcessed
	return outcome, nil
}

func (e *SortingEngine) acquire(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[id] {
		return false
	}
	e.inFlight[id] = true
	return true
}

func (e *SortingEngine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
}

// resolveChildren refines the classification for the children/education
// category: fiscal year from the classified date, identity from the child
// name or the free-text grade/class description, and the shared-group
// folder for multi-child documents.
func (e *SortingEngine) resolveChildren(result *model.ClassificationResult) resolution {
	res := resolution{
		fiscalYear: e.resolver.FiscalYear(result.Date, e.deps.Clock()),
	}

	if result.ChildName != "" {
		if canonical := e.resolver.NormalizeIdentity(result.ChildName); canonical != "" {
			res.children = []string{canonical}
		} else {
			e.logger.Warn("classified child name matches no known identity",
				"child_name", result.ChildName)
		}
	}
	if len(res.children) == 0 && result.TargetGradeClass != "" {
		res.children = e.resolver.IdentifyChildren(result.TargetGradeClass, res.fiscalYear)
	}

	if len(res.children) > 0 {
		res.folder, res.label, res.groupEmoji = e.resolver.ResolveFolder(res.children)
		e.logger.Debug("resolved children",
			"children", res.children,
			"folder", res.folder,
			"label", res.label,
			"fiscal_year", res.fiscalYear)

		// Graduation is observed but deliberately does not change routing.
		if e.resolver.IsGraduated(res.children[0], res.fiscalYear) {
			e.logger.Info("child is past graduation grade",
				"child", res.children[0],
				"fiscal_year", res.fiscalYear)
		}
	}

	return res
}

// sharedFolderName is where children/education documents land when no
// child could be identified.
const sharedFolderName = "共通・学校全般"

// destinationFolder computes the destination folder id plus the ordered
// segment list it corresponds to. The segments are created top-down as
// needed; the routing decision itself touches no external state.
func (e *SortingEngine) destinationFolder(ctx context.Context, result *model.ClassificationResult, res resolution) (string, []string, error) {
	drive := e.settings.Drive

	if result.IsPhoto || result.Category == model.CategoryPhotoOther {
		return drive.PhotoFolderID, []string{string(model.CategoryPhotoOther)}, nil
	}

	if result.Category == model.CategoryChildrenEdu {
		folder := res.folder
		if folder == "" {
			folder = sharedFolderName
		}
		sub := result.SubCategory
		if sub == "" {
			sub = model.SubCategoryNewsletter
		}
		segments := []string{
			folder,
			fmt.Sprintf("%d年度", res.fiscalYear),
			string(sub),
		}
		id, err := e.deps.Vault.EnsureFolderPath(ctx, drive.ChildrenFolderID, segments)
		if err != nil {
			return "", nil, err
		}
		return id, append([]string{string(model.CategoryChildrenEdu)}, segments...), nil
	}

	if id, ok := drive.CategoryFolders[string(result.Category)]; ok {
		return id, []string{string(result.Category)}, nil
	}
	return drive.PhotoFolderID, []string{string(model.CategoryPhotoOther)}, nil
}

// newFileName is {date}_{summary}.{original extension or pdf}.
func (e *SortingEngine) newFileName(result *model.ClassificationResult, originalName string) string {
	date := result.Date
	if date == "" {
		date = e.deps.Clock().Format("20060102")
	}
	summary := result.Summary
	if summary == "" {
		summary = "document"
	}

	extension := "pdf"
	if idx := strings.LastIndex(originalName, "."); idx >= 0 && idx < len(originalName)-1 {
		extension = originalName[idx+1:]
	}

	return fmt.Sprintf("%s_%s.%s", date, summary, extension)
}

func hasParent(doc *model.Document, folderID string) bool {
	for _, p := range doc.Parents {
		if p == folderID {
			return true
		}
	}
	return false
}

func supportedMime(mimeType string) bool {
	for _, supported := range config.SupportedMimeTypes {
		if mimeType == supported {
			return true
		}
	}
	return false
}
