// Package drive implements the document vault on top of the Google Drive
// API: metadata reads, content downloads with retry, renames, moves, and
// on-demand folder hierarchy creation.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Veraticus/paperflow/internal/common"
	"github.com/Veraticus/paperflow/internal/config"
	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/service"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"

	// processedKey marks a file as handled so webhook re-deliveries and
	// overlapping batch runs do not file the same document twice.
	processedKey = "paperflowProcessed"
)

// Vault is a Drive-backed implementation of service.Vault.
type Vault struct {
	svc    *drive.Service
	cfg    config.DriveSettings
	logger *slog.Logger

	// folder lookups race when several documents create the same fiscal
	// year folder at once; the cache plus the mutex serialize them.
	folderMu    sync.Mutex
	folderCache map[string]string
}

// New creates a Vault from an authenticated HTTP client.
func New(ctx context.Context, client *http.Client, cfg config.DriveSettings, logger *slog.Logger) (*Vault, error) {
	svc, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{
		svc:         svc,
		cfg:         cfg,
		logger:      logger,
		folderCache: make(map[string]string),
	}, nil
}

// GetDocument fetches the metadata the pipeline routes on.
func (v *Vault) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	file, err := v.svc.Files.Get(id).
		Fields("id, name, mimeType, parents, webViewLink, appProperties").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}

	return &model.Document{
		ID:       file.Id,
		Name:     file.Name,
		MimeType: file.MimeType,
		Parents:  file.Parents,
		WebLink:  file.WebViewLink,
	}, nil
}

// Download fetches the file content, retrying transient failures with
// doubling backoff. Client errors other than rate limiting abort
// immediately.
func (v *Vault) Download(ctx context.Context, id string) ([]byte, error) {
	timeout := v.cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var data []byte
	err := common.WithRetry(ctx, func() error {
		resp, err := v.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
		if err != nil {
			return classifyDriveError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read file content: %w", err)
		}
		return nil
	}, service.RetryOptions{
		MaxAttempts:  v.cfg.MaxDownloadAttempts,
		InitialDelay: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("download of %s failed: %w", id, err)
	}

	v.logger.Debug("downloaded file", "id", id, "bytes", len(data))
	return data, nil
}

// Rename changes only the file name.
func (v *Vault) Rename(ctx context.Context, id, newName string) error {
	_, err := v.svc.Files.Update(id, &drive.File{Name: newName}).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to rename file %s: %w", id, err)
	}
	return nil
}

// Move reparents the file into folderID, removing all current parents.
func (v *Vault) Move(ctx context.Context, id, folderID string) error {
	file, err := v.svc.Files.Get(id).
		Fields("parents").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to get parents of %s: %w", id, err)
	}

	call := v.svc.Files.Update(id, nil).
		AddParents(folderID).
		Fields("id, parents").
		SupportsAllDrives(true).
		Context(ctx)
	if len(file.Parents) > 0 {
		call = call.RemoveParents(file.Parents[0])
	}

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("failed to move file %s: %w", id, err)
	}
	return nil
}

// EnsureFolderPath walks the segments under parentID top-down, creating
// each missing folder, and returns the innermost folder id.
func (v *Vault) EnsureFolderPath(ctx context.Context, parentID string, segments []string) (string, error) {
	current := parentID
	for _, segment := range segments {
		id, err := v.getOrCreateFolder(ctx, current, segment)
		if err != nil {
			return "", fmt.Errorf("failed to ensure folder %q: %w", segment, err)
		}
		current = id
	}
	return current, nil
}

// IsProcessed reports whether the processed marker is set on the file.
func (v *Vault) IsProcessed(ctx context.Context, id string) (bool, error) {
	file, err := v.svc.Files.Get(id).
		Fields("appProperties").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return false, fmt.Errorf("failed to read properties of %s: %w", id, err)
	}
	return file.AppProperties[processedKey] == "true", nil
}

// MarkProcessed sets the processed marker on the file.
func (v *Vault) MarkProcessed(ctx context.Context, id string) error {
	_, err := v.svc.Files.Update(id, &drive.File{
		AppProperties: map[string]string{processedKey: "true"},
	}).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to mark %s processed: %w", id, err)
	}
	return nil
}

// ListInbox returns the documents currently sitting in the inbox folder.
func (v *Vault) ListInbox(ctx context.Context, limit int) ([]*model.Document, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false and mimeType != '%s'",
		v.cfg.InboxFolderID, folderMimeType)

	var docs []*model.Document
	pageToken := ""
	for {
		call := v.svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, parents, webViewLink)").
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list inbox: %w", err)
		}

		for _, f := range list.Files {
			docs = append(docs, &model.Document{
				ID:       f.Id,
				Name:     f.Name,
				MimeType: f.MimeType,
				Parents:  f.Parents,
				WebLink:  f.WebViewLink,
			})
			if limit > 0 && len(docs) >= limit {
				return docs, nil
			}
		}

		if list.NextPageToken == "" {
			return docs, nil
		}
		pageToken = list.NextPageToken
	}
}

func (v *Vault) getOrCreateFolder(ctx context.Context, parentID, name string) (string, error) {
	cacheKey := parentID + ":" + name

	v.folderMu.Lock()
	defer v.folderMu.Unlock()

	if id, ok := v.folderCache[cacheKey]; ok {
		return id, nil
	}

	query := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false",
		name, parentID, folderMimeType)
	list, err := v.svc.Files.List().
		Q(query).
		Fields("files(id, name)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("folder search failed: %w", err)
	}

	if len(list.Files) > 0 {
		v.folderCache[cacheKey] = list.Files[0].Id
		return list.Files[0].Id, nil
	}

	created, err := v.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("folder creation failed: %w", err)
	}

	v.logger.Info("created folder", "name", name, "id", created.Id, "parent", parentID)
	v.folderCache[cacheKey] = created.Id
	return created.Id, nil
}

// classifyDriveError marks 4xx responses (except 429) non-retryable so a
// permission error does not burn the whole backoff schedule.
func classifyDriveError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) &&
		apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return &common.RetryableError{Err: err, Retryable: false}
	}
	return err
}
