// Package photos archives images to Google Photos. The Photos Library API
// has no generated Go client, so the two-stage upload protocol (raw bytes,
// then media item creation) is spoken directly over HTTP.
package photos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const (
	uploadURL      = "https://photoslibrary.googleapis.com/v1/uploads"
	batchCreateURL = "https://photoslibrary.googleapis.com/v1/mediaItems:batchCreate"
)

// Uploader implements service.PhotoUploader.
type Uploader struct {
	client *http.Client
	logger *slog.Logger
}

// NewUploader creates an Uploader. The client must carry OAuth credentials
// with the photoslibrary append scope.
func NewUploader(client *http.Client, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{client: client, logger: logger}
}

// Upload archives one image with the given description and returns the
// product URL of the created media item.
func (u *Uploader) Upload(ctx context.Context, data []byte, description string) (string, error) {
	token, err := u.uploadBytes(ctx, data)
	if err != nil {
		return "", fmt.Errorf("byte upload failed: %w", err)
	}

	url, err := u.createMediaItem(ctx, token, description)
	if err != nil {
		return "", fmt.Errorf("media item creation failed: %w", err)
	}

	u.logger.Info("photo uploaded", "description", description)
	return url, nil
}

func (u *Uploader) uploadBytes(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Goog-Upload-Content-Type", "image/jpeg")
	req.Header.Set("X-Goog-Upload-Protocol", "raw")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload failed: %s - %s", resp.Status, string(body))
	}

	// The response body is the upload token verbatim.
	return string(body), nil
}

func (u *Uploader) createMediaItem(ctx context.Context, uploadToken, description string) (string, error) {
	payload := map[string]any{
		"newMediaItems": []map[string]any{
			{
				"description": description,
				"simpleMediaItem": map[string]string{
					"uploadToken": uploadToken,
				},
			},
		},
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, batchCreateURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("batch create request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read batch create response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("batch create failed: %s - %s", resp.Status, string(body))
	}

	var result struct {
		NewMediaItemResults []struct {
			Status struct {
				Message string `json:"message"`
			} `json:"status"`
			MediaItem struct {
				ProductURL string `json:"productUrl"`
			} `json:"mediaItem"`
		} `json:"newMediaItemResults"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode batch create response: %w", err)
	}
	if len(result.NewMediaItemResults) == 0 {
		return "", fmt.Errorf("batch create returned no results")
	}

	item := result.NewMediaItemResults[0]
	if item.MediaItem.ProductURL == "" {
		return "", fmt.Errorf("media item rejected: %s", item.Status.Message)
	}
	return item.MediaItem.ProductURL, nil
}
