package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/Veraticus/paperflow/internal/config"
	"github.com/Veraticus/paperflow/internal/drive"
	"github.com/Veraticus/paperflow/internal/engine"
	"github.com/Veraticus/paperflow/internal/gcal"
	"github.com/Veraticus/paperflow/internal/gemini"
	"github.com/Veraticus/paperflow/internal/googleauth"
	"github.com/Veraticus/paperflow/internal/grade"
	"github.com/Veraticus/paperflow/internal/photos"
	"github.com/Veraticus/paperflow/internal/router"

	pdfconv "github.com/Veraticus/paperflow/internal/pdf"
)

// app bundles everything a command needs after composition.
type app struct {
	settings config.Settings
	engine   *engine.SortingEngine
	vault    *drive.Vault
	gemini   *gemini.Client
}

// buildApp wires the full dependency graph: configuration, OAuth clients,
// the model router, and the sorting engine.
func buildApp(ctx context.Context) (*app, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if settings.Gemini.APIKey == "" {
		return nil, fmt.Errorf("gemini.api_key is required (or set PAPERFLOW_GEMINI_API_KEY)")
	}

	token, err := googleauth.GetOrCreateToken(ctx, settings.OAuth)
	if err != nil {
		return nil, fmt.Errorf("google authentication failed: %w", err)
	}
	httpClient := googleauth.Client(ctx, settings.OAuth, token)

	logger := slog.Default()

	vault, err := drive.New(ctx, httpClient, settings.Drive, logger)
	if err != nil {
		return nil, err
	}

	calendar, err := gcal.NewCalendar(ctx, httpClient, settings.Calendar, logger)
	if err != nil {
		return nil, err
	}

	taskList, err := gcal.NewTaskList(ctx, httpClient, settings.TaskList, logger)
	if err != nil {
		return nil, err
	}

	geminiClient, err := gemini.NewClient(ctx, settings.Gemini.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	classifier := router.New(geminiClient, settings.Gemini, settings.Grades.Children, logger)
	resolver := grade.NewResolver(settings.Grades)

	eng := engine.New(engine.Deps{
		Vault:      vault,
		Converter:  pdfconv.NewConverter(logger),
		Classifier: classifier,
		Photos:     photos.NewUploader(httpClient, logger),
		Calendar:   calendar,
		Tasks:      taskList,
	}, settings, resolver, logger)

	return &app{
		settings: settings,
		engine:   eng,
		vault:    vault,
		gemini:   geminiClient,
	}, nil
}

// Close releases resources held by the app.
func (a *app) Close() {
	if a.gemini != nil {
		if err := a.gemini.Close(); err != nil {
			slog.Warn("failed to close gemini client", "error", err)
		}
	}
}
