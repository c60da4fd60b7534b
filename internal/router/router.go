// Package router implements the confidence-gated two-tier analysis router.
// Every document is classified on the low-cost model tier first; only a
// null or low-confidence result escalates to the high-fidelity tier, and
// the high tier's answer is final whatever its own confidence.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/paperflow/internal/config"
	"github.com/Veraticus/paperflow/internal/model"
)

// ModelCaller is a single vision-model invocation against a named tier.
// It returns the raw response text; the router owns parsing and validation.
type ModelCaller interface {
	Generate(ctx context.Context, modelName string, data []byte, mimeType, prompt string) (string, error)
}

// Router routes analysis requests across the two model tiers.
type Router struct {
	caller   ModelCaller
	logger   *slog.Logger
	children []config.Child
	cfg      config.GeminiSettings
}

// New creates a Router. The children table is only used to embed the
// alias-normalization rules into the classification prompt.
func New(caller ModelCaller, cfg config.GeminiSettings, children []config.Child, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		caller:   caller,
		cfg:      cfg,
		children: children,
		logger:   logger,
	}
}

// tierResult is one tier's parsed output. confident gates escalation:
// classification results carry their own confidence score, schedule
// extraction is confident whenever it parses.
type tierResult[T any] struct {
	value     *T
	confident bool
}

// escalate runs call on the low tier and, when the result is null or not
// confident, once more on the high tier. The high tier's outcome is
// returned as-is; there is no third tier.
func escalate[T any](ctx context.Context, r *Router, what string, call func(ctx context.Context, modelName string) (tierResult[T], error)) (*T, error) {
	low, err := call(ctx, r.cfg.FlashModel)
	if err != nil {
		r.logger.Warn("low tier call failed",
			"operation", what,
			"model", r.cfg.FlashModel,
			"error", err)
	}

	if low.value != nil && low.confident {
		return low.value, nil
	}

	if !r.cfg.EnableEscalation {
		return low.value, err
	}

	high, highErr := call(ctx, r.cfg.ProModel)
	if highErr != nil {
		r.logger.Warn("high tier call failed",
			"operation", what,
			"model", r.cfg.ProModel,
			"error", highErr)
		return nil, highErr
	}
	return high.value, nil
}

// Classify analyzes one document image and returns a validated
// classification, or nil when every tier failed. A nil result is a valid,
// non-fatal outcome the caller must handle.
func (r *Router) Classify(ctx context.Context, data []byte, mimeType, fileName string) (*model.ClassificationResult, error) {
	prompt := r.classificationPrompt(fileName)

	result, err := escalate(ctx, r, "classify", func(ctx context.Context, modelName string) (tierResult[model.ClassificationResult], error) {
		text, err := r.caller.Generate(ctx, modelName, data, mimeType, prompt)
		if err != nil {
			return tierResult[model.ClassificationResult]{}, err
		}

		var parsed model.ClassificationResult
		if err := json.Unmarshal([]byte(stripFences(text)), &parsed); err != nil {
			return tierResult[model.ClassificationResult]{}, fmt.Errorf("failed to parse classification JSON: %w", err)
		}
		if err := parsed.Validate(); err != nil {
			return tierResult[model.ClassificationResult]{}, fmt.Errorf("invalid classification: %w", err)
		}

		return tierResult[model.ClassificationResult]{
			value:     &parsed,
			confident: parsed.ConfidenceScore >= r.cfg.ConfidenceThreshold,
		}, nil
	})
	if err != nil && result == nil {
		return nil, err
	}

	if result != nil {
		r.logger.Info("document classified",
			"file", fileName,
			"category", result.Category,
			"confidence", result.ConfidenceScore)
	}
	return result, nil
}

// ExtractSchedule pulls dated events and tasks out of one document. It
// shares the escalation policy with Classify; there is no confidence score
// here, so only a failed or unparseable low-tier call escalates.
func (r *Router) ExtractSchedule(ctx context.Context, data []byte, mimeType, fileName string, today time.Time) (*model.Schedule, error) {
	prompt := schedulePrompt(fileName, today)

	schedule, err := escalate(ctx, r, "extract_schedule", func(ctx context.Context, modelName string) (tierResult[model.Schedule], error) {
		text, err := r.caller.Generate(ctx, modelName, data, mimeType, prompt)
		if err != nil {
			return tierResult[model.Schedule]{}, err
		}

		var parsed model.Schedule
		if err := json.Unmarshal([]byte(stripFences(text)), &parsed); err != nil {
			return tierResult[model.Schedule]{}, fmt.Errorf("failed to parse schedule JSON: %w", err)
		}

		return tierResult[model.Schedule]{value: &parsed, confident: true}, nil
	})
	if err != nil && schedule == nil {
		return nil, err
	}

	if schedule != nil {
		r.logger.Info("schedule extracted",
			"file", fileName,
			"events", len(schedule.Events),
			"tasks", len(schedule.Tasks))
	}
	return schedule, nil
}

// stripFences removes a markdown code fence the model sometimes wraps its
// JSON in, despite being asked for bare JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
