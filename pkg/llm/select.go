package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/models"
)

// selectorResponse is the structured target of the difficulty grading call.
type selectorResponse struct {
	Quality string `json:"quality" jsonschema:"required,enum=high,enum=medium,enum=low,description=Model quality level for the task"`
}

// SelectModel grades the task with one cheap structured call and resolves
// the model table row for it. Any failure falls back to the track's medium
// entry; selection never blocks the pipeline.
func SelectModel(ctx context.Context, client *Client, cfg *config.ModelsConfig, track config.TaskTrack, prompt string, logger *slog.Logger) (config.ModelChoice, *models.LMLog) {
	if logger == nil {
		logger = slog.Default()
	}

	parsed, log, err := ParseStructured[selectorResponse](ctx, client, StructuredRequest{
		Model:      cfg.Selector,
		SchemaName: "selector_response",
		CalledFrom: "model_select",
		System: "You are a model selection assistant. Given a task description, you will " +
			"select the appropriate model quality level for the task from the following " +
			"options: high, medium, low. Respond with only one of these options.",
		User: fmt.Sprintf("Task description: %s\n\nBased on the above task description, "+
			"select the appropriate model quality level (high, medium, low) for a %s task.",
			prompt, track),
	})
	if err != nil {
		logger.Warn("model selection failed, using medium", "track", track, "error", err)
		return cfg.Choose(track, config.DifficultyMedium), nil
	}

	difficulty := config.Difficulty(parsed.Quality)
	if !difficulty.IsValid() {
		difficulty = config.DifficultyMedium
	}
	return cfg.Choose(track, difficulty), log
}
