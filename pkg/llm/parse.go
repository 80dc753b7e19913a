package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/newsdocket/docket/pkg/models"
)

// StructuredRequest describes one synchronous structured-output call.
type StructuredRequest struct {
	Model           string
	ReasoningEffort string
	SchemaName      string
	System          string
	User            string
	// CalledFrom tags the produced LMLog with the calling site.
	CalledFrom string
}

// parseMaxAttempts bounds structured-parse retries per request.
const parseMaxAttempts = 3

// ParseStructured makes a chat-completions call with a strict schema
// reflected from T and decodes the result. On transport or validation
// failure it retries up to three times with a brief backoff. The returned
// LMLog covers the last attempt.
func ParseStructured[T any](ctx context.Context, client *Client, req StructuredRequest) (*T, *models.LMLog, error) {
	schema, err := SchemaFor[T]()
	if err != nil {
		return nil, nil, fmt.Errorf("reflect schema: %w", err)
	}
	name := req.SchemaName
	if name == "" {
		name = "response"
	}

	var messages []ChatMessage
	if req.System != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: req.User})

	payload := &ChatCompletionRequest{
		Model:           req.Model,
		ReasoningEffort: req.ReasoningEffort,
		Messages:        messages,
		ResponseFormat: &ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &JSONSchemaSpec{Name: name, Strict: true, Schema: schema},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= parseMaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, time.Duration(attempt)*time.Second); err != nil {
				return nil, nil, err
			}
		}

		resp, err := client.CreateChatCompletion(ctx, payload)
		if err != nil {
			lastErr = err
			continue
		}
		log := ChatLMLog(resp, req.CalledFrom)

		var out T
		if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
			lastErr = fmt.Errorf("decode structured output: %w", err)
			continue
		}
		return &out, log, nil
	}
	return nil, nil, fmt.Errorf("structured parse failed after %d attempts: %w", parseMaxAttempts, lastErr)
}
