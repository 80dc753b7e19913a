// Package llm is the typed client for OpenAI-compatible providers plus the
// two dispatch modes the pipeline uses: bulk asynchronous batches with a
// progress watchdog, and synchronous per-item structured parsing.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newsdocket/docket/pkg/config"
)

// Client speaks the OpenAI-compatible HTTP surface of one provider.
type Client struct {
	baseURL      string
	apiKey       string
	defaultModel string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient builds a client for the given provider configuration.
func NewClient(provider *config.LLMProviderConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(provider.BaseURL, "/"),
		apiKey:       provider.APIKey(),
		defaultModel: provider.DefaultModel,
		httpClient:   &http.Client{Timeout: 5 * time.Minute},
		logger:       logger.With("component", "llm"),
	}
}

// apiError is the provider error envelope.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		var ae apiError
		if json.Unmarshal(data, &ae) == nil && ae.Error.Message != "" {
			return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, ae.Error.Message)
		}
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = data
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", out)
}

// CreateChatCompletion calls the chat-completions endpoint. A request that
// names no model uses the provider's default.
func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.defaultModel
	}
	var resp ChatCompletionResponse
	if err := c.postJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateResponse calls the responses endpoint. A request that names no
// model uses the provider's default.
func (c *Client) CreateResponse(ctx context.Context, req *ResponseRequest) (*Response, error) {
	if req.Model == "" {
		req.Model = c.defaultModel
	}
	var resp Response
	if err := c.postJSON(ctx, "/responses", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadFile uploads content under the given purpose (multipart form).
func (c *Client) UploadFile(ctx context.Context, filename string, content []byte, purpose string) (*File, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", purpose); err != nil {
		return nil, fmt.Errorf("write purpose field: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("write file content: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	var f File
	if err := c.do(ctx, http.MethodPost, "/files", &buf, w.FormDataContentType(), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// FileContent downloads a file's raw bytes.
func (c *Client) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte
	path := "/files/" + url.PathEscape(fileID) + "/content"
	if err := c.do(ctx, http.MethodGet, path, nil, "", &data); err != nil {
		return nil, err
	}
	return data, nil
}

// CreateBatch submits a batch over an uploaded JSONL input file.
func (c *Client) CreateBatch(ctx context.Context, inputFileID, endpoint, completionWindow string, metadata map[string]string) (*Batch, error) {
	payload := map[string]any{
		"input_file_id":     inputFileID,
		"endpoint":          endpoint,
		"completion_window": completionWindow,
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}
	var b Batch
	if err := c.postJSON(ctx, "/batches", payload, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBatch retrieves a batch's current status and request counts.
func (c *Client) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	var b Batch
	if err := c.do(ctx, http.MethodGet, "/batches/"+url.PathEscape(batchID), nil, "", &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelBatch asks the provider to cancel a running batch.
func (c *Client) CancelBatch(ctx context.Context, batchID string) error {
	path := "/batches/" + url.PathEscape(batchID) + "/cancel"
	return c.do(ctx, http.MethodPost, path, nil, "application/json", nil)
}
