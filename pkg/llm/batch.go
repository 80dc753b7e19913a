package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/newsdocket/docket/pkg/config"
)

// ErrBatchTimeout is returned when a batch makes no progress for the idle
// timeout or exceeds the hard wall-clock cap. The batch has already been
// cancelled at the provider when this is returned.
var ErrBatchTimeout = errors.New("batch timed out without progress")

// ChatEndpoint is the batch line URL for chat-completions requests.
const ChatEndpoint = "/v1/chat/completions"

// BatchRequest is one request line of a batch input file.
type BatchRequest struct {
	CustomID string `json:"custom_id"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Body     any    `json:"body"`
}

// NewChatBatchRequest builds a chat-completions batch line.
func NewChatBatchRequest(customID string, body *ChatCompletionRequest) BatchRequest {
	return BatchRequest{CustomID: customID, Method: "POST", URL: ChatEndpoint, Body: body}
}

// BatchRecord is one output line of a completed batch, keyed by custom_id.
type BatchRecord struct {
	CustomID   string          `json:"custom_id"`
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Err        string          `json:"error,omitempty"`
}

// ChatCompletion decodes the record body as a chat-completions response.
func (r *BatchRecord) ChatCompletion() (*ChatCompletionResponse, error) {
	if r.Err != "" {
		return nil, fmt.Errorf("batch item %s failed: %s", r.CustomID, r.Err)
	}
	var resp ChatCompletionResponse
	if err := json.Unmarshal(r.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode batch item %s: %w", r.CustomID, err)
	}
	return &resp, nil
}

// Dispatcher runs bulk LLM work through the provider batch API.
type Dispatcher struct {
	client *Client
	cfg    *config.BatchConfig
	logger *slog.Logger

	// sleep is swapped out in tests
	sleep func(context.Context, time.Duration) error
}

// NewDispatcher builds a dispatcher over the client with the given batch
// settings.
func NewDispatcher(client *Client, cfg *config.BatchConfig, logger *slog.Logger) *Dispatcher {
	if cfg == nil {
		cfg = config.DefaultBatchConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "batch"),
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RunBatch serializes the requests to JSONL, uploads them, creates a batch
// and polls it to completion under the progress watchdog. Returns one record
// per output line keyed by custom_id. On watchdog expiry the batch is
// cancelled and ErrBatchTimeout returned.
func (d *Dispatcher) RunBatch(ctx context.Context, endpoint string, requests []BatchRequest) (map[string]BatchRecord, error) {
	if len(requests) == 0 {
		return map[string]BatchRecord{}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, req := range requests {
		if req.Method == "" {
			req.Method = "POST"
		}
		if req.URL == "" {
			req.URL = endpoint
		}
		if err := enc.Encode(req); err != nil {
			return nil, fmt.Errorf("encode batch line %s: %w", req.CustomID, err)
		}
	}

	file, err := d.client.UploadFile(ctx, fmt.Sprintf("batch_%d.jsonl", time.Now().Unix()), buf.Bytes(), "batch")
	if err != nil {
		return nil, fmt.Errorf("upload batch input: %w", err)
	}

	batch, err := d.client.CreateBatch(ctx, file.ID, endpoint, d.cfg.CompletionWindow,
		map[string]string{"job": "pipeline"})
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	d.logger.Info("batch submitted", "batch_id", batch.ID, "requests", len(requests))

	final, err := d.poll(ctx, batch.ID, len(requests))
	if err != nil {
		return nil, err
	}
	if final.OutputFileID == "" {
		d.logger.Warn("batch finished without output file", "batch_id", final.ID, "status", final.Status)
		return map[string]BatchRecord{}, nil
	}

	content, err := d.client.FileContent(ctx, final.OutputFileID)
	if err != nil {
		return nil, fmt.Errorf("download batch output: %w", err)
	}
	return parseBatchOutput(content)
}

// RunBatchWithFallback runs the batch and converts a watchdog timeout into a
// nil record map, so the caller can redo the same requests synchronously.
// Idempotence comes from the caller keying work by custom_id.
func (d *Dispatcher) RunBatchWithFallback(ctx context.Context, endpoint string, requests []BatchRequest, onTimeout func()) (map[string]BatchRecord, error) {
	records, err := d.RunBatch(ctx, endpoint, requests)
	if errors.Is(err, ErrBatchTimeout) {
		if onTimeout != nil {
			onTimeout()
		}
		return nil, nil
	}
	return records, err
}

// poll watches the batch until a terminal status. The idle deadline resets
// whenever the completed/total ratio advances, so a slow but moving batch is
// never killed; the hard cap bounds total wall clock regardless.
func (d *Dispatcher) poll(ctx context.Context, batchID string, expectedTotal int) (*Batch, error) {
	start := time.Now()
	lastProgress := start
	lastRatio := -1.0

	for {
		batch, err := d.client.GetBatch(ctx, batchID)
		if err != nil {
			return nil, fmt.Errorf("retrieve batch %s: %w", batchID, err)
		}

		switch batch.Status {
		case "completed", "expired", "cancelled":
			return batch, nil
		case "failed":
			return nil, fmt.Errorf("batch %s failed", batchID)
		}

		total := batch.RequestCounts.Total
		if total == 0 {
			total = expectedTotal
		}
		if total > 0 {
			ratio := float64(batch.RequestCounts.Completed) / float64(total)
			if ratio > lastRatio {
				lastRatio = ratio
				lastProgress = time.Now()
			}
		}

		now := time.Now()
		if now.Sub(start) > d.cfg.HardCap || now.Sub(lastProgress) > d.cfg.IdleTimeout {
			d.logger.Warn("cancelling stalled batch",
				"batch_id", batchID, "status", batch.Status,
				"completed", batch.RequestCounts.Completed, "total", total)
			if err := d.client.CancelBatch(ctx, batchID); err != nil {
				d.logger.Warn("failed to cancel batch", "batch_id", batchID, "error", err)
			}
			return nil, fmt.Errorf("batch %s: %w", batchID, ErrBatchTimeout)
		}

		if err := d.sleep(ctx, d.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

// batchOutputLine is the provider's batch output line shape.
type batchOutputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int             `json:"status_code"`
		Body       json.RawMessage `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseBatchOutput(content []byte) (map[string]BatchRecord, error) {
	records := map[string]BatchRecord{}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var parsed batchOutputLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			return nil, fmt.Errorf("parse batch output line: %w", err)
		}
		rec := BatchRecord{CustomID: parsed.CustomID}
		if parsed.Response != nil {
			rec.StatusCode = parsed.Response.StatusCode
			rec.Body = parsed.Response.Body
		}
		if parsed.Error != nil {
			rec.Err = parsed.Error.Message
		}
		records[parsed.CustomID] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan batch output: %w", err)
	}
	return records, nil
}
