package llm

import "encoding/json"

// ChatMessage is one chat-completions conversation entry.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// JSONSchemaSpec names a strict structured-output target.
type JSONSchemaSpec struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// ResponseFormat selects structured output on chat completions.
type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *JSONSchemaSpec `json:"json_schema,omitempty"`
}

// ChatCompletionRequest is the chat-completions request payload.
type ChatCompletionRequest struct {
	Model           string          `json:"model"`
	Messages        []ChatMessage   `json:"messages"`
	ResponseFormat  *ResponseFormat `json:"response_format,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
}

// ChatChoice is one chat-completions result alternative.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatUsage is chat-completions token accounting.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the chat-completions response payload.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
}

// Text returns the first choice's message content.
func (r *ChatCompletionResponse) Text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// ResponseInputItem is one responses-API input item. The same shape covers
// role messages, echoed model output items, and function_call_output
// entries; unset fields are omitted from the wire.
type ResponseInputItem struct {
	Type    string `json:"type,omitempty"`
	Role    string `json:"role,omitempty"`
	Content any    `json:"content,omitempty"`

	// function_call fields, echoed back when replaying model output
	ID        string `json:"id,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output field
	Output string `json:"output,omitempty"`

	Status string `json:"status,omitempty"`
}

// Message builds a plain role message input item.
func Message(role, content string) ResponseInputItem {
	return ResponseInputItem{Role: role, Content: content}
}

// FunctionCallOutput builds the tool-result item answering a function call.
func FunctionCallOutput(callID, output string) ResponseInputItem {
	return ResponseInputItem{Type: "function_call_output", CallID: callID, Output: output}
}

// ToolDefinition declares one callable function on a responses request.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// TextFormat selects structured output on the responses API.
type TextFormat struct {
	Format TextFormatSpec `json:"format"`
}

// TextFormatSpec is the inline json_schema format descriptor.
type TextFormatSpec struct {
	Type   string          `json:"type"`
	Name   string          `json:"name,omitempty"`
	Strict bool            `json:"strict,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// ReasoningParam carries the reasoning effort knob.
type ReasoningParam struct {
	Effort string `json:"effort"`
}

// ResponseRequest is the responses-API request payload.
type ResponseRequest struct {
	Model     string              `json:"model"`
	Input     []ResponseInputItem `json:"input"`
	Tools     []ToolDefinition    `json:"tools,omitempty"`
	Text      *TextFormat         `json:"text,omitempty"`
	Reasoning *ReasoningParam     `json:"reasoning,omitempty"`
}

// ResponseContentPart is one content fragment of an output message.
type ResponseContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ResponseOutputItem is one responses-API output item: an assistant
// message, a function call, or a reasoning trace.
type ResponseOutputItem struct {
	Type      string                `json:"type"`
	ID        string                `json:"id,omitempty"`
	Role      string                `json:"role,omitempty"`
	Content   []ResponseContentPart `json:"content,omitempty"`
	CallID    string                `json:"call_id,omitempty"`
	Name      string                `json:"name,omitempty"`
	Arguments string                `json:"arguments,omitempty"`
	Status    string                `json:"status,omitempty"`
}

// InputItem converts an output item back to the input shape for replay.
func (it ResponseOutputItem) InputItem() ResponseInputItem {
	in := ResponseInputItem{
		Type:      it.Type,
		ID:        it.ID,
		Role:      it.Role,
		CallID:    it.CallID,
		Name:      it.Name,
		Arguments: it.Arguments,
		Status:    it.Status,
	}
	if len(it.Content) > 0 {
		in.Content = it.Content
	}
	return in
}

// ResponseUsage is responses-API token accounting.
type ResponseUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the responses-API response payload.
type Response struct {
	ID     string               `json:"id"`
	Model  string               `json:"model"`
	Status string               `json:"status,omitempty"`
	Output []ResponseOutputItem `json:"output"`
	Usage  *ResponseUsage       `json:"usage,omitempty"`
}

// OutputText concatenates every output_text fragment of the response.
func (r *Response) OutputText() string {
	var out string
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				out += part.Text
			}
		}
	}
	return out
}

// FunctionCalls returns the function_call items of the response, in order.
func (r *Response) FunctionCalls() []ResponseOutputItem {
	var calls []ResponseOutputItem
	for _, item := range r.Output {
		if item.Type == "function_call" {
			calls = append(calls, item)
		}
	}
	return calls
}

// File is a provider file object.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
}

// BatchRequestCounts is per-batch request progress.
type BatchRequestCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Batch is a provider batch object.
type Batch struct {
	ID            string             `json:"id"`
	Status        string             `json:"status"`
	Endpoint      string             `json:"endpoint,omitempty"`
	InputFileID   string             `json:"input_file_id,omitempty"`
	OutputFileID  string             `json:"output_file_id,omitempty"`
	ErrorFileID   string             `json:"error_file_id,omitempty"`
	RequestCounts BatchRequestCounts `json:"request_counts"`
}
