package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"chispart/internal/core"
	"chispart/internal/registry"
)

// openAIAdapter speaks the openai_chat dialect: OpenAI itself plus every
// OpenAI-compatible provider (blackbox, groq, together, qwen, gemini
// compat mode, codestral).
type openAIAdapter struct {
	desc       registry.Descriptor
	credential string
	client     *http.Client
}

// openAIRequest is the wire payload. Messages pass through verbatim.
type openAIRequest struct {
	Model       string         `json:"model"`
	Messages    []core.Message `json:"messages"`
	Stream      bool           `json:"stream,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
}

func (a *openAIAdapter) buildRequest(ctx context.Context, req *core.ChatRequest) (*http.Request, error) {
	payload := openAIRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.NewConfigError("failed to marshal request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.desc.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, core.NewConfigError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	authorize(httpReq, a.desc, a.credential)
	return httpReq, nil
}

// Execute performs a buffered chat completion. The upstream response is
// already canonical-shaped, so this is a passthrough decode.
func (a *openAIAdapter) Execute(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	httpReq, err := a.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyCallError(a.desc.ID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyCallError(a.desc.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.ClassifyStatus(a.desc.ID, resp.StatusCode, respBody)
	}

	var out core.ChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, core.NewMalformedError(a.desc.ID, err)
	}
	if len(out.Choices) == 0 {
		return nil, core.NewMalformedError(a.desc.ID, nil)
	}
	out.Provider = a.desc.ID
	if out.Model == "" {
		out.Model = req.Model
	}
	return &out, nil
}

// ExecuteStream performs a streaming chat completion and decodes the SSE
// body into canonical events.
func (a *openAIAdapter) ExecuteStream(ctx context.Context, req *core.ChatRequest) (<-chan core.StreamEvent, error) {
	httpReq, err := a.buildRequest(ctx, req.WithStreaming())
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyCallError(a.desc.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			respBody = nil
		}
		_ = resp.Body.Close()
		return nil, core.ClassifyStatus(a.desc.ID, resp.StatusCode, respBody)
	}

	events := make(chan core.StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		var usage *core.Usage
		err := scanSSE(resp.Body, func(data string) bool {
			if data == sseDone {
				return false
			}
			if !gjson.Valid(data) {
				// Malformed heartbeat lines must not abort the stream.
				return true
			}
			// Some providers attach usage to the final chunk when asked.
			if u := gjson.Get(data, "usage"); u.Exists() && u.IsObject() {
				var parsed core.Usage
				if json.Unmarshal([]byte(u.Raw), &parsed) == nil {
					usage = &parsed
				}
			}
			if content := gjson.Get(data, "choices.0.delta.content"); content.Exists() && content.String() != "" {
				if !emit(ctx, events, core.StreamEvent{Type: core.EventContent, Content: content.String()}) {
					return false
				}
			}
			return true
		})
		if err != nil && ctx.Err() == nil {
			emit(ctx, events, core.StreamEvent{Type: core.EventError, Err: classifyCallError(a.desc.ID, err)})
			return
		}
		if ctx.Err() != nil {
			return
		}
		emit(ctx, events, core.StreamEvent{Type: core.EventDone, Usage: usage})
	}()
	return events, nil
}
