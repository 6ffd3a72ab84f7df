package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"chispart/internal/core"
	"chispart/internal/registry"
)

const (
	anthropicAPIVersion       = "2023-06-01"
	anthropicDefaultMaxTokens = 4000
)

// anthropicAdapter speaks the anthropic_messages dialect and synthesizes
// OpenAI-shaped canonical responses.
type anthropicAdapter struct {
	desc       registry.Descriptor
	credential string
	client     *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *anthropicUsage `json:"usage"`
}

// convertRequest splits system-role contents into the top-level system
// string, preserving their relative order, and rewrites the remaining
// messages into Anthropic content blocks. max_tokens is required by the
// API and defaults to 4000.
func (a *anthropicAdapter) convertRequest(req *core.ChatRequest) (*anthropicRequest, error) {
	out := &anthropicRequest{
		Model:       req.Model,
		MaxTokens:   anthropicDefaultMaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	var system []string
	for _, msg := range req.Messages {
		if msg.Role == core.RoleSystem {
			system = append(system, msg.Content.PlainText())
			continue
		}
		content, err := convertAnthropicContent(msg.Content)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: msg.Role, Content: content})
	}
	out.System = strings.Join(system, "\n\n")
	return out, nil
}

// convertAnthropicContent maps canonical content to Anthropic's content
// value: plain strings stay strings, parts become typed blocks. Image data
// URLs are re-encoded as base64 sources.
func convertAnthropicContent(c core.Content) (json.RawMessage, error) {
	if !c.IsParts() {
		return json.Marshal(c.Text)
	}
	blocks := make([]map[string]any, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch p.Type {
		case core.PartText:
			blocks = append(blocks, map[string]any{"type": "text", "text": p.Text})
		case core.PartImageURL:
			if p.ImageURL == nil {
				continue
			}
			mime, data, ok := splitDataURL(p.ImageURL.URL)
			if !ok {
				continue
			}
			blocks = append(blocks, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": mime,
					"data":       data,
				},
			})
		}
		// File parts are dropped: the descriptor advertises no PDF support.
	}
	return json.Marshal(blocks)
}

// splitDataURL decomposes "data:<mime>;base64,<payload>".
func splitDataURL(u string) (mime, data string, ok bool) {
	rest, found := strings.CutPrefix(u, "data:")
	if !found {
		return "", "", false
	}
	mime, data, found = strings.Cut(rest, ";base64,")
	if !found {
		return "", "", false
	}
	return mime, data, true
}

// normalize builds the synthetic OpenAI-shape envelope: content is the
// ordered concatenation of text parts, finish_reason falls back to "stop".
func (a *anthropicAdapter) normalize(resp *anthropicResponse) *core.ChatResponse {
	var content strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" || c.Type == "" {
			content.WriteString(c.Text)
		}
	}
	finish := resp.StopReason
	if finish == "" {
		finish = "stop"
	}
	return &core.ChatResponse{
		ID:       resp.ID,
		Object:   "chat.completion",
		Model:    resp.Model,
		Provider: a.desc.ID,
		Choices: []core.Choice{{
			Index: 0,
			Message: core.Message{
				Role:    core.RoleAssistant,
				Content: core.TextContent(content.String()),
			},
			FinishReason: finish,
		}},
		Usage: convertAnthropicUsage(resp.Usage),
	}
}

func convertAnthropicUsage(u anthropicUsage) *core.Usage {
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return nil
	}
	return &core.Usage{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}

func (a *anthropicAdapter) buildRequest(ctx context.Context, req *core.ChatRequest) (*http.Request, error) {
	payload, err := a.convertRequest(req)
	if err != nil {
		return nil, core.NewConfigError("failed to convert request", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.NewConfigError("failed to marshal request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.desc.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, core.NewConfigError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	authorize(httpReq, a.desc, a.credential)
	return httpReq, nil
}

// Execute performs a buffered messages call and normalizes the reply.
func (a *anthropicAdapter) Execute(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
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

	var upstream anthropicResponse
	if err := json.Unmarshal(respBody, &upstream); err != nil {
		return nil, core.NewMalformedError(a.desc.ID, err)
	}
	if upstream.ID == "" && len(upstream.Content) == 0 {
		return nil, core.NewMalformedError(a.desc.ID, nil)
	}
	return a.normalize(&upstream), nil
}

// ExecuteStream decodes Anthropic's SSE event schema into canonical events:
// content_block_delta carries text, message_delta carries the final usage.
func (a *anthropicAdapter) ExecuteStream(ctx context.Context, req *core.ChatRequest) (<-chan core.StreamEvent, error) {
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
			var ev anthropicStreamEvent
			if json.Unmarshal([]byte(data), &ev) != nil {
				return true
			}
			switch ev.Type {
			case "content_block_delta":
				if ev.Delta.Text != "" {
					return emit(ctx, events, core.StreamEvent{Type: core.EventContent, Content: ev.Delta.Text})
				}
			case "message_delta":
				if ev.Usage != nil {
					usage = convertAnthropicUsage(*ev.Usage)
				}
			case "message_stop":
				return false
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
