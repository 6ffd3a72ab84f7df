package core

import (
	"encoding/json"
	"fmt"
)

// ChatRequest is the canonical, provider-agnostic chat request. The Model
// field holds a model alias; resolution to the upstream model identifier
// happens in the dispatcher before the request reaches an adapter.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

// WithStreaming returns a shallow copy of the request with Stream set to true.
// This avoids mutating the caller's request object.
func (r *ChatRequest) WithStreaming() *ChatRequest {
	cp := *r
	cp.Stream = true
	return &cp
}

// Message is a single chat message. Content is either plain text or an
// ordered list of typed parts.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content models the OpenAI-style message content union: a plain string or
// an array of typed parts. The zero value marshals as "".
type Content struct {
	Text  string
	Parts []Part
}

// TextContent builds a plain-string content value.
func TextContent(s string) Content { return Content{Text: s} }

// PartsContent builds a multi-part content value.
func PartsContent(parts ...Part) Content { return Content{Parts: parts} }

// IsParts reports whether the content carries typed parts rather than a
// plain string.
func (c Content) IsParts() bool { return c.Parts != nil }

// PlainText flattens the content to text. Image and file parts contribute
// nothing; their payloads only travel on the wire.
func (c Content) PlainText() string {
	if c.Parts == nil {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &c.Parts)
	}
	return json.Unmarshal(data, &c.Text)
}

// Part types.
const (
	PartText     = "text"
	PartImageURL = "image_url"
	PartFile     = "file"
)

// Part is one element of a multi-part message content.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
	File     *FilePart `json:"file,omitempty"`
}

// ImageURL wraps an image reference, usually a data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// FilePart carries an attached file as base64 data plus its name.
type FilePart struct {
	Filename string `json:"filename"`
	Data     string `json:"file_data"`
}

// TextPart builds a text part.
func TextPart(s string) Part { return Part{Type: PartText, Text: s} }

// ImagePart builds an image part from a data URL.
func ImagePart(url string) Part {
	return Part{Type: PartImageURL, ImageURL: &ImageURL{URL: url}}
}

// ChatResponse is the canonical response, shaped after the OpenAI chat
// completion schema. Provider is filled in by the dispatcher.
type ChatResponse struct {
	ID       string   `json:"id"`
	Object   string   `json:"object,omitempty"`
	Model    string   `json:"model,omitempty"`
	Provider string   `json:"provider,omitempty"`
	Choices  []Choice `json:"choices"`
	Usage    *Usage   `json:"usage,omitempty"`
	Created  int64    `json:"created,omitempty"`
}

// Text returns the assistant text of the first choice, or "".
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content.PlainText()
}

// Choice is a single completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is the upstream token accounting, passed through verbatim.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
	InputTokens      int `json:"input_tokens,omitempty"`
	OutputTokens     int `json:"output_tokens,omitempty"`
}

// Stream event types.
const (
	EventContent = "content"
	EventDone    = "done"
	EventError   = "error"
)

// StreamEvent is one canonical streaming event. Content events carry a
// delta; the terminal event is either done (optionally with usage) or error.
type StreamEvent struct {
	Type    string        `json:"type"`
	Content string        `json:"chunk,omitempty"`
	Usage   *Usage        `json:"usage,omitempty"`
	Err     *GatewayError `json:"-"`
}

// MarshalJSON surfaces the error message for error events without leaking
// internal fields.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	type alias StreamEvent
	if e.Type == EventError && e.Err != nil {
		return json.Marshal(struct {
			alias
			Message string `json:"message"`
		}{alias(e), e.Err.Message})
	}
	return json.Marshal(alias(e))
}

// Roles recognized in canonical messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ValidateMessages rejects empty conversations and unknown roles before a
// request is allowed near the network.
func ValidateMessages(msgs []Message) error {
	if len(msgs) == 0 {
		return NewConfigError("messages must not be empty", nil)
	}
	for i, m := range msgs {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return NewConfigError(fmt.Sprintf("message %d has unknown role %q", i, m.Role), nil)
		}
	}
	return nil
}
