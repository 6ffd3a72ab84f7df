package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chispart/internal/core"
	"chispart/internal/registry"
)

func anthropicDescriptor(baseURL string) registry.Descriptor {
	return registry.Descriptor{
		ID:      "anthropic",
		BaseURL: baseURL,
		Auth:    registry.AuthXAPIKey,
		Dialect: registry.DialectAnthropicMessages,
	}
}

func TestAnthropicConvertRequest(t *testing.T) {
	a := &anthropicAdapter{desc: anthropicDescriptor("")}
	req := &core.ChatRequest{
		Model: "claude-3-5-sonnet-20241022",
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: core.TextContent("be brief")},
			{Role: core.RoleUser, Content: core.TextContent("hola")},
			{Role: core.RoleSystem, Content: core.TextContent("in spanish")},
		},
	}
	wire, err := a.convertRequest(req)
	if err != nil {
		t.Fatal(err)
	}

	// System messages concatenate in order; none remain in messages.
	if wire.System != "be brief\n\nin spanish" {
		t.Errorf("system = %q", wire.System)
	}
	if len(wire.Messages) != 1 || wire.Messages[0].Role != core.RoleUser {
		t.Errorf("messages = %+v", wire.Messages)
	}
	if wire.MaxTokens != anthropicDefaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", wire.MaxTokens, anthropicDefaultMaxTokens)
	}

	limit := 512
	req.MaxTokens = &limit
	wire, err = a.convertRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if wire.MaxTokens != 512 {
		t.Errorf("explicit max_tokens = %d", wire.MaxTokens)
	}
}

func TestAnthropicImageContentConversion(t *testing.T) {
	content := core.PartsContent(
		core.TextPart("what is this"),
		core.ImagePart("data:image/png;base64,QUJD"),
	)
	raw, err := convertAnthropicContent(content)
	if err != nil {
		t.Fatal(err)
	}
	var blocks []map[string]any
	if err := json.Unmarshal(raw, &blocks); err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks = %+v", blocks)
	}
	source, ok := blocks[1]["source"].(map[string]any)
	if !ok {
		t.Fatalf("image block = %+v", blocks[1])
	}
	if source["type"] != "base64" || source["media_type"] != "image/png" || source["data"] != "QUJD" {
		t.Errorf("source = %+v", source)
	}
}

func TestAnthropicExecute(t *testing.T) {
	var gotPath, gotKey, gotVersion, gotAuth string
	var gotBody []byte

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type":"text","text":"Hola, "},{"type":"text","text":"mundo"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens":10,"output_tokens":5}
		}`))
	}))
	defer ts.Close()

	adapter := New(anthropicDescriptor(ts.URL), "sk-ant-test", ts.Client())
	resp, err := adapter.Execute(context.Background(), &core.ChatRequest{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []core.Message{{Role: core.RoleUser, Content: core.TextContent("hola")}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/v1/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "sk-ant-test" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion != anthropicAPIVersion {
		t.Errorf("anthropic-version = %q", gotVersion)
	}
	if gotAuth != "" {
		t.Errorf("anthropic must not get a bearer header, got %q", gotAuth)
	}

	var wire anthropicRequest
	if err := json.Unmarshal(gotBody, &wire); err != nil {
		t.Fatal(err)
	}
	if wire.MaxTokens != anthropicDefaultMaxTokens {
		t.Errorf("wire max_tokens = %d", wire.MaxTokens)
	}

	// Text blocks concatenate in order into one assistant choice.
	if resp.Text() != "Hola, mundo" {
		t.Errorf("Text = %q", resp.Text())
	}
	if len(resp.Choices) != 1 || resp.Choices[0].FinishReason != "end_turn" {
		t.Errorf("choices = %+v", resp.Choices)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 || resp.Usage.PromptTokens != 10 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestAnthropicExecuteStream(t *testing.T) {
	body := "event: message_start\n" +
		"data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Ho\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"la\"}}\n\n" +
		"event: message_delta\n" +
		"data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"input_tokens\":4,\"output_tokens\":2}}\n\n" +
		"event: message_stop\n" +
		"data: {\"type\":\"message_stop\"}\n\n"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	}))
	defer ts.Close()

	adapter := New(anthropicDescriptor(ts.URL), "k", ts.Client())
	events, err := adapter.ExecuteStream(context.Background(), &core.ChatRequest{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []core.Message{{Role: core.RoleUser, Content: core.TextContent("hola")}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var got []core.StreamEvent
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events: %+v", len(got), got)
	}
	if got[0].Content != "Ho" || got[1].Content != "la" {
		t.Errorf("content events = %+v", got[:2])
	}
	if got[2].Type != core.EventDone {
		t.Errorf("terminal event = %+v", got[2])
	}
	if got[2].Usage == nil || got[2].Usage.InputTokens != 4 || got[2].Usage.OutputTokens != 2 {
		t.Errorf("done usage = %+v", got[2].Usage)
	}
}
