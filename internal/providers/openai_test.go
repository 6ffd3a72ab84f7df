package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chispart/internal/core"
	"chispart/internal/registry"
)

func openAIDescriptor(baseURL string) registry.Descriptor {
	return registry.Descriptor{
		ID:      "openai",
		BaseURL: baseURL,
		Auth:    registry.AuthBearer,
		Dialect: registry.DialectOpenAIChat,
	}
}

func TestOpenAIExecute(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody []byte

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o",
			"choices": [{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}],
			"usage": {"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}
		}`))
	}))
	defer ts.Close()

	adapter := New(openAIDescriptor(ts.URL), "test-key", ts.Client())
	req := &core.ChatRequest{
		Model: "gpt-4o",
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: core.TextContent("be brief")},
			{Role: core.RoleUser, Content: core.TextContent("ping")},
		},
	}
	resp, err := adapter.Execute(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q", gotAuth)
	}

	// Messages travel verbatim, system role included.
	var wire openAIRequest
	if err := json.Unmarshal(gotBody, &wire); err != nil {
		t.Fatal(err)
	}
	if len(wire.Messages) != 2 || wire.Messages[0].Role != core.RoleSystem {
		t.Errorf("wire messages = %+v", wire.Messages)
	}
	if wire.Model != "gpt-4o" {
		t.Errorf("wire model = %q", wire.Model)
	}

	if resp.Text() != "pong" {
		t.Errorf("Text = %q", resp.Text())
	}
	if resp.Provider != "openai" {
		t.Errorf("provider = %q", resp.Provider)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 4 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOpenAIQueryParamAuth(t *testing.T) {
	var gotKey, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer ts.Close()

	desc := registry.Descriptor{
		ID: "gemini", BaseURL: ts.URL,
		Auth: registry.AuthQueryParam, Dialect: registry.DialectOpenAIChat,
	}
	adapter := New(desc, "g-key", ts.Client())
	_, err := adapter.Execute(context.Background(), &core.ChatRequest{
		Model:    "gemini-2.0-flash",
		Messages: []core.Message{{Role: core.RoleUser, Content: core.TextContent("hi")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotKey != "g-key" {
		t.Errorf("query key = %q", gotKey)
	}
	if gotAuth != "" {
		t.Errorf("query-param provider must not send Authorization, got %q", gotAuth)
	}
}

func TestOpenAIExecuteErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   core.ErrorKind
	}{
		{"auth", 401, `{"error":{"message":"invalid key"}}`, core.KindAuth},
		{"rate limit", 429, `{"error":{"message":"slow down"}}`, core.KindRateLimited},
		{"bad request", 400, `{"error":{"message":"bad payload"}}`, core.KindBadRequest},
		{"upstream", 503, ``, core.KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			adapter := New(openAIDescriptor(ts.URL), "k", ts.Client())
			_, err := adapter.Execute(context.Background(), &core.ChatRequest{
				Model:    "gpt-4",
				Messages: []core.Message{{Role: core.RoleUser, Content: core.TextContent("hi")}},
			})
			var gerr *core.GatewayError
			if !errors.As(err, &gerr) {
				t.Fatalf("want GatewayError, got %v", err)
			}
			if gerr.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", gerr.Kind, tt.kind)
			}
			if gerr.Status != tt.status {
				t.Errorf("status = %d, want %d", gerr.Status, tt.status)
			}
		})
	}
}

func TestOpenAIExecuteMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"no choices", `{"id":"1","choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			adapter := New(openAIDescriptor(ts.URL), "k", ts.Client())
			_, err := adapter.Execute(context.Background(), &core.ChatRequest{
				Model:    "gpt-4",
				Messages: []core.Message{{Role: core.RoleUser, Content: core.TextContent("hi")}},
			})
			var gerr *core.GatewayError
			if !errors.As(err, &gerr) || gerr.Kind != core.KindMalformed {
				t.Errorf("want malformed_response, got %v", err)
			}
		})
	}
}

func TestOpenAIExecuteStream(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		": heartbeat comment\n" +
		"data: not-json-keepalive\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{}}],\"usage\":{\"prompt_tokens\":2,\"completion_tokens\":2,\"total_tokens\":4}}\n\n" +
		"data: [DONE]\n\n"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var wire openAIRequest
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &wire); err != nil || !wire.Stream {
			t.Errorf("stream flag not set on wire request: %s", raw)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	}))
	defer ts.Close()

	adapter := New(openAIDescriptor(ts.URL), "k", ts.Client())
	events, err := adapter.ExecuteStream(context.Background(), &core.ChatRequest{
		Model:    "gpt-4",
		Messages: []core.Message{{Role: core.RoleUser, Content: core.TextContent("hi")}},
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
	if got[0].Type != core.EventContent || got[0].Content != "Hel" {
		t.Errorf("event 0 = %+v", got[0])
	}
	if got[1].Type != core.EventContent || got[1].Content != "lo" {
		t.Errorf("event 1 = %+v", got[1])
	}
	if got[2].Type != core.EventDone {
		t.Errorf("event 2 = %+v", got[2])
	}
	if got[2].Usage == nil || got[2].Usage.TotalTokens != 4 {
		t.Errorf("done usage = %+v", got[2].Usage)
	}
}

func TestOpenAIExecuteStreamUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer ts.Close()

	adapter := New(openAIDescriptor(ts.URL), "k", ts.Client())
	_, err := adapter.ExecuteStream(context.Background(), &core.ChatRequest{
		Model:    "gpt-4",
		Messages: []core.Message{{Role: core.RoleUser, Content: core.TextContent("hi")}},
	})
	var gerr *core.GatewayError
	if !errors.As(err, &gerr) || gerr.Kind != core.KindRateLimited {
		t.Errorf("pre-stream error should surface synchronously, got %v", err)
	}
}

func TestOpenAIStreamConsumerCancel(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n" +
		"data: [DONE]\n\n"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	adapter := New(openAIDescriptor(ts.URL), "k", ts.Client())
	events, err := adapter.ExecuteStream(ctx, &core.ChatRequest{
		Model:    "gpt-4",
		Messages: []core.Message{{Role: core.RoleUser, Content: core.TextContent("hi")}},
	})
	if err != nil {
		t.Fatal(err)
	}

	<-events
	cancel()

	// The channel must close without a terminal event after cancellation.
	for ev := range events {
		if ev.Type == core.EventDone {
			t.Error("done event emitted after cancel")
		}
	}
}
