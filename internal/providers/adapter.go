// Package providers translates canonical requests to provider-native HTTP
// calls and normalizes the replies. Upstream payload shapes never escape
// this package.
package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"chispart/internal/core"
	"chispart/internal/registry"
)

// Adapter is the capability interface every dialect implements.
type Adapter interface {
	// Execute performs a buffered call and returns the canonical response.
	Execute(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error)
	// ExecuteStream performs a streaming call. Errors raised before the
	// first chunk are returned synchronously; mid-stream failures terminate
	// the channel with an error event. The channel is always closed after
	// the terminal event.
	ExecuteStream(ctx context.Context, req *core.ChatRequest) (<-chan core.StreamEvent, error)
}

// New selects the adapter implementation by the descriptor's dialect.
// The request's Model field must already hold the upstream model id.
func New(desc registry.Descriptor, credential string, client *http.Client) Adapter {
	switch desc.Dialect {
	case registry.DialectAnthropicMessages:
		return &anthropicAdapter{desc: desc, credential: credential, client: client}
	default:
		return &openAIAdapter{desc: desc, credential: credential, client: client}
	}
}

// authorize applies the descriptor's auth scheme to an outgoing request.
// Query-param providers (gemini) get the key appended to the URL instead of
// a header.
func authorize(req *http.Request, desc registry.Descriptor, credential string) {
	switch desc.Auth {
	case registry.AuthXAPIKey:
		req.Header.Set("x-api-key", credential)
		req.Header.Set("anthropic-version", anthropicAPIVersion)
	case registry.AuthQueryParam:
		q := req.URL.Query()
		q.Set("key", credential)
		req.URL.RawQuery = q.Encode()
	default:
		req.Header.Set("Authorization", "Bearer "+credential)
	}
}

// classifyCallError maps a transport-level failure to a gateway error.
// Credentials never appear here: the error text comes from net/http, and
// query-param keys are redacted from any embedded URL.
func classifyCallError(provider string, err error) *core.GatewayError {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewTimeoutError(provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.NewTimeoutError(provider, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return core.NewTimeoutError(provider, err)
		}
		// url.Error.Error() embeds the full URL; strip the query so a
		// query-param credential cannot leak.
		return core.NewTransportError(provider, errors.New(urlErr.Op+" "+redact(urlErr.URL)+": "+urlErr.Err.Error()))
	}
	return core.NewTransportError(provider, err)
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "upstream"
	}
	u.RawQuery = ""
	return u.String()
}
