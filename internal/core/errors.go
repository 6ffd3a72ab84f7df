// Package core provides the canonical types and error model for the gateway.
package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorKind is the stable classification attached to every gateway error.
type ErrorKind string

const (
	// KindConfig covers missing or invalid provider, model or credential.
	// Never retriable, never triggers fallback.
	KindConfig ErrorKind = "config_error"
	// KindAuth means the upstream rejected the credential (401/403).
	KindAuth ErrorKind = "auth_error"
	// KindBadRequest means the upstream rejected the payload (400/404/422).
	KindBadRequest ErrorKind = "bad_request"
	// KindRateLimited is an upstream 429.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTimeout is a connect or read timeout.
	KindTimeout ErrorKind = "timeout"
	// KindTransport is a socket, DNS or TLS failure.
	KindTransport ErrorKind = "transport_error"
	// KindUpstream is an upstream 5xx.
	KindUpstream ErrorKind = "upstream_error"
	// KindMalformed is an HTTP 200 whose body could not be decoded.
	KindMalformed ErrorKind = "malformed_response"
	// KindPolicyDenied is a security-gate rejection.
	KindPolicyDenied ErrorKind = "policy_denied"
	// KindFile is an ingest failure: unsupported type, oversize, unreadable.
	KindFile ErrorKind = "file_error"
)

// GatewayError is the one error type that crosses package boundaries.
// Credentials must never be placed in Message.
type GatewayError struct {
	Kind      ErrorKind `json:"type"`
	Message   string    `json:"message"`
	Provider  string    `json:"provider,omitempty"`
	Status    int       `json:"status,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Err       error     `json:"-"`
}

func (e *GatewayError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// WithRequestID returns the error with the request id attached.
func (e *GatewayError) WithRequestID(id string) *GatewayError {
	e.RequestID = id
	return e
}

// Retriable reports whether the dispatcher may attempt a one-shot fallback
// after this error.
func (e *GatewayError) Retriable() bool {
	switch e.Kind {
	case KindAuth, KindRateLimited, KindUpstream, KindTransport, KindTimeout:
		return true
	}
	return false
}

// HTTPStatusCode maps the error kind to the status the HTTP surface returns.
func (e *GatewayError) HTTPStatusCode() int {
	switch e.Kind {
	case KindConfig, KindBadRequest:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindPolicyDenied:
		return http.StatusForbidden
	case KindFile:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON builds the structured error body returned by the HTTP surface.
func (e *GatewayError) ToJSON() map[string]any {
	inner := map[string]any{
		"type":    e.Kind,
		"message": e.Message,
	}
	if e.Provider != "" {
		inner["provider"] = e.Provider
	}
	if e.Status != 0 {
		inner["status"] = e.Status
	}
	if e.RequestID != "" {
		inner["request_id"] = e.RequestID
	}
	return map[string]any{"error": inner}
}

// NewConfigError builds a validation error raised before any network call.
func NewConfigError(message string, err error) *GatewayError {
	return &GatewayError{Kind: KindConfig, Message: message, Err: err}
}

// NewAuthError builds a credential-rejected error.
func NewAuthError(provider, message string) *GatewayError {
	return &GatewayError{Kind: KindAuth, Provider: provider, Message: message, Status: http.StatusUnauthorized}
}

// NewTimeoutError builds a connect/read timeout error.
func NewTimeoutError(provider string, err error) *GatewayError {
	return &GatewayError{Kind: KindTimeout, Provider: provider, Message: "request timed out", Err: err}
}

// NewTransportError builds a socket/DNS/TLS failure error.
func NewTransportError(provider string, err error) *GatewayError {
	return &GatewayError{Kind: KindTransport, Provider: provider, Message: "connection failed: " + err.Error(), Err: err}
}

// NewMalformedError builds an undecodable-200 error.
func NewMalformedError(provider string, err error) *GatewayError {
	return &GatewayError{Kind: KindMalformed, Provider: provider, Message: "provider returned an unparseable response", Err: err}
}

// NewPolicyError builds a security-gate rejection.
func NewPolicyError(message string) *GatewayError {
	return &GatewayError{Kind: KindPolicyDenied, Message: message}
}

// NewFileError builds an ingest failure.
func NewFileError(message string, err error) *GatewayError {
	return &GatewayError{Kind: KindFile, Message: message, Err: err}
}

// ClassifyStatus maps a non-200 upstream status plus body to a gateway
// error, surfacing the server-provided message when one can be parsed.
func ClassifyStatus(provider string, status int, body []byte) *GatewayError {
	message := upstreamMessage(body)
	if message == "" {
		message = fmt.Sprintf("provider returned HTTP %d", status)
	}

	var kind ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusBadRequest ||
		status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity:
		kind = KindBadRequest
	case status >= 500 && status <= 599:
		kind = KindUpstream
	default:
		kind = KindUpstream
	}

	return &GatewayError{Kind: kind, Provider: provider, Status: status, Message: message}
}

// upstreamMessage pulls the human message out of the common provider error
// envelopes: {"error":{"message":...}}, {"error":"..."} or {"message":...}.
func upstreamMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if len(envelope.Error) > 0 {
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
		var s string
		if err := json.Unmarshal(envelope.Error, &s); err == nil {
			return s
		}
	}
	return envelope.Message
}
