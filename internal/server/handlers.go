package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"chispart/internal/convlog"
	"chispart/internal/core"
	"chispart/internal/dispatch"
	"chispart/internal/ingest"
	"chispart/internal/keystore"
)

// Handler holds the HTTP handlers.
type Handler struct {
	dispatcher *dispatch.Dispatcher
}

// NewHandler wraps a dispatcher.
func NewHandler(d *dispatch.Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

// chatRequest is the /api/chat body. Message and Messages are mutually
// exclusive; Message is shorthand for a single user turn.
type chatRequest struct {
	Message  string         `json:"message"`
	Messages []core.Message `json:"messages"`
	Provider string         `json:"api"`
	Model    string         `json:"model"`
	Stream   bool           `json:"stream"`
}

// chatResponse is the buffered reply envelope.
type chatResponse struct {
	Response  string      `json:"response"`
	ModelUsed string      `json:"model_used"`
	APIUsed   string      `json:"api_used"`
	Usage     *core.Usage `json:"usage,omitempty"`
}

// Chat handles POST /api/chat, buffered or SSE.
func (h *Handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewConfigError("invalid request body: "+err.Error(), err))
	}

	messages := req.Messages
	if len(messages) == 0 {
		if req.Message == "" {
			return handleError(c, core.NewConfigError("message must not be empty", nil))
		}
		messages = []core.Message{{Role: core.RoleUser, Content: core.TextContent(req.Message)}}
	}

	if req.Stream {
		return h.streamChat(c, req.Provider, req.Model, messages)
	}

	result, err := h.dispatcher.Chat(c.Request().Context(), req.Provider, req.Model, messages)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resultEnvelope(result))
}

// streamChat relays canonical stream events as SSE frames.
func (h *Handler) streamChat(c echo.Context, provider, model string, messages []core.Message) error {
	ctx := c.Request().Context()
	events, _, err := h.dispatcher.ChatStream(ctx, provider, model, messages)
	if err != nil {
		return handleError(c, err)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := resp.Write([]byte("data: ")); err != nil {
			return nil
		}
		if _, err := resp.Write(payload); err != nil {
			return nil
		}
		if _, err := resp.Write([]byte("\n\n")); err != nil {
			return nil
		}
		resp.Flush()
	}
	return nil
}

// Image handles POST /api/image (multipart: image, prompt, api, model).
func (h *Handler) Image(c echo.Context) error {
	data, filename, err := readUpload(c, "image", ingest.MaxImageBytes(h.dispatcher.Mobile()))
	if err != nil {
		return handleError(c, err)
	}
	mime := ingest.DetectImageMIME(data, filename)

	result, err := h.dispatcher.AnalyzeImage(
		c.Request().Context(),
		c.FormValue("api"),
		c.FormValue("model"),
		c.FormValue("prompt"),
		data, mime,
	)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resultEnvelope(result))
}

// PDF handles POST /api/pdf (multipart: pdf, prompt, api, model).
func (h *Handler) PDF(c echo.Context) error {
	data, _, err := readUpload(c, "pdf", 0)
	if err != nil {
		return handleError(c, err)
	}

	result, err := h.dispatcher.AnalyzePDF(
		c.Request().Context(),
		c.FormValue("api"),
		c.FormValue("model"),
		c.FormValue("prompt"),
		data,
	)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resultEnvelope(result))
}

// History handles GET /api/history?limit=N.
func (h *Handler) History(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return handleError(c, core.NewConfigError("limit must be a non-negative integer", nil))
		}
		limit = n
	}
	records, err := h.dispatcher.History(limit)
	if err != nil {
		return handleError(c, err)
	}
	if records == nil {
		records = []convlog.Record{}
	}
	total, err := h.dispatcher.HistoryCount()
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"history":             records,
		"total_conversations": total,
	})
}

// Models handles GET /api/models/:provider.
func (h *Handler) Models(c echo.Context) error {
	providerID := c.Param("provider")
	reg := h.dispatcher.Registry()

	models, err := reg.Models(providerID)
	if err != nil {
		return handleError(c, err)
	}
	defaultModel, err := reg.DefaultModel(providerID)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"api_name":      providerID,
		"models":        models,
		"default_model": defaultModel,
	})
}

// apiEntry describes one provider and whether a credential resolves for it.
type apiEntry struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	SupportsVision bool   `json:"supports_vision"`
	SupportsPDF    bool   `json:"supports_pdf"`
}

// APIs handles GET /api/apis: every provider with its display name,
// capabilities and credential status.
func (h *Handler) APIs(c echo.Context) error {
	reg := h.dispatcher.Registry()
	keys := h.dispatcher.Keys()

	entries := []apiEntry{}
	for _, id := range reg.List() {
		desc, err := reg.Describe(id)
		if err != nil {
			continue
		}
		status := "not_configured"
		if _, err := keystore.Resolve(keys, desc); err == nil {
			status = "configured"
		}
		entries = append(entries, apiEntry{
			Key:            desc.ID,
			Name:           desc.DisplayName,
			Status:         status,
			SupportsVision: desc.SupportsVision,
			SupportsPDF:    desc.SupportsPDF,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"apis":        entries,
		"default_api": h.dispatcher.DefaultProvider(),
	})
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// readUpload pulls the named file part out of a multipart form. A non-zero
// maxBytes rejects oversize uploads with 413 before any work happens.
func readUpload(c echo.Context, field string, maxBytes int) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, "", core.NewConfigError(fmt.Sprintf("multipart field %q is required", field), err)
	}
	if maxBytes > 0 && fh.Size > int64(maxBytes) {
		return nil, "", &core.GatewayError{
			Kind:    core.KindFile,
			Message: "uploaded file exceeds the size limit",
			Status:  http.StatusRequestEntityTooLarge,
		}
	}
	src, err := fh.Open()
	if err != nil {
		return nil, "", core.NewFileError("could not open upload", err)
	}
	defer func(src multipart.File) { _ = src.Close() }(src)

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, "", core.NewFileError("could not read upload", err)
	}
	return data, fh.Filename, nil
}

func resultEnvelope(result *dispatch.Result) chatResponse {
	return chatResponse{
		Response:  result.Response.Text(),
		ModelUsed: result.ModelAlias,
		APIUsed:   result.ProviderID,
		Usage:     result.Response.Usage,
	}
}

// handleError converts gateway errors to structured HTTP responses.
func handleError(c echo.Context, err error) error {
	var gerr *core.GatewayError
	if errors.As(err, &gerr) {
		status := gerr.HTTPStatusCode()
		if gerr.Status == http.StatusRequestEntityTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		return c.JSON(status, gerr.ToJSON())
	}
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
