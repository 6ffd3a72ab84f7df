// Package dispatch is the request orchestrator: it validates inputs,
// resolves provider and model, invokes the adapter, handles the one-shot
// fallback and persists completed exchanges to the conversation log.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"chispart/internal/convlog"
	"chispart/internal/core"
	"chispart/internal/httpclient"
	"chispart/internal/ingest"
	"chispart/internal/keystore"
	"chispart/internal/observability"
	"chispart/internal/providers"
	"chispart/internal/registry"
)

// Operation names recorded in the conversation log.
const (
	OpChat        = "chat"
	OpImage       = "image"
	OpPDF         = "pdf"
	OpInteractive = "interactive"
)

// AdapterFactory builds an adapter for a resolved provider. Swappable for
// tests.
type AdapterFactory func(registry.Descriptor, string, *http.Client) providers.Adapter

// Options configures a Dispatcher.
type Options struct {
	// Mobile selects the mobile timeout/size/truncation profile.
	Mobile bool
	// Fallback enables the one-shot retry against the default provider.
	Fallback bool
	// DefaultProvider overrides the registry default when non-empty.
	DefaultProvider string
	// Client overrides the upstream HTTP client (tests).
	Client *http.Client
	// Metrics receives request observations; nil disables.
	Metrics *observability.Metrics
	// NewAdapter overrides adapter construction (tests).
	NewAdapter AdapterFactory
}

// Dispatcher coordinates registry, key store, adapters and the log.
type Dispatcher struct {
	reg        *registry.Registry
	keys       keystore.Store
	log        convlog.Log
	client     *http.Client
	metrics    *observability.Metrics
	newAdapter AdapterFactory
	defaultID  string
	mobile     bool
	fallback   bool
}

// New wires a Dispatcher from its collaborators.
func New(reg *registry.Registry, keys keystore.Store, log convlog.Log, opts Options) *Dispatcher {
	client := opts.Client
	if client == nil {
		client = httpclient.New(httpclient.ProfileFor(opts.Mobile))
	}
	factory := opts.NewAdapter
	if factory == nil {
		factory = providers.New
	}
	defaultID := opts.DefaultProvider
	if defaultID == "" {
		defaultID = reg.Default()
	}
	return &Dispatcher{
		reg:        reg,
		keys:       keys,
		log:        log,
		client:     client,
		metrics:    opts.Metrics,
		newAdapter: factory,
		defaultID:  defaultID,
		mobile:     opts.Mobile,
		fallback:   opts.Fallback,
	}
}

// Mobile reports whether the dispatcher runs with the mobile profile.
func (d *Dispatcher) Mobile() bool { return d.mobile }

// Registry exposes the catalog for transport surfaces.
func (d *Dispatcher) Registry() *registry.Registry { return d.reg }

// Keys exposes the credential store for transport surfaces.
func (d *Dispatcher) Keys() keystore.Store { return d.keys }

// DefaultProvider returns the provider used when the caller names none,
// and the fallback target.
func (d *Dispatcher) DefaultProvider() string { return d.defaultID }

// History returns the most recent records from the conversation log.
func (d *Dispatcher) History(limit int) ([]convlog.Record, error) {
	return d.log.Load(limit)
}

// HistoryCount returns the total number of logged conversations.
func (d *Dispatcher) HistoryCount() (int, error) {
	return d.log.Count()
}

// target is a fully resolved (provider, upstream model) pair plus the
// credential. Building one runs all config validation, so a target in
// hand means any later failure came from the network.
type target struct {
	desc       registry.Descriptor
	alias      string
	upstreamID string
	credential string
}

func (d *Dispatcher) resolve(providerID, alias string) (*target, error) {
	if providerID == "" {
		providerID = d.defaultID
	}
	desc, err := d.reg.Describe(providerID)
	if err != nil {
		return nil, err
	}
	if alias == "" {
		alias, err = d.reg.DefaultModel(providerID)
		if err != nil {
			return nil, err
		}
	}
	upstreamID, err := d.reg.ResolveModel(providerID, alias)
	if err != nil {
		return nil, err
	}
	credential, err := keystore.Resolve(d.keys, desc)
	if err != nil {
		return nil, err
	}
	return &target{desc: desc, alias: alias, upstreamID: upstreamID, credential: credential}, nil
}

// Result is a canonical response annotated with the provider and model
// that actually served it (they differ from the request after fallback).
type Result struct {
	Response   *core.ChatResponse
	ProviderID string
	ModelAlias string
	UpstreamID string
	RequestID  string
}

// Chat performs a buffered chat call.
func (d *Dispatcher) Chat(ctx context.Context, providerID, alias string, messages []core.Message) (*Result, error) {
	return d.chatOp(ctx, OpChat, providerID, alias, messages)
}

func (d *Dispatcher) chatOp(ctx context.Context, operation, providerID, alias string, messages []core.Message) (*Result, error) {
	requestID := uuid.NewString()
	ctx = core.WithRequestID(ctx, requestID)

	if err := core.ValidateMessages(messages); err != nil {
		return nil, attachID(err, requestID)
	}

	tgt, err := d.resolve(providerID, alias)
	if err != nil {
		return nil, attachID(err, requestID)
	}

	resp, tgt, gerr := d.executeWithFallback(ctx, tgt, operation, func(ctx context.Context, t *target) (*core.ChatResponse, error) {
		req := &core.ChatRequest{Model: t.upstreamID, Messages: messages}
		return d.newAdapter(t.desc, t.credential, d.client).Execute(ctx, req)
	})
	if gerr != nil {
		return nil, gerr.WithRequestID(requestID)
	}

	resp.Provider = tgt.desc.ID
	result := &Result{
		Response:   resp,
		ProviderID: tgt.desc.ID,
		ModelAlias: tgt.alias,
		UpstreamID: tgt.upstreamID,
		RequestID:  requestID,
	}
	d.persist(ctx, operation, result, summarize(messages), resp.Text(), resp.Usage)
	return result, nil
}

// ChatStream performs a streaming chat call. The returned channel carries
// content events, then exactly one done or error event, and is closed.
// The log record is written when the done event is emitted; a cancelled
// turn writes nothing.
func (d *Dispatcher) ChatStream(ctx context.Context, providerID, alias string, messages []core.Message) (<-chan core.StreamEvent, *Result, error) {
	return d.streamOp(ctx, OpChat, providerID, alias, messages)
}

func (d *Dispatcher) streamOp(ctx context.Context, operation, providerID, alias string, messages []core.Message) (<-chan core.StreamEvent, *Result, error) {
	requestID := uuid.NewString()
	ctx = core.WithRequestID(ctx, requestID)

	if err := core.ValidateMessages(messages); err != nil {
		return nil, nil, attachID(err, requestID)
	}

	tgt, err := d.resolve(providerID, alias)
	if err != nil {
		return nil, nil, attachID(err, requestID)
	}

	open := func(ctx context.Context, t *target) (<-chan core.StreamEvent, error) {
		req := &core.ChatRequest{Model: t.upstreamID, Messages: messages, Stream: true}
		return d.newAdapter(t.desc, t.credential, d.client).ExecuteStream(ctx, req)
	}

	start := time.Now()
	upstream, err := open(ctx, tgt)
	if err != nil {
		gerr := asGateway(err)
		d.metrics.ObserveError(tgt.desc.ID, string(gerr.Kind))
		// Errors before the first chunk are eligible for fallback.
		if fb := d.fallbackTarget(tgt, gerr); fb != nil {
			d.metrics.ObserveFallback(tgt.desc.ID)
			slog.Debug("falling back to default provider", "from", tgt.desc.ID, "to", fb.desc.ID, "request_id", requestID)
			tgt = fb
			upstream, err = open(ctx, tgt)
		}
		if err != nil {
			return nil, nil, asGateway(err).WithRequestID(requestID)
		}
	}

	result := &Result{
		ProviderID: tgt.desc.ID,
		ModelAlias: tgt.alias,
		UpstreamID: tgt.upstreamID,
		RequestID:  requestID,
	}

	out := make(chan core.StreamEvent)
	go func() {
		defer close(out)
		var buf []byte
		for ev := range upstream {
			switch ev.Type {
			case core.EventContent:
				buf = append(buf, ev.Content...)
			case core.EventError:
				if ev.Err != nil {
					ev.Err.RequestID = requestID
					d.metrics.ObserveError(tgt.desc.ID, string(ev.Err.Kind))
				}
			case core.EventDone:
				d.metrics.ObserveRequest(tgt.desc.ID, operation, time.Since(start))
				var usage *core.Usage
				if ev.Usage != nil {
					usage = ev.Usage
				}
				d.persist(ctx, operation, result, summarize(messages), string(buf), usage)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, result, nil
}

// AnalyzeImage sends a vision prompt with an attached image.
func (d *Dispatcher) AnalyzeImage(ctx context.Context, providerID, alias, prompt string, image []byte, mime string) (*Result, error) {
	requestID := uuid.NewString()
	ctx = core.WithRequestID(ctx, requestID)

	tgt, err := d.resolve(providerID, alias)
	if err != nil {
		return nil, attachID(err, requestID)
	}
	if !tgt.desc.SupportsVision {
		return nil, core.NewConfigError("provider "+tgt.desc.ID+" does not support image analysis", nil).WithRequestID(requestID)
	}

	dataURL, err := ingest.ImageDataURL(image, mime, ingest.MaxImageBytes(d.mobile))
	if err != nil {
		return nil, attachID(err, requestID)
	}
	if prompt == "" {
		prompt = "Describe esta imagen en detalle"
	}
	messages := []core.Message{{
		Role:    core.RoleUser,
		Content: core.PartsContent(core.TextPart(prompt), core.ImagePart(dataURL)),
	}}

	resp, tgt, gerr := d.executeWithFallback(ctx, tgt, OpImage, func(ctx context.Context, t *target) (*core.ChatResponse, error) {
		req := &core.ChatRequest{Model: t.upstreamID, Messages: messages}
		return d.newAdapter(t.desc, t.credential, d.client).Execute(ctx, req)
	})
	if gerr != nil {
		return nil, gerr.WithRequestID(requestID)
	}

	resp.Provider = tgt.desc.ID
	result := &Result{
		Response:   resp,
		ProviderID: tgt.desc.ID,
		ModelAlias: tgt.alias,
		UpstreamID: tgt.upstreamID,
		RequestID:  requestID,
	}
	d.persist(ctx, OpImage, result, prompt, resp.Text(), resp.Usage)
	return result, nil
}

// AnalyzePDF extracts a PDF's text, truncates it to the mode's cap and
// asks the model about it.
func (d *Dispatcher) AnalyzePDF(ctx context.Context, providerID, alias, prompt string, pdfData []byte) (*Result, error) {
	requestID := uuid.NewString()
	ctx = core.WithRequestID(ctx, requestID)

	tgt, err := d.resolve(providerID, alias)
	if err != nil {
		return nil, attachID(err, requestID)
	}
	if !tgt.desc.SupportsPDF {
		return nil, core.NewConfigError("provider "+tgt.desc.ID+" does not support PDF analysis", nil).WithRequestID(requestID)
	}

	text, err := ingest.PDFText(pdfData)
	if err != nil {
		return nil, attachID(err, requestID)
	}
	text = ingest.Truncate(text, ingest.MaxPDFChars(d.mobile))
	if prompt == "" {
		prompt = "Resume el contenido de este documento"
	}
	messages := []core.Message{{
		Role:    core.RoleUser,
		Content: core.TextContent(ingest.FramePDFPrompt(text, prompt)),
	}}

	resp, tgt, gerr := d.executeWithFallback(ctx, tgt, OpPDF, func(ctx context.Context, t *target) (*core.ChatResponse, error) {
		req := &core.ChatRequest{Model: t.upstreamID, Messages: messages}
		return d.newAdapter(t.desc, t.credential, d.client).Execute(ctx, req)
	})
	if gerr != nil {
		return nil, gerr.WithRequestID(requestID)
	}

	resp.Provider = tgt.desc.ID
	result := &Result{
		Response:   resp,
		ProviderID: tgt.desc.ID,
		ModelAlias: tgt.alias,
		UpstreamID: tgt.upstreamID,
		RequestID:  requestID,
	}
	d.persist(ctx, OpPDF, result, prompt, resp.Text(), resp.Usage)
	return result, nil
}

// executeWithFallback runs call against tgt and, when fallback applies,
// retries once against the default provider with its default model. Only
// one fallback is attempted per user request.
func (d *Dispatcher) executeWithFallback(
	ctx context.Context,
	tgt *target,
	operation string,
	call func(context.Context, *target) (*core.ChatResponse, error),
) (*core.ChatResponse, *target, *core.GatewayError) {
	start := time.Now()
	resp, err := call(ctx, tgt)
	if err == nil {
		d.metrics.ObserveRequest(tgt.desc.ID, operation, time.Since(start))
		return resp, tgt, nil
	}

	gerr := asGateway(err)
	d.metrics.ObserveError(tgt.desc.ID, string(gerr.Kind))

	fb := d.fallbackTarget(tgt, gerr)
	if fb == nil {
		return nil, tgt, gerr
	}
	d.metrics.ObserveFallback(tgt.desc.ID)
	slog.Debug("falling back to default provider", "from", tgt.desc.ID, "to", fb.desc.ID)

	start = time.Now()
	resp, err = call(ctx, fb)
	if err != nil {
		fberr := asGateway(err)
		d.metrics.ObserveError(fb.desc.ID, string(fberr.Kind))
		return nil, fb, fberr
	}
	d.metrics.ObserveRequest(fb.desc.ID, operation, time.Since(start))
	return resp, fb, nil
}

// fallbackTarget resolves the default provider when the failed call is
// eligible: fallback enabled, the error kind retriable, and the caller
// did not already hit the default provider.
func (d *Dispatcher) fallbackTarget(tgt *target, gerr *core.GatewayError) *target {
	if !d.fallback || tgt.desc.ID == d.defaultID || !gerr.Retriable() {
		return nil
	}
	fb, err := d.resolve(d.defaultID, "")
	if err != nil {
		return nil
	}
	return fb
}

// persist writes one conversation record. Cancelled turns are skipped:
// the record must not exist for a call the user aborted.
func (d *Dispatcher) persist(ctx context.Context, operation string, result *Result, summary, responseText string, usage *core.Usage) {
	if ctx.Err() != nil {
		return
	}
	record := convlog.Record{
		Type:            operation,
		ProviderID:      result.ProviderID,
		ModelAlias:      result.ModelAlias,
		UpstreamModelID: result.UpstreamID,
		RequestSummary:  summary,
		ResponseText:    responseText,
		RequestID:       result.RequestID,
	}
	if usage != nil {
		record.Usage = &convlog.UsageInfo{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		}
	}
	if err := d.log.Append(record); err != nil {
		slog.Warn("failed to persist conversation record", "error", err, "request_id", result.RequestID)
	}
}

const summaryLimit = 200

// summarize condenses the last user message for the log record.
func summarize(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			text := messages[i].Content.PlainText()
			if len(text) > summaryLimit {
				return text[:summaryLimit] + "..."
			}
			return text
		}
	}
	return ""
}

func attachID(err error, requestID string) error {
	return asGateway(err).WithRequestID(requestID)
}

func asGateway(err error) *core.GatewayError {
	var gerr *core.GatewayError
	if errors.As(err, &gerr) {
		return gerr
	}
	return &core.GatewayError{Kind: core.KindUpstream, Message: err.Error(), Err: err}
}
