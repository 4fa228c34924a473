package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync/atomic"

	enginectx "cbfilter/internal/context"
	"cbfilter/internal/logger"
	"cbfilter/pkg/cbtypes"
)

// systemPromptFormat fixes the conversion instruction sent with every
// filter run. The two verbs are the filter's input and output kinds.
const systemPromptFormat = "Follow the instructions strictly and convert the input %s to the output %s. No additional text or comments are allowed."

var (
	// ErrFilterBusy is returned when a filter run is requested while a
	// previous run is still in flight.
	ErrFilterBusy = errors.New("a filter is already running")

	// ErrNoTemplate is returned when no provider offers a template for
	// the filter's input/output combination.
	ErrNoTemplate = errors.New("no template for filter input/output types")
)

// FilterExecutorService runs one filter end to end: read the clipboard,
// render the provider template, call the API, extract the result and
// write it back to the clipboard. Only one run may be in flight at a
// time; a second request is rejected immediately instead of queued.
type FilterExecutorService struct {
	initialized bool
	running     atomic.Bool

	engine    *enginectx.EngineContext
	catalog   *ProviderCatalogService
	builder   *RequestBuilderService
	transport *HTTPRequestService
	extractor *ResponseExtractorService
	source    cbtypes.ClipboardSource
	sink      cbtypes.ClipboardSink
}

// NewFilterExecutorService creates a new FilterExecutorService instance.
func NewFilterExecutorService(
	engine *enginectx.EngineContext,
	catalog *ProviderCatalogService,
	builder *RequestBuilderService,
	transport *HTTPRequestService,
	extractor *ResponseExtractorService,
	source cbtypes.ClipboardSource,
	sink cbtypes.ClipboardSink,
) *FilterExecutorService {
	return &FilterExecutorService{
		engine:    engine,
		catalog:   catalog,
		builder:   builder,
		transport: transport,
		extractor: extractor,
		source:    source,
		sink:      sink,
	}
}

// Name returns the service name "filter_executor" for registration.
func (f *FilterExecutorService) Name() string {
	return "filter_executor"
}

// Initialize sets up the FilterExecutorService.
func (f *FilterExecutorService) Initialize() error {
	if f.engine == nil || f.catalog == nil || f.builder == nil ||
		f.transport == nil || f.extractor == nil {
		return fmt.Errorf("filter executor requires engine context and all engine services")
	}
	if f.source == nil || f.sink == nil {
		return fmt.Errorf("filter executor requires a clipboard source and sink")
	}
	f.initialized = true
	logger.ServiceOperation("filter_executor", "initialize", "service ready")
	return nil
}

// Busy reports whether a filter run is currently in flight.
func (f *FilterExecutorService) Busy() bool {
	return f.running.Load()
}

// Execute starts the filter asynchronously. It returns ErrFilterBusy
// without touching the clipboard or the network when a run is already in
// flight. The done callback, if non-nil, is invoked from the worker
// goroutine after the run completes and the busy flag is released.
func (f *FilterExecutorService) Execute(filter cbtypes.FilterDefinition, done func(success bool)) error {
	if !f.initialized {
		return fmt.Errorf("filter executor service not initialized")
	}
	if !f.running.CompareAndSwap(false, true) {
		return ErrFilterBusy
	}

	logger.FilterRun(filter.Title, string(filter.Input), string(filter.Output))
	go func() {
		err := f.run(filter)
		if err != nil {
			logger.Error("filter run failed", "filter", filter.Title, "error", err)
		}
		f.running.Store(false)
		if done != nil {
			done(err == nil)
		}
	}()
	return nil
}

// ExecuteAndWait runs the filter and blocks until it finishes.
func (f *FilterExecutorService) ExecuteAndWait(filter cbtypes.FilterDefinition) error {
	doneCh := make(chan bool, 1)
	if err := f.Execute(filter, func(success bool) { doneCh <- success }); err != nil {
		return err
	}
	if !<-doneCh {
		return fmt.Errorf("filter %q failed", filter.Title)
	}
	return nil
}

func (f *FilterExecutorService) run(filter cbtypes.FilterDefinition) error {
	model, ok := f.engine.ModelAt(filter.ModelIndex)
	if !ok {
		return fmt.Errorf("no models configured")
	}

	provider := f.engine.FindProviderByID(model.ProviderID)
	if provider == nil {
		provider = f.engine.FirstProvider()
	}
	if provider == nil {
		return fmt.Errorf("no API providers loaded")
	}

	template := provider.FindTemplateByIO(filter.Input, filter.Output)
	if template == nil {
		template = f.catalog.FindTemplateAny(filter.Input, filter.Output)
	}
	if template == nil {
		return fmt.Errorf("%w: %s-%s", ErrNoTemplate, filter.Input, filter.Output)
	}

	ctx := PlaceholderContext{
		Model:        model,
		SystemPrompt: fmt.Sprintf(systemPromptFormat, filter.Input, filter.Output),
		Prompt:       filter.Prompt,
	}
	switch filter.Input {
	case cbtypes.IOImage:
		img, err := f.source.ReadBitmap()
		if err != nil {
			return fmt.Errorf("failed to read clipboard image: %w", err)
		}
		ctx.ImageB64 = base64.StdEncoding.EncodeToString(img.PNG)
		ctx.ImageDataURL = "data:image/png;base64," + ctx.ImageB64
	default:
		text := f.source.ReadText()
		if text == "" {
			return fmt.Errorf("clipboard contains no text")
		}
		ctx.Prompt = filter.Prompt + "\n\n" + text
	}

	serverBase := model.ServerURL
	if serverBase == "" {
		serverBase = provider.DefaultEndpoint
	}

	request, err := f.builder.Build(template, serverBase, ctx)
	if err != nil {
		return err
	}

	resp, err := f.transport.Send(HTTPRequest{
		Method:  "POST",
		Host:    request.Endpoint.Host,
		Path:    request.Endpoint.Path,
		Secure:  request.Endpoint.Secure,
		Headers: request.Headers,
		Body:    request.Body,
	})
	// Some providers return useful error details or even usable payloads
	// with a non-2xx status, so a body is still worth extracting from.
	if err != nil {
		logger.Warn("filter request reported an error", "filter", filter.Title,
			"template", template.ID, "error", err)
	}
	if resp == nil || resp.Body == "" {
		return fmt.Errorf("filter request returned no body")
	}

	result, err := f.extractor.Extract(resp.Body, template)
	if err != nil {
		return err
	}

	switch filter.Output {
	case cbtypes.IOImage:
		if result.Image == nil {
			return fmt.Errorf("response contained no image")
		}
		if err := f.sink.WriteImage(result.Image); err != nil {
			return fmt.Errorf("failed to write image to clipboard: %w", err)
		}
	default:
		if result.Text == "" {
			return fmt.Errorf("response contained no text")
		}
		if err := f.sink.WriteText(result.Text); err != nil {
			return fmt.Errorf("failed to write text to clipboard: %w", err)
		}
	}

	logger.Debug("filter run complete", "filter", filter.Title, "template", template.ID)
	return nil
}
