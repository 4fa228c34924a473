package services

import (
	"fmt"

	enginectx "cbfilter/internal/context"
	"cbfilter/internal/logger"
	"cbfilter/pkg/cbtypes"
)

// ioPairs enumerates the filter input/output combinations a default
// installation gets a model entry for, in presentation order.
var ioPairs = []struct {
	Input  cbtypes.IOType
	Output cbtypes.IOType
}{
	{cbtypes.IOText, cbtypes.IOText},
	{cbtypes.IOText, cbtypes.IOImage},
	{cbtypes.IOImage, cbtypes.IOText},
	{cbtypes.IOImage, cbtypes.IOImage},
}

// SetupService provisions a first-run configuration: it fetches the
// provider's model list once, ranks it with the preference tables and
// writes one model entry per input/output pair plus default filters
// pointing at them.
type SetupService struct {
	initialized bool
	engine      *enginectx.EngineContext
	discovery   *ModelDiscoveryService
	config      *ConfigurationService
}

// NewSetupService creates a new SetupService instance.
func NewSetupService(engine *enginectx.EngineContext, discovery *ModelDiscoveryService, config *ConfigurationService) *SetupService {
	return &SetupService{engine: engine, discovery: discovery, config: config}
}

// Name returns the service name "setup" for registration.
func (s *SetupService) Name() string {
	return "setup"
}

// Initialize sets up the SetupService.
func (s *SetupService) Initialize() error {
	if s.engine == nil || s.discovery == nil || s.config == nil {
		return fmt.Errorf("setup service requires engine context, discovery and configuration services")
	}
	s.initialized = true
	logger.ServiceOperation("setup", "initialize", "service ready")
	return nil
}

// Run provisions models and filters for providerID using apiKey and
// persists the result. Existing filters are kept; models are replaced.
func (s *SetupService) Run(providerID, apiKey string) error {
	if !s.initialized {
		return fmt.Errorf("setup service not initialized")
	}

	provider := s.engine.FindProviderByID(NormalizeProviderID(providerID))
	if provider == nil {
		provider = s.engine.FirstProvider()
	}
	if provider == nil {
		return fmt.Errorf("no API providers loaded")
	}

	available, err := s.discovery.FetchModels(provider, provider.DefaultEndpoint, apiKey)
	if err != nil {
		return fmt.Errorf("failed to list models for %s: %w", provider.ID, err)
	}

	textModel := PickModelByPatterns(available, s.discovery.LLMPatterns())
	imageModel := PickModelByPatterns(available, s.discovery.ImagePatterns())
	logger.Info("setup picked models", "provider", provider.ID,
		"text_model", textModel, "image_model", imageModel)

	var models []cbtypes.ModelConfig
	for _, pair := range ioPairs {
		modelName := textModel
		if pair.Output == cbtypes.IOImage {
			modelName = imageModel
		}
		models = append(models, cbtypes.ModelConfig{
			Name:       fmt.Sprintf("%s/%s %s", pair.Input, pair.Output, provider.ID),
			ServerURL:  provider.DefaultEndpoint,
			ModelName:  modelName,
			APIKey:     apiKey,
			ProviderID: provider.ID,
		})
	}
	s.engine.SetModels(models)

	if len(s.engine.Filters()) == 0 {
		s.engine.SetFilters(s.defaultFilters())
	}
	s.reassignFilterModels()

	return s.config.Save(s.engine)
}

// reassignFilterModels points every filter at the model entry created
// for its input/output pair.
func (s *SetupService) reassignFilterModels() {
	filters := s.engine.Filters()
	for i := range filters {
		for j, pair := range ioPairs {
			if filters[i].Input == pair.Input && filters[i].Output == pair.Output {
				filters[i].ModelIndex = j
				break
			}
		}
	}
	s.engine.SetFilters(filters)
}

func (s *SetupService) defaultFilters() []cbtypes.FilterDefinition {
	return []cbtypes.FilterDefinition{
		{
			Title:  "Translate",
			Input:  cbtypes.IOText,
			Output: cbtypes.IOText,
			Prompt: fmt.Sprintf("Translate the following text to %s.", s.engine.Language()),
		},
		{
			Title:  "Summarize",
			Input:  cbtypes.IOText,
			Output: cbtypes.IOText,
			Prompt: "Summarize the following text in a few sentences.",
		},
		{
			Title:  "Illustrate",
			Input:  cbtypes.IOText,
			Output: cbtypes.IOImage,
			Prompt: "Create an illustration for the following text.",
		},
		{
			Title:  "Describe image",
			Input:  cbtypes.IOImage,
			Output: cbtypes.IOText,
			Prompt: "Describe the image in detail.",
		},
	}
}
