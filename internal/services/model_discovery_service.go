package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"cbfilter/internal/data/embedded"
	"cbfilter/internal/logger"
	"cbfilter/pkg/cbtypes"
)

// ErrNoModelsEndpoint is returned when a provider declares no models
// listing descriptor.
var ErrNoModelsEndpoint = fmt.Errorf("models endpoint not defined")

// ModelDiscoveryService calls a provider's "list models" descriptor and
// ranks the returned model identifiers by ordered preference patterns.
// The pattern tables are policy data loaded from the embedded tables so
// model tiers can be re-ranked without code changes.
type ModelDiscoveryService struct {
	initialized   bool
	placeholders  *PlaceholderService
	transport     *HTTPRequestService
	llmPatterns   []string
	imagePatterns []string
}

// NewModelDiscoveryService creates a new ModelDiscoveryService instance.
func NewModelDiscoveryService(placeholders *PlaceholderService, transport *HTTPRequestService) *ModelDiscoveryService {
	return &ModelDiscoveryService{placeholders: placeholders, transport: transport}
}

// Name returns the service name "model_discovery" for registration.
func (m *ModelDiscoveryService) Name() string {
	return "model_discovery"
}

// Initialize sets up the ModelDiscoveryService and loads the preference
// pattern tables.
func (m *ModelDiscoveryService) Initialize() error {
	if m.placeholders == nil || m.transport == nil {
		return fmt.Errorf("model discovery requires placeholder and transport services")
	}

	var policy struct {
		LLMPatterns   []string `yaml:"llm_patterns"`
		ImagePatterns []string `yaml:"image_patterns"`
	}
	if err := yaml.Unmarshal(embedded.PolicyData, &policy); err != nil {
		logger.Warn("policy table parse failed, model ranking disabled", "error", err)
	}
	m.llmPatterns = policy.LLMPatterns
	m.imagePatterns = policy.ImagePatterns
	m.initialized = true
	logger.ServiceOperation("model_discovery", "initialize",
		"llm_patterns", len(m.llmPatterns), "image_patterns", len(m.imagePatterns))
	return nil
}

// LLMPatterns returns the ordered preference patterns for text models.
func (m *ModelDiscoveryService) LLMPatterns() []string {
	return m.llmPatterns
}

// ImagePatterns returns the ordered preference patterns for image models.
func (m *ModelDiscoveryService) ImagePatterns() []string {
	return m.imagePatterns
}

// FetchModels lists the models offered by serverURL using the provider's
// models descriptor. An empty result list is an error.
func (m *ModelDiscoveryService) FetchModels(provider *cbtypes.APIProvider, serverURL, apiKey string) ([]string, error) {
	if !m.initialized {
		return nil, fmt.Errorf("model discovery service not initialized")
	}
	if !provider.Models.Defined() {
		return nil, ErrNoModelsEndpoint
	}
	desc := provider.Models

	// Only model/server/key placeholders are meaningful here.
	ctx := PlaceholderContext{Model: cbtypes.ModelConfig{
		ServerURL:  serverURL,
		APIKey:     apiKey,
		ProviderID: provider.ID,
	}}

	fragment := m.placeholders.Substitute(desc.Endpoint, ctx, false)
	endpoint, ok := ResolveEndpoint(serverURL, fragment)
	if !ok {
		return nil, fmt.Errorf("cannot resolve models endpoint from %q and %q", serverURL, fragment)
	}

	headers := make([]HeaderLine, 0, len(desc.Headers))
	for _, h := range desc.Headers {
		headers = append(headers, HeaderLine{Key: h.Key, Value: m.placeholders.Substitute(h.Value, ctx, false)})
	}

	method := "GET"
	var body []byte
	if postPattern.MatchString(desc.Method) {
		method = "POST"
		body = []byte(m.placeholders.Substitute(desc.Payload, ctx, false))
	}

	resp, err := m.transport.Send(HTTPRequest{
		Method:  method,
		Host:    endpoint.Host,
		Path:    endpoint.Path,
		Secure:  endpoint.Secure,
		Headers: headers,
		Body:    body,
	})
	if resp == nil || resp.Body == "" {
		if err != nil {
			return nil, fmt.Errorf("models request failed: %w", err)
		}
		return nil, fmt.Errorf("models request returned no body")
	}
	if err != nil {
		logger.Warn("models request reported an error, parsing body anyway", "provider", provider.ID, "error", err)
	}

	models, err := collectModelIDs(resp.Body, desc.ResultPath)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("models response contained no models")
	}
	return models, nil
}

var postPattern = regexp.MustCompile(`(?i)post`)

// collectModelIDs walks the declared result path (object keys only,
// empty segments skipped) to an array and collects each element's "id"
// field, or the element itself when it already is a string.
func collectModelIDs(raw, resultPath string) ([]string, error) {
	var root interface{}
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return nil, fmt.Errorf("models response is not JSON: %w", err)
	}

	cur := root
	for _, part := range strings.Split(resultPath, ".") {
		if part == "" {
			continue
		}
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("models result path invalid")
		}
		val, ok := obj[part]
		if !ok {
			return nil, fmt.Errorf("models result path missing")
		}
		cur = val
	}

	arr, ok := cur.([]interface{})
	if !ok {
		return nil, fmt.Errorf("models result path is not an array")
	}

	var models []string
	for _, item := range arr {
		switch v := item.(type) {
		case map[string]interface{}:
			if id, ok := v["id"].(string); ok {
				models = append(models, id)
			}
		case string:
			models = append(models, v)
		}
	}
	return models, nil
}

// PickModelByPatterns tries the patterns in order and returns the first
// model matched by any pattern (case-insensitive). When no pattern
// matches, the first model is the default. Patterns that fail to compile
// are skipped.
func PickModelByPatterns(models []string, patterns []string) string {
	for _, pat := range patterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			continue
		}
		for _, model := range models {
			if re.MatchString(model) {
				return model
			}
		}
	}
	if len(models) == 0 {
		return ""
	}
	return models[0]
}
