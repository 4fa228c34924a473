package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cbfilter/internal/data/embedded"
	"cbfilter/internal/logger"
	"cbfilter/pkg/cbtypes"
)

// ProviderCatalogService loads and holds the set of API providers and
// their request templates from a directory of JSON definition documents,
// one per provider. Loading fails softly: a definition file that cannot
// be parsed is skipped and logged, never aborting the catalog as a
// whole. The loaded catalog is immutable for the process lifetime.
type ProviderCatalogService struct {
	initialized bool
	providers   []cbtypes.APIProvider
}

// Reserved top-level keys in a provider definition document.
const (
	keyDefaultEndpoint = "default-endpoint"
	keyModels          = "models"
)

// NewProviderCatalogService creates a new ProviderCatalogService instance.
func NewProviderCatalogService() *ProviderCatalogService {
	return &ProviderCatalogService{}
}

// Name returns the service name "provider_catalog" for registration.
func (p *ProviderCatalogService) Name() string {
	return "provider_catalog"
}

// Initialize sets up the ProviderCatalogService for operation.
func (p *ProviderCatalogService) Initialize() error {
	p.initialized = true
	logger.ServiceOperation("provider_catalog", "initialize", "service ready")
	return nil
}

// LoadFromDirectory loads every *.json provider definition in dir, in
// file-name order. When the directory is missing or yields no usable
// provider, the embedded default definitions are loaded instead.
func (p *ProviderCatalogService) LoadFromDirectory(dir string) error {
	if !p.initialized {
		return fmt.Errorf("provider catalog service not initialized")
	}

	var providers []cbtypes.APIProvider
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("apidef directory missing or unreadable", "dir", dir, "error", err)
	} else {
		providers = p.loadEntries(dir, entries)
	}

	if len(providers) == 0 {
		logger.Info("loading embedded default provider definitions")
		providers = p.loadEmbedded()
	}
	if len(providers) > 0 {
		p.providers = providers
	}
	logger.Debug("provider catalog loaded", "providers", len(p.providers))
	return nil
}

func (p *ProviderCatalogService) loadEntries(dir string, entries []os.DirEntry) []cbtypes.APIProvider {
	var providers []cbtypes.APIProvider
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil || len(data) == 0 {
			logger.Warn("apidef file missing or empty", "path", path, "error", err)
			continue
		}
		provider, err := parseProviderDocument(providerIDFromFileName(entry.Name()), data)
		if err != nil {
			logger.Warn("apidef parse failed", "path", path, "error", err)
			continue
		}
		if provider.ID == "" || len(provider.Templates) == 0 {
			logger.Warn("apidef document has no templates", "path", path)
			continue
		}
		providers = append(providers, provider)
	}
	return providers
}

func (p *ProviderCatalogService) loadEmbedded() []cbtypes.APIProvider {
	var providers []cbtypes.APIProvider
	names, err := fs.Glob(embedded.APIDefFS, "apidef/*.json")
	if err != nil {
		return nil
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := embedded.APIDefFS.ReadFile(name)
		if err != nil {
			continue
		}
		provider, err := parseProviderDocument(providerIDFromFileName(filepath.Base(name)), data)
		if err != nil {
			logger.Warn("embedded apidef parse failed", "name", name, "error", err)
			continue
		}
		if provider.ID != "" && len(provider.Templates) > 0 {
			providers = append(providers, provider)
		}
	}
	return providers
}

// Providers returns the loaded catalog in load order.
func (p *ProviderCatalogService) Providers() []cbtypes.APIProvider {
	return p.providers
}

// FindProviderByID returns the provider with the given id, or nil.
func (p *ProviderCatalogService) FindProviderByID(id string) *cbtypes.APIProvider {
	for i := range p.providers {
		if p.providers[i].ID == id {
			return &p.providers[i]
		}
	}
	return nil
}

// FindTemplateByID returns the first template with the given id across
// all providers, or nil.
func (p *ProviderCatalogService) FindTemplateByID(id string) *cbtypes.TemplateDefinition {
	for i := range p.providers {
		for j := range p.providers[i].Templates {
			if p.providers[i].Templates[j].ID == id {
				return &p.providers[i].Templates[j]
			}
		}
	}
	return nil
}

// FindTemplateAny returns the first template matching the IO pair across
// all providers in catalog order, or nil.
func (p *ProviderCatalogService) FindTemplateAny(input, output cbtypes.IOType) *cbtypes.TemplateDefinition {
	for i := range p.providers {
		if t := p.providers[i].FindTemplateByIO(input, output); t != nil {
			return t
		}
	}
	return nil
}

// NormalizeProviderID truncates a legacy provider id at its first hyphen
// so stored configuration written against variant ids (e.g. "OpenAI-v2")
// keeps matching the catalog after updates.
func NormalizeProviderID(raw string) string {
	if idx := strings.IndexByte(raw, '-'); idx >= 0 {
		return raw[:idx]
	}
	return raw
}

func providerIDFromFileName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// parseProviderDocument parses one provider definition document. Every
// top-level key other than the reserved ones is a template keyed by its
// id; template and header order follow document order.
func parseProviderDocument(id string, data []byte) (cbtypes.APIProvider, error) {
	provider := cbtypes.APIProvider{ID: id}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return provider, fmt.Errorf("invalid provider document: %w", err)
	}
	keys, err := objectKeyOrder(data)
	if err != nil {
		return provider, fmt.Errorf("invalid provider document: %w", err)
	}

	if raw, ok := root[keyDefaultEndpoint]; ok {
		_ = json.Unmarshal(raw, &provider.DefaultEndpoint)
	}

	for _, key := range keys {
		raw := root[key]
		if key == keyDefaultEndpoint {
			continue
		}
		if key == keyModels {
			desc, err := parseModelsDescriptor(raw)
			if err != nil {
				logger.Warn("models descriptor ignored", "provider", id, "error", err)
				continue
			}
			provider.Models = desc
			continue
		}
		if !isJSONObject(raw) {
			continue
		}
		tpl, err := parseTemplate(id, key, raw)
		if err != nil {
			logger.Warn("template definition ignored", "provider", id, "template", key, "error", err)
			continue
		}
		provider.Templates = append(provider.Templates, tpl)
	}
	return provider, nil
}

func parseTemplate(providerID, id string, raw json.RawMessage) (cbtypes.TemplateDefinition, error) {
	var doc struct {
		Endpoint string          `json:"endpoint"`
		Result   string          `json:"result"`
		Headers  json.RawMessage `json:"headers"`
		Payload  json.RawMessage `json:"payload"`
	}
	doc.Endpoint = "/"
	if err := json.Unmarshal(raw, &doc); err != nil {
		return cbtypes.TemplateDefinition{}, err
	}

	// Template ids follow the <input>-<output> convention; a key with
	// no hyphen parses as text on both sides.
	in, out := id, id
	if sep := strings.IndexByte(id, '-'); sep >= 0 {
		in, out = id[:sep], id[sep+1:]
	}

	tpl := cbtypes.TemplateDefinition{
		ID:         id,
		ProviderID: providerID,
		Input:      cbtypes.ParseIOType(in),
		Output:     cbtypes.ParseIOType(out),
		Endpoint:   doc.Endpoint,
		ResultPath: doc.Result,
	}
	if len(doc.Headers) > 0 {
		headers, err := parseOrderedHeaders(doc.Headers)
		if err != nil {
			return tpl, err
		}
		tpl.Headers = headers
	}
	tpl.Payload = rawPayloadText(doc.Payload)
	return tpl, nil
}

func parseModelsDescriptor(raw json.RawMessage) (cbtypes.ModelsDescriptor, error) {
	if !isJSONObject(raw) {
		return cbtypes.ModelsDescriptor{}, fmt.Errorf("models key is not an object")
	}
	var doc struct {
		Endpoint string          `json:"endpoint"`
		Method   string          `json:"method"`
		Result   string          `json:"result"`
		Headers  json.RawMessage `json:"headers"`
		Payload  json.RawMessage `json:"payload"`
	}
	doc.Method = "GET"
	doc.Result = "data"
	if err := json.Unmarshal(raw, &doc); err != nil {
		return cbtypes.ModelsDescriptor{}, err
	}
	desc := cbtypes.ModelsDescriptor{
		Endpoint:   doc.Endpoint,
		Method:     doc.Method,
		ResultPath: doc.Result,
	}
	if len(doc.Headers) > 0 {
		headers, err := parseOrderedHeaders(doc.Headers)
		if err != nil {
			return desc, err
		}
		desc.Headers = headers
	}
	desc.Payload = rawPayloadText(doc.Payload)
	return desc, nil
}

// rawPayloadText turns the payload value into the template body text: a
// JSON string value is used directly, any other value is re-encoded
// compactly. This lets definition files write payloads as readable JSON
// objects while templates stay plain text with placeholders.
func rawPayloadText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return ""
	}
	return buf.String()
}

// parseOrderedHeaders decodes a JSON object into header pairs preserving
// document order, which map decoding would lose.
func parseOrderedHeaders(raw json.RawMessage) ([]cbtypes.HeaderPair, error) {
	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("invalid headers object: %w", err)
	}
	keys, err := objectKeyOrder(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid headers object: %w", err)
	}
	headers := make([]cbtypes.HeaderPair, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, cbtypes.HeaderPair{Key: k, Value: values[k]})
	}
	return headers, nil
}

// objectKeyOrder returns the top-level keys of a JSON object in document
// order.
func objectKeyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("not a JSON object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys, err
		}
		key, ok := tok.(string)
		if !ok {
			return keys, fmt.Errorf("unexpected token %v", tok)
		}
		keys = append(keys, key)
		// Skip the value belonging to this key.
		var discard json.RawMessage
		if err := dec.Decode(&discard); err != nil {
			return keys, err
		}
	}
	return keys, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
