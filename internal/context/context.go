// Package context provides the engine state object for cbfilter.
// It owns the loaded provider catalog and the user's model and filter
// lists, and is passed explicitly into engine services instead of living
// in package-level globals. The application shell is the single owner;
// models and filters are only mutated between filter runs, never
// concurrently with one.
package context

import (
	"sync"

	"cbfilter/pkg/cbtypes"
)

// EngineContext holds the provider catalog and user configuration for
// the duration of the process. The catalog is loaded once and treated as
// read-only afterwards.
type EngineContext struct {
	mu        sync.RWMutex
	providers []cbtypes.APIProvider
	models    []cbtypes.ModelConfig
	filters   []cbtypes.FilterDefinition
	language  string
	hotkey    cbtypes.HotkeyConfig
}

// New creates an empty EngineContext.
func New() *EngineContext {
	return &EngineContext{language: "en"}
}

// SetProviders installs the loaded provider catalog.
func (c *EngineContext) SetProviders(providers []cbtypes.APIProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = providers
}

// Providers returns the loaded provider catalog in load order.
func (c *EngineContext) Providers() []cbtypes.APIProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providers
}

// FindProviderByID returns the provider with the given id, or nil.
func (c *EngineContext) FindProviderByID(id string) *cbtypes.APIProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.providers {
		if c.providers[i].ID == id {
			return &c.providers[i]
		}
	}
	return nil
}

// FirstProvider returns the first catalog provider, or nil when the
// catalog is empty. Used as the fallback when a model names a provider
// that no longer exists.
func (c *EngineContext) FirstProvider() *cbtypes.APIProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.providers) == 0 {
		return nil
	}
	return &c.providers[0]
}

// SetModels replaces the model list.
func (c *EngineContext) SetModels(models []cbtypes.ModelConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = models
}

// Models returns the current model list.
func (c *EngineContext) Models() []cbtypes.ModelConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.models
}

// ModelAt returns the model at index, clamped to 0 when the index is out
// of range. Returns false only when the model list is empty.
func (c *EngineContext) ModelAt(index int) (cbtypes.ModelConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.models) == 0 {
		return cbtypes.ModelConfig{}, false
	}
	if index < 0 || index >= len(c.models) {
		index = 0
	}
	return c.models[index], true
}

// SetFilters replaces the filter list.
func (c *EngineContext) SetFilters(filters []cbtypes.FilterDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
}

// Filters returns the current filter list.
func (c *EngineContext) Filters() []cbtypes.FilterDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filters
}

// Language returns the configured UI language code.
func (c *EngineContext) Language() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.language
}

// SetLanguage sets the UI language code.
func (c *EngineContext) SetLanguage(lang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lang != "" {
		c.language = lang
	}
}

// Hotkey returns the persisted hotkey configuration.
func (c *EngineContext) Hotkey() cbtypes.HotkeyConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hotkey
}

// SetHotkey sets the persisted hotkey configuration.
func (c *EngineContext) SetHotkey(hk cbtypes.HotkeyConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hotkey = hk
}

// EnsureModelProviders backfills the first catalog provider's id onto
// models that have no provider set. No-op when the catalog is empty.
func (c *EngineContext) EnsureModelProviders() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.providers) == 0 {
		return
	}
	first := c.providers[0].ID
	for i := range c.models {
		if c.models[i].ProviderID == "" {
			c.models[i].ProviderID = first
		}
	}
}

// Snapshot returns the context state as a Settings document for
// persistence.
func (c *EngineContext) Snapshot() cbtypes.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	models := make([]cbtypes.ModelConfig, len(c.models))
	copy(models, c.models)
	filters := make([]cbtypes.FilterDefinition, len(c.filters))
	copy(filters, c.filters)
	return cbtypes.Settings{
		Language: c.language,
		Hotkey:   c.hotkey,
		Models:   models,
		Filters:  filters,
	}
}

// Apply installs a Settings document into the context.
func (c *EngineContext) Apply(s cbtypes.Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Language != "" {
		c.language = s.Language
	}
	c.hotkey = s.Hotkey
	c.models = s.Models
	c.filters = s.Filters
}
