// Package cbtypes defines configuration data structures for the cbfilter engine.
// This file contains the user-facing configuration types persisted in config.json.
package cbtypes

// ModelConfig is one configured AI model endpoint. The API key is held
// in plaintext in memory and persisted only in protected form.
type ModelConfig struct {
	Name       string `json:"name"`
	ServerURL  string `json:"serverUrl"`
	ModelName  string `json:"modelName"`
	APIKey     string `json:"apiKey"`
	ProviderID string `json:"providerId"`
}

// FilterDefinition is one clipboard transformation filter.
type FilterDefinition struct {
	Title string `json:"title"`

	// Input and Output are persisted as the literal strings "text" and
	// "image".
	Input  IOType `json:"input"`
	Output IOType `json:"output"`

	// ModelIndex indexes into the model list. Out-of-range indices are
	// clamped to 0 rather than treated as errors.
	ModelIndex int `json:"modelIndex"`

	Prompt string `json:"prompt"`
}

// HotkeyConfig is the persisted global hotkey. The engine round-trips it
// but never interprets it; hotkey capture lives outside the engine.
type HotkeyConfig struct {
	Modifiers uint `json:"modifiers"`
	Key       uint `json:"key"`
}

// Settings is the full persisted configuration document.
type Settings struct {
	Language string             `json:"language"`
	Hotkey   HotkeyConfig       `json:"hotkey"`
	Models   []ModelConfig      `json:"models"`
	Filters  []FilterDefinition `json:"filters"`
}
