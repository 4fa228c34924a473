// Package embedded provides access to embedded default data files.
// The binary ships with a fallback provider catalog, default settings,
// and the policy tables for model selection and image extraction, so a
// fresh install works before any apidef directory exists on disk.
package embedded

import "embed"

// APIDefFS contains the embedded default provider definition documents,
// one JSON file per provider, in the same format as apidef/*.json on disk.
//
//go:embed apidef/*.json
var APIDefFS embed.FS

// DefaultSettingsData contains the embedded default configuration used
// when no config.json or defconf.json exists yet.
//
//go:embed defconf.json
var DefaultSettingsData []byte

// PolicyData contains the embedded YAML policy tables: ordered model
// preference patterns and the image extraction strategy order.
//
//go:embed policies.yaml
var PolicyData []byte
