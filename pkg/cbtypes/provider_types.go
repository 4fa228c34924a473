// Package cbtypes defines provider-related data structures for the cbfilter engine.
// This file contains the core types for representing API providers and their
// declarative request templates, loaded from apidef/<provider>.json documents.
package cbtypes

import "strings"

// IOType is the input or output kind of a filter or template.
type IOType string

// Filter input/output kinds. The persisted configuration uses the
// literal strings "text" and "image".
const (
	IOText  IOType = "text"
	IOImage IOType = "image"
)

// ParseIOType converts a configuration string to an IOType.
// Anything that is not "image" (case-insensitive) is treated as text.
func ParseIOType(s string) IOType {
	if strings.EqualFold(strings.TrimSpace(s), string(IOImage)) {
		return IOImage
	}
	return IOText
}

// HeaderPair is one HTTP header entry. Templates declare headers as an
// ordered list because providers can be sensitive to header order and
// values may contain placeholders.
type HeaderPair struct {
	Key   string
	Value string
}

// TemplateDefinition is a declarative description of one (input, output)
// API call for a provider. Instances are created at catalog load and are
// immutable afterwards.
type TemplateDefinition struct {
	// ID is unique within the owning provider. By convention it is
	// "<input>-<output>", e.g. "text-image".
	ID string

	// ProviderID is the id of the owning provider.
	ProviderID string

	// Input and Output are the template's declared IO kinds, parsed
	// from the template id at the first hyphen.
	Input  IOType
	Output IOType

	// Endpoint is the endpoint fragment. It may be a full URL, in which
	// case it overrides the model's server URL entirely.
	Endpoint string

	// ResultPath is a dotted/indexed address into the parsed JSON
	// response (e.g. "choices[0].message.content"). May be empty.
	ResultPath string

	// Headers are rendered with placeholder substitution but without
	// JSON escaping.
	Headers []HeaderPair

	// Payload is the raw request body template, typically JSON text
	// containing placeholders. Substituted values are JSON-escaped.
	Payload string
}

// ModelsDescriptor describes a provider's optional "list models" call.
type ModelsDescriptor struct {
	Endpoint   string
	Method     string
	Headers    []HeaderPair
	Payload    string
	ResultPath string
}

// Defined reports whether the provider declared a models endpoint at all.
func (d ModelsDescriptor) Defined() bool {
	return d.Endpoint != ""
}

// APIProvider is a named API vendor grouping one or more templates and
// an optional model-listing descriptor.
type APIProvider struct {
	// ID is the provider identifier (the definition file's stem),
	// unique and case-sensitive.
	ID string

	// DefaultEndpoint is the provider's default server URL, used when a
	// model configuration leaves the server URL empty.
	DefaultEndpoint string

	// Templates are kept in definition order; FindTemplateAny relies on
	// that order for first-match-wins lookups.
	Templates []TemplateDefinition

	// Models is the optional model discovery descriptor.
	Models ModelsDescriptor
}

// FindTemplateByIO returns the provider's first template matching the
// given input and output kinds, or nil.
func (p *APIProvider) FindTemplateByIO(input, output IOType) *TemplateDefinition {
	for i := range p.Templates {
		if p.Templates[i].Input == input && p.Templates[i].Output == output {
			return &p.Templates[i]
		}
	}
	return nil
}
