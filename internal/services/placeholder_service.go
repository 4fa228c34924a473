// Package services provides the cbfilter engine services: catalog
// loading, placeholder substitution, request building, response
// extraction, model discovery and filter execution.
package services

import (
	"strings"

	"cbfilter/internal/logger"
	"cbfilter/pkg/cbtypes"
)

// Placeholder tokens recognized in template strings. Unknown tokens are
// left verbatim.
const (
	tokenModel        = "<<model>>"
	tokenSystemPrompt = "<<system_prompt>>"
	tokenPrompt       = "<<prompt>>"
	tokenInputText    = "<<input_text>>" // alias of <<prompt>>
	tokenAPIKey       = "<<api_key>>"
	tokenImageURL     = "<<image_url>>"
	tokenImage        = "<<image>>"
)

// PlaceholderContext carries the runtime values substituted into a
// template string for one API call.
type PlaceholderContext struct {
	Model        cbtypes.ModelConfig
	SystemPrompt string
	Prompt       string
	ImageB64     string
	ImageDataURL string
}

// PlaceholderService substitutes named tokens in template strings with
// runtime values. Substitution in payloads escapes values for embedding
// inside JSON string literals; headers and endpoints are substituted
// verbatim. That asymmetry is load-bearing: URLs and header values must
// not gain stray backslashes, payload values must not break JSON syntax.
type PlaceholderService struct {
	initialized bool
}

// NewPlaceholderService creates a new PlaceholderService instance.
func NewPlaceholderService() *PlaceholderService {
	return &PlaceholderService{}
}

// Name returns the service name "placeholder" for registration.
func (p *PlaceholderService) Name() string {
	return "placeholder"
}

// Initialize sets up the PlaceholderService for operation.
func (p *PlaceholderService) Initialize() error {
	p.initialized = true
	logger.ServiceOperation("placeholder", "initialize", "service ready")
	return nil
}

// Substitute replaces every occurrence of each recognized token in src
// with its runtime value. With escapeJSON set, every substituted value
// is escaped for safe embedding inside a JSON string literal.
func (p *PlaceholderService) Substitute(src string, ctx PlaceholderContext, escapeJSON bool) string {
	esc := func(v string) string {
		if escapeJSON {
			return jsonEscape(v)
		}
		return v
	}
	out := src
	out = strings.ReplaceAll(out, tokenModel, esc(ctx.Model.ModelName))
	out = strings.ReplaceAll(out, tokenSystemPrompt, esc(ctx.SystemPrompt))
	out = strings.ReplaceAll(out, tokenPrompt, esc(ctx.Prompt))
	out = strings.ReplaceAll(out, tokenInputText, esc(ctx.Prompt))
	out = strings.ReplaceAll(out, tokenAPIKey, esc(ctx.Model.APIKey))
	out = strings.ReplaceAll(out, tokenImageURL, esc(ctx.ImageDataURL))
	out = strings.ReplaceAll(out, tokenImage, esc(ctx.ImageB64))
	return out
}

// jsonEscape escapes a value for embedding inside a JSON string literal.
// Only the escapes the engine can produce are handled: backslash, double
// quote, newline, carriage return and tab.
func jsonEscape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
