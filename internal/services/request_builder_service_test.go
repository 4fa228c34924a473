package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbfilter/pkg/cbtypes"
)

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		serverBase string
		fragment   string
		wantHost   string
		wantPath   string
		wantSecure bool
		wantOK     bool
	}{
		{
			name:       "empty fragment uses chat completions default",
			serverBase: "https://api.openai.com",
			fragment:   "",
			wantHost:   "api.openai.com",
			wantPath:   "/v1/chat/completions",
			wantSecure: true,
			wantOK:     true,
		},
		{
			name:       "fragment appended to base",
			serverBase: "https://api.openai.com",
			fragment:   "/v1/images/generations",
			wantHost:   "api.openai.com",
			wantPath:   "/v1/images/generations",
			wantSecure: true,
			wantOK:     true,
		},
		{
			name:       "absolute fragment replaces base",
			serverBase: "https://api.openai.com",
			fragment:   "https://other.example.com/v2/run",
			wantHost:   "other.example.com",
			wantPath:   "/v2/run",
			wantSecure: true,
			wantOK:     true,
		},
		{
			name:       "path embedded in base host is extracted",
			serverBase: "https://generativelanguage.googleapis.com/v1beta/openai",
			fragment:   "/chat/completions",
			wantHost:   "generativelanguage.googleapis.com",
			wantPath:   "/v1beta/openai/chat/completions",
			wantSecure: true,
			wantOK:     true,
		},
		{
			name:       "http base is not secure",
			serverBase: "http://localhost:8080",
			fragment:   "/v1/chat/completions",
			wantHost:   "localhost:8080",
			wantPath:   "/v1/chat/completions",
			wantSecure: false,
			wantOK:     true,
		},
		{
			name:       "empty host fails",
			serverBase: "",
			fragment:   "",
			wantOK:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, ok := ResolveEndpoint(tt.serverBase, tt.fragment)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantHost, endpoint.Host)
			assert.Equal(t, tt.wantPath, endpoint.Path)
			assert.Equal(t, tt.wantSecure, endpoint.Secure)
		})
	}
}

func TestResolveEndpoint_LeadingSlashEquivalence(t *testing.T) {
	withSlash, ok1 := ResolveEndpoint("https://api.openai.com", "/v1/models")
	withoutSlash, ok2 := ResolveEndpoint("https://api.openai.com", "v1/models")
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, withSlash, withoutSlash)
}

func TestNewRequestBuilderService(t *testing.T) {
	service := NewRequestBuilderService(NewPlaceholderService())
	assert.NotNil(t, service)
	assert.Equal(t, "request_builder", service.Name())
	assert.False(t, service.initialized)
}

func TestRequestBuilderService_Initialize_RequiresPlaceholders(t *testing.T) {
	service := NewRequestBuilderService(nil)
	err := service.Initialize()
	assert.Error(t, err)
}

func newTestBuilder(t *testing.T) *RequestBuilderService {
	t.Helper()
	placeholders := NewPlaceholderService()
	require.NoError(t, placeholders.Initialize())
	builder := NewRequestBuilderService(placeholders)
	require.NoError(t, builder.Initialize())
	return builder
}

func TestRequestBuilderService_Build_JSONPayload(t *testing.T) {
	builder := newTestBuilder(t)

	tpl := &cbtypes.TemplateDefinition{
		ID:       "text-text",
		Endpoint: "/v1/chat/completions",
		Headers: []cbtypes.HeaderPair{
			{Key: "Authorization", Value: "Bearer <<api_key>>"},
			{Key: "Content-Type", Value: "application/json"},
		},
		Payload: `{"model":"<<model>>","messages":[{"role":"user","content":"<<prompt>>"}]}`,
	}
	ctx := PlaceholderContext{
		Model:  cbtypes.ModelConfig{ModelName: "gpt-4o", APIKey: "sk-1"},
		Prompt: "say \"hi\"",
	}

	request, err := builder.Build(tpl, "https://api.openai.com", ctx)
	require.NoError(t, err)
	assert.Equal(t, "api.openai.com", request.Endpoint.Host)
	assert.Equal(t, "/v1/chat/completions", request.Endpoint.Path)
	assert.True(t, request.Endpoint.Secure)

	require.Len(t, request.Headers, 2)
	assert.Equal(t, "Bearer sk-1", request.Headers[0].Value)
	assert.Equal(t, "application/json", request.Headers[1].Value)

	// Payload values are JSON-escaped, header values are not.
	assert.Equal(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"say \"hi\""}]}`, string(request.Body))
}

func TestRequestBuilderService_Build_MultipartDetection(t *testing.T) {
	builder := newTestBuilder(t)

	tpl := &cbtypes.TemplateDefinition{
		ID:       "image-image",
		Endpoint: "/v1/images/edits",
		Headers: []cbtypes.HeaderPair{
			{Key: "Authorization", Value: "Bearer <<api_key>>"},
			{Key: "Content-Type", Value: "MULTIPART/Form-Data"},
		},
		Payload: `ignored for multipart`,
	}
	ctx := PlaceholderContext{
		Model:    cbtypes.ModelConfig{ModelName: "gpt-image-1", APIKey: "sk-1"},
		Prompt:   "make it blue",
		ImageB64: "iVBORw0KGgo=",
	}

	request, err := builder.Build(tpl, "https://api.openai.com", ctx)
	require.NoError(t, err)

	contentType := request.Headers[1].Value
	require.Contains(t, contentType, "; boundary=")
	boundary := contentType[strings.Index(contentType, "boundary=")+len("boundary="):]
	require.NotEmpty(t, boundary)

	body := string(request.Body)
	assert.Contains(t, body, "--"+boundary+"\r\n")
	assert.Contains(t, body, `name="model"`)
	assert.Contains(t, body, "gpt-image-1")
	assert.Contains(t, body, `name="prompt"`)
	assert.Contains(t, body, "make it blue")
	assert.Contains(t, body, `filename="image.png"`)
	assert.Contains(t, body, "Content-Type: image/png")
	assert.True(t, strings.HasSuffix(body, "--"+boundary+"--\r\n"))
}

func TestRequestBuilderService_Build_MultipartBoundaryUnique(t *testing.T) {
	builder := newTestBuilder(t)

	tpl := &cbtypes.TemplateDefinition{
		Endpoint: "/v1/images/edits",
		Headers:  []cbtypes.HeaderPair{{Key: "Content-Type", Value: "multipart/form-data"}},
	}
	ctx := PlaceholderContext{Model: cbtypes.ModelConfig{ModelName: "m"}}

	first, err := builder.Build(tpl, "https://api.openai.com", ctx)
	require.NoError(t, err)
	second, err := builder.Build(tpl, "https://api.openai.com", ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Headers[0].Value, second.Headers[0].Value)
}

func TestRequestBuilderService_Build_NonMultipartBodyUntouched(t *testing.T) {
	builder := newTestBuilder(t)

	tpl := &cbtypes.TemplateDefinition{
		Endpoint: "/v1/chat/completions",
		Headers:  []cbtypes.HeaderPair{{Key: "Content-Type", Value: "application/json"}},
		Payload:  `{"model":"<<model>>"}`,
	}
	request, err := builder.Build(tpl, "https://api.openai.com", PlaceholderContext{
		Model: cbtypes.ModelConfig{ModelName: "gpt-4o"},
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", request.Headers[0].Value)
	assert.Equal(t, `{"model":"gpt-4o"}`, string(request.Body))
}

func TestRequestBuilderService_Build_UnresolvableEndpoint(t *testing.T) {
	builder := newTestBuilder(t)

	tpl := &cbtypes.TemplateDefinition{Endpoint: "/v1/chat/completions"}
	_, err := builder.Build(tpl, "", PlaceholderContext{})
	assert.Error(t, err)
}
