package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbfilter/pkg/cbtypes"
)

func TestNewPlaceholderService(t *testing.T) {
	service := NewPlaceholderService()
	assert.NotNil(t, service)
	assert.Equal(t, "placeholder", service.Name())
	assert.False(t, service.initialized)
}

func TestPlaceholderService_Initialize(t *testing.T) {
	service := NewPlaceholderService()
	err := service.Initialize()
	assert.NoError(t, err)
	assert.True(t, service.initialized)
}

func TestPlaceholderService_Substitute_AllTokens(t *testing.T) {
	service := NewPlaceholderService()
	require.NoError(t, service.Initialize())

	ctx := PlaceholderContext{
		Model: cbtypes.ModelConfig{
			ModelName: "gpt-4o-mini",
			APIKey:    "sk-test",
		},
		SystemPrompt: "do the thing",
		Prompt:       "hello world",
		ImageB64:     "QUJD",
		ImageDataURL: "data:image/png;base64,QUJD",
	}

	src := "<<model>>|<<system_prompt>>|<<prompt>>|<<input_text>>|<<api_key>>|<<image_url>>|<<image>>"
	out := service.Substitute(src, ctx, false)
	assert.Equal(t, "gpt-4o-mini|do the thing|hello world|hello world|sk-test|data:image/png;base64,QUJD|QUJD", out)
}

func TestPlaceholderService_Substitute_JSONEscaping(t *testing.T) {
	service := NewPlaceholderService()
	require.NoError(t, service.Initialize())

	ctx := PlaceholderContext{
		Prompt: "line one\nsay \"hi\"\t\\done",
	}

	out := service.Substitute(`{"content":"<<prompt>>"}`, ctx, true)
	assert.Equal(t, `{"content":"line one\nsay \"hi\"\t\\done"}`, out)

	// Without escaping the value is inserted verbatim.
	raw := service.Substitute("<<prompt>>", ctx, false)
	assert.Equal(t, "line one\nsay \"hi\"\t\\done", raw)
}

func TestPlaceholderService_Substitute_UnknownTokensKept(t *testing.T) {
	service := NewPlaceholderService()
	require.NoError(t, service.Initialize())

	out := service.Substitute("keep <<something_else>> as is", PlaceholderContext{}, false)
	assert.Equal(t, "keep <<something_else>> as is", out)
}

func TestPlaceholderService_Substitute_ValueContainingToken(t *testing.T) {
	service := NewPlaceholderService()
	require.NoError(t, service.Initialize())

	// A substituted value that itself looks like an already processed
	// token must not trigger a second substitution round.
	ctx := PlaceholderContext{
		Model:  cbtypes.ModelConfig{ModelName: "m"},
		Prompt: "mention <<model>> literally",
	}
	out := service.Substitute("<<model>> <<prompt>>", ctx, false)
	assert.Equal(t, "m mention <<model>> literally", out)
}

func TestPlaceholderService_Substitute_RepeatedTokens(t *testing.T) {
	service := NewPlaceholderService()
	require.NoError(t, service.Initialize())

	ctx := PlaceholderContext{Model: cbtypes.ModelConfig{ModelName: "m"}}
	out := service.Substitute("<<model>>-<<model>>-<<model>>", ctx, false)
	assert.Equal(t, "m-m-m", out)
}
