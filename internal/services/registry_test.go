package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()
	assert.NotNil(t, registry)
	assert.Empty(t, registry.GetAllServices())
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	service := NewPlaceholderService()

	require.NoError(t, registry.RegisterService(service))

	got, err := registry.GetService("placeholder")
	require.NoError(t, err)
	assert.Same(t, service, got)

	// Registering the same name twice fails.
	err = registry.RegisterService(NewPlaceholderService())
	assert.Error(t, err)
}

func TestRegistry_GetService_NotFound(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.GetService("missing")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRegistry_InitializeAll(t *testing.T) {
	registry := NewRegistry()
	placeholder := NewPlaceholderService()
	transport := NewHTTPRequestService()
	require.NoError(t, registry.RegisterService(placeholder))
	require.NoError(t, registry.RegisterService(transport))

	require.NoError(t, registry.InitializeAll())
	assert.True(t, placeholder.initialized)
	assert.True(t, transport.initialized)
}

func TestRegistry_InitializeAll_PropagatesFailure(t *testing.T) {
	registry := NewRegistry()
	// A request builder without a placeholder service fails to initialize.
	require.NoError(t, registry.RegisterService(NewRequestBuilderService(nil)))
	assert.Error(t, registry.InitializeAll())
}

func TestGlobalRegistry(t *testing.T) {
	original := GetGlobalRegistry()
	defer SetGlobalRegistry(original)

	replacement := NewRegistry()
	SetGlobalRegistry(replacement)
	assert.Same(t, replacement, GetGlobalRegistry())
}
