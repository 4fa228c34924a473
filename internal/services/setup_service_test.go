package services

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginectx "cbfilter/internal/context"
	"cbfilter/pkg/cbtypes"
)

func newSetupFixture(t *testing.T, serverURL string) (*SetupService, *enginectx.EngineContext, *ConfigurationService) {
	t.Helper()

	discovery := newTestDiscovery(t)
	config := newTestConfiguration(t, t.TempDir())

	engine := enginectx.New()
	engine.SetProviders([]cbtypes.APIProvider{{
		ID:              "openai",
		DefaultEndpoint: serverURL,
		Models: cbtypes.ModelsDescriptor{
			Endpoint:   "/v1/models",
			Method:     "GET",
			ResultPath: "data",
		},
		Templates: []cbtypes.TemplateDefinition{
			{ID: "text-text", Input: cbtypes.IOText, Output: cbtypes.IOText},
			{ID: "text-image", Input: cbtypes.IOText, Output: cbtypes.IOImage},
		},
	}})

	setup := NewSetupService(engine, discovery, config)
	require.NoError(t, setup.Initialize())
	return setup, engine, config
}

func TestNewSetupService(t *testing.T) {
	service := NewSetupService(nil, nil, nil)
	assert.Equal(t, "setup", service.Name())
	assert.Error(t, service.Initialize())
}

func TestSetupService_Run(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"},{"id":"gpt-4o-mini"},{"id":"gpt-image-1-mini"}]}`))
	}))
	defer server.Close()

	setup, engine, config := newSetupFixture(t, server.URL)
	require.NoError(t, setup.Run("openai", "sk-test"))

	models := engine.Models()
	require.Len(t, models, 4)
	// Text outputs get the preferred LLM, image outputs the image model.
	assert.Equal(t, "gpt-4o-mini", models[0].ModelName)
	assert.Equal(t, "gpt-image-1-mini", models[1].ModelName)
	assert.Equal(t, "gpt-4o-mini", models[2].ModelName)
	assert.Equal(t, "gpt-image-1-mini", models[3].ModelName)
	for _, m := range models {
		assert.Equal(t, "openai", m.ProviderID)
		assert.Equal(t, server.URL, m.ServerURL)
		assert.Equal(t, "sk-test", m.APIKey)
	}

	filters := engine.Filters()
	require.NotEmpty(t, filters)
	for _, f := range filters {
		model, ok := engine.ModelAt(f.ModelIndex)
		require.True(t, ok)
		if f.Output == cbtypes.IOImage {
			assert.Equal(t, "gpt-image-1-mini", model.ModelName)
		} else {
			assert.Equal(t, "gpt-4o-mini", model.ModelName)
		}
	}

	// The configuration was persisted.
	_, err := os.Stat(config.ConfigPath())
	assert.NoError(t, err)
}

func TestSetupService_Run_KeepsExistingFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"}]}`))
	}))
	defer server.Close()

	setup, engine, _ := newSetupFixture(t, server.URL)
	engine.SetFilters([]cbtypes.FilterDefinition{{
		Title:  "My filter",
		Input:  cbtypes.IOText,
		Output: cbtypes.IOText,
		Prompt: "custom",
	}})

	require.NoError(t, setup.Run("openai", "sk"))
	filters := engine.Filters()
	require.Len(t, filters, 1)
	assert.Equal(t, "My filter", filters[0].Title)
	assert.Equal(t, 0, filters[0].ModelIndex)
}

func TestSetupService_Run_UnknownProviderFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"}]}`))
	}))
	defer server.Close()

	setup, engine, _ := newSetupFixture(t, server.URL)
	require.NoError(t, setup.Run("no-such", "sk"))
	require.NotEmpty(t, engine.Models())
	assert.Equal(t, "openai", engine.Models()[0].ProviderID)
}

func TestSetupService_Run_FetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	setup, engine, _ := newSetupFixture(t, server.URL)
	assert.Error(t, setup.Run("openai", "sk"))
	assert.Empty(t, engine.Models())
}
