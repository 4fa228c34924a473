package services

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbfilter/pkg/cbtypes"
)

func newTestDiscovery(t *testing.T) *ModelDiscoveryService {
	t.Helper()
	placeholders := NewPlaceholderService()
	require.NoError(t, placeholders.Initialize())
	transport := NewHTTPRequestService()
	require.NoError(t, transport.Initialize())
	service := NewModelDiscoveryService(placeholders, transport)
	require.NoError(t, service.Initialize())
	return service
}

func TestNewModelDiscoveryService(t *testing.T) {
	service := NewModelDiscoveryService(NewPlaceholderService(), NewHTTPRequestService())
	assert.NotNil(t, service)
	assert.Equal(t, "model_discovery", service.Name())
	assert.False(t, service.initialized)
}

func TestModelDiscoveryService_Initialize_LoadsPatterns(t *testing.T) {
	service := newTestDiscovery(t)
	assert.NotEmpty(t, service.LLMPatterns())
	assert.NotEmpty(t, service.ImagePatterns())
}

func TestModelDiscoveryService_FetchModels_NoDescriptor(t *testing.T) {
	service := newTestDiscovery(t)
	provider := &cbtypes.APIProvider{ID: "openai"}
	_, err := service.FetchModels(provider, "https://api.openai.com", "sk-1")
	assert.ErrorIs(t, err, ErrNoModelsEndpoint)
}

func TestModelDiscoveryService_FetchModels_ObjectList(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o"},{"id":"gpt-4o-mini"},{"object":"noid"}]}`))
	}))
	defer server.Close()

	service := newTestDiscovery(t)
	provider := &cbtypes.APIProvider{
		ID: "openai",
		Models: cbtypes.ModelsDescriptor{
			Endpoint:   "/v1/models",
			Method:     "GET",
			Headers:    []cbtypes.HeaderPair{{Key: "Authorization", Value: "Bearer <<api_key>>"}},
			ResultPath: "data",
		},
	}

	models, err := service.FetchModels(provider, server.URL, "sk-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, models)
	assert.Equal(t, "GET", gotMethod)
	assert.Equal(t, "/v1/models", gotPath)
	assert.Equal(t, "Bearer sk-1", gotAuth)
}

func TestModelDiscoveryService_FetchModels_StringListAndNestedPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"models":["alpha","beta"]}}`))
	}))
	defer server.Close()

	service := newTestDiscovery(t)
	provider := &cbtypes.APIProvider{
		ID: "custom",
		Models: cbtypes.ModelsDescriptor{
			Endpoint: "/models",
			// Empty segments in the path are skipped.
			ResultPath: "result..models",
		},
	}

	models, err := service.FetchModels(provider, server.URL, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, models)
}

func TestModelDiscoveryService_FetchModels_PostWithPayload(t *testing.T) {
	var gotMethod, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`{"data":[{"id":"m1"}]}`))
	}))
	defer server.Close()

	service := newTestDiscovery(t)
	provider := &cbtypes.APIProvider{
		ID: "custom",
		Models: cbtypes.ModelsDescriptor{
			Endpoint:   "/models",
			Method:     "Post",
			Payload:    `{"key":"<<api_key>>"}`,
			ResultPath: "data",
		},
	}

	models, err := service.FetchModels(provider, server.URL, "sk-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, models)
	assert.Equal(t, "POST", gotMethod)
	// Models payloads are substituted without JSON escaping.
	assert.Equal(t, `{"key":"sk-2"}`, gotBody)
}

func TestModelDiscoveryService_FetchModels_EmptyListFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	service := newTestDiscovery(t)
	provider := &cbtypes.APIProvider{
		ID:     "custom",
		Models: cbtypes.ModelsDescriptor{Endpoint: "/models", ResultPath: "data"},
	}

	_, err := service.FetchModels(provider, server.URL, "")
	assert.Error(t, err)
}

func TestModelDiscoveryService_FetchModels_BadPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"not":"an array"}}`))
	}))
	defer server.Close()

	service := newTestDiscovery(t)
	provider := &cbtypes.APIProvider{
		ID:     "custom",
		Models: cbtypes.ModelsDescriptor{Endpoint: "/models", ResultPath: "data.missing.deeper"},
	}

	_, err := service.FetchModels(provider, server.URL, "")
	assert.Error(t, err)
}

func TestModelDiscoveryService_FetchModels_ErrorStatusWithBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"data":[{"id":"still-listed"}]}`))
	}))
	defer server.Close()

	service := newTestDiscovery(t)
	provider := &cbtypes.APIProvider{
		ID:     "custom",
		Models: cbtypes.ModelsDescriptor{Endpoint: "/models", ResultPath: "data"},
	}

	// A non-2xx status with a parseable body still yields the list.
	models, err := service.FetchModels(provider, server.URL, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"still-listed"}, models)
}

func TestPickModelByPatterns(t *testing.T) {
	models := []string{"gpt-4o", "gpt-4o-mini", "dall-e-3"}

	// Earlier patterns win even when a later pattern matches an earlier
	// model in the list.
	assert.Equal(t, "gpt-4o-mini", PickModelByPatterns(models, []string{`gpt-.*-mini`, `gpt-.*`}))
	assert.Equal(t, "gpt-4o", PickModelByPatterns(models, []string{`gpt-.*`, `gpt-.*-mini`}))

	// Matching is case-insensitive.
	assert.Equal(t, "gpt-4o", PickModelByPatterns(models, []string{`GPT-.*`}))

	// No pattern matches: first model is the default.
	assert.Equal(t, "gpt-4o", PickModelByPatterns(models, []string{`claude-.*`}))

	// Invalid patterns are skipped, not fatal.
	assert.Equal(t, "dall-e-3", PickModelByPatterns(models, []string{`[`, `dall-.*`}))

	assert.Equal(t, "", PickModelByPatterns(nil, []string{`gpt-.*`}))
}
