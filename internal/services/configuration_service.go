package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	enginectx "cbfilter/internal/context"
	"cbfilter/internal/data/embedded"
	"cbfilter/internal/logger"
	"cbfilter/pkg/cbtypes"
)

const (
	configFileName  = "config.json"
	defaultFileName = "defconf.json"
	apiKeyEnvVar    = "CBFILTER_API_KEY"
)

// ConfigurationService loads and persists the user configuration. On
// load it falls back from config.json to a defconf.json template in the
// same directory, and finally to the embedded default settings. API keys
// are decrypted through the secret store on load and encrypted on save.
type ConfigurationService struct {
	initialized bool
	configDir   string
	secrets     cbtypes.SecretStore
}

// NewConfigurationService creates a configuration service rooted at
// configDir.
func NewConfigurationService(configDir string, secrets cbtypes.SecretStore) *ConfigurationService {
	return &ConfigurationService{configDir: configDir, secrets: secrets}
}

// Name returns the service name "configuration" for registration.
func (c *ConfigurationService) Name() string {
	return "configuration"
}

// Initialize sets up the ConfigurationService.
func (c *ConfigurationService) Initialize() error {
	if c.secrets == nil {
		return fmt.Errorf("configuration service requires a secret store")
	}
	c.initialized = true
	logger.ServiceOperation("configuration", "initialize", "dir", c.configDir)
	return nil
}

// ConfigPath returns the path of the active configuration file.
func (c *ConfigurationService) ConfigPath() string {
	return filepath.Join(c.configDir, configFileName)
}

// Load reads the configuration and applies it to the engine context.
// Entries with an empty model name or filter title are dropped. A .env
// file in the configuration directory may supply CBFILTER_API_KEY for
// models that carry no key of their own.
func (c *ConfigurationService) Load(ctx *enginectx.EngineContext) error {
	if !c.initialized {
		return fmt.Errorf("configuration service not initialized")
	}

	data, source, err := c.readSettingsData()
	if err != nil {
		return err
	}

	var raw cbtypes.Settings
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse %s: %w", source, err)
	}

	envKey := c.envAPIKey()

	settings := cbtypes.Settings{
		Language: raw.Language,
		Hotkey:   raw.Hotkey,
	}
	if settings.Language == "" {
		settings.Language = "en"
	}
	for _, m := range raw.Models {
		if m.Name == "" {
			continue
		}
		m.ProviderID = NormalizeProviderID(m.ProviderID)
		key, err := c.secrets.Unprotect(m.APIKey)
		if err != nil {
			logger.Warn("failed to decrypt api key, dropping it", "model", m.Name, "error", err)
			key = ""
		}
		if key == "" {
			key = envKey
		}
		m.APIKey = key
		settings.Models = append(settings.Models, m)
	}
	for _, f := range raw.Filters {
		if f.Title == "" {
			continue
		}
		settings.Filters = append(settings.Filters, f)
	}

	ctx.Apply(settings)
	ctx.EnsureModelProviders()
	logger.Debug("configuration loaded", "source", source,
		"models", len(settings.Models), "filters", len(settings.Filters))
	return nil
}

// Save writes the engine context's settings back to config.json. API
// keys are encrypted; when encryption fails the key is stored in the
// clear rather than lost. A write failure is logged and the in-memory
// state stays authoritative.
func (c *ConfigurationService) Save(ctx *enginectx.EngineContext) error {
	if !c.initialized {
		return fmt.Errorf("configuration service not initialized")
	}

	settings := ctx.Snapshot()
	for i, m := range settings.Models {
		if m.APIKey == "" {
			continue
		}
		protected, err := c.secrets.Protect(m.APIKey)
		if err != nil {
			logger.Warn("failed to encrypt api key, storing plaintext", "model", m.Name, "error", err)
			continue
		}
		settings.Models[i].APIKey = protected
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := os.MkdirAll(c.configDir, 0o755); err != nil {
		logger.Error("failed to create configuration directory", "dir", c.configDir, "error", err)
		return fmt.Errorf("failed to create configuration directory: %w", err)
	}
	if err := os.WriteFile(c.ConfigPath(), data, 0o600); err != nil {
		logger.Error("failed to write configuration", "path", c.ConfigPath(), "error", err)
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	logger.Debug("configuration saved", "path", c.ConfigPath())
	return nil
}

func (c *ConfigurationService) readSettingsData() ([]byte, string, error) {
	configPath := c.ConfigPath()
	if data, err := os.ReadFile(configPath); err == nil {
		return data, configPath, nil
	}
	defaultPath := filepath.Join(c.configDir, defaultFileName)
	if data, err := os.ReadFile(defaultPath); err == nil {
		return data, defaultPath, nil
	}
	return embedded.DefaultSettingsData, "embedded defaults", nil
}

func (c *ConfigurationService) envAPIKey() string {
	if env, err := godotenv.Read(filepath.Join(c.configDir, ".env")); err == nil {
		if key := env[apiKeyEnvVar]; key != "" {
			return key
		}
	}
	return os.Getenv(apiKeyEnvVar)
}
