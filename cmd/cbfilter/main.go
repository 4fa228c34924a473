// Package main provides the cbfilter CLI application entry point.
// cbfilter runs AI clipboard filters: it reads the clipboard, sends the
// content through a configured provider template and writes the result
// back to the clipboard.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cbfilter/internal/clipboard"
	enginectx "cbfilter/internal/context"
	"cbfilter/internal/logger"
	"cbfilter/internal/services"
	"cbfilter/pkg/cbtypes"
)

var (
	logLevel  string
	logFile   string
	configDir string
	version   = "0.1.0" // This could be set at build time
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cbfilter",
	Short: "cbfilter - AI clipboard filters",
	Long: `cbfilter sends the clipboard content through a configured AI filter
and replaces the clipboard with the result. Filters, models and API
providers are defined in the configuration directory.`,
}

// runCmd executes one filter against the current clipboard content
var runCmd = &cobra.Command{
	Use:   "run <filter>",
	Short: "Run a filter against the current clipboard",
	Long: `Run the named filter once: read the clipboard, call the filter's
model and write the result back to the clipboard.`,
	Args: cobra.ExactArgs(1),
	Run:  runFilter,
}

// filtersCmd lists the configured filters
var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "List configured filters",
	Run:   listFilters,
}

// modelsCmd lists the models a provider offers
var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List the models offered by a provider",
	Args:  cobra.MaximumNArgs(1),
	Run:   listModels,
}

// setupCmd provisions a first-run configuration
var setupCmd = &cobra.Command{
	Use:   "setup [provider]",
	Short: "Create default models and filters for a provider",
	Long: `Fetch the provider's model list, pick suitable text and image models
and write a default configuration with one model per filter kind.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runSetup,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("cbfilter v%s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory [default: user config dir]")

	if err := viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-file flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("config-dir", rootCmd.PersistentFlags().Lookup("config-dir")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding config-dir flag: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(filtersCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if err := logger.Configure(logLevel, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	if configDir == "" {
		configDir = viper.GetString("config-dir")
	}
	if configDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			logger.Fatal("Cannot determine configuration directory", "error", err)
		}
		configDir = filepath.Join(base, "cbfilter")
	}
}

// engine bundles the initialized services every subcommand needs.
type engine struct {
	context   *enginectx.EngineContext
	catalog   *services.ProviderCatalogService
	builder   *services.RequestBuilderService
	transport *services.HTTPRequestService
	extractor *services.ResponseExtractorService
	discovery *services.ModelDiscoveryService
	config    *services.ConfigurationService
}

// initEngine wires the service registry, loads the provider catalog and
// the user configuration.
func initEngine() (*engine, error) {
	registry := services.NewRegistry()
	services.SetGlobalRegistry(registry)

	placeholders := services.NewPlaceholderService()
	transport := services.NewHTTPRequestService()
	catalog := services.NewProviderCatalogService()
	extractor := services.NewResponseExtractorService()
	builder := services.NewRequestBuilderService(placeholders)
	discovery := services.NewModelDiscoveryService(placeholders, transport)
	secrets := services.NewSecretStoreService(configDir)
	config := services.NewConfigurationService(configDir, secrets)

	for _, svc := range []cbtypes.Service{
		placeholders, transport, catalog, extractor, builder, discovery, secrets, config,
	} {
		if err := registry.RegisterService(svc); err != nil {
			return nil, err
		}
	}
	if err := registry.InitializeAll(); err != nil {
		return nil, err
	}

	if err := catalog.LoadFromDirectory(filepath.Join(configDir, "apidef")); err != nil {
		return nil, err
	}

	ctx := enginectx.New()
	ctx.SetProviders(catalog.Providers())
	if err := config.Load(ctx); err != nil {
		return nil, err
	}

	return &engine{
		context:   ctx,
		catalog:   catalog,
		builder:   builder,
		transport: transport,
		extractor: extractor,
		discovery: discovery,
		config:    config,
	}, nil
}

func runFilter(_ *cobra.Command, args []string) {
	eng, err := initEngine()
	if err != nil {
		logger.Fatal("Failed to initialize services", "error", err)
	}

	var filter *cbtypes.FilterDefinition
	for _, f := range eng.context.Filters() {
		if strings.EqualFold(f.Title, args[0]) {
			filter = &f
			break
		}
	}
	if filter == nil {
		logger.Fatal("Unknown filter", "filter", args[0])
	}

	clip := clipboard.NewSystemClipboard()
	if err := clip.Init(); err != nil {
		logger.Fatal("Clipboard unavailable", "error", err)
	}

	executor := services.NewFilterExecutorService(
		eng.context, eng.catalog, eng.builder, eng.transport, eng.extractor, clip, clip)
	if err := executor.Initialize(); err != nil {
		logger.Fatal("Failed to initialize filter executor", "error", err)
	}

	if err := executor.ExecuteAndWait(*filter); err != nil {
		logger.Fatal("Filter failed", "filter", filter.Title, "error", err)
	}
	fmt.Printf("Filter %q applied, result is on the clipboard.\n", filter.Title)
}

func listFilters(_ *cobra.Command, _ []string) {
	eng, err := initEngine()
	if err != nil {
		logger.Fatal("Failed to initialize services", "error", err)
	}

	filters := eng.context.Filters()
	if len(filters) == 0 {
		fmt.Println("No filters configured. Run 'cbfilter setup' first.")
		return
	}
	for _, f := range filters {
		modelName := "(none)"
		if m, ok := eng.context.ModelAt(f.ModelIndex); ok {
			modelName = m.Name
		}
		fmt.Printf("%-20s %s -> %s  model: %s\n", f.Title, f.Input, f.Output, modelName)
	}
}

func listModels(_ *cobra.Command, args []string) {
	eng, err := initEngine()
	if err != nil {
		logger.Fatal("Failed to initialize services", "error", err)
	}

	providerID := ""
	if len(args) > 0 {
		providerID = args[0]
	}
	provider := eng.context.FindProviderByID(services.NormalizeProviderID(providerID))
	if provider == nil {
		provider = eng.context.FirstProvider()
	}
	if provider == nil {
		logger.Fatal("No API providers loaded")
	}

	models, err := eng.discovery.FetchModels(provider, provider.DefaultEndpoint, apiKeyFor(eng.context, provider.ID))
	if err != nil {
		logger.Fatal("Failed to list models", "provider", provider.ID, "error", err)
	}
	for _, m := range models {
		fmt.Println(m)
	}
}

func runSetup(_ *cobra.Command, args []string) {
	eng, err := initEngine()
	if err != nil {
		logger.Fatal("Failed to initialize services", "error", err)
	}

	providerID := ""
	if len(args) > 0 {
		providerID = args[0]
	}
	providerID = services.NormalizeProviderID(providerID)

	setup := services.NewSetupService(eng.context, eng.discovery, eng.config)
	if err := setup.Initialize(); err != nil {
		logger.Fatal("Failed to initialize setup service", "error", err)
	}
	if err := setup.Run(providerID, apiKeyFor(eng.context, providerID)); err != nil {
		logger.Fatal("Setup failed", "error", err)
	}
	fmt.Printf("Configuration written to %s\n", eng.config.ConfigPath())
}

// apiKeyFor finds an API key for the provider: a configured model's key
// first, the CBFILTER_API_KEY environment variable otherwise.
func apiKeyFor(ctx *enginectx.EngineContext, providerID string) string {
	for _, m := range ctx.Models() {
		if m.ProviderID == providerID && m.APIKey != "" {
			return m.APIKey
		}
	}
	return os.Getenv("CBFILTER_API_KEY")
}
