package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/d365-mcp/internal/config"
	"github.com/custodia-labs/d365-mcp/internal/core/ports/driving"
	"github.com/custodia-labs/d365-mcp/internal/logger"
)

// skipServicesAnnotation marks commands that run without a configured environment.
const skipServicesAnnotation = "d365-mcp/skip-services"

var (
	// Version is set by goreleaser ldflags.
	version = "dev"

	// Verbose enables debug logging.
	verbose bool

	// configPath is the --config flag.
	configPath string

	// Services holds injected service implementations for CLI commands.
	toolService driving.ToolService
	mcpServer   Runner

	serviceFactory ServiceFactory
)

// Runner serves until ctx ends or the client disconnects.
type Runner interface {
	Run(ctx context.Context) error
}

// Services holds configuration for CLI commands.
type Services struct {
	Tools  driving.ToolService
	Server Runner
}

// ServiceFactory builds services once the configuration is loaded.
type ServiceFactory func(cfg *config.Config) (*Services, error)

// SetServices injects service implementations for CLI commands.
func SetServices(s *Services) {
	if s == nil {
		return
	}
	toolService = s.Tools
	mcpServer = s.Server
}

// SetServiceFactory registers the function that wires services from config.
// It runs before any command that needs services, unless services were
// already injected with SetServices.
func SetServiceFactory(f ServiceFactory) {
	serviceFactory = f
}

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "d365-mcp",
	Short: "MCP server for Dynamics 365 OData",
	Long: `d365-mcp gives tool-calling clients read-only access to a Dynamics 365
environment (Dataverse or Finance & Operations) over OData.

Run without a subcommand to serve MCP on stdio. The other commands call
the same tools directly from the shell.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI.
func SetVersion(v string) {
	version = v
}

// Version returns the version string.
func Version() string {
	return version
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose debug output")
	rootCmd.PersistentFlags().StringVarP(
		&configPath, "config", "c", "",
		"path to config file (default $"+config.ConfigPathEnv+" or ~/.d365-mcp/config.toml)")

	// Use PersistentPreRunE to set verbose mode and wire services before any command executes
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if _, skip := cmd.Annotations[skipServicesAnnotation]; skip {
			return nil
		}
		return loadServices()
	}
}

func loadServices() error {
	if toolService != nil || serviceFactory == nil {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Logging.Level)
	logger.Debug("configuring %s environment at %s", cfg.Product, cfg.Endpoint)

	s, err := serviceFactory(cfg)
	if err != nil {
		return fmt.Errorf("configure environment: %w", err)
	}
	SetServices(s)
	return nil
}
