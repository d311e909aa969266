package main

import (
	"os"

	"github.com/custodia-labs/d365-mcp/internal/adapters/driving/cli"
	"github.com/custodia-labs/d365-mcp/internal/adapters/driving/mcpserver"
	"github.com/custodia-labs/d365-mcp/internal/config"
	"github.com/custodia-labs/d365-mcp/internal/connectors"
	"github.com/custodia-labs/d365-mcp/internal/core/services"
	"github.com/custodia-labs/d365-mcp/internal/logger"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cli.SetVersion(version)
	cli.SetServiceFactory(buildServices)

	if err := cli.Execute(); err != nil {
		return 1
	}
	return 0
}

// buildServices wires the environment, tool service and MCP server from cfg.
func buildServices(cfg *config.Config) (*cli.Services, error) {
	log := logger.Get()

	env, err := connectors.NewFactory().Create(cfg, log)
	if err != nil {
		return nil, err
	}

	tools := services.NewToolService(
		env.Client,
		env.Metadata,
		services.WithPageSize(cfg.PageSize),
		services.WithConfiguredEntities(cfg.Entities),
		services.WithServiceLogger(log.With().Str("component", "tools").Logger()),
	)

	server, err := mcpserver.NewServer(tools, version, log.With().Str("component", "mcp").Logger())
	if err != nil {
		return nil, err
	}

	return &cli.Services{Tools: tools, Server: server}, nil
}
