package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/d365-mcp/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over stdio",
	Long: `Serve the Dynamics 365 tools over the Model Context Protocol on stdin/stdout.

Configure your MCP client to launch this command. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if mcpServer == nil {
		return errors.New("MCP server not configured")
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		l := logger.Get()
		l.Warn().Msg("stdin is a terminal; waiting for an MCP client to speak JSON-RPC")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return mcpServer.Run(ctx)
}
