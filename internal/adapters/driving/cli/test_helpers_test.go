package cli

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/d365-mcp/internal/core/ports/driving"
)

// mockToolService implements driving.ToolService for testing.
type mockToolService struct {
	mu    sync.Mutex
	calls []toolCall
	text  string
	err   error
}

type toolCall struct {
	name string
	args map[string]any
}

func (m *mockToolService) Call(_ context.Context, name string, args map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, toolCall{name: name, args: args})
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *mockToolService) Tools() []driving.ToolSpec {
	return nil
}

func (m *mockToolService) lastCall() toolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return toolCall{}
	}
	return m.calls[len(m.calls)-1]
}

// mockRunner implements Runner for testing.
type mockRunner struct {
	runs int
	err  error
}

func (m *mockRunner) Run(_ context.Context) error {
	m.runs++
	return m.err
}

// withServices injects s for the duration of the test and restores global state afterwards.
func withServices(t *testing.T, s *Services) {
	t.Helper()
	oldTools, oldServer := toolService, mcpServer
	oldFactory, oldConfig, oldVerbose := serviceFactory, configPath, verbose
	t.Cleanup(func() {
		toolService, mcpServer = oldTools, oldServer
		serviceFactory, configPath, verbose = oldFactory, oldConfig, oldVerbose
	})

	toolService, mcpServer = nil, nil
	serviceFactory = nil
	SetServices(s)
}

// execute runs the root command with args and returns everything it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	if args == nil {
		// nil makes cobra fall back to os.Args
		args = []string{}
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default so earlier runs don't leak.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
