package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/d365-mcp/internal/core/ports/driving"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List the entity sets exposed by the environment",
	Args:  cobra.NoArgs,
	RunE:  runEntities,
}

var describeCmd = &cobra.Command{
	Use:   "describe [entity]",
	Short: "Show the fields of an entity",
	Long: `Show the fields of an entity.

By default the fields are taken from a sample record. With --metadata the
key, properties and navigation properties are read from $metadata instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runDescribe,
}

var queryCmd = &cobra.Command{
	Use:   "query [entity]",
	Short: "Query records from an entity",
	Long: `Query records from an entity with OData options.

Examples:
  d365-mcp query accounts --select name,accountnumber --top 10
  d365-mcp query CustomersV3 --filter "dataAreaId eq 'usmf'" --cross-company
  d365-mcp query contacts --orderby "createdon desc" --all`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var getCmd = &cobra.Command{
	Use:   "get [entity] [id]",
	Short: "Fetch one record by key",
	Long: `Fetch one record by key.

Keys containing a hyphen, such as GUIDs, are single-quoted. Anything else is
sent verbatim, so compound keys can be passed as dataAreaId='usmf',AccountNum='1001'.`,
	Args: cobra.ExactArgs(2),
	RunE: runGet,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the configured environment",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

// Flags for describe and query.
var (
	describeMetadata bool

	querySelect       string
	queryFilter       string
	queryOrderBy      string
	queryExpand       string
	queryTop          int
	querySkip         int
	queryCount        bool
	queryCrossCompany bool
	queryAll          bool
)

func init() {
	describeCmd.Flags().BoolVar(&describeMetadata, "metadata", false, "read the schema from $metadata")

	queryCmd.Flags().StringVar(&querySelect, "select", "", "comma-separated fields to select")
	queryCmd.Flags().StringVar(&queryFilter, "filter", "", "OData filter expression")
	queryCmd.Flags().StringVar(&queryOrderBy, "orderby", "", "sort order, e.g. 'name asc'")
	queryCmd.Flags().StringVar(&queryExpand, "expand", "", "comma-separated navigation properties to expand")
	queryCmd.Flags().IntVar(&queryTop, "top", 0, "maximum records to return (default from page_size, max 1000)")
	queryCmd.Flags().IntVar(&querySkip, "skip", 0, "number of records to skip")
	queryCmd.Flags().BoolVar(&queryCount, "count", false, "include the total record count")
	queryCmd.Flags().BoolVar(&queryCrossCompany, "cross-company", false, "query across all companies (Finance & Operations)")
	queryCmd.Flags().BoolVar(&queryAll, "all", false, "follow continuation links and return every record")

	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(infoCmd)
}

func runEntities(cmd *cobra.Command, _ []string) error {
	return callTool(cmd, driving.ToolListEntities, nil)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	name := driving.ToolGetEntitySchema
	if describeMetadata {
		name = driving.ToolGetMetadata
	}
	return callTool(cmd, name, map[string]any{"entity": args[0]})
}

func runQuery(cmd *cobra.Command, args []string) error {
	toolArgs := map[string]any{"entity": args[0]}

	flags := cmd.Flags()
	setIfChanged := func(flag, key string, value any) {
		if flags.Changed(flag) {
			toolArgs[key] = value
		}
	}
	setIfChanged("select", "select", querySelect)
	setIfChanged("filter", "filter", queryFilter)
	setIfChanged("orderby", "orderby", queryOrderBy)
	setIfChanged("expand", "expand", queryExpand)
	setIfChanged("top", "top", queryTop)
	setIfChanged("skip", "skip", querySkip)
	setIfChanged("count", "count", queryCount)
	setIfChanged("cross-company", "cross_company", queryCrossCompany)
	setIfChanged("all", "all", queryAll)

	return callTool(cmd, driving.ToolQueryEntity, toolArgs)
}

func runGet(cmd *cobra.Command, args []string) error {
	return callTool(cmd, driving.ToolGetRecord, map[string]any{"entity": args[0], "id": args[1]})
}

func runInfo(cmd *cobra.Command, _ []string) error {
	return callTool(cmd, driving.ToolGetEnvironmentInfo, nil)
}

func callTool(cmd *cobra.Command, name string, args map[string]any) error {
	if toolService == nil {
		return errors.New("tool service not configured")
	}

	text, err := toolService.Call(cmd.Context(), name, args)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}
