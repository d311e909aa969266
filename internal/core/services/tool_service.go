package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/custodia-labs/d365-mcp/internal/connectors/microsoft/dynamics"
	"github.com/custodia-labs/d365-mcp/internal/core/domain"
	"github.com/custodia-labs/d365-mcp/internal/core/ports/driven"
	"github.com/custodia-labs/d365-mcp/internal/core/ports/driving"
)

// Ensure ToolService implements the interface.
var _ driving.ToolService = (*ToolService)(nil)

const (
	// DefaultPageSize is the $top applied to query_entity when the caller sets none.
	DefaultPageSize = 50
	// MaxTop caps the $top a caller may request.
	MaxTop = 1000
)

// fallbackEntities is listed when $metadata declares no entity sets.
var fallbackEntities = []string{
	"accounts",
	"contacts",
	"leads",
	"opportunities",
	"(try specific entity name)",
}

// toolHandler runs one tool.
type toolHandler func(ctx context.Context, args map[string]any) (string, error)

type tool struct {
	spec    driving.ToolSpec
	handler toolHandler
}

// ToolService executes the Dynamics 365 tools and renders results as text.
type ToolService struct {
	reader   driven.ODataReader
	metadata driven.MetadataSource
	pageSize int
	entities []string
	logger   zerolog.Logger

	tools map[string]tool
	order []string
}

// ToolServiceOption configures a ToolService.
type ToolServiceOption func(*ToolService)

// WithPageSize sets the default $top for query_entity, capped at MaxTop.
func WithPageSize(n int) ToolServiceOption {
	return func(s *ToolService) {
		if n > 0 {
			s.pageSize = min(n, MaxTop)
		}
	}
}

// WithConfiguredEntities lists the entities named in configuration, reported by
// get_environment_info.
func WithConfiguredEntities(entities []string) ToolServiceOption {
	return func(s *ToolService) {
		s.entities = entities
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger zerolog.Logger) ToolServiceOption {
	return func(s *ToolService) {
		s.logger = logger
	}
}

// NewToolService creates the tool service. metadata may be nil, in which case
// every schema lookup fetches $metadata through reader.
func NewToolService(reader driven.ODataReader, metadata driven.MetadataSource, opts ...ToolServiceOption) *ToolService {
	s := &ToolService{
		reader:   reader,
		metadata: metadata,
		pageSize: DefaultPageSize,
		logger:   zerolog.Nop(),
		tools:    make(map[string]tool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerBuiltinTools()
	return s
}

// Tools describes every registered tool in registration order.
func (s *ToolService) Tools() []driving.ToolSpec {
	specs := make([]driving.ToolSpec, 0, len(s.order))
	for _, name := range s.order {
		specs = append(specs, s.tools[name].spec)
	}
	return specs
}

// Call dispatches name with args.
func (s *ToolService) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := s.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown tool: %s", domain.ErrInvalidInput, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	s.logger.Debug().Str("tool", name).Msg("calling tool")

	text, err := t.handler(ctx, args)
	if err != nil {
		s.logger.Warn().Err(err).Str("tool", name).Msg("tool failed")
		return "", err
	}
	return text, nil
}

func (s *ToolService) register(spec driving.ToolSpec, handler toolHandler) {
	if _, exists := s.tools[spec.Name]; !exists {
		s.order = append(s.order, spec.Name)
	}
	s.tools[spec.Name] = tool{spec: spec, handler: handler}
}

// loadMetadata prefers the cache when one is configured.
func (s *ToolService) loadMetadata(ctx context.Context) (string, error) {
	if s.metadata != nil {
		return s.metadata.Metadata(ctx)
	}
	return s.reader.FetchMetadata(ctx)
}

func (s *ToolService) listEntities(ctx context.Context, _ map[string]any) (string, error) {
	document, err := s.loadMetadata(ctx)
	if err != nil {
		return "", fmt.Errorf("error fetching metadata: %w", err)
	}

	entities := dynamics.ExtractEntitySets(document)
	if len(entities) == 0 {
		entities = fallbackEntities
	}
	return "Available entities:\n" + strings.Join(entities, "\n"), nil
}

// queryOptions builds QueryOptions from query_entity arguments.
// When all is false, $top defaults to the page size; it is always capped at MaxTop.
func (s *ToolService) queryOptions(args map[string]any, all bool) domain.QueryOptions {
	opts := domain.QueryOptions{
		Select:       listArg(args, "select"),
		Expand:       listArg(args, "expand"),
		CrossCompany: boolArg(args, "cross_company"),
		IncludeCount: boolArg(args, "count"),
	}
	opts.Filter, _ = stringArg(args, "filter")
	opts.OrderBy, _ = stringArg(args, "orderby")

	top, ok := intArg(args, "top")
	switch {
	case ok:
		opts.Top = domain.IntPtr(min(top, MaxTop))
	case !all:
		opts.Top = domain.IntPtr(s.pageSize)
	}
	if skip, ok := intArg(args, "skip"); ok {
		opts.Skip = domain.IntPtr(skip)
	}
	return opts
}

func (s *ToolService) queryEntity(ctx context.Context, args map[string]any) (string, error) {
	entity, err := requiredString(args, "entity")
	if err != nil {
		return "", err
	}

	all := boolArg(args, "all")
	opts := s.queryOptions(args, all)

	if all {
		records, err := s.reader.FetchAllPages(ctx, entity, opts)
		if err != nil {
			return "", fmt.Errorf("error querying %s: %w", entity, err)
		}
		return fmt.Sprintf("Showing %d records:\n\n%s", len(records), prettyJSON(records)), nil
	}

	page, err := s.reader.FetchEntityPage(ctx, entity, "", opts)
	if err != nil {
		return "", fmt.Errorf("error querying %s: %w", entity, err)
	}

	var b strings.Builder
	if page.TotalCount != nil {
		fmt.Fprintf(&b, "Total records: %d\n", *page.TotalCount)
	}
	more := ""
	if page.HasMore() {
		more = " (more available)"
	}
	fmt.Fprintf(&b, "Showing %d records%s:\n\n%s", len(page.Records), more, prettyJSON(page.Records))
	return b.String(), nil
}

func (s *ToolService) getEntitySchema(ctx context.Context, args map[string]any) (string, error) {
	entity, err := requiredString(args, "entity")
	if err != nil {
		return "", err
	}

	page, err := s.reader.FetchEntityPage(ctx, entity, "", domain.QueryOptions{Top: domain.IntPtr(1)})
	if err != nil {
		return "", fmt.Errorf("error fetching schema for %s: %w", entity, err)
	}
	if len(page.Records) == 0 {
		return fmt.Sprintf("No records found in entity '%s'", entity), nil
	}

	sample := page.Records[0]
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(sample, &fields); err != nil {
		// Not an object; show it as-is.
		return prettyJSON(sample), nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return fmt.Sprintf("Entity: %s\nFields (%d):\n%s\n\nSample record:\n%s",
		entity, len(names), strings.Join(names, ", "), prettyJSON(sample)), nil
}

func (s *ToolService) getRecord(ctx context.Context, args map[string]any) (string, error) {
	entity, err := requiredString(args, "entity")
	if err != nil {
		return "", err
	}
	id, err := requiredString(args, "id")
	if err != nil {
		return "", err
	}

	record, err := s.reader.GetEntity(ctx, entity, FormatKey(id))
	if err != nil {
		return "", fmt.Errorf("error fetching %s(%s): %w", entity, id, err)
	}
	return prettyJSON(record), nil
}

func (s *ToolService) getEnvironmentInfo(_ context.Context, _ map[string]any) (string, error) {
	return fmt.Sprintf("D365 Environment Info:\n"+
		"- Endpoint: %s\n"+
		"- Product: %s\n"+
		"- Page Size: %d\n"+
		"- Configured Entities: %s",
		s.reader.Endpoint(),
		s.reader.Product().DisplayName(),
		s.pageSize,
		strings.Join(s.entities, ", ")), nil
}

func (s *ToolService) getMetadata(ctx context.Context, args map[string]any) (string, error) {
	entity, err := requiredString(args, "entity")
	if err != nil {
		return "", err
	}

	document, err := s.loadMetadata(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch metadata: %w", err)
	}

	meta, err := dynamics.ParseEntity(document, entity)
	if err != nil {
		return "", fmt.Errorf("failed to parse entity metadata: %w", err)
	}

	return RenderEntityMetadata(entity, meta), nil
}

func (s *ToolService) refreshMetadata(ctx context.Context, _ map[string]any) (string, error) {
	if s.metadata != nil {
		s.metadata.Invalidate()
	}

	document, err := s.loadMetadata(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to refresh metadata: %w", err)
	}

	return fmt.Sprintf("Metadata cache refreshed successfully.\n- Size: %d KB\n- Entities found: %d",
		len(document)/1024, len(dynamics.ExtractEntitySets(document))), nil
}

// RenderEntityMetadata renders parsed metadata as markdown.
func RenderEntityMetadata(entity string, meta *domain.EntityMetadata) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Entity: %s\n\n", entity)

	if len(meta.KeyFields) > 0 {
		b.WriteString("### Key Fields\n")
		for _, key := range meta.KeyFields {
			fmt.Fprintf(&b, "- %s\n", key)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "### Properties (%d fields)\n", len(meta.Properties))
	for _, prop := range meta.Properties {
		fmt.Fprintf(&b, "- %s\n", prop)
	}
	b.WriteString("\n")

	if len(meta.NavigationProperties) > 0 {
		fmt.Fprintf(&b, "### Navigation Properties (expandable via $expand) (%d fields)\n",
			len(meta.NavigationProperties))
		for _, nav := range meta.NavigationProperties {
			fmt.Fprintf(&b, "- %s\n", nav)
		}
	}

	return b.String()
}

// prettyJSON indents v, falling back to "[]" when it cannot be encoded.
func prettyJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(out)
}
