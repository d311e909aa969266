package services

import "github.com/custodia-labs/d365-mcp/internal/core/ports/driving"

func (s *ToolService) registerBuiltinTools() {
	s.registerListEntities()
	s.registerQueryEntity()
	s.registerGetEntitySchema()
	s.registerGetRecord()
	s.registerGetEnvironmentInfo()
	s.registerGetMetadata()
	s.registerRefreshMetadata()
}

func (s *ToolService) registerListEntities() {
	s.register(driving.ToolSpec{
		Name:        driving.ToolListEntities,
		Description: "List all available D365 entities/tables that can be queried",
	}, s.listEntities)
}

func (s *ToolService) registerQueryEntity() {
	s.register(driving.ToolSpec{
		Name: driving.ToolQueryEntity,
		Description: "Query data from a D365 entity with full OData support. " +
			"Returns records matching the criteria.",
		Params: queryEntityParams(),
	}, s.queryEntity)
}

func queryEntityParams() []driving.ToolParam {
	return []driving.ToolParam{
		entityParam("Entity set name, e.g., 'CustomersV3', 'SalesOrderHeaders'"),
		{
			Name:        "select",
			Description: "Comma-separated fields to select, e.g., 'Name,Id,Status'",
			Type:        driving.ParamString,
		},
		{
			Name:        "filter",
			Description: "OData filter expression, e.g., \"dataAreaId eq 'bc' and Status ne 'Closed'\"",
			Type:        driving.ParamString,
		},
		{
			Name:        "orderby",
			Description: "Sort order, e.g., 'CreatedDate desc' or 'Name asc'",
			Type:        driving.ParamString,
		},
		{
			Name:        "top",
			Description: "Maximum records to return (default: 50, max: 1000)",
			Type:        driving.ParamInteger,
		},
		{
			Name:        "skip",
			Description: "Number of records to skip (for pagination)",
			Type:        driving.ParamInteger,
		},
		{
			Name:        "expand",
			Description: "Comma-separated navigation properties to expand",
			Type:        driving.ParamString,
		},
		{
			Name:        "cross_company",
			Description: "Set to 'true' for cross-company query (F&O only)",
			Type:        driving.ParamBoolean,
		},
		{
			Name:        "count",
			Description: "Set to 'true' to include total record count in response",
			Type:        driving.ParamBoolean,
		},
		{
			Name: "all",
			Description: "Set to 'true' to follow every nextLink and return all pages. " +
				"Unbounded; only use on small, filtered sets",
			Type: driving.ParamBoolean,
		},
	}
}

func (s *ToolService) registerGetEntitySchema() {
	s.register(driving.ToolSpec{
		Name:        driving.ToolGetEntitySchema,
		Description: "Get entity schema by fetching a sample record. Shows available fields.",
		Params:      []driving.ToolParam{entityParam("Entity set name, e.g., 'contacts'")},
	}, s.getEntitySchema)
}

func (s *ToolService) registerGetRecord() {
	s.register(driving.ToolSpec{
		Name:        driving.ToolGetRecord,
		Description: "Get a single record by its ID/primary key",
		Params: []driving.ToolParam{
			entityParam("Entity set name, e.g., 'contacts'"),
			{
				Name:        "id",
				Description: "Record ID/GUID",
				Type:        driving.ParamString,
				Required:    true,
			},
		},
	}, s.getRecord)
}

func (s *ToolService) registerGetEnvironmentInfo() {
	s.register(driving.ToolSpec{
		Name:        driving.ToolGetEnvironmentInfo,
		Description: "Get information about the connected D365 environment",
	}, s.getEnvironmentInfo)
}

func (s *ToolService) registerGetMetadata() {
	s.register(driving.ToolSpec{
		Name: driving.ToolGetMetadata,
		Description: "Get entity metadata from $metadata including properties and navigation properties " +
			"(expandable fields). Use this to understand entity schema and available joins. " +
			"Results are cached for performance.",
		Params: []driving.ToolParam{entityParam("Entity name to get metadata for, e.g., 'CustomersV3'")},
	}, s.getMetadata)
}

func (s *ToolService) registerRefreshMetadata() {
	s.register(driving.ToolSpec{
		Name: driving.ToolRefreshMetadata,
		Description: "Force refresh the cached $metadata. Use this if entity schema has changed " +
			"or if you need fresh metadata. Returns cache status after refresh.",
	}, s.refreshMetadata)
}

func entityParam(description string) driving.ToolParam {
	return driving.ToolParam{
		Name:        "entity",
		Description: description,
		Type:        driving.ParamString,
		Required:    true,
	}
}
