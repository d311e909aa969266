package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/d365-mcp/internal/core/domain"
	"github.com/custodia-labs/d365-mcp/internal/core/ports/driving"
)

// fakeReader is an in-memory ODataReader recording what it was asked for.
type fakeReader struct {
	product  domain.Product
	metadata string
	page     *domain.PageResult
	all      []json.RawMessage
	record   json.RawMessage
	err      error

	metadataCalls int
	lastEntity    string
	lastKey       string
	lastOpts      domain.QueryOptions
	allCalled     bool
}

func (f *fakeReader) Endpoint() string { return "https://org.crm.dynamics.com/api/data/v9.2/" }

func (f *fakeReader) Product() domain.Product {
	if f.product == "" {
		return domain.ProductDataverse
	}
	return f.product
}

func (f *fakeReader) FetchMetadata(context.Context) (string, error) {
	f.metadataCalls++
	return f.metadata, f.err
}

func (f *fakeReader) FetchEntityPage(_ context.Context, entity, _ string, opts domain.QueryOptions) (*domain.PageResult, error) {
	f.lastEntity = entity
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	if f.page == nil {
		return &domain.PageResult{Records: []json.RawMessage{}}, nil
	}
	return f.page, nil
}

func (f *fakeReader) FetchAllPages(_ context.Context, entity string, opts domain.QueryOptions) ([]json.RawMessage, error) {
	f.allCalled = true
	f.lastEntity = entity
	f.lastOpts = opts
	return f.all, f.err
}

func (f *fakeReader) GetEntity(_ context.Context, entity, key string) (json.RawMessage, error) {
	f.lastEntity = entity
	f.lastKey = key
	return f.record, f.err
}

// fakeMetadata is a MetadataSource that counts invalidations.
type fakeMetadata struct {
	document    string
	invalidated int
}

func (f *fakeMetadata) Metadata(context.Context) (string, error) { return f.document, nil }
func (f *fakeMetadata) Invalidate()                              { f.invalidated++ }

const testMetadata = `<Edmx><DataServices><Schema>
<EntityType Name="account"><Key><PropertyRef Name="accountid"/></Key>
<Property Name="accountid" Type="Edm.Guid"/><Property Name="name" Type="Edm.String"/>
<NavigationProperty Name="contact_customer_accounts" Type="Collection(Microsoft.Dynamics.CRM.contact)"/>
</EntityType>
<EntityContainer Name="System"><EntitySet Name="accounts" EntityType="Microsoft.Dynamics.CRM.account"/>
<EntitySet Name="contacts" EntityType="Microsoft.Dynamics.CRM.contact"/></EntityContainer>
</Schema></DataServices></Edmx>`

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestToolService_Tools(t *testing.T) {
	svc := NewToolService(&fakeReader{}, nil)

	var names []string
	for _, spec := range svc.Tools() {
		names = append(names, spec.Name)
	}

	assert.Equal(t, []string{
		driving.ToolListEntities,
		driving.ToolQueryEntity,
		driving.ToolGetEntitySchema,
		driving.ToolGetRecord,
		driving.ToolGetEnvironmentInfo,
		driving.ToolGetMetadata,
		driving.ToolRefreshMetadata,
	}, names)
}

func TestToolService_UnknownTool(t *testing.T) {
	svc := NewToolService(&fakeReader{}, nil)

	_, err := svc.Call(context.Background(), "delete_everything", nil)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "unknown tool: delete_everything")
}

func TestToolService_ListEntities(t *testing.T) {
	tests := []struct {
		name     string
		document string
		want     string
	}{
		{
			name:     "entity sets from metadata",
			document: testMetadata,
			want:     "Available entities:\naccounts\ncontacts",
		},
		{
			name:     "fallback when none declared",
			document: "<Edmx/>",
			want:     "Available entities:\naccounts\ncontacts\nleads\nopportunities\n(try specific entity name)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{}
			svc := NewToolService(reader, &fakeMetadata{document: tt.document})

			text, err := svc.Call(context.Background(), driving.ToolListEntities, nil)

			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
			assert.Zero(t, reader.metadataCalls, "cached source should be used")
		})
	}
}

func TestToolService_ListEntities_WithoutCache(t *testing.T) {
	reader := &fakeReader{metadata: testMetadata}
	svc := NewToolService(reader, nil)

	_, err := svc.Call(context.Background(), driving.ToolListEntities, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, reader.metadataCalls)
}

func TestToolService_QueryEntity_Options(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want domain.QueryOptions
	}{
		{
			name: "defaults",
			args: map[string]any{"entity": "accounts"},
			want: domain.QueryOptions{Top: domain.IntPtr(50)},
		},
		{
			name: "string numbers and booleans",
			args: map[string]any{
				"entity":        "CustomersV3",
				"select":        "CustomerAccount, Name",
				"filter":        "dataAreaId eq 'usmf'",
				"orderby":       "Name asc",
				"top":           "10",
				"skip":          "20",
				"expand":        "Group",
				"cross_company": "true",
				"count":         true,
			},
			want: domain.QueryOptions{
				Select:       []string{"CustomerAccount", "Name"},
				Filter:       "dataAreaId eq 'usmf'",
				OrderBy:      "Name asc",
				Top:          domain.IntPtr(10),
				Skip:         domain.IntPtr(20),
				Expand:       []string{"Group"},
				CrossCompany: true,
				IncludeCount: true,
			},
		},
		{
			name: "top capped",
			args: map[string]any{"entity": "accounts", "top": 5000.0},
			want: domain.QueryOptions{Top: domain.IntPtr(1000)},
		},
		{
			name: "invalid top falls back to default",
			args: map[string]any{"entity": "accounts", "top": "lots"},
			want: domain.QueryOptions{Top: domain.IntPtr(50)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{}
			svc := NewToolService(reader, nil)

			_, err := svc.Call(context.Background(), driving.ToolQueryEntity, tt.args)

			require.NoError(t, err)
			assert.Equal(t, tt.args["entity"], reader.lastEntity)
			assert.Equal(t, tt.want, reader.lastOpts)
		})
	}
}

func TestToolService_QueryEntity_PageSizeOption(t *testing.T) {
	reader := &fakeReader{}
	svc := NewToolService(reader, nil, WithPageSize(25))

	_, err := svc.Call(context.Background(), driving.ToolQueryEntity, map[string]any{"entity": "accounts"})

	require.NoError(t, err)
	assert.Equal(t, domain.IntPtr(25), reader.lastOpts.Top)
}

func TestToolService_QueryEntity_Output(t *testing.T) {
	total := int64(120)
	reader := &fakeReader{page: &domain.PageResult{
		Records:    []json.RawMessage{raw(`{"name":"Contoso"}`), raw(`{"name":"Fabrikam"}`)},
		NextLink:   "https://next",
		TotalCount: &total,
	}}
	svc := NewToolService(reader, nil)

	text, err := svc.Call(context.Background(), driving.ToolQueryEntity, map[string]any{"entity": "accounts"})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Total records: 120\nShowing 2 records (more available):\n\n"), text)
	assert.Contains(t, text, `"name": "Contoso"`)
}

func TestToolService_QueryEntity_All(t *testing.T) {
	reader := &fakeReader{all: []json.RawMessage{raw(`{"n":1}`), raw(`{"n":2}`), raw(`{"n":3}`)}}
	svc := NewToolService(reader, nil)

	text, err := svc.Call(context.Background(), driving.ToolQueryEntity, map[string]any{
		"entity": "contacts",
		"all":    "true",
		"filter": "statecode eq 0",
	})

	require.NoError(t, err)
	assert.True(t, reader.allCalled)
	assert.Nil(t, reader.lastOpts.Top, "no default $top when fetching every page")
	assert.True(t, strings.HasPrefix(text, "Showing 3 records:\n\n"), text)
}

func TestToolService_QueryEntity_Errors(t *testing.T) {
	t.Run("missing entity", func(t *testing.T) {
		svc := NewToolService(&fakeReader{}, nil)

		_, err := svc.Call(context.Background(), driving.ToolQueryEntity, map[string]any{})

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("reader failure is wrapped", func(t *testing.T) {
		readerErr := errors.New("server error (500): boom")
		svc := NewToolService(&fakeReader{err: readerErr}, nil)

		_, err := svc.Call(context.Background(), driving.ToolQueryEntity, map[string]any{"entity": "accounts"})

		assert.ErrorIs(t, err, readerErr)
		assert.Equal(t, "error querying accounts: server error (500): boom", err.Error())
	})
}

func TestToolService_GetEntitySchema(t *testing.T) {
	tests := []struct {
		name string
		page *domain.PageResult
		want string
	}{
		{
			name: "fields sorted with sample",
			page: &domain.PageResult{Records: []json.RawMessage{raw(`{"name":"Contoso","accountid":"1"}`)}},
			want: "Entity: accounts\nFields (2):\naccountid, name\n\nSample record:\n{\n  \"name\": \"Contoso\",\n  \"accountid\": \"1\"\n}",
		},
		{
			name: "no records",
			page: &domain.PageResult{Records: []json.RawMessage{}},
			want: "No records found in entity 'accounts'",
		},
		{
			name: "non-object sample",
			page: &domain.PageResult{Records: []json.RawMessage{raw(`"scalar"`)}},
			want: `"scalar"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{page: tt.page}
			svc := NewToolService(reader, nil)

			text, err := svc.Call(context.Background(), driving.ToolGetEntitySchema, map[string]any{"entity": "accounts"})

			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
			assert.Equal(t, domain.QueryOptions{Top: domain.IntPtr(1)}, reader.lastOpts)
		})
	}
}

func TestToolService_GetRecord(t *testing.T) {
	reader := &fakeReader{record: raw(`{"contactid":"abc"}`)}
	svc := NewToolService(reader, nil)

	text, err := svc.Call(context.Background(), driving.ToolGetRecord, map[string]any{
		"entity": "contacts",
		"id":     "00000000-0000-0000-0000-000000000001",
	})

	require.NoError(t, err)
	assert.Equal(t, "'00000000-0000-0000-0000-000000000001'", reader.lastKey)
	assert.Equal(t, "{\n  \"contactid\": \"abc\"\n}", text)
}

func TestToolService_GetRecord_MissingID(t *testing.T) {
	svc := NewToolService(&fakeReader{}, nil)

	_, err := svc.Call(context.Background(), driving.ToolGetRecord, map[string]any{"entity": "contacts"})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "id")
}

func TestToolService_GetEnvironmentInfo(t *testing.T) {
	svc := NewToolService(&fakeReader{product: domain.ProductFinOps}, nil,
		WithPageSize(100),
		WithConfiguredEntities([]string{"CustomersV3", "VendorsV2"}),
	)

	text, err := svc.Call(context.Background(), driving.ToolGetEnvironmentInfo, nil)

	require.NoError(t, err)
	assert.Equal(t, "D365 Environment Info:\n"+
		"- Endpoint: https://org.crm.dynamics.com/api/data/v9.2/\n"+
		"- Product: Finance & Operations\n"+
		"- Page Size: 100\n"+
		"- Configured Entities: CustomersV3, VendorsV2", text)
}

func TestToolService_GetMetadata(t *testing.T) {
	svc := NewToolService(&fakeReader{}, &fakeMetadata{document: testMetadata})

	text, err := svc.Call(context.Background(), driving.ToolGetMetadata, map[string]any{"entity": "accounts"})

	require.NoError(t, err)
	assert.Equal(t, "## Entity: accounts\n\n"+
		"### Key Fields\n- accountid\n\n"+
		"### Properties (2 fields)\n- accountid: Guid\n- name: String\n\n"+
		"### Navigation Properties (expandable via $expand) (1 fields)\n- contact_customer_accounts -> [contact]\n", text)
}

func TestToolService_GetMetadata_NotFound(t *testing.T) {
	svc := NewToolService(&fakeReader{}, &fakeMetadata{document: testMetadata})

	_, err := svc.Call(context.Background(), driving.ToolGetMetadata, map[string]any{"entity": "invoices"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse entity metadata")
	assert.Contains(t, err.Error(), "Entity 'invoices' not found in metadata")
}

func TestToolService_RefreshMetadata(t *testing.T) {
	metadata := &fakeMetadata{document: testMetadata}
	svc := NewToolService(&fakeReader{}, metadata)

	text, err := svc.Call(context.Background(), driving.ToolRefreshMetadata, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, metadata.invalidated)
	assert.Equal(t, "Metadata cache refreshed successfully.\n- Size: 0 KB\n- Entities found: 2", text)
}

func TestRenderEntityMetadata_NoKeysOrNavigation(t *testing.T) {
	text := RenderEntityMetadata("Vendor", &domain.EntityMetadata{Properties: []string{"VendorAccount: String"}})

	assert.Equal(t, "## Entity: Vendor\n\n### Properties (1 fields)\n- VendorAccount: String\n\n", text)
}
