package domain

// QueryOptions describes an OData read. The zero value selects everything.
type QueryOptions struct {
	// Select lists the fields to return, in caller order.
	Select []string
	// Filter is a raw OData filter expression. It is not URL encoded.
	Filter string
	// Top limits the number of records returned.
	Top *int
	// Skip skips the first N records.
	Skip *int
	// OrderBy is a raw OData orderby clause, e.g. "name asc".
	OrderBy string
	// Expand lists navigation properties to inline, in caller order.
	Expand []string
	// CrossCompany queries across all legal entities (Finance & Operations only).
	CrossCompany bool
	// IncludeCount asks the server for @odata.count.
	IncludeCount bool
}

// IntPtr returns a pointer to n. Convenience for building QueryOptions.
func IntPtr(n int) *int {
	return &n
}
