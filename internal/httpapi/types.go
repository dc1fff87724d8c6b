package httpapi

import (
	"github.com/fyrsmithlabs/patentd/internal/search"
)

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Tenant string      `json:"tenant"`
	Query  string      `json:"query,omitempty"`
	Vector []float32   `json:"vector,omitempty"`
	K      int         `json:"k,omitempty"`
	Filter *FilterSpec `json:"filter,omitempty"`
}

// FilterSpec is the wire form of a metadata predicate. Value and Values
// are mutually exclusive: Value selects exact match, Values membership.
type FilterSpec struct {
	Field  string   `json:"field"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Predicate converts the wire filter to an engine predicate.
func (f *FilterSpec) Predicate() *search.Predicate {
	if f == nil {
		return nil
	}
	if len(f.Values) > 0 {
		return search.In(f.Field, f.Values...)
	}
	return search.Equals(f.Field, f.Value)
}

// Document is one retrieved chunk in a search response.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/search. Documents
// is always present, empty when nothing matched.
type SearchResponse struct {
	Documents []Document `json:"documents"`
}

// Error kinds reported to clients.
const (
	KindTenantNotFound    = "TenantNotFound"
	KindDimensionMismatch = "DimensionMismatch"
	KindSearchTimeout     = "SearchTimeout"
	KindInvalidRequest    = "InvalidRequest"
	KindInternalError     = "InternalError"
)

// ErrorBody carries a machine-readable kind and a human-readable message.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Tenants int    `json:"tenants"`
}

// InvalidateResponse is the response body for DELETE /api/v1/cache/:tenant.
type InvalidateResponse struct {
	Invalidated string `json:"invalidated"`
}
