package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/patentd/internal/config"
	"github.com/fyrsmithlabs/patentd/internal/corpus"
	"github.com/fyrsmithlabs/patentd/internal/registry"
	"github.com/fyrsmithlabs/patentd/internal/retrieval"
	"github.com/fyrsmithlabs/patentd/internal/search"
	"github.com/fyrsmithlabs/patentd/internal/sourcecache"
)

type stubSearcher struct {
	fn func(ctx context.Context, req retrieval.Request) ([]search.Result, error)
}

func (s *stubSearcher) Search(ctx context.Context, req retrieval.Request) ([]search.Result, error) {
	return s.fn(ctx, req)
}

type stubStatuses struct {
	statuses []registry.TenantStatus
}

func (s *stubStatuses) Status() []registry.TenantStatus { return s.statuses }

func newTestServer(t *testing.T, searcher Searcher, statuses StatusLister) *Server {
	t.Helper()
	if statuses == nil {
		statuses = &stubStatuses{}
	}
	srv, err := NewServer(searcher, statuses, sourcecache.New(time.Hour), nil, config.ServerConfig{
		Host:           "localhost",
		Port:           0,
		RequestTimeout: config.Duration(time.Second),
	})
	require.NoError(t, err)
	return srv
}

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubSearcher{}, &stubStatuses{statuses: []registry.TenantStatus{
		{Tenant: "dram3d", Available: true},
		{Tenant: "hynix", Available: false, Error: "bad header"},
	}})

	rec := doJSON(srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Tenants)
}

func TestSearch_OK(t *testing.T) {
	searcher := &stubSearcher{fn: func(_ context.Context, req retrieval.Request) ([]search.Result, error) {
		if req.Tenant != "dram3d" || req.Query != "bonding layer" || req.K != 2 {
			return nil, fmt.Errorf("unexpected request: %+v", req)
		}
		return []search.Result{
			{Chunk: corpus.Chunk{ID: "c1", Content: "stacked cell", Metadata: map[string]string{"source": "a.txt"}}, Score: 0.9},
			{Chunk: corpus.Chunk{ID: "c2", Content: "bonding layer"}, Score: 0.5},
		}, nil
	}}
	srv := newTestServer(t, searcher, nil)

	rec := doJSON(srv, http.MethodPost, "/api/v1/search",
		`{"tenant":"dram3d","query":"bonding layer","k":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 2)
	assert.Equal(t, "c1", resp.Documents[0].ID)
	assert.Equal(t, "stacked cell", resp.Documents[0].Content)
	assert.InDelta(t, 0.9, resp.Documents[0].Score, 1e-6)
	assert.Equal(t, "a.txt", resp.Documents[0].Metadata["source"])
}

func TestSearch_EmptyResultKeepsDocumentsField(t *testing.T) {
	searcher := &stubSearcher{fn: func(context.Context, retrieval.Request) ([]search.Result, error) {
		return []search.Result{}, nil
	}}
	srv := newTestServer(t, searcher, nil)

	rec := doJSON(srv, http.MethodPost, "/api/v1/search", `{"tenant":"dram3d","query":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"documents":[]}`, rec.Body.String())
}

func TestSearch_FilterSpec(t *testing.T) {
	var got *search.Predicate
	searcher := &stubSearcher{fn: func(_ context.Context, req retrieval.Request) ([]search.Result, error) {
		got = req.Filter
		return []search.Result{}, nil
	}}
	srv := newTestServer(t, searcher, nil)

	rec := doJSON(srv, http.MethodPost, "/api/v1/search",
		`{"tenant":"dram3d","query":"x","filter":{"field":"judgment","value":"Suitable"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, search.OpEqual, got.Op)
	assert.Equal(t, "judgment", got.Field)
	assert.Equal(t, "Suitable", got.Value)

	rec = doJSON(srv, http.MethodPost, "/api/v1/search",
		`{"tenant":"dram3d","query":"x","filter":{"field":"judgment","values":["All","Suitable"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, search.OpIn, got.Op)
	assert.Equal(t, []string{"All", "Suitable"}, got.Values)
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		kind     string
		contains string
	}{
		{
			name:   "tenant not found",
			err:    fmt.Errorf("%w: %q", registry.ErrTenantNotFound, "ghost"),
			status: http.StatusNotFound,
			kind:   KindTenantNotFound,
		},
		{
			name:   "dimension mismatch",
			err:    fmt.Errorf("%w: got 3, index has 768", search.ErrDimensionMismatch),
			status: http.StatusBadRequest,
			kind:   KindDimensionMismatch,
		},
		{
			name:   "invalid request",
			err:    fmt.Errorf("%w: tenant required", retrieval.ErrInvalidRequest),
			status: http.StatusBadRequest,
			kind:   KindInvalidRequest,
		},
		{
			name:   "invalid predicate",
			err:    fmt.Errorf("%w: field required", search.ErrInvalidPredicate),
			status: http.StatusBadRequest,
			kind:   KindInvalidRequest,
		},
		{
			name:   "deadline exceeded",
			err:    context.DeadlineExceeded,
			status: http.StatusGatewayTimeout,
			kind:   KindSearchTimeout,
		},
		{
			name:     "internal error hides root cause",
			err:      errors.New("bbolt page corrupt"),
			status:   http.StatusInternalServerError,
			kind:     KindInternalError,
			contains: "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &stubSearcher{fn: func(context.Context, retrieval.Request) ([]search.Result, error) {
				return nil, tt.err
			}}
			srv := newTestServer(t, searcher, nil)

			rec := doJSON(srv, http.MethodPost, "/api/v1/search", `{"tenant":"dram3d","query":"x"}`)
			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.kind, resp.Error.Kind)
			if tt.contains != "" {
				assert.Contains(t, resp.Error.Message, tt.contains)
				assert.NotContains(t, resp.Error.Message, "bbolt")
			}
		})
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	srv := newTestServer(t, &stubSearcher{}, nil)

	rec := doJSON(srv, http.MethodPost, "/api/v1/search", `{"tenant":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, KindInvalidRequest, resp.Error.Kind)
}

func TestTenants(t *testing.T) {
	srv := newTestServer(t, &stubSearcher{}, &stubStatuses{statuses: []registry.TenantStatus{
		{Tenant: "dram3d", Available: true, Chunks: 42, Dimension: 768},
	}})

	rec := doJSON(srv, http.MethodGet, "/api/v1/tenants", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]registry.TenantStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp["tenants"], 1)
	assert.Equal(t, "dram3d", resp["tenants"][0].Tenant)
	assert.Equal(t, 42, resp["tenants"][0].Chunks)
}

func TestInvalidateCache(t *testing.T) {
	srv := newTestServer(t, &stubSearcher{}, nil)

	rec := doJSON(srv, http.MethodDelete, "/api/v1/cache/dram3d", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"invalidated":"dram3d"}`, rec.Body.String())
}

func TestSearch_RequestTimeoutApplied(t *testing.T) {
	searcher := &stubSearcher{fn: func(ctx context.Context, _ retrieval.Request) ([]search.Result, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			return nil, errors.New("no deadline on request context")
		}
		if time.Until(deadline) > time.Second {
			return nil, errors.New("deadline further out than configured")
		}
		return []search.Result{}, nil
	}}
	srv := newTestServer(t, searcher, nil)

	rec := doJSON(srv, http.MethodPost, "/api/v1/search", `{"tenant":"dram3d","query":"x"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubSearcher{}, nil)

	rec := doJSON(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
