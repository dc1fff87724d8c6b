// Package registry maps tenant ids to loaded indexes and isolates load
// failures per tenant.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patentd/internal/corpus"
	"github.com/fyrsmithlabs/patentd/internal/logging"
)

// ErrTenantNotFound is returned when a tenant is unknown or failed to load.
var ErrTenantNotFound = errors.New("tenant not found")

// Loader loads one tenant's persisted index. Satisfied by *corpus.Store.
type Loader interface {
	Load(ctx context.Context, tenant string) (*corpus.Index, error)
}

// TenantStatus describes one registry entry for operators.
type TenantStatus struct {
	Tenant    string `json:"tenant"`
	Available bool   `json:"available"`
	Chunks    int    `json:"chunks,omitempty"`
	Dimension int    `json:"dimension,omitempty"`
	Error     string `json:"error,omitempty"`
}

type entry struct {
	index    *corpus.Index
	err      error
	loadedAt time.Time
}

// Registry holds per-tenant indexes. Entries are created at startup and
// only replaced by a full restart; resolution on the request path is a
// read under RLock.
type Registry struct {
	logger *logging.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty registry.
func New(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		logger:  logger.Named("registry"),
		entries: make(map[string]*entry),
	}
}

// LoadAll loads every tenant in parallel. A tenant whose load fails is
// recorded with its diagnostic and does not block the others; LoadAll
// returns the number of tenants that became available.
func (r *Registry) LoadAll(ctx context.Context, loader Loader, tenants []string) int {
	var wg sync.WaitGroup
	for _, tenant := range tenants {
		wg.Add(1)
		go func(tenant string) {
			defer wg.Done()
			ix, err := loader.Load(ctx, tenant)
			if err != nil {
				r.RegisterFailure(tenant, err)
				r.logger.Error(ctx, "tenant failed to load",
					zap.String("tenant", tenant), zap.Error(err))
				return
			}
			r.Register(tenant, ix)
		}(tenant)
	}
	wg.Wait()

	available := 0
	for _, s := range r.Status() {
		if s.Available {
			available++
		}
	}
	return available
}

// Register records a loaded index for a tenant.
func (r *Registry) Register(tenant string, ix *corpus.Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tenant] = &entry{index: ix, loadedAt: time.Now()}
}

// RegisterFailure records a load failure for a tenant.
func (r *Registry) RegisterFailure(tenant string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tenant] = &entry{err: err, loadedAt: time.Now()}
}

// Resolve returns a tenant's index. Unknown and failed-to-load tenants
// both yield ErrTenantNotFound; the load diagnostic stays in the entry
// and the status listing, not in the request-path error.
func (r *Registry) Resolve(tenant string) (*corpus.Index, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[tenant]
	if !ok || e.err != nil {
		return nil, fmt.Errorf("%w: %q", ErrTenantNotFound, tenant)
	}
	return e.index, nil
}

// Status returns one entry per registered tenant, sorted by tenant id.
func (r *Registry) Status() []TenantStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]TenantStatus, 0, len(r.entries))
	for tenant, e := range r.entries {
		s := TenantStatus{Tenant: tenant, Available: e.err == nil}
		if e.err != nil {
			s.Error = e.err.Error()
		} else {
			s.Chunks = e.index.Len()
			s.Dimension = e.index.Dimension()
		}
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Tenant < statuses[j].Tenant })
	return statuses
}
