// Package sourcecache caches per-tenant source listings for patent-number
// lookup.
package sourcecache

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/patentd/internal/corpus"
)

// Listing maps a normalized source name (lowercased, extension stripped)
// to the ids of the chunks originating from that document, in id order.
type Listing map[string][]string

// Cache holds source listings with a time-to-live.
//
// Building a listing walks every chunk of an index; the lookup path reuses
// it until the TTL expires or Invalidate is called. Indexes only change on
// restart, so the TTL exists to bound staleness across operator mistakes
// rather than to track live data.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	listing Listing
	builtAt time.Time
}

// New creates a cache with the given TTL. A non-positive TTL disables
// reuse; every call rebuilds.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Listing returns the source listing for a tenant's index, building it on
// miss or expiry.
func (c *Cache) Listing(tenant string, ix *corpus.Index) Listing {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[tenant]; ok && c.ttl > 0 && c.now().Sub(e.builtAt) < c.ttl {
		return e.listing
	}

	listing := buildListing(ix)
	c.entries[tenant] = entry{listing: listing, builtAt: c.now()}
	return listing
}

// Invalidate drops a tenant's cached listing. An empty tenant drops all.
func (c *Cache) Invalidate(tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tenant == "" {
		c.entries = make(map[string]entry)
		return
	}
	delete(c.entries, tenant)
}

// buildListing groups chunk ids by normalized source name.
func buildListing(ix *corpus.Index) Listing {
	listing := make(Listing)
	for _, chunk := range ix.Chunks() {
		source, ok := chunk.Metadata[corpus.MetadataSource]
		if !ok || source == "" {
			continue
		}
		key := NormalizeSource(source)
		listing[key] = append(listing[key], chunk.ID)
	}
	return listing
}

// NormalizeSource lowercases a source file name and strips its directory
// and extension, matching how patent numbers are normalized.
func NormalizeSource(source string) string {
	base := filepath.Base(source)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.ToLower(base)
}
