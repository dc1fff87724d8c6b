// Package corpus defines the immutable per-tenant chunk index and its
// persisted on-disk layout.
package corpus

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrIndexNotFound is returned when a tenant has no persisted index.
	ErrIndexNotFound = errors.New("index not found")

	// ErrBadFormat indicates an unrecognized or corrupt index file.
	ErrBadFormat = errors.New("unrecognized index format")

	// ErrDimensionMismatch indicates the persisted dimension disagrees with
	// the configured embedder.
	ErrDimensionMismatch = errors.New("index dimension mismatch")

	// ErrDuplicateChunk indicates two chunks share an id within one tenant.
	ErrDuplicateChunk = errors.New("duplicate chunk id")
)

// Chunk is a single retrievable unit of patent text.
//
// Chunks are immutable once loaded; the service never mutates an index at
// runtime.
type Chunk struct {
	// ID is unique within the chunk's tenant.
	ID string `json:"id"`

	// Content is the raw chunk text handed to the RAG orchestrator.
	Content string `json:"content"`

	// Vector is the chunk's embedding, of exactly the index's dimension.
	Vector []float32 `json:"vector"`

	// Metadata holds filterable key/value pairs. "source" names the patent
	// document the chunk came from; domain fields such as "company" or
	// "judgment" are additional entries.
	Metadata map[string]string `json:"metadata"`
}

// MetadataSource is the metadata key naming the originating document.
const MetadataSource = "source"

// Index is one tenant's read-only chunk collection.
//
// Chunks are held sorted by id so ranking ties and lookups are
// deterministic. Concurrent reads need no locking.
type Index struct {
	tenant    string
	dimension int
	chunks    []Chunk
}

// NewIndex builds an index over the given chunks.
//
// Every chunk vector must have exactly the declared dimension and chunk ids
// must be unique. The chunks slice is taken over by the index.
func NewIndex(tenant string, dimension int, chunks []Chunk) (*Index, error) {
	if tenant == "" {
		return nil, fmt.Errorf("%w: empty tenant id", ErrBadFormat)
	}
	if dimension < 1 {
		return nil, fmt.Errorf("%w: dimension %d", ErrBadFormat, dimension)
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })

	for i, c := range chunks {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: chunk %d has empty id", ErrBadFormat, i)
		}
		if i > 0 && chunks[i-1].ID == c.ID {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateChunk, c.ID)
		}
		if len(c.Vector) != dimension {
			return nil, fmt.Errorf("%w: chunk %q has %d dims, index declares %d",
				ErrDimensionMismatch, c.ID, len(c.Vector), dimension)
		}
	}

	return &Index{tenant: tenant, dimension: dimension, chunks: chunks}, nil
}

// Tenant returns the owning tenant id.
func (ix *Index) Tenant() string { return ix.tenant }

// Dimension returns the embedding dimension shared by all chunks.
func (ix *Index) Dimension() int { return ix.dimension }

// Len returns the number of chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Chunks returns the chunks ordered by id. Callers must not mutate it.
func (ix *Index) Chunks() []Chunk { return ix.chunks }

// Chunk returns the chunk with the given id.
func (ix *Index) Chunk(id string) (Chunk, bool) {
	i := sort.Search(len(ix.chunks), func(i int) bool { return ix.chunks[i].ID >= id })
	if i < len(ix.chunks) && ix.chunks[i].ID == id {
		return ix.chunks[i], true
	}
	return Chunk{}, false
}
