package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patentd/internal/logging"
)

// FormatVersion is the persisted index layout version this build reads.
const FormatVersion = 1

// Bucket and header key names of the persisted layout.
var (
	bucketHeader  = []byte("header")
	bucketChunks  = []byte("chunks")
	bucketVectors = []byte("vectors")

	keyFormatVersion = []byte("format_version")
	keyDimension     = []byte("dimension")
	keyTenant        = []byte("tenant")
	keyCount         = []byte("count")
)

// chunkRecord is the JSON value stored per chunk id in the chunks bucket.
// Vectors live in a parallel bucket as raw float32 blobs.
type chunkRecord struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Store loads persisted tenant indexes from a directory.
//
// One bbolt file per tenant, named <tenant>.db. The store validates each
// file's declared dimension against the configured embedder dimension and
// its format version tag; either disagreement fails only that tenant.
type Store struct {
	dir       string
	dimension int
	logger    *logging.Logger
}

// NewStore creates a store reading from dir. dimension is the embedding
// dimension the configured embedder produces.
func NewStore(dir string, dimension int, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{dir: dir, dimension: dimension, logger: logger.Named("corpus")}
}

// Path returns the index file path for a tenant.
func (s *Store) Path(tenant string) string {
	return filepath.Join(s.dir, tenant+".db")
}

// Load reads a tenant's persisted index into memory.
//
// Returns ErrIndexNotFound if no file exists, ErrBadFormat for an
// unrecognized version tag or corrupt records, and ErrDimensionMismatch
// when the file's declared dimension disagrees with the embedder's.
func (s *Store) Load(ctx context.Context, tenant string) (*Index, error) {
	start := time.Now()
	path := s.Path(tenant)

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: tenant %q has no index at %s", ErrIndexNotFound, tenant, path)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening index for tenant %q: %w", tenant, err)
	}
	defer db.Close()

	var chunks []Chunk
	err = db.View(func(tx *bbolt.Tx) error {
		header := tx.Bucket(bucketHeader)
		chunkBucket := tx.Bucket(bucketChunks)
		vectorBucket := tx.Bucket(bucketVectors)
		if header == nil || chunkBucket == nil || vectorBucket == nil {
			return fmt.Errorf("%w: missing bucket", ErrBadFormat)
		}

		version, err := headerInt(header, keyFormatVersion)
		if err != nil {
			return err
		}
		if version != FormatVersion {
			return fmt.Errorf("%w: version %d, expected %d", ErrBadFormat, version, FormatVersion)
		}

		if got := string(header.Get(keyTenant)); got != tenant {
			return fmt.Errorf("%w: file declares tenant %q", ErrBadFormat, got)
		}

		dimension, err := headerInt(header, keyDimension)
		if err != nil {
			return err
		}
		if dimension != s.dimension {
			return fmt.Errorf("%w: index has %d dims, embedder produces %d",
				ErrDimensionMismatch, dimension, s.dimension)
		}

		count, err := headerInt(header, keyCount)
		if err != nil {
			return err
		}

		chunks = make([]Chunk, 0, count)
		return chunkBucket.ForEach(func(id, value []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec chunkRecord
			if err := json.Unmarshal(value, &rec); err != nil {
				return fmt.Errorf("%w: chunk %q: %v", ErrBadFormat, id, err)
			}

			blob := vectorBucket.Get(id)
			if blob == nil {
				return fmt.Errorf("%w: chunk %q has no vector", ErrBadFormat, id)
			}
			vec, err := decodeVector(blob)
			if err != nil {
				return fmt.Errorf("chunk %q: %w", id, err)
			}

			chunks = append(chunks, Chunk{
				ID:       string(id),
				Content:  rec.Content,
				Vector:   vec,
				Metadata: rec.Metadata,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading tenant %q: %w", tenant, err)
	}

	ix, err := NewIndex(tenant, s.dimension, chunks)
	if err != nil {
		return nil, fmt.Errorf("loading tenant %q: %w", tenant, err)
	}

	s.logger.Info(ctx, "loaded index",
		zap.String("tenant", tenant),
		zap.Int("chunks", ix.Len()),
		zap.Int("dimension", ix.Dimension()),
		zap.Duration("duration", time.Since(start)),
	)
	return ix, nil
}

// Header is the summary block of a persisted index file.
type Header struct {
	FormatVersion int
	Tenant        string
	Dimension     int
	Count         int
}

// ReadHeader reads just the header block of an index file. Used by tooling
// that must not assume a particular embedder dimension.
func ReadHeader(path string) (Header, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return Header{}, fmt.Errorf("opening index file: %w", err)
	}
	defer db.Close()

	var h Header
	err = db.View(func(tx *bbolt.Tx) error {
		header := tx.Bucket(bucketHeader)
		if header == nil {
			return fmt.Errorf("%w: missing header bucket", ErrBadFormat)
		}
		if h.FormatVersion, err = headerInt(header, keyFormatVersion); err != nil {
			return err
		}
		h.Tenant = string(header.Get(keyTenant))
		if h.Dimension, err = headerInt(header, keyDimension); err != nil {
			return err
		}
		h.Count, err = headerInt(header, keyCount)
		return err
	})
	if err != nil {
		return Header{}, err
	}
	return h, nil
}

// headerInt reads a decimal header value.
func headerInt(header *bbolt.Bucket, key []byte) (int, error) {
	raw := header.Get(key)
	if raw == nil {
		return 0, fmt.Errorf("%w: missing header key %q", ErrBadFormat, key)
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: header key %q: %v", ErrBadFormat, key, err)
	}
	return n, nil
}
