package corpus

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/fyrsmithlabs/patentd/internal/logging"
)

func testChunks() []Chunk {
	return []Chunk{
		{
			ID:      "us20230012345a1-0001",
			Content: "A stacked DRAM cell architecture...",
			Vector:  []float32{0.1, 0.2, 0.3},
			Metadata: map[string]string{
				MetadataSource: "us20230012345a1p.txt",
				"company":      "samsung",
				"judgment":     "Suitable",
			},
		},
		{
			ID:      "us20230012345a1-0002",
			Content: "The bonding layer between wafers...",
			Vector:  []float32{0.4, 0.5, 0.6},
			Metadata: map[string]string{
				MetadataSource: "us20230012345a1p.txt",
				"company":      "samsung",
				"judgment":     "Unsuitable",
			},
		},
		{
			ID:      "kr1020220000001-0001",
			Content: "채널 홀 식각 공정...",
			Vector:  []float32{0.7, 0.8, 0.9},
			Metadata: map[string]string{
				MetadataSource: "kr1020220000001.txt",
				"company":      "hynix",
				"judgment":     "Suitable",
			},
		},
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(filepath.Join(dir, "dram3d.db"), "dram3d", 3, testChunks()))

	store := NewStore(dir, 3, logging.NewNop())
	ix, err := store.Load(context.Background(), "dram3d")
	require.NoError(t, err)

	assert.Equal(t, "dram3d", ix.Tenant())
	assert.Equal(t, 3, ix.Dimension())
	assert.Equal(t, 3, ix.Len())

	// Chunks come back sorted by id.
	ids := make([]string, 0, ix.Len())
	for _, c := range ix.Chunks() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"kr1020220000001-0001", "us20230012345a1-0001", "us20230012345a1-0002"}, ids)

	c, ok := ix.Chunk("us20230012345a1-0002")
	require.True(t, ok)
	assert.Equal(t, "The bonding layer between wafers...", c.Content)
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, c.Vector)
	assert.Equal(t, "Unsuitable", c.Metadata["judgment"])

	_, ok = ix.Chunk("nope")
	assert.False(t, ok)
}

func TestLoad_MissingIndex(t *testing.T) {
	store := NewStore(t.TempDir(), 3, logging.NewNop())
	_, err := store.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestLoad_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(filepath.Join(dir, "dram3d.db"), "dram3d", 3, testChunks()))

	store := NewStore(dir, 768, logging.NewNop())
	_, err := store.Load(context.Background(), "dram3d")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLoad_UnknownFormatVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dram3d.db")
	require.NoError(t, Write(path, "dram3d", 3, testChunks()))

	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHeader).Put(keyFormatVersion, []byte("99"))
	}))
	require.NoError(t, db.Close())

	store := NewStore(dir, 3, logging.NewNop())
	_, err = store.Load(context.Background(), "dram3d")
	assert.ErrorIs(t, err, ErrBadFormat)
}

func TestLoad_TenantHeaderDisagrees(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(filepath.Join(dir, "other.db"), "dram3d", 3, testChunks()))

	store := NewStore(dir, 3, logging.NewNop())
	_, err := store.Load(context.Background(), "other")
	assert.ErrorIs(t, err, ErrBadFormat)
}

func TestLoad_MissingVector(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dram3d.db")
	require.NoError(t, Write(path, "dram3d", 3, testChunks()))

	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).Delete([]byte("us20230012345a1-0001"))
	}))
	require.NoError(t, db.Close())

	store := NewStore(dir, 3, logging.NewNop())
	_, err = store.Load(context.Background(), "dram3d")
	assert.ErrorIs(t, err, ErrBadFormat)
}

func TestReadHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dram3d.db")
	require.NoError(t, Write(path, "dram3d", 3, testChunks()))

	header, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, Header{
		FormatVersion: FormatVersion,
		Tenant:        "dram3d",
		Dimension:     3,
		Count:         3,
	}, header)
}

func TestNewIndex_Validation(t *testing.T) {
	tests := []struct {
		name      string
		tenant    string
		dimension int
		chunks    []Chunk
		wantErr   error
	}{
		{
			name:      "duplicate ids",
			tenant:    "t",
			dimension: 1,
			chunks:    []Chunk{{ID: "a", Vector: []float32{1}}, {ID: "a", Vector: []float32{2}}},
			wantErr:   ErrDuplicateChunk,
		},
		{
			name:      "wrong chunk dimension",
			tenant:    "t",
			dimension: 2,
			chunks:    []Chunk{{ID: "a", Vector: []float32{1}}},
			wantErr:   ErrDimensionMismatch,
		},
		{
			name:      "empty chunk id",
			tenant:    "t",
			dimension: 1,
			chunks:    []Chunk{{ID: "", Vector: []float32{1}}},
			wantErr:   ErrBadFormat,
		},
		{
			name:      "empty tenant",
			tenant:    "",
			dimension: 1,
			wantErr:   ErrBadFormat,
		},
		{
			name:      "zero dimension",
			tenant:    "t",
			dimension: 0,
			wantErr:   ErrBadFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndex(tt.tenant, tt.dimension, tt.chunks)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.0}
	decoded, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBadFormat)
}
