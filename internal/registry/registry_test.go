package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/patentd/internal/corpus"
	"github.com/fyrsmithlabs/patentd/internal/logging"
)

type fakeLoader struct {
	indexes map[string]*corpus.Index
	errs    map[string]error
}

func (f *fakeLoader) Load(_ context.Context, tenant string) (*corpus.Index, error) {
	if err, ok := f.errs[tenant]; ok {
		return nil, err
	}
	if ix, ok := f.indexes[tenant]; ok {
		return ix, nil
	}
	return nil, corpus.ErrIndexNotFound
}

func mkIndex(t *testing.T, tenant string, n int) *corpus.Index {
	t.Helper()
	chunks := make([]corpus.Chunk, n)
	for i := range chunks {
		chunks[i] = corpus.Chunk{ID: string(rune('a' + i)), Vector: []float32{1, 0}}
	}
	ix, err := corpus.NewIndex(tenant, 2, chunks)
	require.NoError(t, err)
	return ix
}

func TestLoadAll_PartialAvailability(t *testing.T) {
	loader := &fakeLoader{
		indexes: map[string]*corpus.Index{
			"dram3d":  mkIndex(t, "dram3d", 3),
			"samsung": mkIndex(t, "samsung", 2),
		},
		errs: map[string]error{
			"hynix": errors.New("disk corrupt"),
		},
	}
	reg := New(logging.NewNop())

	available := reg.LoadAll(context.Background(), loader, []string{"dram3d", "samsung", "hynix"})
	assert.Equal(t, 2, available)

	// Healthy tenants resolve.
	ix, err := reg.Resolve("dram3d")
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Len())

	// The failed tenant is not served but did not poison the others.
	_, err = reg.Resolve("hynix")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolve_UnknownTenant(t *testing.T) {
	reg := New(nil)
	_, err := reg.Resolve("ghost")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestStatus(t *testing.T) {
	reg := New(nil)
	reg.Register("beta", mkIndex(t, "beta", 2))
	reg.RegisterFailure("alpha", errors.New("bad header"))

	statuses := reg.Status()
	require.Len(t, statuses, 2)

	// Sorted by tenant id.
	assert.Equal(t, "alpha", statuses[0].Tenant)
	assert.False(t, statuses[0].Available)
	assert.Equal(t, "bad header", statuses[0].Error)

	assert.Equal(t, "beta", statuses[1].Tenant)
	assert.True(t, statuses[1].Available)
	assert.Equal(t, 2, statuses[1].Chunks)
	assert.Equal(t, 2, statuses[1].Dimension)
}

func TestLoadAll_Empty(t *testing.T) {
	reg := New(nil)
	assert.Zero(t, reg.LoadAll(context.Background(), &fakeLoader{}, nil))
	assert.Empty(t, reg.Status())
}
