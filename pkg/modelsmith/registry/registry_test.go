package registry

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

const testCatalog = `
models:
  open-llama-7b:
    version: "2.1.0"
    image_uri: registry.modelsmith.dev/serving/djl-inference:0.27.0-gpu
    artifact_uri: s3://modelsmith-artifacts/open-llama-7b/v2.1.0/model.tar.gz
    artifact_size: 13476642816
    num_attention_heads: 32
    default_env:
      OPTION_TENSOR_PARALLEL_DEGREE: "1"
      MODEL_ID: open-llama-7b
  falcon-40b-instruct:
    version: "1.0.3"
    image_uri: registry.modelsmith.dev/serving/text-generation-inference:1.4.2
    artifact_uri: s3://modelsmith-artifacts/falcon-40b-instruct/v1.0.3/model.tar.gz
    num_attention_heads: 128
    default_env:
      NUM_SHARD: "1"
  bad-image:
    version: "0.0.1"
    image_uri: "NOT a valid ref!!"
    num_attention_heads: 8
`

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	return c
}

func TestCatalogLookup(t *testing.T) {
	c := loadTestCatalog(t)

	pkg, err := c.Lookup("open-llama-7b")
	require.NoError(t, err)
	assert.Equal(t, "open-llama-7b", pkg.ID)
	assert.Equal(t, "2.1.0", pkg.Version)
	assert.Equal(t, 32, pkg.NumAttentionHeads)
	assert.Equal(t, "1", pkg.DefaultEnv[types.EnvTensorParallelDegree])

	_, err = c.Lookup("no-such-model")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestCatalogLookupReturnsCopy(t *testing.T) {
	c := loadTestCatalog(t)

	pkg, err := c.Lookup("open-llama-7b")
	require.NoError(t, err)
	pkg.DefaultEnv["MUTATED"] = "yes"

	again, err := c.Lookup("open-llama-7b")
	require.NoError(t, err)
	assert.NotContains(t, again.DefaultEnv, "MUTATED")
}

func TestServerKind(t *testing.T) {
	tests := []struct {
		image string
		want  types.ServerKind
	}{
		{"registry.modelsmith.dev/serving/djl-inference:0.27.0-gpu", types.ServerDJL},
		{"registry.modelsmith.dev/serving/djl-serving:0.26.0", types.ServerDJL},
		{"registry.modelsmith.dev/serving/text-generation-inference:1.4.2", types.ServerTGI},
		{"registry.modelsmith.dev/serving/tgi-inference:1.0", types.ServerTGI},
		{"registry.modelsmith.dev/serving/triton:24.01", types.ServerUnknown},
	}

	for _, tt := range tests {
		pkg := &ModelPackage{ImageURI: tt.image}
		assert.Equal(t, tt.want, pkg.ServerKind(), "image %s", tt.image)
	}
}

func TestResolveValidatesImage(t *testing.T) {
	r := New(loadTestCatalog(t))

	_, err := r.Resolve("bad-image")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid image reference")
}

func TestResolveWithCache(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenCache(filepath.Join(dir, "cache"), time.Hour)
	require.NoError(t, err)
	defer cache.Close()

	r := New(loadTestCatalog(t), WithCache(cache))

	pkg, err := r.Resolve("open-llama-7b")
	require.NoError(t, err)

	// Second resolution should hit the cache.
	cached, err := cache.Get("open-llama-7b")
	require.NoError(t, err)
	assert.Equal(t, pkg.ImageURI, cached.ImageURI)

	again, err := r.Resolve("open-llama-7b")
	require.NoError(t, err)
	assert.Equal(t, pkg.Version, again.Version)
}

func TestCacheExpiry(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenCache(filepath.Join(dir, "cache"), time.Nanosecond)
	require.NoError(t, err)
	defer cache.Close()

	pkg := &ModelPackage{ID: "m", ImageURI: "registry.modelsmith.dev/serving/djl-inference:1"}
	require.NoError(t, cache.Put("m", pkg))

	time.Sleep(time.Millisecond)

	_, err = cache.Get("m")
	assert.True(t, errors.Is(err, ErrCacheMiss), "expected cache miss for expired entry, got %v", err)
}

func TestIsKnownModel(t *testing.T) {
	r := New(loadTestCatalog(t))

	assert.True(t, r.IsKnownModel("open-llama-7b"))
	assert.False(t, r.IsKnownModel("some-hub-model"))
}

func TestAdmissibleTensorParallelDegrees(t *testing.T) {
	tests := []struct {
		name  string
		heads int
		gpus  int
		want  []int
	}{
		{"32 heads, 8 gpus", 32, 8, []int{1, 2, 4, 8}},
		{"32 heads, 4 gpus", 32, 4, []int{1, 2, 4}},
		{"12 heads, 8 gpus", 12, 8, []int{1, 2, 3, 4, 6}},
		{"no gpus still admits one", 32, 0, []int{1}},
		{"unknown heads", 0, 8, []int{1}},
		{"one head", 1, 8, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := &ModelPackage{NumAttentionHeads: tt.heads}
			got := AdmissibleTensorParallelDegrees(pkg, tt.gpus)
			assert.Equal(t, tt.want, got)
		})
	}
}
