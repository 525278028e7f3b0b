package serve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/hardware"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/registry"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

const builderCatalog = `
models:
  llama-7b:
    version: "1.2.0"
    image_uri: registry.example.com/djl-inference:0.27.0
    num_attention_heads: 32
    default_env:
      SERVING_LOAD_MODELS: "ALL"
  falcon-40b:
    version: "2.0.1"
    image_uri: registry.example.com/text-generation-inference:1.4
    num_attention_heads: 64
  mystery-model:
    version: "0.1.0"
    image_uri: registry.example.com/custom-server:latest
`

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	cat, err := registry.ParseCatalog([]byte(builderCatalog))
	require.NoError(t, err)
	return registry.New(cat)
}

// stubDeployer records deploys and returns a canned predictor or error.
type stubDeployer struct {
	mode      types.Mode
	deploys   int
	teardowns int
	err       error
}

func (d *stubDeployer) Deploy(_ context.Context, cfg *ModelConfig) (Predictor, error) {
	d.deploys++
	if d.err != nil {
		return nil, d.err
	}
	return stubPredictor{endpoint: fmt.Sprintf("stub://%s", cfg.Model)}, nil
}

func (d *stubDeployer) Teardown(context.Context) error {
	d.teardowns++
	return nil
}

func (d *stubDeployer) Mode() types.Mode { return d.mode }

type stubPredictor struct {
	endpoint string
}

func (p stubPredictor) Invoke(_ context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}

func (p stubPredictor) Endpoint() string { return p.endpoint }

func TestBuildAssemblesConfig(t *testing.T) {
	b := NewBuilder("llama-7b", types.ModeLocalContainer, testRegistry(t),
		WithResources(hardware.Resources{GPUCount: 4}))

	assert.Equal(t, PrepNone, b.PrepState())

	cfg, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "llama-7b", cfg.Model)
	assert.Equal(t, types.ServerDJL, cfg.Server)
	assert.Equal(t, 4, cfg.GPUs)
	assert.Equal(t, "llama-7b", cfg.Env[types.EnvModelID])
	assert.Equal(t, "ALL", cfg.Env["SERVING_LOAD_MODELS"])
	assert.Equal(t, PrepDJL, b.PrepState())
}

func TestBuildTGIPrepState(t *testing.T) {
	b := NewBuilder("falcon-40b", types.ModeLocalContainer, testRegistry(t),
		WithResources(hardware.Resources{GPUCount: 8}))

	cfg, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ServerTGI, cfg.Server)
	assert.Equal(t, PrepTGI, b.PrepState())
}

func TestBuildRejectsUnknownServer(t *testing.T) {
	b := NewBuilder("mystery-model", types.ModeLocalContainer, testRegistry(t))

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not packaged with a supported model server")
	assert.Equal(t, PrepNone, b.PrepState())
}

func TestBuildUnknownModel(t *testing.T) {
	b := NewBuilder("no-such-model", types.ModeLocalContainer, testRegistry(t))

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrModelNotFound)
}

func TestDeployBeforeBuild(t *testing.T) {
	b := NewBuilder("llama-7b", types.ModeLocalContainer, testRegistry(t))

	_, err := b.Deploy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before build")
}

func TestDeployDispatchesToDeployer(t *testing.T) {
	d := &stubDeployer{mode: types.ModeLocalContainer}
	b := NewBuilder("llama-7b", types.ModeLocalContainer, testRegistry(t),
		WithDeployer(d),
		WithResources(hardware.Resources{GPUCount: 1}))

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	p, err := b.Deploy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stub://llama-7b", p.Endpoint())
	assert.Equal(t, 1, d.deploys)

	require.NoError(t, b.Teardown(context.Background()))
	assert.Equal(t, 1, d.teardowns)
}

func TestDeployModeOverrideSwitchesBuilder(t *testing.T) {
	local := &stubDeployer{mode: types.ModeLocalContainer}
	cluster := &stubDeployer{mode: types.ModeClusterEndpoint}
	b := NewBuilder("llama-7b", types.ModeLocalContainer, testRegistry(t),
		WithDeployer(local),
		WithDeployer(cluster),
		WithResources(hardware.Resources{GPUCount: 1}))

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	_, err = b.Deploy(context.Background(), WithMode(types.ModeClusterEndpoint))
	require.NoError(t, err)
	assert.Equal(t, 0, local.deploys)
	assert.Equal(t, 1, cluster.deploys)

	// The override sticks for subsequent deploys.
	assert.Equal(t, types.ModeClusterEndpoint, b.Mode())
	_, err = b.Deploy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cluster.deploys)
}

func TestDeployUnregisteredMode(t *testing.T) {
	b := NewBuilder("llama-7b", types.ModeLocalContainer, testRegistry(t),
		WithResources(hardware.Resources{GPUCount: 1}))

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	_, err = b.Deploy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no deployer registered")
}

func TestCloneForEnv(t *testing.T) {
	cfg := &ModelConfig{
		Model: "llama-7b",
		Env:   types.EnvMap{"A": "1", "B": "2"},
	}

	clone := cfg.CloneForEnv(types.EnvMap{"B": "3", "C": "4"})

	assert.Equal(t, types.EnvMap{"A": "1", "B": "2"}, cfg.Env)
	assert.Equal(t, types.EnvMap{"A": "1", "B": "3", "C": "4"}, clone.Env)
	assert.Equal(t, cfg.Model, clone.Model)
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"direct", NewDeployError(FailureOutOfMemory, errors.New("oom")), FailureOutOfMemory},
		{"wrapped", fmt.Errorf("attempt 3: %w", NewDeployError(FailureLoad, errors.New("never ready"))), FailureLoad},
		{"plain error", errors.New("boom"), FailureUnknown},
		{"nil inner", NewDeployError(FailureDeepPing, nil), FailureDeepPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFailure(tt.err))
		})
	}
}

func TestFailureKindString(t *testing.T) {
	assert.Equal(t, "deep-ping", FailureDeepPing.String())
	assert.Equal(t, "out-of-memory", FailureOutOfMemory.String())
	assert.Equal(t, "invocation", FailureInvocation.String())
	assert.Equal(t, "load", FailureLoad.String())
	assert.Equal(t, "skip-combo", FailureSkipCombo.String())
	assert.Equal(t, "unknown", FailureUnknown.String())
}
