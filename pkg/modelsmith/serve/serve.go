// Package serve deploys packaged models onto an execution mode and
// exposes them as predictors. It owns the model configuration that
// flows between the builder, the per-mode deployers, and the tuner.
package serve

import (
	"context"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

// ModelConfig is the fully assembled configuration a deployer needs to
// stand up one model server. Tuning mutates only working copies of the
// environment; the deployers treat the config as read-only.
type ModelConfig struct {
	// Model is the registry identifier of the model.
	Model string

	// ImageURI is the container image hosting the model server.
	ImageURI string

	// Server is the model server kind baked into the image.
	Server types.ServerKind

	// Env is the server environment. For DJL images the tensor parallel
	// degree rides in OPTION_TENSOR_PARALLEL_DEGREE, for TGI in
	// NUM_SHARD.
	Env types.EnvMap

	// ArtifactDir is the staged local model artifact directory. Empty
	// when artifacts are baked into the image or pulled by the server.
	ArtifactDir string

	// ArtifactSize is the total staged artifact size in bytes.
	ArtifactSize int64

	// GPUs is the number of GPUs the server may use.
	GPUs int

	// RAMUsageModelLoad is the observed resident memory delta from
	// loading the model, measured by the local deployer on the first
	// successful deploy. Zero until measured.
	RAMUsageModelLoad int64
}

// CloneForEnv returns a copy of the config with env replaced by a
// clone merged with overrides. The receiver is not modified.
func (c *ModelConfig) CloneForEnv(overrides types.EnvMap) *ModelConfig {
	out := *c
	out.Env = c.Env.Clone()
	out.Env.Merge(overrides)
	return &out
}

// Predictor is a handle to a running model server.
type Predictor interface {
	// Invoke sends one inference payload and returns the raw response.
	Invoke(ctx context.Context, payload []byte) ([]byte, error)

	// Endpoint returns the address the predictor talks to.
	Endpoint() string
}

// Deployer stands up and tears down model servers for one execution
// mode. Deploy failures carry a *DeployError so callers can branch on
// the failure kind.
type Deployer interface {
	// Deploy starts a model server for cfg and blocks until it is
	// ready, returning a predictor bound to it.
	Deploy(ctx context.Context, cfg *ModelConfig) (Predictor, error)

	// Teardown stops the most recently deployed server and releases
	// its resources. Teardown on a deployer with nothing running is a
	// no-op.
	Teardown(ctx context.Context) error

	// Mode reports which execution mode this deployer serves.
	Mode() types.Mode
}
