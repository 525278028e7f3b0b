// Package train assembles training job configurations: entry points,
// hyperparameters, distribution strategies, and container images.
package train

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/logging"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/serve"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/train/recipe"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

// Estimator describes one training job. Construct it with
// NewEstimator or NewEstimatorFromRecipe; a zero Estimator is not
// valid.
type Estimator struct {
	// Name identifies the job and the model it produces.
	Name string

	// EntryPoint is the training script, relative to SourceDir.
	EntryPoint string

	// SourceDir holds the training source code.
	SourceDir string

	// Hyperparameters are passed to the entry point. Values are
	// JSON-encoded onto the wire.
	Hyperparameters map[string]any

	// ImageURI is the training container image. When empty it is
	// derived from FrameworkVersion and PyVersion.
	ImageURI string

	// FrameworkVersion and PyVersion select a platform-built image
	// when ImageURI is not given.
	FrameworkVersion string
	PyVersion        string

	// InstanceType and InstanceCount size the training cluster.
	InstanceType  string
	InstanceCount int

	// Distribution selects the distributed training strategy.
	Distribution *Distribution

	log *logging.Logger
}

// NewEstimator validates and constructs an estimator. Either an image
// URI or both framework and python versions must be given, and the
// entry point is mandatory.
func NewEstimator(name string, e Estimator) (*Estimator, error) {
	e.Name = name
	e.log = logging.Get("train")

	if e.EntryPoint == "" {
		return nil, fmt.Errorf("entry point must be set when no training recipe is provided")
	}
	if err := validateVersionOrImage(e.FrameworkVersion, e.PyVersion, e.ImageURI); err != nil {
		return nil, err
	}
	if e.ImageURI == "" {
		derived, err := ImageFor(e.FrameworkVersion, e.PyVersion, e.InstanceType)
		if err != nil {
			return nil, err
		}
		e.ImageURI = derived
	}
	if e.Distribution != nil {
		if err := e.Distribution.Validate(); err != nil {
			return nil, err
		}
	}
	if e.InstanceCount <= 0 {
		e.InstanceCount = 1
	}
	return &e, nil
}

// NewEstimatorFromRecipe constructs an estimator from a named training
// recipe. Entry point, source directory, hyperparameters, and
// distribution all come from the recipe; an explicit image URI still
// wins over the recipe's default. The returned closer owns the staged
// recipe directories and must be closed after the job is submitted.
func NewEstimatorFromRecipe(ctx context.Context, name string, e Estimator, recipeRef string, overrides map[string]any, opts ...recipe.Option) (*Estimator, *recipe.Context, error) {
	log := logging.Get("train")
	if e.EntryPoint != "" {
		log.Warn("entry point is ignored with a training recipe", "entry_point", e.EntryPoint)
	}
	if e.SourceDir != "" {
		log.Warn("source dir is ignored with a training recipe", "source_dir", e.SourceDir)
	}
	if len(e.Hyperparameters) > 0 {
		log.Warn("hyperparameters are ignored with a training recipe")
	}
	if e.Distribution != nil {
		log.Warn("distribution is ignored with a training recipe")
	}
	if e.InstanceType == "" {
		return nil, nil, fmt.Errorf("instance type must be set when using a training recipe")
	}

	res, rctx, err := recipe.Setup(ctx, recipeRef, overrides, e.InstanceType, e.InstanceCount, opts...)
	if err != nil {
		return nil, nil, err
	}

	e.Name = name
	e.EntryPoint = res.EntryPoint
	e.SourceDir = res.SourceDir
	e.Hyperparameters = res.Hyperparameters
	e.InstanceCount = res.InstanceCount
	e.Distribution = &Distribution{
		TorchDistributed:  res.TorchDistributed,
		ModelParallel:     res.ModelParallel,
		PlacementStrategy: res.PlacementStrategy,
	}
	if e.ImageURI == "" {
		e.ImageURI = res.ImageURI
	}
	if err := validateVersionOrImage(e.FrameworkVersion, e.PyVersion, e.ImageURI); err != nil {
		rctx.Close()
		return nil, nil, err
	}
	e.log = log
	return &e, rctx, nil
}

// HyperparameterEnv returns the wire form of the job's
// hyperparameters merged with the distribution launch flags. Every
// value is JSON-encoded, matching what the training container decodes.
func (e *Estimator) HyperparameterEnv() (types.EnvMap, error) {
	env := types.EnvMap{}

	keys := make([]string, 0, len(e.Hyperparameters))
	for k := range e.Hyperparameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		encoded, err := json.Marshal(e.Hyperparameters[k])
		if err != nil {
			return nil, fmt.Errorf("encode hyperparameter %q: %w", k, err)
		}
		env[k] = string(encoded)
	}

	if e.Distribution != nil {
		launch, err := e.Distribution.EnvConfig(e.InstanceType)
		if err != nil {
			return nil, err
		}
		env.Merge(launch)
	}
	return env, nil
}

// CreateModel produces a serving configuration for the artifacts this
// estimator trains, reusing the training image for inference.
func (e *Estimator) CreateModel() (*serve.ModelConfig, error) {
	if e.ImageURI == "" {
		return nil, fmt.Errorf("estimator has no image to serve from")
	}
	env, err := e.HyperparameterEnv()
	if err != nil {
		return nil, err
	}
	env[types.EnvModelID] = e.Name

	return &serve.ModelConfig{
		Model:       e.Name,
		ImageURI:    e.ImageURI,
		Server:      types.ServerUnknown,
		Env:         env,
		ArtifactDir: e.SourceDir,
	}, nil
}

// validateVersionOrImage enforces the version-or-image rule: a job
// needs either an explicit image or enough version information to
// derive one.
func validateVersionOrImage(frameworkVersion, pyVersion, imageURI string) error {
	if imageURI != "" {
		return nil
	}
	if frameworkVersion == "" || pyVersion == "" {
		return fmt.Errorf("framework_version and py_version are required when image_uri is not set")
	}
	return nil
}
