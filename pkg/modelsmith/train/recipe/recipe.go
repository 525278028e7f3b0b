// Package recipe stages platform training recipes: fetches a recipe
// by path, URL, or collection name, resolves the device-specific
// training adapter, applies overrides, and writes the final recipe
// into the staged source directory.
package recipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	getter "github.com/hashicorp/go-getter"
	"github.com/otiai10/copy"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/logging"
)

// Paths inside the training container where results land. Overrides
// are pinned here regardless of what the recipe says.
const (
	containerResultsDir = "/opt/ml/model"
	containerExpDir     = "/opt/ml/model/"
)

// Default recipe repositories and images, overridable per call.
const (
	DefaultLauncherRepo = "https://github.com/modelsmith/training-launcher.git"
	DefaultAdapterRepo  = "https://github.com/modelsmith/training-adapter.git"
	DefaultNeuronRepo   = "https://github.com/modelsmith/neuronx-training.git"

	DefaultGPUImage    = "registry.modelsmith.io/training/recipe-gpu:latest"
	DefaultNeuronImage = "registry.modelsmith.io/training/recipe-neuron:latest"
)

// modelTypeEntryPoints maps a recipe's model type to the adapter
// example directory and pretraining entry point.
var modelTypeEntryPoints = map[string]struct {
	dir   string
	entry string
}{
	"llama_v3": {"llama", "llama_pretrain.py"},
	"mistral":  {"mistral", "mistral_pretrain.py"},
	"mixtral":  {"mixtral", "mixtral_pretrain.py"},
}

// Cloner fetches a git repository into dir. Injected for tests.
type Cloner func(ctx context.Context, url, dir string) error

// Context owns the temporary directories a recipe setup stages into.
// Close after the training job has been submitted.
type Context struct {
	// TrainDir holds the cloned training adapter and the staged
	// source directory.
	TrainDir string

	// LauncherDir holds the cloned recipe collection, when one was
	// needed.
	LauncherDir string

	root string
}

// Close removes all staged directories.
func (c *Context) Close() error {
	if c.root == "" {
		return nil
	}
	root := c.root
	c.root = ""
	return os.RemoveAll(root)
}

// Result carries the estimator arguments derived from a recipe.
type Result struct {
	EntryPoint      string
	SourceDir       string
	ImageURI        string
	Hyperparameters map[string]any
	InstanceCount   int

	TorchDistributed  bool
	ModelParallel     bool
	PlacementStrategy string
}

type setup struct {
	launcherRepo string
	adapterRepo  string
	neuronRepo   string
	gpuImage     string
	neuronImage  string
	clone        Cloner
	fs           afero.Fs
	log          *logging.Logger
}

// Option configures a Setup call.
type Option func(*setup)

// WithLauncherRepo overrides the recipe collection repository.
func WithLauncherRepo(url string) Option {
	return func(s *setup) { s.launcherRepo = url }
}

// WithAdapterRepo overrides the GPU training adapter repository.
func WithAdapterRepo(url string) Option {
	return func(s *setup) { s.adapterRepo = url }
}

// WithNeuronRepo overrides the trainium training repository.
func WithNeuronRepo(url string) Option {
	return func(s *setup) { s.neuronRepo = url }
}

// WithImages overrides the default training images per device type.
func WithImages(gpu, neuron string) Option {
	return func(s *setup) {
		s.gpuImage = gpu
		s.neuronImage = neuron
	}
}

// WithCloner overrides how repositories are fetched.
func WithCloner(c Cloner) Option {
	return func(s *setup) { s.clone = c }
}

// Setup stages the named recipe and returns the estimator arguments
// plus the context owning the staged directories. The recipe reference
// is tried as a local YAML file, then a URL, then a name in the
// recipe collection. instanceCount of zero defers to the recipe's
// trainer.num_nodes.
func Setup(ctx context.Context, ref string, overrides map[string]any, instanceType string, instanceCount int, opts ...Option) (*Result, *Context, error) {
	s := &setup{
		launcherRepo: DefaultLauncherRepo,
		adapterRepo:  DefaultAdapterRepo,
		neuronRepo:   DefaultNeuronRepo,
		gpuImage:     DefaultGPUImage,
		neuronImage:  DefaultNeuronImage,
		clone:        gitClone,
		fs:           afero.NewOsFs(),
		log:          logging.Get("train.recipe"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if repo := os.Getenv("MODELSMITH_LAUNCHER_REPO"); repo != "" {
		s.launcherRepo = repo
	}
	if repo := os.Getenv("MODELSMITH_ADAPTER_REPO"); repo != "" {
		s.adapterRepo = repo
	}

	root, err := os.MkdirTemp("", "modelsmith-recipe-")
	if err != nil {
		return nil, nil, err
	}
	rctx := &Context{
		TrainDir:    filepath.Join(root, "training"),
		LauncherDir: filepath.Join(root, "launcher"),
		root:        root,
	}
	res, err := s.run(ctx, rctx, ref, overrides, instanceType, instanceCount)
	if err != nil {
		rctx.Close()
		return nil, nil, err
	}
	return res, rctx, nil
}

func (s *setup) run(ctx context.Context, rctx *Context, ref string, overrides map[string]any, instanceType string, instanceCount int) (*Result, error) {
	recipePath, err := s.fetch(ctx, rctx, ref)
	if err != nil {
		return nil, err
	}

	raw, err := afero.ReadFile(s.fs, recipePath)
	if err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse recipe %s: %w", ref, err)
	}

	device, err := deviceType(instanceType)
	if err != nil {
		return nil, err
	}

	trainer, ok := doc["trainer"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("recipe %s does not contain required field trainer", ref)
	}

	count, err := resolveInstanceCount(s.log, trainer, instanceCount)
	if err != nil {
		return nil, err
	}

	res := &Result{InstanceCount: count}
	switch device {
	case "gpu":
		if err := s.setupGPU(ctx, rctx, doc, res); err != nil {
			return nil, err
		}
	case "trainium":
		if err := s.setupTrainium(ctx, rctx, res); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("devices of type %s are not supported with training recipes", device)
	}

	if overrides == nil {
		overrides = map[string]any{}
	}
	setNested(overrides, "run", "results_dir", containerResultsDir)
	setNested(overrides, "exp_manager", "exp_dir", containerExpDir)
	merged := mergeMaps(doc, overrides)

	if container, ok := merged["container"]; ok && container != nil {
		s.log.Warn("ignoring container from training recipe, set the image explicitly instead",
			"container", container)
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode merged recipe: %w", err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(res.SourceDir, "recipe.yaml"), out, 0o644); err != nil {
		return nil, fmt.Errorf("write staged recipe: %w", err)
	}

	res.Hyperparameters = map[string]any{
		"config-path": ".",
		"config-name": "recipe.yaml",
	}
	return res, nil
}

// fetch materializes the recipe reference as a local file and returns
// its path.
func (s *setup) fetch(ctx context.Context, rctx *Context, ref string) (string, error) {
	local := filepath.Join(rctx.root, "recipe-input.yaml")

	if strings.HasSuffix(ref, ".yaml") || strings.HasSuffix(ref, ".yml") {
		if _, err := s.fs.Stat(ref); err == nil {
			if err := copy.Copy(ref, local); err != nil {
				return "", fmt.Errorf("copy recipe %s: %w", ref, err)
			}
			return local, nil
		}
		client := &getter.Client{Ctx: ctx, Src: ref, Dst: local, Mode: getter.ClientModeFile}
		if err := client.Get(); err != nil {
			return "", fmt.Errorf("could not fetch the provided recipe %s: %w", ref, err)
		}
		return local, nil
	}

	s.log.Info("fetching recipe from collection", "recipe", ref, "repo", s.launcherRepo)
	if err := s.clone(ctx, s.launcherRepo, rctx.LauncherDir); err != nil {
		return "", fmt.Errorf("clone recipe collection: %w", err)
	}
	collected := filepath.Join(rctx.LauncherDir, "recipes-collection", "recipes", "training", ref+".yaml")
	if _, err := s.fs.Stat(collected); err != nil {
		return "", fmt.Errorf("recipe %s not found in collection", ref)
	}
	return collected, nil
}

func (s *setup) setupGPU(ctx context.Context, rctx *Context, doc map[string]any, res *Result) error {
	model, ok := doc["model"].(map[string]any)
	if !ok {
		return fmt.Errorf("recipe does not contain required field model")
	}
	modelType, ok := model["model_type"].(string)
	if !ok {
		return fmt.Errorf("recipe does not contain required field model_type")
	}
	entry, ok := modelTypeEntryPoints[modelType]
	if !ok {
		return fmt.Errorf("model type %s is not supported", modelType)
	}

	if err := s.clone(ctx, s.adapterRepo, rctx.TrainDir); err != nil {
		return fmt.Errorf("clone training adapter: %w", err)
	}

	res.SourceDir = filepath.Join(rctx.TrainDir, "examples", entry.dir)
	res.EntryPoint = entry.entry
	res.ImageURI = s.gpuImage
	res.TorchDistributed = true
	res.ModelParallel = true
	res.PlacementStrategy = "cluster"
	return nil
}

func (s *setup) setupTrainium(ctx context.Context, rctx *Context, res *Result) error {
	if err := s.clone(ctx, s.neuronRepo, rctx.TrainDir); err != nil {
		return fmt.Errorf("clone neuron training repo: %w", err)
	}
	res.SourceDir = filepath.Join(rctx.TrainDir, "examples")
	res.EntryPoint = "training_orchestrator.py"
	res.ImageURI = s.neuronImage
	res.TorchDistributed = true
	return nil
}

// deviceType classifies an instance type: accelerated families map to
// gpu, trainium families to trainium, everything else to cpu.
func deviceType(instanceType string) (string, error) {
	if instanceType == "" {
		return "", fmt.Errorf("instance type is required with training recipes")
	}
	family := instanceType
	if i := strings.Index(instanceType, "."); i >= 0 {
		family = instanceType[i+1:]
		if j := strings.Index(family, "."); j >= 0 {
			family = family[:j]
		}
	}
	switch {
	case strings.HasPrefix(family, "p"), strings.HasPrefix(family, "g"):
		return "gpu", nil
	case strings.HasPrefix(family, "trn"):
		return "trainium", nil
	default:
		return "cpu", nil
	}
}

// resolveInstanceCount applies the precedence between the explicit
// instance count and trainer.num_nodes in the recipe.
func resolveInstanceCount(log *logging.Logger, trainer map[string]any, instanceCount int) (int, error) {
	nodes, hasNodes := trainer["num_nodes"]
	if instanceCount > 0 {
		if hasNodes {
			log.Warn("using the estimator instance count, ignoring trainer.num_nodes from the recipe",
				"instance_count", instanceCount,
				"num_nodes", nodes)
		}
		return instanceCount, nil
	}
	if !hasNodes {
		return 0, fmt.Errorf("either an instance count or trainer.num_nodes in the recipe must be set")
	}
	n, ok := nodes.(int)
	if !ok || n <= 0 {
		return 0, fmt.Errorf("trainer.num_nodes must be a positive integer, got %v", nodes)
	}
	return n, nil
}

// gitClone is the default cloner: a shallow single-branch clone.
func gitClone(ctx context.Context, url, dir string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	})
	return err
}
