package serve

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/hardware"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/logging"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/registry"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

// PrepState records which server kind the builder has prepared for.
// The state is explicit so Deploy can tell "never built" apart from
// "built for the other server" without probing fields.
type PrepState int

const (
	// PrepNone means Build has not run.
	PrepNone PrepState = iota

	// PrepDJL means the builder staged a DJL serving configuration.
	PrepDJL

	// PrepTGI means the builder staged a TGI serving configuration.
	PrepTGI
)

// String returns the string representation of the prep state.
func (s PrepState) String() string {
	switch s {
	case PrepDJL:
		return "djl"
	case PrepTGI:
		return "tgi"
	default:
		return "none"
	}
}

// Builder resolves a model from the registry, stages its artifacts and
// environment, and deploys it through the configured deployers.
type Builder struct {
	model    string
	mode     types.Mode
	stageDir string

	registry  *registry.Registry
	deployers map[types.Mode]Deployer
	resources hardware.Resources
	log       *logging.Logger

	pkg  *registry.ModelPackage
	cfg  *ModelConfig
	prep PrepState
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithDeployer registers a deployer for its mode.
func WithDeployer(d Deployer) BuilderOption {
	return func(b *Builder) {
		b.deployers[d.Mode()] = d
	}
}

// WithStageDir sets the directory model artifacts are staged under.
func WithStageDir(dir string) BuilderOption {
	return func(b *Builder) {
		b.stageDir = dir
	}
}

// WithResources overrides detected hardware resources.
func WithResources(r hardware.Resources) BuilderOption {
	return func(b *Builder) {
		b.resources = r
	}
}

// NewBuilder creates a builder for model in the given default mode.
func NewBuilder(model string, mode types.Mode, reg *registry.Registry, opts ...BuilderOption) *Builder {
	b := &Builder{
		model:     model,
		mode:      mode,
		registry:  reg,
		deployers: make(map[types.Mode]Deployer),
		log:       logging.Get("serve"),
	}
	if r, err := hardware.Detect(); err == nil {
		b.resources = r
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Package returns the resolved model package. Nil before Build.
func (b *Builder) Package() *registry.ModelPackage {
	return b.pkg
}

// Config returns the assembled model config. Nil before Build.
func (b *Builder) Config() *ModelConfig {
	return b.cfg
}

// PrepState returns the builder's current prep state.
func (b *Builder) PrepState() PrepState {
	return b.prep
}

// Build resolves the model, stages its artifacts, and assembles the
// model config. Models whose image is neither a DJL nor a TGI serving
// container cannot be built.
func (b *Builder) Build(ctx context.Context) (*ModelConfig, error) {
	pkg, err := b.registry.Resolve(b.model)
	if err != nil {
		return nil, fmt.Errorf("resolve model %q: %w", b.model, err)
	}

	kind := pkg.ServerKind()
	if kind == types.ServerUnknown {
		return nil, fmt.Errorf("model %q is not packaged with a supported model server image: %s", b.model, pkg.ImageURI)
	}

	env := pkg.DefaultEnv.Clone()
	env[types.EnvModelID] = pkg.ID

	cfg := &ModelConfig{
		Model:    pkg.ID,
		ImageURI: pkg.ImageURI,
		Server:   kind,
		Env:      env,
		GPUs:     b.resources.GPUCount,
	}

	if pkg.ArtifactURI != "" && b.mode == types.ModeLocalContainer {
		dir, size, err := b.stageArtifacts(ctx, pkg)
		if err != nil {
			return nil, fmt.Errorf("stage artifacts for %q: %w", b.model, err)
		}
		cfg.ArtifactDir = dir
		cfg.ArtifactSize = size
		b.log.Info("staged model artifacts",
			"model", pkg.ID,
			"dir", dir,
			"size", humanize.IBytes(uint64(size)))
	}

	b.pkg = pkg
	b.cfg = cfg
	switch kind {
	case types.ServerDJL:
		b.prep = PrepDJL
	case types.ServerTGI:
		b.prep = PrepTGI
	}

	b.log.Debug("built model config",
		"model", pkg.ID,
		"server", kind,
		"gpus", cfg.GPUs)
	return cfg, nil
}

// DeployOption configures a single Deploy call.
type DeployOption func(*deployOptions)

type deployOptions struct {
	mode types.Mode
}

// WithMode overrides the builder's execution mode for this deploy.
func WithMode(m types.Mode) DeployOption {
	return func(o *deployOptions) {
		o.mode = m
	}
}

// Deploy deploys the built config. A mode override switches the
// builder to that mode for this and subsequent deploys, with a
// warning, since mixed-mode sessions are almost always a mistake.
//
// On the first successful local deploy the builder records the
// resident memory delta of the model load in the config.
func (b *Builder) Deploy(ctx context.Context, opts ...DeployOption) (Predictor, error) {
	if b.prep == PrepNone || b.cfg == nil {
		return nil, fmt.Errorf("deploy called before build")
	}

	o := deployOptions{mode: b.mode}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mode != b.mode {
		b.log.Warn("execution mode overridden for deploy",
			"built", b.mode,
			"deploying", o.mode)
		b.mode = o.mode
	}

	d, ok := b.deployers[o.mode]
	if !ok {
		return nil, fmt.Errorf("no deployer registered for mode %s", o.mode)
	}

	var ramBefore int64
	sampleRAM := o.mode == types.ModeLocalContainer && b.cfg.RAMUsageModelLoad == 0
	if sampleRAM {
		if used, err := hardware.UsedRAM(); err == nil {
			ramBefore = used
		} else {
			sampleRAM = false
		}
	}

	p, err := d.Deploy(ctx, b.cfg)
	if err != nil {
		return nil, err
	}

	if sampleRAM {
		ramAfter, err := hardware.UsedRAM()
		if err != nil {
			return p, nil
		}
		if delta := ramAfter - ramBefore; delta > 0 {
			b.cfg.RAMUsageModelLoad = delta
			b.log.Debug("measured model load memory",
				"model", b.cfg.Model,
				"ram", humanize.IBytes(uint64(delta)))
		}
	}
	return p, nil
}

// Teardown tears down the current mode's deployer.
func (b *Builder) Teardown(ctx context.Context) error {
	d, ok := b.deployers[b.mode]
	if !ok {
		return nil
	}
	return d.Teardown(ctx)
}

// Mode returns the builder's current execution mode.
func (b *Builder) Mode() types.Mode {
	return b.mode
}

// Deployer returns the registered deployer for a mode.
func (b *Builder) Deployer(mode types.Mode) (Deployer, bool) {
	d, ok := b.deployers[mode]
	return d, ok
}
