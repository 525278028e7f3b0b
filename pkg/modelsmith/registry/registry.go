// Package registry resolves pre-packaged model identifiers into their
// serving metadata: container image, artifact location, server kind, and
// the model-architecture facts that drive candidate generation for tuning.
//
// Resolution reads a YAML catalog and caches results in a local Badger
// store so repeated builds do not re-read the catalog.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/logging"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

var logger = logging.Get("registry")

// ErrModelNotFound is returned when a model ID is not in the catalog.
var ErrModelNotFound = errors.New("model not found in catalog")

// ModelPackage is the resolved serving metadata for a catalog model.
type ModelPackage struct {
	// ID is the catalog identifier, e.g. "open-llama-7b-v2".
	ID string `json:"id" yaml:"id"`

	// Version is the package version resolved from the catalog.
	Version string `json:"version" yaml:"version"`

	// ImageURI is the pre-packaged serving container image.
	ImageURI string `json:"image_uri" yaml:"image_uri"`

	// ArtifactURI points at the model weights archive.
	ArtifactURI string `json:"artifact_uri" yaml:"artifact_uri"`

	// ArtifactSize is the compressed artifact size in bytes, when known.
	ArtifactSize int64 `json:"artifact_size" yaml:"artifact_size"`

	// NumAttentionHeads is the transformer attention-head count; legal
	// tensor-parallel degrees must divide it evenly.
	NumAttentionHeads int `json:"num_attention_heads" yaml:"num_attention_heads"`

	// DefaultEnv is the baseline serving environment for the package.
	DefaultEnv types.EnvMap `json:"default_env" yaml:"default_env"`
}

// ServerKind derives the model server from the package's image reference.
// The platform packages every model with either a DJL serving or a TGI
// container; the repository name is the discriminator.
func (p *ModelPackage) ServerKind() types.ServerKind {
	switch {
	case strings.Contains(p.ImageURI, "djl-inference"), strings.Contains(p.ImageURI, "djl-serving"):
		return types.ServerDJL
	case strings.Contains(p.ImageURI, "tgi-inference"), strings.Contains(p.ImageURI, "text-generation-inference"):
		return types.ServerTGI
	default:
		return types.ServerUnknown
	}
}

// Validate checks that the package carries a usable image reference.
func (p *ModelPackage) Validate() error {
	if p.ID == "" {
		return errors.New("model package missing id")
	}
	if _, err := name.ParseReference(p.ImageURI); err != nil {
		return fmt.Errorf("model %s has invalid image reference %q: %w", p.ID, p.ImageURI, err)
	}
	return nil
}

// Registry resolves model IDs against a catalog, with caching.
type Registry struct {
	catalog *Catalog
	cache   *Cache
}

// Option configures a Registry.
type Option func(*Registry)

// WithCache attaches a resolution cache.
func WithCache(c *Cache) Option {
	return func(r *Registry) { r.cache = c }
}

// New creates a Registry over the given catalog.
func New(catalog *Catalog, opts ...Option) *Registry {
	r := &Registry{catalog: catalog}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the package for a model ID. Cached results are used
// when fresh; cache failures fall back to the catalog rather than
// failing resolution.
func (r *Registry) Resolve(id string) (*ModelPackage, error) {
	if r.cache != nil {
		if pkg, err := r.cache.Get(id); err == nil {
			logger.Debug("resolved from cache", "model", id)
			return pkg, nil
		} else if !errors.Is(err, ErrCacheMiss) {
			logger.Warn("cache lookup failed, reading catalog", "model", id, "error", err)
		}
	}

	pkg, err := r.catalog.Lookup(id)
	if err != nil {
		return nil, err
	}
	if err := pkg.Validate(); err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Put(id, pkg); err != nil {
			logger.Warn("failed to cache resolution", "model", id, "error", err)
		}
	}

	logger.Info("resolved model package", "model", id, "image", pkg.ImageURI, "server", pkg.ServerKind())
	return pkg, nil
}

// IsKnownModel reports whether id resolves against the catalog. A miss is
// not an error condition for callers probing whether to fall back to
// custom-model builds.
func (r *Registry) IsKnownModel(id string) bool {
	_, err := r.Resolve(id)
	if errors.Is(err, ErrModelNotFound) {
		logger.Warn("model ID not found in catalog, building as custom model", "model", id)
		return false
	}
	if err != nil {
		logger.Warn("model resolution failed", "model", id, "error", err)
		return false
	}
	logger.Info("catalog model ID detected", "model", id)
	return true
}

// AdmissibleTensorParallelDegrees returns the ordered candidate degrees
// for a package on a machine with gpus GPUs: every divisor of the
// attention-head count not exceeding the GPU count, ascending. A machine
// without detected GPUs still admits degree one.
func AdmissibleTensorParallelDegrees(pkg *ModelPackage, gpus int) []int {
	heads := pkg.NumAttentionHeads
	if heads <= 0 {
		return []int{1}
	}
	if gpus < 1 {
		gpus = 1
	}

	var degrees []int
	for d := 1; d <= gpus && d <= heads; d++ {
		if heads%d == 0 {
			degrees = append(degrees, d)
		}
	}
	return degrees
}
