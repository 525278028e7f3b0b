package config

// Default configuration values for modelsmith.
const (
	// DefaultMode is the deployment mode used when none is specified.
	DefaultMode = "local-container"

	// DefaultRegistryCacheTTL is how long resolved model packages stay
	// valid in the local cache.
	DefaultRegistryCacheTTL = "24h"

	// DefaultDockerBinary is the container CLI used for local deployments.
	DefaultDockerBinary = "docker"

	// DefaultContainerPort is the host port the local serving container
	// is published on.
	DefaultContainerPort = 8080

	// DefaultStartupTimeout bounds how long a local container may take to
	// become ready before the deploy is classified as a load failure.
	DefaultStartupTimeout = "10m"

	// DefaultNamespace is the cluster namespace for endpoint deployments.
	DefaultNamespace = "modelsmith"

	// DefaultMaxTuningDuration is the wall-clock budget for a tuning sweep.
	DefaultMaxTuningDuration = "30m"

	// DefaultRetentionDays is the default number of days to retain
	// operation manifests.
	DefaultRetentionDays = 30
)

// Default repositories for training recipe setup. The launcher repo hosts
// the recipe collection; the adapter and neuron repos hold device-specific
// training entry points. All three can be overridden in config or by the
// MODELSMITH_RECIPE_* environment variables.
const (
	DefaultLauncherRepo = "https://github.com/modelsmith/training-launcher.git"
	DefaultAdapterRepo  = "https://github.com/modelsmith/training-adapter.git"
	DefaultNeuronRepo   = "https://github.com/modelsmith/neuronx-training.git"
)

// Default container images used when a training recipe does not pin one.
const (
	DefaultRecipeGPUImage     = "registry.modelsmith.dev/training/gpu-adapter:latest"
	DefaultRecipeNeuronImage  = "registry.modelsmith.dev/training/neuron-adapter:latest"
)
