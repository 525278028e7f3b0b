package train

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/train/recipe"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

func TestDistributionValidate(t *testing.T) {
	tests := []struct {
		name    string
		dist    Distribution
		wantErr string
	}{
		{"empty", Distribution{}, ""},
		{"data parallel alone", Distribution{DataParallel: true}, ""},
		{"torch distributed alone", Distribution{TorchDistributed: true}, ""},
		{"model parallel with torch distributed", Distribution{TorchDistributed: true, ModelParallel: true}, ""},
		{"mpi alone", Distribution{MPI: true}, ""},
		{
			"data parallel with model parallel",
			Distribution{DataParallel: true, ModelParallel: true},
			"data parallel and model parallel",
		},
		{
			"data parallel with torch distributed",
			Distribution{DataParallel: true, TorchDistributed: true},
			"data parallel and torch distributed",
		},
		{
			"data parallel with mpi",
			Distribution{DataParallel: true, MPI: true},
			"data parallel and mpi",
		},
		{
			"mpi with torch distributed",
			Distribution{MPI: true, TorchDistributed: true},
			"mpi and torch distributed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dist.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDistributionEnvConfig(t *testing.T) {
	t.Run("data parallel", func(t *testing.T) {
		d := Distribution{DataParallel: true}
		env, err := d.EnvConfig("ml.p4d.24xlarge")
		require.NoError(t, err)
		assert.Equal(t, "true", env[types.EnvLaunchDataParallel])
		assert.Equal(t, "ml.p4d.24xlarge", env[types.EnvInstanceType])
	})

	t.Run("torch distributed with model parallel", func(t *testing.T) {
		d := Distribution{TorchDistributed: true, ModelParallel: true, PlacementStrategy: "cluster"}
		env, err := d.EnvConfig("ml.p4d.24xlarge")
		require.NoError(t, err)
		assert.Equal(t, "true", env[types.EnvLaunchTorchDistributed])
		assert.Equal(t, "true", env[envModelParallel])
		assert.Equal(t, "cluster", env[envPlacementStrategy])
	})

	t.Run("mpi", func(t *testing.T) {
		d := Distribution{MPI: true, ProcessesPerHost: 8}
		env, err := d.EnvConfig("")
		require.NoError(t, err)
		assert.Equal(t, "true", env[envMPIEnabled])
		assert.Equal(t, "8", env[envMPIProcessesPerHost])
		_, hasInstance := env[types.EnvInstanceType]
		assert.False(t, hasInstance)
	})

	t.Run("invalid combination returns no partial state", func(t *testing.T) {
		d := Distribution{DataParallel: true, ModelParallel: true}
		env, err := d.EnvConfig("ml.p4d.24xlarge")
		require.Error(t, err)
		assert.Nil(t, env)
	})

	t.Run("no strategy yields empty mapping", func(t *testing.T) {
		env, err := (&Distribution{}).EnvConfig("ml.p4d.24xlarge")
		require.NoError(t, err)
		assert.Empty(t, env)
	})
}

func TestNewEstimatorValidation(t *testing.T) {
	t.Run("missing entry point", func(t *testing.T) {
		_, err := NewEstimator("job", Estimator{ImageURI: "registry.example.com/train:1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entry point")
	})

	t.Run("version or image rule", func(t *testing.T) {
		_, err := NewEstimator("job", Estimator{EntryPoint: "train.py", FrameworkVersion: "2.3"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "py_version")

		_, err = NewEstimator("job", Estimator{EntryPoint: "train.py", FrameworkVersion: "2.3", PyVersion: "py311"})
		assert.NoError(t, err)

		_, err = NewEstimator("job", Estimator{EntryPoint: "train.py", ImageURI: "registry.example.com/train:1"})
		assert.NoError(t, err)
	})

	t.Run("invalid distribution rejected at construction", func(t *testing.T) {
		_, err := NewEstimator("job", Estimator{
			EntryPoint:   "train.py",
			ImageURI:     "registry.example.com/train:1",
			Distribution: &Distribution{DataParallel: true, ModelParallel: true},
		})
		require.Error(t, err)
	})

	t.Run("defaults instance count", func(t *testing.T) {
		e, err := NewEstimator("job", Estimator{EntryPoint: "train.py", ImageURI: "img"})
		require.NoError(t, err)
		assert.Equal(t, 1, e.InstanceCount)
	})
}

func TestHyperparameterEnv(t *testing.T) {
	e, err := NewEstimator("job", Estimator{
		EntryPoint:   "train.py",
		ImageURI:     "registry.example.com/train:1",
		InstanceType: "ml.p4d.24xlarge",
		Hyperparameters: map[string]any{
			"epochs":        3,
			"learning_rate": 0.0001,
			"optimizer":     "adamw",
			"fsdp":          true,
		},
		Distribution: &Distribution{TorchDistributed: true},
	})
	require.NoError(t, err)

	env, err := e.HyperparameterEnv()
	require.NoError(t, err)

	// Values are JSON-encoded, so strings carry quotes on the wire.
	assert.Equal(t, "3", env["epochs"])
	assert.Equal(t, "0.0001", env["learning_rate"])
	assert.Equal(t, `"adamw"`, env["optimizer"])
	assert.Equal(t, "true", env["fsdp"])

	assert.Equal(t, "true", env[types.EnvLaunchTorchDistributed])
	assert.Equal(t, "ml.p4d.24xlarge", env[types.EnvInstanceType])
}

func TestCreateModel(t *testing.T) {
	e, err := NewEstimator("llama-finetune", Estimator{
		EntryPoint: "train.py",
		SourceDir:  "/src/llama",
		ImageURI:   "registry.example.com/train:1",
	})
	require.NoError(t, err)

	cfg, err := e.CreateModel()
	require.NoError(t, err)
	assert.Equal(t, "llama-finetune", cfg.Model)
	assert.Equal(t, "registry.example.com/train:1", cfg.ImageURI)
	assert.Equal(t, "llama-finetune", cfg.Env[types.EnvModelID])
}

func TestNewEstimatorFromRecipe(t *testing.T) {
	recipeYAML := `
trainer:
  num_nodes: 2
model:
  model_type: mistral
`
	path := filepath.Join(t.TempDir(), "recipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(recipeYAML), 0o644))

	cloner := func(_ context.Context, url, dir string) error {
		return os.MkdirAll(filepath.Join(dir, "examples", "mistral"), 0o755)
	}

	e, rctx, err := NewEstimatorFromRecipe(context.Background(), "mistral-job",
		Estimator{InstanceType: "ml.p4d.24xlarge"},
		path, nil, recipe.WithCloner(cloner))
	require.NoError(t, err)
	defer rctx.Close()

	assert.Equal(t, "mistral_pretrain.py", e.EntryPoint)
	assert.Equal(t, recipe.DefaultGPUImage, e.ImageURI)
	assert.Equal(t, 2, e.InstanceCount)
	require.NotNil(t, e.Distribution)
	assert.True(t, e.Distribution.TorchDistributed)
	assert.True(t, e.Distribution.ModelParallel)
	assert.Equal(t, map[string]any{"config-path": ".", "config-name": "recipe.yaml"}, e.Hyperparameters)
}

func TestNewEstimatorFromRecipeRequiresInstanceType(t *testing.T) {
	_, _, err := NewEstimatorFromRecipe(context.Background(), "job", Estimator{}, "some-recipe", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance type")
}

func TestImageFor(t *testing.T) {
	tests := []struct {
		name         string
		framework    string
		py           string
		instanceType string
		want         string
		wantErr      string
	}{
		{
			name:         "gpu instance",
			framework:    "2.2",
			py:           "py310",
			instanceType: "ml.p4d.24xlarge",
			want:         "registry.modelsmith.io/training/pytorch:2.2-gpu-py310",
		},
		{
			name:         "trainium instance",
			framework:    "2.1",
			py:           "py310",
			instanceType: "ml.trn1.32xlarge",
			want:         "registry.modelsmith.io/training/pytorch:2.1-neuron-py310",
		},
		{
			name:         "cpu instance",
			framework:    "2.3",
			py:           "py311",
			instanceType: "ml.c5.xlarge",
			want:         "registry.modelsmith.io/training/pytorch:2.3-cpu-py311",
		},
		{
			name:      "no instance type defaults to cpu",
			framework: "2.0",
			py:        "py310",
			want:      "registry.modelsmith.io/training/pytorch:2.0-cpu-py310",
		},
		{
			name:      "unknown framework version",
			framework: "1.13",
			py:        "py310",
			wantErr:   "unsupported framework version",
		},
		{
			name:      "python build not available",
			framework: "2.0",
			py:        "py311",
			wantErr:   "no py311 build",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImageFor(tt.framework, tt.py, tt.instanceType)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewEstimatorDerivesImage(t *testing.T) {
	e, err := NewEstimator("job", Estimator{
		EntryPoint:       "train.py",
		FrameworkVersion: "2.2",
		PyVersion:        "py310",
		InstanceType:     "ml.g5.12xlarge",
	})
	require.NoError(t, err)
	assert.Equal(t, "registry.modelsmith.io/training/pytorch:2.2-gpu-py310", e.ImageURI)

	// A derived image makes the estimator servable.
	cfg, err := e.CreateModel()
	require.NoError(t, err)
	assert.Equal(t, e.ImageURI, cfg.ImageURI)
}

func TestNewEstimatorRejectsUnbuiltVersion(t *testing.T) {
	_, err := NewEstimator("job", Estimator{
		EntryPoint:       "train.py",
		FrameworkVersion: "1.13",
		PyVersion:        "py310",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported framework version")
}
