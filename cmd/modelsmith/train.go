package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/manifest"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/train"
)

var trainCmd = &cobra.Command{
	Use:   "train <name>",
	Short: "Configure a training job for a model",
	Long: `Assemble a training job configuration, either from an explicit entry
point or from a training recipe. Recipes are resolved from a local
YAML file, a URL, or by name from the recipe collection, and pin
their output directories to the managed results path.

Overrides use dotted paths into the recipe document:

  modelsmith train llama-ft --recipe llama/pretrain \
      --instance-type p4d.24xlarge --instance-count 4 \
      --set trainer.max_steps=500 --set model.hidden_size=4096`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().String("recipe", "", "training recipe: file path, URL, or collection name")
	trainCmd.Flags().StringArray("set", nil, "recipe override as dotted.path=value (repeatable)")
	trainCmd.Flags().String("entry-point", "", "training script (ignored with --recipe)")
	trainCmd.Flags().String("source-dir", "", "directory holding the training source")
	trainCmd.Flags().String("instance-type", "", "compute instance type (required with --recipe)")
	trainCmd.Flags().Int("instance-count", 0, "number of training instances")
	trainCmd.Flags().String("image", "", "training container image")
	trainCmd.Flags().String("framework-version", "", "framework version, resolved to an image")
	trainCmd.Flags().String("py-version", "", "python version, resolved to an image")
	trainCmd.Flags().Bool("ddp", false, "enable the data parallel launcher")
	trainCmd.Flags().Bool("torch-distributed", false, "enable the torchrun launcher")
	trainCmd.Flags().Bool("mpi", false, "enable the mpirun launcher")
	trainCmd.Flags().Int("processes-per-host", 0, "MPI processes per host")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	name := args[0]
	recipeRef, _ := cmd.Flags().GetString("recipe")
	sets, _ := cmd.Flags().GetStringArray("set")

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	base := train.Estimator{}
	base.EntryPoint, _ = cmd.Flags().GetString("entry-point")
	base.SourceDir, _ = cmd.Flags().GetString("source-dir")
	base.InstanceType, _ = cmd.Flags().GetString("instance-type")
	base.InstanceCount, _ = cmd.Flags().GetInt("instance-count")
	base.ImageURI, _ = cmd.Flags().GetString("image")
	base.FrameworkVersion, _ = cmd.Flags().GetString("framework-version")
	base.PyVersion, _ = cmd.Flags().GetString("py-version")
	if dist := distributionFromFlags(cmd); dist != nil {
		base.Distribution = dist
	}

	start := time.Now()
	var estimator *train.Estimator
	if recipeRef != "" {
		overrides, err := parseOverrides(sets)
		if err != nil {
			return err
		}
		est, rctx, err := train.NewEstimatorFromRecipe(cmd.Context(), name, base, recipeRef, overrides)
		if err != nil {
			a.record(manifest.Entry{
				Operation: manifest.OpTrain, Model: name, Mode: a.mode,
				Outcome: manifest.OutcomeFailed, Duration: time.Since(start),
				Error: err.Error(),
			})
			return err
		}
		defer func() {
			if err := rctx.Close(); err != nil {
				printError("cleanup recipe workspace: %v", err)
			}
		}()
		estimator = est
	} else {
		estimator, err = train.NewEstimator(name, base)
		if err != nil {
			return err
		}
	}

	env, err := estimator.HyperparameterEnv()
	if err != nil {
		return err
	}

	a.record(manifest.Entry{
		Operation: manifest.OpTrain, Model: name, Mode: a.mode,
		Outcome: manifest.OutcomeSucceeded, Duration: time.Since(start),
	})

	printInfo("training job %s configured", estimator.Name)
	printInfo("  entry point: %s", estimator.EntryPoint)
	if estimator.SourceDir != "" {
		printInfo("  source dir:  %s", estimator.SourceDir)
	}
	if estimator.ImageURI != "" {
		printInfo("  image:       %s", estimator.ImageURI)
	}
	printInfo("  instances:   %d x %s", estimator.InstanceCount, orUnset(estimator.InstanceType))
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printInfo("  env %s=%s", k, env[k])
	}
	return nil
}

func distributionFromFlags(cmd *cobra.Command) *train.Distribution {
	ddp, _ := cmd.Flags().GetBool("ddp")
	torch, _ := cmd.Flags().GetBool("torch-distributed")
	mpi, _ := cmd.Flags().GetBool("mpi")
	procs, _ := cmd.Flags().GetInt("processes-per-host")
	if !ddp && !torch && !mpi {
		return nil
	}
	return &train.Distribution{
		DataParallel:     ddp,
		TorchDistributed: torch,
		MPI:              mpi,
		ProcessesPerHost: procs,
	}
}

// parseOverrides turns repeated dotted.path=value flags into the nested
// document shape recipes are merged with. Values are decoded as YAML
// scalars so numbers and booleans keep their types.
func parseOverrides(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	out := map[string]any{}
	for _, s := range sets {
		path, raw, ok := strings.Cut(s, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid override %q: want dotted.path=value", s)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		node := out
		parts := strings.Split(path, ".")
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return out, nil
}

func orUnset(s string) string {
	if s == "" {
		return "<unset>"
	}
	return s
}
