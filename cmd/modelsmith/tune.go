package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/bench"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/manifest"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/output"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/registry"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/tuning"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

var tuneCmd = &cobra.Command{
	Use:   "tune <model>",
	Short: "Sweep the tensor parallel degree for a model",
	Long: `Deploy and benchmark every admissible tensor parallel degree for a
model and commit the most performant one. Admissible degrees are the
divisors of the model's attention head count, bounded by the local GPU
count. A failing candidate stops the sweep; if no candidate succeeds
the original configuration is kept.

Only the local container mode supports tuning.`,
	Args: cobra.ExactArgs(1),
	RunE: runTune,
}

func init() {
	tuneCmd.Flags().Duration("max-duration", 0, "wall-clock budget for the sweep (default from config)")
	tuneCmd.Flags().StringP("output", "o", "pretty", "report format (pretty, plain, json, yaml)")
	tuneCmd.Flags().Int("invocations", 10, "measured serial invocations per candidate")
	tuneCmd.Flags().Int("concurrency", 4, "concurrent workers per candidate")
	rootCmd.AddCommand(tuneCmd)
}

func runTune(cmd *cobra.Command, args []string) error {
	model := args[0]
	format, _ := cmd.Flags().GetString("output")
	budget, _ := cmd.Flags().GetDuration("max-duration")
	invocations, _ := cmd.Flags().GetInt("invocations")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	formatter, err := output.Get(format)
	if err != nil {
		return err
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	if budget == 0 {
		if parsed, err := time.ParseDuration(a.cfg.Tuning.MaxDuration); err == nil {
			budget = parsed
		} else {
			budget = tuning.DefaultMaxDuration
		}
	}

	builder, err := a.newBuilder(model)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, err := builder.Build(ctx)
	if err != nil {
		return err
	}

	deployer, ok := builder.Deployer(a.mode)
	if !ok {
		return fmt.Errorf("no deployer registered for mode %s", a.mode)
	}

	candidates := registry.AdmissibleTensorParallelDegrees(builder.Package(), cfg.GPUs)
	runner := bench.NewRunner(
		bench.WithInvocations(2, invocations),
		bench.WithConcurrency(concurrency, 5),
	)
	tuner := tuning.NewTuner(a.mode, tuning.NewAttempt(deployer, runner),
		tuning.WithMaxDuration(budget))

	start := time.Now()
	_, results := tuner.Run(ctx, cfg, candidates)
	elapsed := time.Since(start)

	winner := winnerDegree(results)
	param, _ := types.TuningParameterFor(cfg.Server)

	outcome := manifest.OutcomeSucceeded
	if len(results) == 0 {
		outcome = manifest.OutcomeFailed
		if a.mode != types.ModeLocalContainer {
			outcome = manifest.OutcomeSkipped
		}
	}
	a.record(manifest.Entry{
		Operation: manifest.OpTune, Model: model, Mode: a.mode,
		Outcome: outcome, Duration: elapsed,
		Tune: &manifest.TuneRecord{
			Parameter:  param,
			Candidates: candidates,
			Attempted:  len(results),
			Winner:     winner,
		},
	})

	report := output.BuildReport(model, cfg.Server, a.mode, winner, results, elapsed)
	var buf bytes.Buffer
	if err := formatter.Format(&buf, report); err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, buf.String())
	return nil
}

// winnerDegree recomputes the committed degree from the result table
// with the same ordering the tuner used. Zero when nothing succeeded.
func winnerDegree(results []tuning.Candidate) int {
	if len(results) == 0 {
		return 0
	}
	best := results[0]
	for _, c := range results[1:] {
		if tuning.MorePerformant(c.Result, best.Result) {
			best = c
		}
	}
	return best.Degree
}
