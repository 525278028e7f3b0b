package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/manifest"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <model>",
	Short: "Deploy a packaged model",
	Long: `Resolve a model from the registry, stage its artifacts, and deploy
its serving container in the configured mode. The command waits until
the server is healthy and has answered a smoke invocation.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().Bool("keep", false, "leave the server running on exit")
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	model := args[0]
	keep, _ := cmd.Flags().GetBool("keep")

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	builder, err := a.newBuilder(model)
	if err != nil {
		return err
	}

	start := time.Now()
	ctx := cmd.Context()
	if _, err := builder.Build(ctx); err != nil {
		a.record(manifest.Entry{
			Operation: manifest.OpDeploy, Model: model, Mode: a.mode,
			Outcome: manifest.OutcomeFailed, Duration: time.Since(start), Error: err.Error(),
		})
		return err
	}

	predictor, err := builder.Deploy(ctx)
	if err != nil {
		a.record(manifest.Entry{
			Operation: manifest.OpDeploy, Model: model, Mode: a.mode,
			Outcome: manifest.OutcomeFailed, Duration: time.Since(start), Error: err.Error(),
		})
		return err
	}

	a.record(manifest.Entry{
		Operation: manifest.OpDeploy, Model: model, Mode: a.mode,
		Outcome: manifest.OutcomeSucceeded, Duration: time.Since(start),
	})
	printInfo("deployed %s at %s", model, predictor.Endpoint())

	if !keep {
		if err := builder.Teardown(ctx); err != nil {
			return err
		}
		printInfo("server torn down; pass --keep to leave it running")
	}
	return nil
}
