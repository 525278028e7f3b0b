package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/logging"
)

var rootCmd = &cobra.Command{
	Use:   "modelsmith",
	Short: "Deploy, tune, and train packaged models",
	Long: `Modelsmith is client-side tooling for a managed ML platform: it
resolves packaged models from the registry, deploys them locally or to
a cluster, sweeps serving parameters for the best configuration, and
assembles training jobs from recipes.

Examples:
  modelsmith deploy llama-7b              # Deploy locally and smoke-test
  modelsmith tune llama-7b                # Sweep tensor parallel degrees
  modelsmith tune llama-7b -o json        # Machine-readable sweep report
  modelsmith train --recipe llama-pretrain --instance-type ml.p4d.24xlarge
  modelsmith models list                  # List catalog models
  modelsmith config show                  # Show configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("mode", "", "execution mode (local-container, cluster-endpoint)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output on the console")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")

	_ = viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

// Execute runs the root command.
func Execute() error {
	defer func() {
		_ = logging.Close()
	}()
	err := rootCmd.Execute()
	if err != nil {
		printError("%v", err)
	}
	return err
}

func getVerbose() bool {
	return viper.GetBool("verbose")
}

func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints a message unless quiet mode is enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
