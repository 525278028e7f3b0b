package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/registry"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model catalog",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the models in the catalog",
	Args:  cobra.NoArgs,
	RunE:  runModelsList,
}

var modelsResolveCmd = &cobra.Command{
	Use:   "resolve <model>",
	Short: "Resolve a model to its full package definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsResolve,
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsResolveCmd)
	rootCmd.AddCommand(modelsCmd)
}

func runModelsList(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tVERSION\tSERVER\tHEADS\tARTIFACT")
	for _, id := range a.catalog.IDs() {
		pkg, err := a.catalog.Lookup(id)
		if err != nil {
			continue
		}
		size := "-"
		if pkg.ArtifactSize > 0 {
			size = humanize.IBytes(uint64(pkg.ArtifactSize))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			pkg.ID, pkg.Version, pkg.ServerKind(), pkg.NumAttentionHeads, size)
	}
	return w.Flush()
}

func runModelsResolve(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	pkg, err := a.registry.Resolve(args[0])
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	return enc.Encode(resolvedModel{
		Package: *pkg,
		Server:  pkg.ServerKind().String(),
	})
}

type resolvedModel struct {
	Package registry.ModelPackage `yaml:",inline"`
	Server  string                `yaml:"server"`
}
