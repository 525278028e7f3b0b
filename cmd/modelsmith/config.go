package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage modelsmith configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/modelsmith/config.yaml (if set)
  2. ~/.config/modelsmith/config.yaml

Environment variables can override config file settings using the
MODELSMITH_ prefix:
  MODELSMITH_MODE=cluster-endpoint
  MODELSMITH_CLUSTER_NAMESPACE=serving
  MODELSMITH_TUNING_MAX_DURATION=15m`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow displays the effective configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if configFile := config.FileUsed(); configFile != "" {
		fmt.Printf("# config file: %s\n", configFile)
	} else {
		fmt.Println("# config file: (using defaults, no file found)")
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	return enc.Encode(configView{
		Mode:     cfg.Mode,
		Registry: cfg.Registry,
		Local:    cfg.Local,
		Cluster:  cfg.Cluster,
		Tuning:   cfg.Tuning,
		Recipe:   cfg.Recipe,
		Manifest: manifestView{
			Enabled:       cfg.Manifest.Enabled,
			Path:          cfg.Manifest.Path,
			RetentionDays: cfg.Manifest.RetentionDays,
		},
		Logging: loggingView{
			Level: cfg.Logging.Level,
			Path:  cfg.Logging.Path,
		},
	})
}

// configView mirrors config.Config with yaml tags for display. The
// mapstructure structs carry no yaml tags of their own.
type configView struct {
	Mode     string                `yaml:"mode"`
	Registry config.RegistryConfig `yaml:"registry"`
	Local    config.LocalConfig    `yaml:"local"`
	Cluster  config.ClusterConfig  `yaml:"cluster"`
	Tuning   config.TuningConfig   `yaml:"tuning"`
	Recipe   config.RecipeConfig   `yaml:"recipe"`
	Manifest manifestView          `yaml:"manifest"`
	Logging  loggingView           `yaml:"logging"`
}

type manifestView struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type loggingView struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path,omitempty"`
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(cmd *cobra.Command, args []string) error {
	if err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(configDir, "config.yaml")

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'modelsmith config edit' to modify it.")
		return nil
	}

	if err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	fmt.Println(filepath.Join(configDir, "config.yaml"))
	return nil
}
