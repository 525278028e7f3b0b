// Package config provides configuration management for the modelsmith toolkit.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// RegistryConfig configures model package resolution.
type RegistryConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
	CachePath   string `mapstructure:"cache_path"`
	CacheTTL    string `mapstructure:"cache_ttl"`
}

// LocalConfig configures the local container runtime.
type LocalConfig struct {
	DockerBinary   string `mapstructure:"docker_binary"`
	ContainerPort  int    `mapstructure:"container_port"`
	StartupTimeout string `mapstructure:"startup_timeout"`
}

// ClusterConfig configures the cluster-endpoint deployer.
type ClusterConfig struct {
	Kubeconfig string `mapstructure:"kubeconfig"`
	Namespace  string `mapstructure:"namespace"`
}

// TuningConfig configures the local tuning sweep.
type TuningConfig struct {
	MaxDuration string `mapstructure:"max_duration"`
}

// RecipeConfig configures training recipe retrieval.
type RecipeConfig struct {
	LauncherRepo string `mapstructure:"launcher_repo"`
	AdapterRepo  string `mapstructure:"adapter_repo"`
	NeuronRepo   string `mapstructure:"neuron_repo"`
}

// Config represents the application configuration.
type Config struct {
	Mode     string        `mapstructure:"mode"`
	Registry RegistryConfig `mapstructure:"registry"`
	Local    LocalConfig   `mapstructure:"local"`
	Cluster  ClusterConfig `mapstructure:"cluster"`
	Tuning   TuningConfig  `mapstructure:"tuning"`
	Recipe   RecipeConfig  `mapstructure:"recipe"`
	Manifest struct {
		Enabled       bool   `mapstructure:"enabled"`
		Path          string `mapstructure:"path"`
		RetentionDays int    `mapstructure:"retention_days"`
	} `mapstructure:"manifest"`
	Logging LoggingConfig `mapstructure:"logging"`
}

var fileUsed string

// FileUsed reports the config file the last Load read, if any.
func FileUsed() string {
	return fileUsed
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/modelsmith/config.yaml
//   - $HOME/.config/modelsmith/config.yaml
//
// Environment variables are prefixed with MODELSMITH_
// (e.g., MODELSMITH_MODE).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "modelsmith"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "modelsmith"))

	v.SetEnvPrefix("MODELSMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v, homeDir)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; defaults apply.
	}

	fileUsed = v.ConfigFileUsed()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.HasPrefix(cfg.Manifest.Path, "~") {
		cfg.Manifest.Path = filepath.Join(homeDir, cfg.Manifest.Path[1:])
	}

	return &cfg, nil
}

// SetDefaults installs the default values on the given viper instance.
func SetDefaults(v *viper.Viper, homeDir string) {
	v.SetDefault("mode", DefaultMode)

	v.SetDefault("registry.catalog_path", "")
	v.SetDefault("registry.cache_path", "")
	v.SetDefault("registry.cache_ttl", DefaultRegistryCacheTTL)

	v.SetDefault("local.docker_binary", DefaultDockerBinary)
	v.SetDefault("local.container_port", DefaultContainerPort)
	v.SetDefault("local.startup_timeout", DefaultStartupTimeout)

	v.SetDefault("cluster.kubeconfig", "")
	v.SetDefault("cluster.namespace", DefaultNamespace)

	v.SetDefault("tuning.max_duration", DefaultMaxTuningDuration)

	v.SetDefault("recipe.launcher_repo", DefaultLauncherRepo)
	v.SetDefault("recipe.adapter_repo", DefaultAdapterRepo)
	v.SetDefault("recipe.neuron_repo", DefaultNeuronRepo)

	v.SetDefault("manifest.enabled", true)
	v.SetDefault("manifest.retention_days", DefaultRetentionDays)
	v.SetDefault("manifest.path", filepath.Join(homeDir, ".config", "modelsmith", ".manifest"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"tuning":   "info",
		"serve":    "info",
		"train":    "info",
		"registry": "warn",
	})
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "modelsmith"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "modelsmith"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault creates a commented default config file if one does not
// already exist.
func WriteDefault() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configDir, err := ConfigDir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# Modelsmith Configuration

# Deployment mode: local-container or cluster-endpoint
mode: %s

registry:
  # catalog_path: /path/to/catalog.yaml
  cache_ttl: %s

local:
  docker_binary: %s
  container_port: %d
  startup_timeout: %s

cluster:
  # kubeconfig: ~/.kube/config
  namespace: %s

tuning:
  max_duration: %s

manifest:
  enabled: true
  retention_days: %d

logging:
  level: info
`, DefaultMode, DefaultRegistryCacheTTL, DefaultDockerBinary, DefaultContainerPort,
		DefaultStartupTimeout, DefaultNamespace, DefaultMaxTuningDuration, DefaultRetentionDays)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ExpandPath expands a leading ~ in path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	if path == "~" {
		return homeDir, nil
	}

	return filepath.Join(homeDir, strings.TrimPrefix(path, "~/")), nil
}
