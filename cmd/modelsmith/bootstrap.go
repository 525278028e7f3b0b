package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/config"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/logging"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/manifest"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/registry"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/serve"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/serve/kube"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/serve/local"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

// app holds the wired-up collaborators every command needs.
type app struct {
	cfg      *config.Config
	mode     types.Mode
	catalog  *registry.Catalog
	registry *registry.Registry
	cache    *registry.Cache
	manifest *manifest.Manifest
}

// bootstrap loads configuration, initializes logging, and wires the
// registry and manifest. Callers must close the returned app.
func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if err := initLogging(cfg); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	mode, err := resolveMode(cfg)
	if err != nil {
		return nil, err
	}

	catalogPath := cfg.Registry.CatalogPath
	if catalogPath == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return nil, err
		}
		catalogPath = filepath.Join(dir, "catalog.yaml")
	}
	catalog, err := registry.LoadCatalog(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("load model catalog: %w", err)
	}

	a := &app{cfg: cfg, mode: mode, catalog: catalog}

	cachePath := cfg.Registry.CachePath
	if cachePath == "" {
		cachePath = filepath.Join(xdg.CacheHome, "modelsmith", "registry")
	}
	ttl, err := time.ParseDuration(cfg.Registry.CacheTTL)
	if err != nil {
		ttl = 24 * time.Hour
	}
	if cache, err := registry.OpenCache(cachePath, ttl); err == nil {
		a.cache = cache
		a.registry = registry.New(catalog, registry.WithCache(cache))
	} else {
		logging.Get("cli").Warn("registry cache unavailable, resolving from catalog only", "error", err)
		a.registry = registry.New(catalog)
	}

	if cfg.Manifest.Enabled {
		m, err := manifest.New(cfg.Manifest.Path)
		if err == nil && m.EnsureDir() == nil {
			a.manifest = m
			_ = m.Cleanup(cfg.Manifest.RetentionDays)
		}
	}

	return a, nil
}

func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

// record writes a manifest entry when the manifest is enabled.
func (a *app) record(entry manifest.Entry) {
	if a.manifest == nil {
		return
	}
	if _, err := a.manifest.Record(entry); err != nil {
		logging.Get("cli").Warn("failed to record operation", "error", err)
	}
}

// newBuilder constructs a serve.Builder with the deployers the
// configured mode needs.
func (a *app) newBuilder(model string) (*serve.Builder, error) {
	opts := []serve.BuilderOption{}

	startup, err := time.ParseDuration(a.cfg.Local.StartupTimeout)
	if err != nil {
		startup = 10 * time.Minute
	}

	switch a.mode {
	case types.ModeLocalContainer:
		opts = append(opts, serve.WithDeployer(local.NewDeployer(
			local.WithDockerBinary(a.cfg.Local.DockerBinary),
			local.WithPorts(a.cfg.Local.ContainerPort, 8080),
			local.WithStartupTimeout(startup),
		)))
	case types.ModeClusterEndpoint:
		d, err := kube.NewDeployer(a.cfg.Cluster.Kubeconfig, a.cfg.Cluster.Namespace,
			kube.WithStartupTimeout(startup))
		if err != nil {
			return nil, fmt.Errorf("build cluster deployer: %w", err)
		}
		opts = append(opts, serve.WithDeployer(d))
	default:
		return nil, fmt.Errorf("no deployment mode configured")
	}

	return serve.NewBuilder(model, a.mode, a.registry, opts...), nil
}

// resolveMode applies the --mode flag over the configured default.
func resolveMode(cfg *config.Config) (types.Mode, error) {
	selected := cfg.Mode
	if flag := viper.GetString("mode"); flag != "" {
		selected = flag
	}
	return types.ParseMode(selected)
}

// initLogging configures the logging system from config, honoring the
// verbose and quiet console flags.
func initLogging(cfg *config.Config) error {
	consoleLevel := ""
	if getVerbose() {
		consoleLevel = "debug"
	} else if !getQuiet() {
		consoleLevel = "warn"
	}

	size, err := types.ParseSize(cfg.Logging.Rotation.MaxSize)
	if err != nil {
		size = 10 * types.MiB
	}

	return logging.Init(logging.Config{
		Level: cfg.Logging.Level,
		Path:  cfg.Logging.Path,
		Rotation: logging.RotationConfig{
			MaxSize:    size,
			MaxAge:     cfg.Logging.Rotation.MaxAge,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			Daily:      cfg.Logging.Rotation.Daily,
		},
		Components:   cfg.Logging.Components,
		ConsoleLevel: consoleLevel,
	})
}
