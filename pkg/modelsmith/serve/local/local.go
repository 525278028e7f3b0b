// Package local deploys model servers as containers on the local
// machine through the docker CLI.
package local

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/logging"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/serve"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

const (
	// containerModelDir is where staged artifacts are mounted inside
	// the server container. Both DJL and TGI images read it.
	containerModelDir = "/opt/ml/model"

	// oomExitCode is the exit code the kernel gives an OOM-killed
	// container process.
	oomExitCode = 137
)

// pollInterval is a variable so tests can shorten the readiness wait.
var pollInterval = 2 * time.Second

// Deployer runs model servers as local docker containers. One deployer
// manages at most one running container at a time.
type Deployer struct {
	dockerBin      string
	containerPort  int
	hostPort       int
	startupTimeout time.Duration
	log            *logging.Logger

	container string
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithDockerBinary overrides the docker binary path.
func WithDockerBinary(bin string) Option {
	return func(d *Deployer) { d.dockerBin = bin }
}

// WithPorts sets the host and container ports for the server endpoint.
func WithPorts(host, container int) Option {
	return func(d *Deployer) {
		d.hostPort = host
		d.containerPort = container
	}
}

// WithStartupTimeout bounds how long Deploy waits for readiness.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(d *Deployer) { d.startupTimeout = timeout }
}

// NewDeployer creates a local container deployer.
func NewDeployer(opts ...Option) *Deployer {
	d := &Deployer{
		dockerBin:      "docker",
		containerPort:  8080,
		hostPort:       8080,
		startupTimeout: 10 * time.Minute,
		log:            logging.Get("serve.local"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode implements serve.Deployer.
func (d *Deployer) Mode() types.Mode {
	return types.ModeLocalContainer
}

// Deploy starts a container for cfg, waits for the server to pass its
// health check, and smoke-tests one invocation. Failures are tagged
// with the kind the tuner branches on: an OOM-killed container, a
// container that exited, a server that never answered the health
// check, and a server that failed the smoke invocation are distinct
// outcomes.
func (d *Deployer) Deploy(ctx context.Context, cfg *serve.ModelConfig) (serve.Predictor, error) {
	if d.container != "" {
		if err := d.Teardown(ctx); err != nil {
			return nil, fmt.Errorf("teardown previous container: %w", err)
		}
	}

	name := containerName()
	args := d.runArgs(cfg, name)
	d.log.Info("starting model server container",
		"model", cfg.Model,
		"container", name,
		"image", cfg.ImageURI)
	d.log.Debug("docker run", "args", strings.Join(args, " "))

	if out, err := d.docker(ctx, args...); err != nil {
		return nil, serve.NewDeployError(serve.FailureLoad,
			fmt.Errorf("docker run: %w: %s", err, strings.TrimSpace(out)))
	}
	d.container = name

	predictor := newPredictor(fmt.Sprintf("http://127.0.0.1:%d", d.hostPort))

	if err := d.waitReady(ctx, predictor); err != nil {
		d.removeFailed(ctx)
		return nil, err
	}

	if err := predictor.ping(ctx); err != nil {
		d.removeFailed(ctx)
		return nil, serve.NewDeployError(serve.FailureDeepPing,
			fmt.Errorf("deep ping after readiness: %w", err))
	}

	if _, err := predictor.Invoke(ctx, smokePayload(cfg.Server)); err != nil {
		d.removeFailed(ctx)
		return nil, serve.NewDeployError(serve.FailureInvocation,
			fmt.Errorf("smoke invocation: %w", err))
	}

	d.log.Info("model server ready", "container", name, "endpoint", predictor.Endpoint())
	return predictor, nil
}

// Teardown force-removes the current container.
func (d *Deployer) Teardown(ctx context.Context) error {
	if d.container == "" {
		return nil
	}
	name := d.container
	d.container = ""
	d.log.Debug("removing container", "container", name)
	if out, err := d.docker(ctx, "rm", "-f", name); err != nil {
		return fmt.Errorf("docker rm %s: %w: %s", name, err, strings.TrimSpace(out))
	}
	return nil
}

// removeFailed removes the container left behind when startup fails,
// so the host port is free for the next attempt. Removal survives a
// cancelled deploy context and is best effort; the startup failure is
// the error that matters.
func (d *Deployer) removeFailed(ctx context.Context) {
	if err := d.Teardown(context.WithoutCancel(ctx)); err != nil {
		d.log.Warn("failed to remove unhealthy container", "error", err)
	}
}

// waitReady polls the container state and the server health endpoint
// until the server is healthy, the container dies, or the startup
// timeout elapses.
func (d *Deployer) waitReady(ctx context.Context, p *predictor) error {
	deadline := time.Now().Add(d.startupTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return serve.NewDeployError(serve.FailureLoad, ctx.Err())
		case <-ticker.C:
		}

		state, exitCode, err := d.containerState(ctx)
		if err != nil {
			return serve.NewDeployError(serve.FailureLoad,
				fmt.Errorf("inspect container: %w", err))
		}
		if state == "exited" || state == "dead" {
			return serve.NewDeployError(classifyExit(exitCode),
				fmt.Errorf("container exited with code %d", exitCode))
		}

		if err := p.ping(ctx); err == nil {
			return nil
		}

		if time.Now().After(deadline) {
			return serve.NewDeployError(serve.FailureDeepPing,
				fmt.Errorf("server not healthy after %s", d.startupTimeout))
		}
	}
}

// containerState returns the docker state string and exit code of the
// current container.
func (d *Deployer) containerState(ctx context.Context) (string, int, error) {
	out, err := d.docker(ctx, "inspect",
		"--format", "{{.State.Status}} {{.State.ExitCode}}", d.container)
	if err != nil {
		return "", 0, err
	}
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) != 2 {
		return "", 0, fmt.Errorf("unexpected inspect output: %q", out)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, fmt.Errorf("parse exit code %q: %w", fields[1], err)
	}
	return fields[0], code, nil
}

// runArgs assembles the docker run argument list for cfg.
func (d *Deployer) runArgs(cfg *serve.ModelConfig, name string) []string {
	args := []string{
		"run", "-d",
		"--name", name,
		"-p", fmt.Sprintf("%d:%d", d.hostPort, d.containerPort),
		"--shm-size", "2g",
	}
	if cfg.GPUs > 0 {
		args = append(args, "--gpus", strconv.Itoa(cfg.GPUs))
	}
	if cfg.ArtifactDir != "" {
		args = append(args, "-v", fmt.Sprintf("%s:%s", cfg.ArtifactDir, containerModelDir))
	}
	for _, k := range cfg.Env.SortedKeys() {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, cfg.Env[k]))
	}
	args = append(args, cfg.ImageURI)
	return args
}

func (d *Deployer) docker(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.dockerBin, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

// classifyExit maps a container exit code to a failure kind.
func classifyExit(code int) serve.FailureKind {
	if code == oomExitCode {
		return serve.FailureOutOfMemory
	}
	return serve.FailureLoad
}

func containerName() string {
	return "modelsmith-" + uuid.NewString()[:8]
}

// smokePayload returns a minimal generation request for the server
// kind. Both servers accept the inputs/parameters shape.
func smokePayload(types.ServerKind) []byte {
	return []byte(`{"inputs":"hello","parameters":{"max_new_tokens":4}}`)
}
