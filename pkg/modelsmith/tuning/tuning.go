// Package tuning sweeps the tensor parallel degree of a serving
// configuration, deploying and benchmarking each admissible degree and
// committing the most performant one.
package tuning

import (
	"context"
	"strconv"
	"time"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/bench"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/logging"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/serve"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

// DefaultMaxDuration bounds a sweep when the caller does not.
const DefaultMaxDuration = 30 * time.Minute

// Attempt deploys one candidate configuration and benchmarks it.
// Failures carry a *serve.DeployError where the cause is known.
type Attempt func(ctx context.Context, cfg *serve.ModelConfig, degree int) (*bench.Result, error)

// Candidate is one attempted degree and its benchmark result.
type Candidate struct {
	Degree int
	Result *bench.Result
}

// Tuner runs tensor-parallel-degree sweeps.
type Tuner struct {
	mode        types.Mode
	attempt     Attempt
	maxDuration time.Duration
	log         *logging.Logger
}

// Option configures a Tuner.
type Option func(*Tuner)

// WithMaxDuration sets the wall-clock budget for one sweep.
func WithMaxDuration(d time.Duration) Option {
	return func(t *Tuner) { t.maxDuration = d }
}

// NewTuner creates a tuner for the given execution mode. The attempt
// function is the deploy-and-benchmark step evaluated per candidate.
func NewTuner(mode types.Mode, attempt Attempt, opts ...Option) *Tuner {
	t := &Tuner{
		mode:        mode,
		attempt:     attempt,
		maxDuration: DefaultMaxDuration,
		log:         logging.Get("tuning"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run sweeps candidates in order and returns the configuration with
// the winning degree committed, plus the result table of every
// attempted candidate.
//
// The sweep stops when the candidate list is exhausted, the time
// budget elapses (checked before each attempt, never mid-attempt), or
// any attempt fails. A failing candidate aborts the remaining sweep
// outright; it does not skip to the next candidate. If no candidate
// succeeded the input environment is restored from the pre-sweep
// snapshot and the result table is empty. Run never returns an error:
// the caller always gets a configuration that is either the winner or
// the untouched input.
//
// Tuning requires cheap repeated deploys, so in cluster mode Run
// returns the input unchanged.
func (t *Tuner) Run(ctx context.Context, cfg *serve.ModelConfig, candidates []int) (*serve.ModelConfig, []Candidate) {
	if t.mode != types.ModeLocalContainer {
		t.log.Warn("tuning is only supported for local container mode, skipping",
			"mode", t.mode)
		return cfg, nil
	}

	param, err := types.TuningParameterFor(cfg.Server)
	if err != nil {
		t.log.Warn("cannot tune configuration", "model", cfg.Model, "error", err)
		return cfg, nil
	}

	snapshot := cfg.Env.Clone()
	deadline := time.Now().Add(t.maxDuration)

	var results []Candidate
	var best *Candidate
	var bestCfg *serve.ModelConfig

	t.log.Info("starting tensor parallel degree sweep",
		"model", cfg.Model,
		"parameter", param,
		"candidates", candidates,
		"budget", t.maxDuration)

	for _, degree := range candidates {
		if !time.Now().Before(deadline) {
			t.log.Info("tuning budget exhausted, stopping sweep",
				"budget", t.maxDuration,
				"attempted", len(results))
			break
		}

		working := cfg.CloneForEnv(types.EnvMap{param: strconv.Itoa(degree)})
		t.log.Info("benchmarking candidate", "parameter", param, "degree", degree)

		res, err := t.attempt(ctx, working, degree)
		if err != nil {
			t.logFailure(degree, err)
			break
		}

		cand := Candidate{Degree: degree, Result: res}
		results = append(results, cand)
		if best == nil || MorePerformant(res, best.Result) {
			best = &cand
			bestCfg = working
		}
	}

	if best == nil {
		cfg.Env = snapshot
		t.log.Debug("no candidate succeeded, restoring original configuration",
			"model", cfg.Model)
		return cfg, nil
	}

	cfg.Env = bestCfg.Env
	t.log.Info("sweep complete",
		"model", cfg.Model,
		"winner", best.Degree,
		"avg_latency", best.Result.AvgLatency,
		"throughput_per_sec", best.Result.ThroughputPerSec)
	return cfg, results
}

// logFailure logs per-kind guidance for a failed candidate. Every kind
// aborts the sweep; only the message differs.
func (t *Tuner) logFailure(degree int, err error) {
	log := t.log.With("degree", degree, "error", err)
	switch serve.ClassifyFailure(err) {
	case serve.FailureDeepPing:
		log.Error("candidate passed startup but failed its deep health check, stopping sweep")
	case serve.FailureOutOfMemory:
		log.Error("candidate ran out of memory while loading the model, stopping sweep")
	case serve.FailureInvocation:
		log.Error("candidate failed a benchmark invocation, stopping sweep")
	case serve.FailureLoad:
		log.Error("candidate model server never became ready, stopping sweep")
	case serve.FailureSkipCombo:
		log.Error("candidate combination is marked unsupported, stopping sweep")
	default:
		log.Error("candidate failed for an unrecognized reason, stopping sweep")
	}
}

// MorePerformant reports whether a beats b. The comparison is a total
// order: lower average latency wins, then higher concurrent
// throughput, then lower latency deviation. Results equal on all three
// do not beat each other, so the earlier candidate is kept.
func MorePerformant(a, b *bench.Result) bool {
	if a.AvgLatency != b.AvgLatency {
		return a.AvgLatency < b.AvgLatency
	}
	if a.ThroughputPerSec != b.ThroughputPerSec {
		return a.ThroughputPerSec > b.ThroughputPerSec
	}
	return a.StdDev < b.StdDev
}
