package tuning

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/bench"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/serve"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

func testConfig() *serve.ModelConfig {
	return &serve.ModelConfig{
		Model:  "llama-7b",
		Server: types.ServerDJL,
		Env: types.EnvMap{
			"MODEL_ID":      "llama-7b",
			"SERVING_BATCH": "4",
		},
	}
}

func result(avg time.Duration, throughput float64, stddev time.Duration) *bench.Result {
	return &bench.Result{
		AvgLatency:       avg,
		P90Latency:       avg * 2,
		TokensPerSec:     10,
		ThroughputPerSec: throughput,
		StdDev:           stddev,
	}
}

// outcome scripts one candidate's attempt.
type outcome struct {
	res *bench.Result
	err error
}

// scriptedAttempt returns an Attempt that replays outcomes per degree
// and records the degrees attempted, in order.
func scriptedAttempt(script map[int]outcome, attempted *[]int) Attempt {
	return func(_ context.Context, cfg *serve.ModelConfig, degree int) (*bench.Result, error) {
		*attempted = append(*attempted, degree)
		o, ok := script[degree]
		if !ok {
			return nil, fmt.Errorf("unscripted degree %d", degree)
		}
		return o.res, o.err
	}
}

func TestRunSelectsLowestLatency(t *testing.T) {
	var attempted []int
	attempt := scriptedAttempt(map[int]outcome{
		1: {res: result(50*time.Millisecond, 10, time.Millisecond)},
		2: {res: result(30*time.Millisecond, 10, time.Millisecond)},
		4: {res: result(45*time.Millisecond, 10, time.Millisecond)},
		8: {res: result(60*time.Millisecond, 10, time.Millisecond)},
	}, &attempted)

	tuner := NewTuner(types.ModeLocalContainer, attempt)
	cfg := testConfig()

	out, results := tuner.Run(context.Background(), cfg, []int{1, 2, 4, 8})

	assert.Equal(t, []int{1, 2, 4, 8}, attempted)
	assert.Len(t, results, 4)
	assert.Equal(t, "2", out.Env[types.EnvTensorParallelDegree])
	// Untouched env entries survive the commit.
	assert.Equal(t, "llama-7b", out.Env["MODEL_ID"])
	assert.Equal(t, "4", out.Env["SERVING_BATCH"])
}

func TestRunFirstFailureAborts(t *testing.T) {
	var attempted []int
	attempt := scriptedAttempt(map[int]outcome{
		1: {err: serve.NewDeployError(serve.FailureLoad, errors.New("never ready"))},
		2: {res: result(10*time.Millisecond, 10, time.Millisecond)},
		4: {res: result(10*time.Millisecond, 10, time.Millisecond)},
	}, &attempted)

	tuner := NewTuner(types.ModeLocalContainer, attempt)
	cfg := testConfig()
	snapshot := cfg.Env.Clone()

	out, results := tuner.Run(context.Background(), cfg, []int{1, 2, 4})

	// The sweep stops at the first failure; later candidates are never
	// attempted even though they would have succeeded.
	assert.Equal(t, []int{1}, attempted)
	assert.Empty(t, results)
	assert.True(t, out.Env.Equal(snapshot))
	_, present := out.Env[types.EnvTensorParallelDegree]
	assert.False(t, present)
}

func TestRunLaterFailureKeepsEarlierWinner(t *testing.T) {
	var attempted []int
	attempt := scriptedAttempt(map[int]outcome{
		1: {res: result(30*time.Millisecond, 10, time.Millisecond)},
		2: {res: result(20*time.Millisecond, 10, time.Millisecond)},
		4: {err: serve.NewDeployError(serve.FailureOutOfMemory, errors.New("oom"))},
		8: {res: result(5*time.Millisecond, 10, time.Millisecond)},
	}, &attempted)

	tuner := NewTuner(types.ModeLocalContainer, attempt)

	out, results := tuner.Run(context.Background(), testConfig(), []int{1, 2, 4, 8})

	assert.Equal(t, []int{1, 2, 4}, attempted)
	assert.Len(t, results, 2)
	assert.Equal(t, "2", out.Env[types.EnvTensorParallelDegree])
}

func TestRunZeroBudget(t *testing.T) {
	var attempted []int
	attempt := scriptedAttempt(nil, &attempted)

	tuner := NewTuner(types.ModeLocalContainer, attempt, WithMaxDuration(0))
	cfg := testConfig()
	snapshot := cfg.Env.Clone()

	out, results := tuner.Run(context.Background(), cfg, []int{1, 2, 4})

	assert.Empty(t, attempted)
	assert.Empty(t, results)
	assert.True(t, out.Env.Equal(snapshot))
}

func TestRunBudgetCheckedBetweenCandidates(t *testing.T) {
	var attempted []int
	attempt := func(_ context.Context, _ *serve.ModelConfig, degree int) (*bench.Result, error) {
		attempted = append(attempted, degree)
		time.Sleep(30 * time.Millisecond)
		return result(time.Duration(degree)*time.Millisecond, 10, time.Millisecond), nil
	}

	tuner := NewTuner(types.ModeLocalContainer, attempt, WithMaxDuration(10*time.Millisecond))

	out, results := tuner.Run(context.Background(), testConfig(), []int{1, 2, 4, 8})

	// The first attempt starts inside the budget and runs to
	// completion; the deadline check stops the sweep before the second.
	assert.Equal(t, []int{1}, attempted)
	assert.Len(t, results, 1)
	assert.Equal(t, "1", out.Env[types.EnvTensorParallelDegree])
}

func TestRunClusterModeUnchanged(t *testing.T) {
	var attempted []int
	attempt := scriptedAttempt(nil, &attempted)

	tuner := NewTuner(types.ModeClusterEndpoint, attempt)
	cfg := testConfig()
	snapshot := cfg.Env.Clone()

	out, results := tuner.Run(context.Background(), cfg, []int{1, 2})

	assert.Same(t, cfg, out)
	assert.Empty(t, attempted)
	assert.Empty(t, results)
	assert.True(t, out.Env.Equal(snapshot))
}

func TestRunUnknownServerUnchanged(t *testing.T) {
	var attempted []int
	attempt := scriptedAttempt(nil, &attempted)

	tuner := NewTuner(types.ModeLocalContainer, attempt)
	cfg := testConfig()
	cfg.Server = types.ServerUnknown

	_, results := tuner.Run(context.Background(), cfg, []int{1, 2})

	assert.Empty(t, attempted)
	assert.Empty(t, results)
}

func TestRunTGIUsesNumShard(t *testing.T) {
	var attempted []int
	attempt := scriptedAttempt(map[int]outcome{
		1: {res: result(40*time.Millisecond, 10, time.Millisecond)},
		2: {res: result(25*time.Millisecond, 10, time.Millisecond)},
	}, &attempted)

	tuner := NewTuner(types.ModeLocalContainer, attempt)
	cfg := testConfig()
	cfg.Server = types.ServerTGI

	out, _ := tuner.Run(context.Background(), cfg, []int{1, 2})

	assert.Equal(t, "2", out.Env[types.EnvNumShard])
	_, present := out.Env[types.EnvTensorParallelDegree]
	assert.False(t, present)
}

func TestRunAbortsOnEveryFailureKind(t *testing.T) {
	kinds := []serve.FailureKind{
		serve.FailureDeepPing,
		serve.FailureOutOfMemory,
		serve.FailureInvocation,
		serve.FailureLoad,
		serve.FailureSkipCombo,
		serve.FailureUnknown,
	}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			var attempted []int
			attempt := scriptedAttempt(map[int]outcome{
				1: {err: serve.NewDeployError(kind, errors.New("boom"))},
				2: {res: result(time.Millisecond, 10, time.Millisecond)},
			}, &attempted)

			tuner := NewTuner(types.ModeLocalContainer, attempt)
			cfg := testConfig()
			snapshot := cfg.Env.Clone()

			out, results := tuner.Run(context.Background(), cfg, []int{1, 2})

			assert.Equal(t, []int{1}, attempted)
			assert.Empty(t, results)
			assert.True(t, out.Env.Equal(snapshot))
		})
	}
}

func TestRunPlainErrorAborts(t *testing.T) {
	var attempted []int
	attempt := scriptedAttempt(map[int]outcome{
		1: {err: errors.New("untagged failure")},
	}, &attempted)

	tuner := NewTuner(types.ModeLocalContainer, attempt)

	_, results := tuner.Run(context.Background(), testConfig(), []int{1, 2})
	assert.Equal(t, []int{1}, attempted)
	assert.Empty(t, results)
}

func TestMorePerformant(t *testing.T) {
	tests := []struct {
		name string
		a, b *bench.Result
		want bool
	}{
		{
			name: "lower latency wins",
			a:    result(10*time.Millisecond, 1, time.Second),
			b:    result(20*time.Millisecond, 100, time.Millisecond),
			want: true,
		},
		{
			name: "higher latency loses regardless of throughput",
			a:    result(20*time.Millisecond, 100, time.Millisecond),
			b:    result(10*time.Millisecond, 1, time.Second),
			want: false,
		},
		{
			name: "equal latency falls to throughput",
			a:    result(10*time.Millisecond, 50, time.Second),
			b:    result(10*time.Millisecond, 20, time.Millisecond),
			want: true,
		},
		{
			name: "equal latency and throughput falls to stddev",
			a:    result(10*time.Millisecond, 50, time.Millisecond),
			b:    result(10*time.Millisecond, 50, 2*time.Millisecond),
			want: true,
		},
		{
			name: "fully equal results do not beat each other",
			a:    result(10*time.Millisecond, 50, time.Millisecond),
			b:    result(10*time.Millisecond, 50, time.Millisecond),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MorePerformant(tt.a, tt.b))
		})
	}
}

func TestNewAttemptTearsDown(t *testing.T) {
	d := &recordingDeployer{}
	r := bench.NewRunner(bench.WithInvocations(0, 1), bench.WithConcurrency(1, 1))
	attempt := NewAttempt(d, r)

	cfg := testConfig()
	res, err := attempt(context.Background(), cfg, 2)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Equal(t, 1, d.deploys)
	assert.Equal(t, 1, d.teardowns)
}

func TestNewAttemptDeployFailureSkipsTeardown(t *testing.T) {
	d := &recordingDeployer{err: serve.NewDeployError(serve.FailureLoad, errors.New("no"))}
	attempt := NewAttempt(d, bench.NewRunner())

	_, err := attempt(context.Background(), testConfig(), 2)
	require.Error(t, err)
	assert.Equal(t, serve.FailureLoad, serve.ClassifyFailure(err))
	assert.Equal(t, 0, d.teardowns)
}

type recordingDeployer struct {
	deploys   int
	teardowns int
	err       error
}

func (d *recordingDeployer) Deploy(context.Context, *serve.ModelConfig) (serve.Predictor, error) {
	d.deploys++
	if d.err != nil {
		return nil, d.err
	}
	return instantPredictor{}, nil
}

func (d *recordingDeployer) Teardown(context.Context) error {
	d.teardowns++
	return nil
}

func (d *recordingDeployer) Mode() types.Mode { return types.ModeLocalContainer }

type instantPredictor struct{}

func (instantPredictor) Invoke(context.Context, []byte) ([]byte, error) {
	return []byte(`{"generated_text":"ok"}`), nil
}

func (instantPredictor) Endpoint() string { return "fake://instant" }
