// Package bench measures the latency and throughput of a deployed
// model server. A serial pass produces latency statistics and token
// rate; a concurrent pass produces sustained throughput and latency
// spread under load.
package bench

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/logging"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/serve"
)

// Histogram bounds in microseconds: 100us floor, one hour ceiling.
const (
	histMin = int64(100)
	histMax = int64(time.Hour / time.Microsecond)
	histSig = 3
)

// Result holds the measurements for one model server configuration.
type Result struct {
	// AvgLatency is the mean serial invocation latency.
	AvgLatency time.Duration `json:"avg_latency"`

	// P90Latency is the 90th percentile serial invocation latency.
	P90Latency time.Duration `json:"p90_latency"`

	// TokensPerSec is the serial generation rate.
	TokensPerSec float64 `json:"tokens_per_sec"`

	// ThroughputPerSec is completed invocations per second under
	// concurrent load.
	ThroughputPerSec float64 `json:"throughput_per_sec"`

	// StdDev is the latency standard deviation under concurrent load.
	StdDev time.Duration `json:"std_dev"`
}

// Runner drives benchmark passes against a predictor.
type Runner struct {
	payload     string
	warmup      int
	invocations int
	concurrency int
	perWorker   int
	log         *logging.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithPayload sets the inference payload used for every invocation.
func WithPayload(payload string) Option {
	return func(r *Runner) { r.payload = payload }
}

// WithInvocations sets warmup and measured serial invocation counts.
func WithInvocations(warmup, measured int) Option {
	return func(r *Runner) {
		r.warmup = warmup
		r.invocations = measured
	}
}

// WithConcurrency sets worker count and invocations per worker for the
// concurrent pass.
func WithConcurrency(workers, perWorker int) Option {
	return func(r *Runner) {
		r.concurrency = workers
		r.perWorker = perWorker
	}
}

// NewRunner creates a benchmark runner with default invocation counts.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		payload:     `{"inputs":"The quick brown fox","parameters":{"max_new_tokens":64}}`,
		warmup:      2,
		invocations: 10,
		concurrency: 4,
		perWorker:   5,
		log:         logging.Get("bench"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the serial and concurrent passes. Any failed
// invocation aborts the benchmark; the error carries the invocation
// failure kind so tuning can react to it like a deploy failure.
func (r *Runner) Run(ctx context.Context, p serve.Predictor) (*Result, error) {
	res := &Result{}
	if err := r.serial(ctx, p, res); err != nil {
		return nil, err
	}
	if err := r.concurrent(ctx, p, res); err != nil {
		return nil, err
	}
	r.log.Info("benchmark complete",
		"endpoint", p.Endpoint(),
		"avg_latency", res.AvgLatency,
		"p90_latency", res.P90Latency,
		"tokens_per_sec", fmt.Sprintf("%.1f", res.TokensPerSec),
		"throughput_per_sec", fmt.Sprintf("%.2f", res.ThroughputPerSec),
		"std_dev", res.StdDev)
	return res, nil
}

func (r *Runner) serial(ctx context.Context, p serve.Predictor, res *Result) error {
	for i := 0; i < r.warmup; i++ {
		if _, err := p.Invoke(ctx, []byte(r.payload)); err != nil {
			return serve.NewDeployError(serve.FailureInvocation,
				fmt.Errorf("warmup invocation %d: %w", i+1, err))
		}
	}

	hist := hdrhistogram.New(histMin, histMax, histSig)
	var tokens int
	var busy time.Duration

	for i := 0; i < r.invocations; i++ {
		start := time.Now()
		body, err := p.Invoke(ctx, []byte(r.payload))
		if err != nil {
			return serve.NewDeployError(serve.FailureInvocation,
				fmt.Errorf("serial invocation %d: %w", i+1, err))
		}
		elapsed := time.Since(start)
		busy += elapsed
		tokens += countTokens(body)
		recordLatency(hist, elapsed)
	}

	res.AvgLatency = time.Duration(hist.Mean()) * time.Microsecond
	res.P90Latency = time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond
	if busy > 0 {
		res.TokensPerSec = float64(tokens) / busy.Seconds()
	}
	return nil
}

func (r *Runner) concurrent(ctx context.Context, p serve.Predictor, res *Result) error {
	hist := hdrhistogram.New(histMin, histMax, histSig)
	var mu sync.Mutex
	var firstErr error
	var completed int

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < r.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < r.perWorker; i++ {
				invStart := time.Now()
				_, err := p.Invoke(ctx, []byte(r.payload))
				elapsed := time.Since(invStart)

				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				completed++
				recordLatency(hist, elapsed)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return serve.NewDeployError(serve.FailureInvocation,
			fmt.Errorf("concurrent invocation: %w", firstErr))
	}

	elapsed := time.Since(start)
	if elapsed > 0 {
		res.ThroughputPerSec = float64(completed) / elapsed.Seconds()
	}
	res.StdDev = time.Duration(hist.StdDev()) * time.Microsecond
	return nil
}

// recordLatency clamps into histogram range so an outlier degrades to
// the ceiling instead of failing the benchmark.
func recordLatency(hist *hdrhistogram.Histogram, d time.Duration) {
	us := int64(d / time.Microsecond)
	if us < histMin {
		us = histMin
	}
	if us > histMax {
		us = histMax
	}
	_ = hist.RecordValue(us)
}
