// Package output provides formatters for displaying tuning reports in
// various output formats (pretty, plain, json, yaml).
//
// The package uses a registry pattern to allow registration of
// multiple formatter implementations selected at runtime:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/tuning"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

// CandidateRow is one attempted degree in a report.
type CandidateRow struct {
	// Degree is the tensor parallel degree that was benchmarked.
	Degree int `json:"degree" yaml:"degree"`

	// AvgLatency is the mean serial invocation latency.
	AvgLatency time.Duration `json:"avg_latency" yaml:"avg_latency"`

	// P90Latency is the 90th percentile serial invocation latency.
	P90Latency time.Duration `json:"p90_latency" yaml:"p90_latency"`

	// TokensPerSec is the serial token generation rate.
	TokensPerSec float64 `json:"tokens_per_sec" yaml:"tokens_per_sec"`

	// ThroughputPerSec is invocations per second under concurrent load.
	ThroughputPerSec float64 `json:"throughput_per_sec" yaml:"throughput_per_sec"`

	// StdDev is the latency standard deviation under concurrent load.
	StdDev time.Duration `json:"std_dev" yaml:"std_dev"`

	// Best marks the winning candidate.
	Best bool `json:"best" yaml:"best"`
}

// Report contains the complete output data for one tuning sweep.
type Report struct {
	// Model is the tuned model's identifier.
	Model string `json:"model" yaml:"model"`

	// Server is the model server kind.
	Server string `json:"server" yaml:"server"`

	// Mode is the execution mode the sweep ran in.
	Mode string `json:"mode" yaml:"mode"`

	// Parameter is the environment variable that was swept.
	Parameter string `json:"parameter" yaml:"parameter"`

	// Winner is the committed degree; zero when no candidate succeeded.
	Winner int `json:"winner" yaml:"winner"`

	// Duration is the sweep's wall-clock time.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Candidates lists every attempted candidate in sweep order.
	Candidates []CandidateRow `json:"candidates" yaml:"candidates"`

	// Warnings contains any warning messages generated during the sweep.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// BuildReport assembles a report from a finished sweep.
func BuildReport(model string, server types.ServerKind, mode types.Mode, winner int, results []tuning.Candidate, duration time.Duration) *Report {
	param, _ := types.TuningParameterFor(server)
	r := &Report{
		Model:     model,
		Server:    server.String(),
		Mode:      mode.String(),
		Parameter: param,
		Winner:    winner,
		Duration:  duration,
	}
	for _, c := range results {
		r.Candidates = append(r.Candidates, CandidateRow{
			Degree:           c.Degree,
			AvgLatency:       c.Result.AvgLatency,
			P90Latency:       c.Result.P90Latency,
			TokensPerSec:     c.Result.TokensPerSec,
			ThroughputPerSec: c.Result.ThroughputPerSec,
			StdDev:           c.Result.StdDev,
			Best:             c.Degree == winner && winner != 0,
		})
	}
	return r
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any
// existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}
