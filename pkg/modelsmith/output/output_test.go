package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/bench"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/tuning"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

func sampleReport() *Report {
	return &Report{
		Model:     "llama-7b",
		Server:    "djl",
		Mode:      "local-container",
		Parameter: "OPTION_TENSOR_PARALLEL_DEGREE",
		Winner:    2,
		Duration:  4 * time.Minute,
		Candidates: []CandidateRow{
			{Degree: 1, AvgLatency: 50 * time.Millisecond, P90Latency: 80 * time.Millisecond, TokensPerSec: 20, ThroughputPerSec: 3.5, StdDev: 4 * time.Millisecond},
			{Degree: 2, AvgLatency: 30 * time.Millisecond, P90Latency: 55 * time.Millisecond, TokensPerSec: 34, ThroughputPerSec: 6.1, StdDev: 2 * time.Millisecond, Best: true},
		},
	}
}

func TestRegistry(t *testing.T) {
	names := DefaultRegistry.Available()
	assert.Contains(t, names, "json")
	assert.Contains(t, names, "yaml")
	assert.Contains(t, names, "plain")
	assert.Contains(t, names, "pretty")

	_, err := Get("csv")
	assert.Error(t, err)
}

func TestBuildReport(t *testing.T) {
	results := []tuning.Candidate{
		{Degree: 1, Result: &bench.Result{AvgLatency: 50 * time.Millisecond}},
		{Degree: 2, Result: &bench.Result{AvgLatency: 30 * time.Millisecond}},
	}

	r := BuildReport("llama-7b", types.ServerDJL, types.ModeLocalContainer, 2, results, time.Minute)

	assert.Equal(t, "OPTION_TENSOR_PARALLEL_DEGREE", r.Parameter)
	require.Len(t, r.Candidates, 2)
	assert.False(t, r.Candidates[0].Best)
	assert.True(t, r.Candidates[1].Best)
}

func TestBuildReportNoWinner(t *testing.T) {
	r := BuildReport("llama-7b", types.ServerDJL, types.ModeLocalContainer, 0, nil, time.Second)
	assert.Zero(t, r.Winner)
	assert.Empty(t, r.Candidates)
}

func TestJSONFormatter(t *testing.T) {
	f, err := Get("json")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sampleReport()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "llama-7b", doc["model"])
	assert.Equal(t, float64(2), doc["winner"])

	candidates := doc["candidates"].([]any)
	require.Len(t, candidates, 2)
	best := candidates[1].(map[string]any)
	assert.Equal(t, "30ms", best["avg_latency"])
	assert.Equal(t, true, best["best"])
}

func TestYAMLFormatter(t *testing.T) {
	f, err := Get("yaml")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sampleReport()))

	var doc Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "llama-7b", doc.Model)
	require.Len(t, doc.Candidates, 2)
	assert.Equal(t, 2, doc.Candidates[1].Degree)
}

func TestPlainFormatter(t *testing.T) {
	f, err := Get("plain")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "winner: OPTION_TENSOR_PARALLEL_DEGREE=2")
	assert.Contains(t, out, "DEGREE")
	assert.Contains(t, out, "2 *")
}

func TestPlainFormatterEmptySweep(t *testing.T) {
	r := sampleReport()
	r.Winner = 0
	r.Candidates = nil

	var buf bytes.Buffer
	require.NoError(t, (&PlainFormatter{}).Format(&buf, r))
	assert.Contains(t, buf.String(), "no candidates succeeded")
}

func TestPrettyFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PrettyFormatter{}).Format(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "llama-7b")
	assert.Contains(t, out, "DEGREE")
	// Two candidate rows plus header and metadata box.
	assert.Greater(t, len(strings.Split(out, "\n")), 5)
}

func TestPrettyFormatterWarnings(t *testing.T) {
	r := sampleReport()
	r.Warnings = []string{"benchmark payload truncated"}

	var buf bytes.Buffer
	require.NoError(t, (&PrettyFormatter{}).Format(&buf, r))
	assert.Contains(t, buf.String(), "benchmark payload truncated")
}
