package output

import (
	"bytes"
	"encoding/json"
)

// jsonReport is the wire shape of a report: durations rendered as
// strings so the document is readable without unit guessing.
type jsonReport struct {
	Model      string          `json:"model"`
	Server     string          `json:"server"`
	Mode       string          `json:"mode"`
	Parameter  string          `json:"parameter"`
	Winner     int             `json:"winner"`
	Duration   string          `json:"duration"`
	Candidates []jsonCandidate `json:"candidates"`
	Warnings   []string        `json:"warnings,omitempty"`
}

type jsonCandidate struct {
	Degree           int     `json:"degree"`
	AvgLatency       string  `json:"avg_latency"`
	P90Latency       string  `json:"p90_latency"`
	TokensPerSec     float64 `json:"tokens_per_sec"`
	ThroughputPerSec float64 `json:"throughput_per_sec"`
	StdDev           string  `json:"std_dev"`
	Best             bool    `json:"best"`
}

// JSONFormatter formats a report as a single indented JSON document.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	out := jsonReport{
		Model:     r.Model,
		Server:    r.Server,
		Mode:      r.Mode,
		Parameter: r.Parameter,
		Winner:    r.Winner,
		Duration:  r.Duration.String(),
		Warnings:  r.Warnings,
	}
	for _, c := range r.Candidates {
		out.Candidates = append(out.Candidates, jsonCandidate{
			Degree:           c.Degree,
			AvgLatency:       c.AvgLatency.String(),
			P90Latency:       c.P90Latency.String(),
			TokensPerSec:     c.TokensPerSec,
			ThroughputPerSec: c.ThroughputPerSec,
			StdDev:           c.StdDev.String(),
			Best:             c.Best,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)
