package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// PlainFormatter renders a report as an aligned plain-text table,
// suitable for piping and grepping.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	fmt.Fprintf(w, "model: %s (%s, %s)\n", r.Model, r.Server, r.Mode)
	if len(r.Candidates) == 0 {
		fmt.Fprintf(w, "no candidates succeeded; configuration unchanged\n")
		return nil
	}
	fmt.Fprintf(w, "winner: %s=%d\n\n", r.Parameter, r.Winner)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEGREE\tAVG\tP90\tTOK/S\tREQ/S\tSTDDEV\t")
	for _, c := range r.Candidates {
		marker := ""
		if c.Best {
			marker = " *"
		}
		fmt.Fprintf(tw, "%d%s\t%s\t%s\t%.1f\t%.2f\t%s\t\n",
			c.Degree, marker,
			c.AvgLatency, c.P90Latency,
			c.TokensPerSec, c.ThroughputPerSec, c.StdDev)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "\nwarning: %s", warning)
	}
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
