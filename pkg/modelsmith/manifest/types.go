// Package manifest records deploy, tune, and train operations to the
// filesystem so past runs can be listed and audited.
package manifest

import (
	"time"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

// OperationType represents the type of operation.
type OperationType string

const (
	// OpDeploy represents a model deployment.
	OpDeploy OperationType = "deploy"
	// OpTune represents a tensor parallel degree sweep.
	OpTune OperationType = "tune"
	// OpTrain represents a training job submission.
	OpTrain OperationType = "train"
)

// Outcome records how an operation ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Entry represents a single recorded operation.
type Entry struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Operation OperationType `json:"operation"`
	Model     string        `json:"model"`
	Mode      types.Mode    `json:"mode"`
	Outcome   Outcome       `json:"outcome"`
	Duration  time.Duration `json:"duration"`

	// Tune is set for tune operations.
	Tune *TuneRecord `json:"tune,omitempty"`

	// Error carries the failure message for failed operations.
	Error string `json:"error,omitempty"`
}

// TuneRecord summarizes a sweep's outcome.
type TuneRecord struct {
	Parameter  string `json:"parameter"`
	Candidates []int  `json:"candidates"`
	Attempted  int    `json:"attempted"`
	Winner     int    `json:"winner,omitempty"`
}
