package serve

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a deploy or benchmark attempt failed. The
// set is closed: every failure surfaced by a deployer is tagged with
// exactly one kind, and drivers match over the kinds exhaustively.
type FailureKind int

const (
	// FailureUnknown tags failures outside the closed taxonomy.
	FailureUnknown FailureKind = iota

	// FailureDeepPing means the deployed server came up but did not
	// answer the deep health check.
	FailureDeepPing

	// FailureOutOfMemory means the model did not fit in memory while
	// loading.
	FailureOutOfMemory

	// FailureInvocation means the server answered the health check but
	// failed a real invocation (bad serialization, content type, etc.).
	FailureInvocation

	// FailureLoad means the server never became ready.
	FailureLoad

	// FailureSkipCombo means the configuration was expected to work but
	// the attempt asked for it to be skipped.
	FailureSkipCombo
)

// String returns the string representation of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureDeepPing:
		return "deep-ping"
	case FailureOutOfMemory:
		return "out-of-memory"
	case FailureInvocation:
		return "invocation"
	case FailureLoad:
		return "load"
	case FailureSkipCombo:
		return "skip-combo"
	default:
		return "unknown"
	}
}

// DeployError is a tagged failure from a deploy or benchmark attempt.
type DeployError struct {
	Kind FailureKind
	Err  error
}

// Error implements the error interface.
func (e *DeployError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("deploy failed (%s)", e.Kind)
	}
	return fmt.Sprintf("deploy failed (%s): %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeployError) Unwrap() error {
	return e.Err
}

// NewDeployError wraps err with a failure kind.
func NewDeployError(kind FailureKind, err error) *DeployError {
	return &DeployError{Kind: kind, Err: err}
}

// ClassifyFailure extracts the failure kind from an error chain.
// Errors without a DeployError in the chain are FailureUnknown.
func ClassifyFailure(err error) FailureKind {
	var de *DeployError
	if errors.As(err, &de) {
		return de.Kind
	}
	return FailureUnknown
}
