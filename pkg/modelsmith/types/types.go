// Package types provides core data types for the modelsmith toolkit.
// It includes the deployment mode and model server enumerations, the
// environment-variable mapping exchanged with serving containers, and
// utility functions for parsing and formatting sizes.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// Mode identifies where a model configuration is deployed.
type Mode int

const (
	// ModeUnset means no deployment mode has been chosen yet.
	ModeUnset Mode = iota

	// ModeLocalContainer deploys the serving container on the local
	// machine. Repeated deploy/benchmark cycles are cheap here, which is
	// what makes tuning viable.
	ModeLocalContainer

	// ModeClusterEndpoint deploys the serving container to the managed
	// platform's cluster. Tuning is not supported in this mode.
	ModeClusterEndpoint
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeLocalContainer:
		return "local-container"
	case ModeClusterEndpoint:
		return "cluster-endpoint"
	default:
		return "unset"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	if string(text) == "unset" || len(text) == 0 {
		*m = ModeUnset
		return nil
	}
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ErrInvalidMode is returned when an unknown mode string is parsed.
var ErrInvalidMode = errors.New("invalid deployment mode")

// ParseMode parses a string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "local", "local-container":
		return ModeLocalContainer, nil
	case "cluster", "cluster-endpoint", "endpoint":
		return ModeClusterEndpoint, nil
	default:
		return ModeUnset, fmt.Errorf("%w: %s", ErrInvalidMode, s)
	}
}

// ServerKind identifies the pre-packaged model server a model ships with.
type ServerKind int

const (
	// ServerUnknown means the server kind could not be determined.
	ServerUnknown ServerKind = iota

	// ServerDJL is the DJL serving runtime.
	ServerDJL

	// ServerTGI is the text-generation-inference runtime.
	ServerTGI
)

// String returns the string representation of the server kind.
func (s ServerKind) String() string {
	switch s {
	case ServerDJL:
		return "djl-serving"
	case ServerTGI:
		return "tgi"
	default:
		return "unknown"
	}
}

// Environment variable names consumed by the serving containers. The exact
// names are part of the wire contract with the container runtimes and must
// not be changed.
const (
	// EnvTensorParallelDegree sets the tensor-parallel degree for DJL
	// serving containers.
	EnvTensorParallelDegree = "OPTION_TENSOR_PARALLEL_DEGREE"

	// EnvNumShard sets the shard count for TGI serving containers.
	EnvNumShard = "NUM_SHARD"

	// EnvModelID tells the serving container which model to load.
	EnvModelID = "MODEL_ID"
)

// Environment variable names consumed by the training containers.
const (
	// EnvLaunchDataParallel enables the platform's data-parallel launcher.
	EnvLaunchDataParallel = "MODELSMITH_DDP_ENABLED"

	// EnvLaunchTorchDistributed enables the generic torch distributed launcher.
	EnvLaunchTorchDistributed = "MODELSMITH_TORCH_DISTRIBUTED_ENABLED"

	// EnvInstanceType tells the launcher which instance type it runs on.
	EnvInstanceType = "MODELSMITH_INSTANCE_TYPE"
)

// TuningParameterFor returns the environment variable the tuner sweeps for
// the given server kind.
func TuningParameterFor(kind ServerKind) (string, error) {
	switch kind {
	case ServerDJL:
		return EnvTensorParallelDegree, nil
	case ServerTGI:
		return EnvNumShard, nil
	default:
		return "", fmt.Errorf("no tunable parameter for server kind %s", kind)
	}
}

// sizeRegex matches size strings like "100M", "1.5GB", "2GiB". The
// input is uppercased before matching, so the IEC "i" appears as "I".
var sizeRegex = regexp.MustCompile(`^([0-9]+\.?[0-9]*)\s*([KMGT]?I?B?)$`)

// ParseSize parses a human-readable size string into bytes.
// It accepts formats like "100M", "1.5GB", "2GiB", or plain byte counts.
// All units are interpreted as binary (1K = 1024).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size string")
	}

	matches := sizeRegex.FindStringSubmatch(strings.ToUpper(s))
	if matches == nil {
		return 0, fmt.Errorf("invalid size format: %q", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %q", s)
	}

	var multiplier int64
	switch strings.TrimSuffix(strings.TrimSuffix(matches[2], "B"), "I") {
	case "", "B":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("unknown size unit: %q", s)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize formats a byte count as a human-readable string using
// binary (IEC) units.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}
