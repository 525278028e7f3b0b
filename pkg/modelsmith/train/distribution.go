package train

import (
	"fmt"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

// Launch-flag keys consumed by the training container, alongside the
// shared keys in the types package.
const (
	envModelParallel       = "MODELSMITH_MODEL_PARALLEL_ENABLED"
	envPlacementStrategy   = "MODELSMITH_SMP_PLACEMENT_STRATEGY"
	envMPIEnabled          = "MODELSMITH_MPI_ENABLED"
	envMPIProcessesPerHost = "MODELSMITH_MPI_NUM_PROCESSES_PER_HOST"
)

// Distribution selects the distributed training strategy for a job.
// At most one of DataParallel and ModelParallel may be set; torch
// distributed may ride alongside model parallelism but data
// parallelism brings its own launcher and tolerates no companion.
type Distribution struct {
	// DataParallel enables the platform's data parallel launcher.
	DataParallel bool

	// TorchDistributed enables the torchrun launcher.
	TorchDistributed bool

	// ModelParallel enables sharded model parallelism.
	ModelParallel bool

	// PlacementStrategy tunes model parallel rank placement. Only
	// meaningful with ModelParallel.
	PlacementStrategy string

	// MPI enables the mpirun launcher.
	MPI bool

	// ProcessesPerHost sets MPI ranks per host. Only meaningful with
	// MPI.
	ProcessesPerHost int
}

// Validate rejects combinations of mutually exclusive strategies.
func (d *Distribution) Validate() error {
	if d.DataParallel && d.ModelParallel {
		return fmt.Errorf("cannot use both data parallel and model parallel distribution options together")
	}
	if d.DataParallel && d.TorchDistributed {
		return fmt.Errorf("cannot use both data parallel and torch distributed distribution options together")
	}
	if d.DataParallel && d.MPI {
		return fmt.Errorf("cannot use both data parallel and mpi distribution options together")
	}
	if d.MPI && d.TorchDistributed {
		return fmt.Errorf("cannot use both mpi and torch distributed distribution options together")
	}
	return nil
}

// EnvConfig translates the strategy selection into the launch flags
// the training container reads. Invalid combinations produce an error
// and no partial mapping. The instance type accompanies any launcher
// flag so the container can size its process groups.
func (d *Distribution) EnvConfig(instanceType string) (types.EnvMap, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	env := types.EnvMap{}
	switch {
	case d.DataParallel:
		env[types.EnvLaunchDataParallel] = "true"
	case d.TorchDistributed:
		env[types.EnvLaunchTorchDistributed] = "true"
		if d.ModelParallel {
			env[envModelParallel] = "true"
			if d.PlacementStrategy != "" {
				env[envPlacementStrategy] = d.PlacementStrategy
			}
		}
	case d.MPI:
		env[envMPIEnabled] = "true"
		if d.ProcessesPerHost > 0 {
			env[envMPIProcessesPerHost] = fmt.Sprintf("%d", d.ProcessesPerHost)
		}
	case d.ModelParallel:
		env[envModelParallel] = "true"
		if d.PlacementStrategy != "" {
			env[envPlacementStrategy] = d.PlacementStrategy
		}
	default:
		return env, nil
	}

	if instanceType != "" {
		env[types.EnvInstanceType] = instanceType
	}
	return env, nil
}
