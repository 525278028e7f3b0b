// Package hardware provides local resource detection for the modelsmith
// toolkit. It reports CPU, RAM, and GPU capacity of the machine running
// local-container deployments, and samples RAM usage around model loads.
package hardware

// Resources contains detected local machine resources.
type Resources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the available (free) RAM in bytes.
	// This may be an estimate based on system heuristics.
	AvailableRAM int64

	// GPUCount is the number of GPUs visible to the container runtime.
	// Zero when no GPU is detected; tensor-parallel candidates are then
	// capped at a degree of one.
	GPUCount int
}
