//go:build !linux

package hardware

import (
	"runtime"
)

// defaultTotalRAM is the fallback total RAM value when detection is not
// available on this platform. 8GB is a reasonable default for modern
// systems.
const defaultTotalRAM = 8 * 1024 * 1024 * 1024

// Detect detects local machine resources. On non-linux platforms RAM
// figures fall back to conservative defaults.
func Detect() (Resources, error) {
	totalRAM := int64(defaultTotalRAM)

	return Resources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     totalRAM,
		AvailableRAM: totalRAM / 2,
		GPUCount:     detectGPUCount(),
	}, nil
}

// UsedRAM returns the amount of RAM currently in use, in bytes. Without
// platform support it reports half of the default total, which keeps the
// load-footprint delta at zero.
func UsedRAM() (int64, error) {
	return defaultTotalRAM / 2, nil
}
