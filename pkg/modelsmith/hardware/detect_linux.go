//go:build linux

package hardware

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect detects local machine resources. RAM figures come from
// sysinfo(2); GPU count from the NVIDIA management CLI when present.
func Detect() (Resources, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return Resources{}, err
	}

	unit := int64(info.Unit)
	if unit == 0 {
		unit = 1
	}

	return Resources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     int64(info.Totalram) * unit,
		AvailableRAM: int64(info.Freeram) * unit,
		GPUCount:     detectGPUCount(),
	}, nil
}

// UsedRAM returns the amount of RAM currently in use, in bytes. The local
// deployer samples this before and after a model load to report the load
// footprint.
func UsedRAM() (int64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}

	unit := int64(info.Unit)
	if unit == 0 {
		unit = 1
	}

	return (int64(info.Totalram) - int64(info.Freeram)) * unit, nil
}
