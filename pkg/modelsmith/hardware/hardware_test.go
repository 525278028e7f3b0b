package hardware

import (
	"runtime"
	"testing"
)

func TestDetect(t *testing.T) {
	resources, err := Detect()
	if err != nil {
		t.Fatalf("Detect() returned error: %v", err)
	}

	if resources.CPUCores != runtime.NumCPU() {
		t.Errorf("CPUCores = %d, want %d (runtime.NumCPU())", resources.CPUCores, runtime.NumCPU())
	}

	minRAM := int64(512 * 1024 * 1024)
	if resources.TotalRAM < minRAM {
		t.Errorf("TotalRAM = %d bytes, want >= %d bytes (512MB)", resources.TotalRAM, minRAM)
	}

	if resources.AvailableRAM <= 0 {
		t.Errorf("AvailableRAM = %d, want > 0", resources.AvailableRAM)
	}

	if resources.AvailableRAM > resources.TotalRAM {
		t.Errorf("AvailableRAM (%d) > TotalRAM (%d)", resources.AvailableRAM, resources.TotalRAM)
	}

	if resources.GPUCount < 0 {
		t.Errorf("GPUCount = %d, want >= 0", resources.GPUCount)
	}
}

func TestUsedRAM(t *testing.T) {
	used, err := UsedRAM()
	if err != nil {
		t.Fatalf("UsedRAM() returned error: %v", err)
	}

	if used <= 0 {
		t.Errorf("UsedRAM() = %d, want > 0", used)
	}

	resources, err := Detect()
	if err != nil {
		t.Fatalf("Detect() returned error: %v", err)
	}
	if used > resources.TotalRAM {
		t.Errorf("UsedRAM() = %d exceeds TotalRAM %d", used, resources.TotalRAM)
	}
}
