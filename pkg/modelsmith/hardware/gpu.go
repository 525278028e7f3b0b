package hardware

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// gpuQueryTimeout bounds the GPU detection command.
const gpuQueryTimeout = 5 * time.Second

// detectGPUCount queries nvidia-smi for the number of visible GPUs.
// Returns zero when the CLI is missing or fails.
func detectGPUCount() int {
	ctx, cancel := context.WithTimeout(context.Background(), gpuQueryTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=uuid", "--format=csv,noheader").Output()
	if err != nil {
		return 0
	}

	count := 0
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}
