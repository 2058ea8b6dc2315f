// Package hardware supplies the process-wide hardware snapshot consumed by
// adapter selection. Detection runs once on first request and is reused;
// Reset exists so tests can force re-detection or inject a snapshot.
package hardware

import (
	"os"
	"runtime"
	"strconv"
	"sync"

	"idgaf/pkg/types"
)

var (
	mu       sync.Mutex
	detected bool
	snapshot types.HardwareInfo
)

// Detect returns the cached hardware snapshot, probing on first call.
func Detect() types.HardwareInfo {
	mu.Lock()
	defer mu.Unlock()
	if !detected {
		snapshot = probe()
		detected = true
	}
	return snapshot
}

// Override installs a snapshot, bypassing probing. For tests and for hosts
// where probing is unreliable.
func Override(hw types.HardwareInfo) {
	mu.Lock()
	defer mu.Unlock()
	snapshot = hw
	detected = true
}

// Reset clears the cached snapshot so the next Detect probes again.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	detected = false
	snapshot = types.HardwareInfo{}
}

// probe builds a best-effort snapshot. GPU/NPU presence is a heuristic the
// core never depends on beyond selection scoring; deployments with better
// knowledge set IDGAF_GPU / IDGAF_NPU explicitly.
func probe() types.HardwareInfo {
	hw := types.HardwareInfo{
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		Cores:    runtime.NumCPU(),
	}
	if v := os.Getenv("IDGAF_GPU"); v != "" {
		hw.HasGPU, _ = strconv.ParseBool(v)
	} else {
		// Apple silicon ships a usable GPU on every machine.
		hw.HasGPU = runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
	}
	if v := os.Getenv("IDGAF_NPU"); v != "" {
		hw.HasNPU, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("IDGAF_MEMORY_MB"); v != "" {
		hw.MemoryMB, _ = strconv.Atoi(v)
	}
	return hw
}
