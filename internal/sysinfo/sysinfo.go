package sysinfo

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

const mb = 1024 * 1024

// MemorySnapshot is a point-in-time reading of this process's memory
// footprint. Sampled for logging and health reporting only; nothing
// feeds it back into processing decisions.
type MemorySnapshot struct {
	RSSMB   float64 `json:"rss_mb"`
	VMSMB   float64 `json:"vms_mb"`
	Percent float64 `json:"percent"`
}

// Sample reads the current process memory usage. Best effort: on
// platforms where the probe fails it returns a zero snapshot.
func Sample() MemorySnapshot {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return MemorySnapshot{}
	}

	var snap MemorySnapshot
	if info, err := proc.MemoryInfo(); err == nil && info != nil {
		snap.RSSMB = float64(info.RSS) / mb
		snap.VMSMB = float64(info.VMS) / mb
	}
	if pct, err := proc.MemoryPercent(); err == nil {
		snap.Percent = float64(pct)
	}
	return snap
}

// AvailableMemoryGB reports system memory still available, for the
// startup system-info log line.
func AvailableMemoryGB() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return float64(vm.Available) / (mb * 1024)
}

// CPUCount reports usable logical CPUs.
func CPUCount() int {
	return runtime.NumCPU()
}
