package orchestrator

import (
	"github.com/elastic/gosigar"
	"github.com/shirou/gopsutil/cpu"
)

// DefaultWidth returns the default worker-pool width W (spec.md §4.4:
// "W = configured workers, default = host CPU count"). gopsutil's
// cpu.Counts is tried first (the richer of the teacher's two
// system-info dependencies); gosigar's CPU list backs the fallback path,
// mirroring how gopsutil itself falls back on platforms lacking /proc.
func DefaultWidth() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	if cpuList := new(sigar.CpuList); cpuList.Get() == nil && len(cpuList.List) > 0 {
		return len(cpuList.List)
	}
	return 1
}
