package service

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats reports resource usage of the current process and host.
// Values that cannot be read on the platform are omitted.
func ProcessStats() map[string]any {
	stats := map[string]any{
		"goroutines": runtime.NumGoroutine(),
		"pid":        os.Getpid(),
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			stats["rss_bytes"] = info.RSS
		}
		if cpu, err := p.CPUPercent(); err == nil {
			stats["cpu_percent"] = cpu
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["host_memory_used_percent"] = vm.UsedPercent
	}
	if uptime, err := host.Uptime(); err == nil {
		stats["host_uptime_seconds"] = uptime
	}
	return stats
}
