package util

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HostInfo describes the machine parklink runs on. It is attached to
// telemetry messages and the API status endpoint.
type HostInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	CPUs         int    `json:"cpus"`
	TotalMemory  uint64 `json:"total_memory_mb"`
	BootTime     uint64 `json:"boot_time"`
}

// GetHostInfo gathers host information. Fields that cannot be read are left
// empty.
func GetHostInfo() HostInfo {
	info := HostInfo{
		Architecture: runtime.GOARCH,
		CPUs:         runtime.NumCPU(),
		OS:           runtime.GOOS,
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if hostInfo, err := host.Info(); err == nil {
		info.OS = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
		info.BootTime = hostInfo.BootTime
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = memInfo.Total / (1024 * 1024)
	}

	return info
}

// ProcessStats is a snapshot of this process's resource use.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSS        uint64  `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

// GetProcessStats reads resource usage of the running process.
func GetProcessStats() (*ProcessStats, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open own process: %w", err)
	}

	stats := &ProcessStats{PID: p.Pid, Goroutines: runtime.NumGoroutine()}

	if memInfo, err := p.MemoryInfo(); err == nil {
		stats.RSS = memInfo.RSS / (1024 * 1024)
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}

	return stats, nil
}

// FileExists checks if a file or directory exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
