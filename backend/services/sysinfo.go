package services

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is the host resource block shown on the status page.
type HostStats struct {
	Hostname      string  `json:"hostname"`
	Platform      string  `json:"platform"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryPercent float64 `json:"memory_percent"`
	Uptime        string  `json:"uptime"`
	Goroutines    int     `json:"goroutines"`
}

// SysInfoService reads host resource usage through gopsutil.
type SysInfoService struct {
	sampleInterval time.Duration
}

func NewSysInfoService() *SysInfoService {
	return &SysInfoService{sampleInterval: 200 * time.Millisecond}
}

// Collect samples CPU and memory and reads host uptime.
func (s *SysInfoService) Collect(ctx context.Context) (*HostStats, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, s.sampleInterval, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU usage: %w", err)
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory info: %w", err)
	}

	stats := &HostStats{
		MemoryUsed:    memInfo.Used,
		MemoryTotal:   memInfo.Total,
		MemoryPercent: memInfo.UsedPercent,
		Goroutines:    runtime.NumGoroutine(),
		Platform:      runtime.GOOS,
	}
	if len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		stats.Hostname = info.Hostname
		stats.Platform = info.Platform
		stats.Uptime = FormatUptime(time.Duration(info.Uptime) * time.Second)
	}

	return stats, nil
}

// FormatUptime renders a duration as "Nd Nh Nm".
func FormatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}
