package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// StatsCollector samples host telemetry for the device status
type StatsCollector interface {
	Collect(ctx context.Context) (*domain.SystemStats, error)
}

// HostStats reads uptime, memory and CPU usage of the local machine
type HostStats struct {
	uptime func(ctx context.Context) (uint64, error)
	memory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	usage  func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
}

// NewHostStats creates a collector backed by gopsutil
func NewHostStats() *HostStats {
	return &HostStats{
		uptime: host.UptimeWithContext,
		memory: mem.VirtualMemoryWithContext,
		usage:  cpu.PercentWithContext,
	}
}

// Collect implements StatsCollector. CPU usage is measured since the previous call.
func (h *HostStats) Collect(ctx context.Context) (*domain.SystemStats, error) {
	uptime, err := h.uptime(ctx)
	if err != nil {
		return nil, fmt.Errorf("uptime: %w", err)
	}
	vm, err := h.memory(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}

	stats := &domain.SystemStats{
		UptimeSeconds:     uptime,
		MemoryUsedPercent: vm.UsedPercent,
	}
	if usage, err := h.usage(ctx, 0, false); err == nil && len(usage) > 0 {
		stats.CPUUsedPercent = usage[0]
	}
	return stats, nil
}
