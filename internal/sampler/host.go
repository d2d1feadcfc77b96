package sampler

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/pulsewatch/pulsewatch/internal/metric"
)

// HostSource reads utilization percentages from the local machine.
type HostSource struct{}

// NewHostSource returns a Source backed by the local host.
func NewHostSource() *HostSource { return &HostSource{} }

// Read returns the current utilization percentage for kind in [0, 100].
func (h *HostSource) Read(ctx context.Context, kind metric.Kind) (float64, error) {
	switch kind {
	case metric.CPU:
		// Interval 0 compares against the counters from the previous
		// call, so the first reading covers boot-to-now.
		percents, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil {
			return 0, fmt.Errorf("host cpu: %w", err)
		}
		if len(percents) == 0 {
			return 0, fmt.Errorf("host cpu: no data")
		}
		return percents[0], nil
	case metric.Memory:
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("host memory: %w", err)
		}
		return vm.UsedPercent, nil
	}
	return 0, fmt.Errorf("host: unsupported metric kind %q", kind)
}
