package monitoring

import (
	"context"
	"sync"

	"skybridge/internal/core/ports"

	"github.com/mackerelio/go-osstat/cpu"
	"github.com/mackerelio/go-osstat/memory"
	"github.com/mackerelio/go-osstat/network"
)

// OSStatSampler reads host CPU, memory and network counters for the
// performance feedback loop. CPU usage is derived from the delta of the
// cumulative total/idle counters between two samples, so the first
// sample reports zero.
type OSStatSampler struct {
	mu        sync.Mutex
	lastTotal uint64
	lastIdle  uint64
}

func NewOSStatSampler() *OSStatSampler {
	return &OSStatSampler{}
}

func (s *OSStatSampler) Sample(_ context.Context) (ports.SystemSample, error) {
	var sample ports.SystemSample

	cpuStats, err := cpu.Get()
	if err != nil {
		return sample, err
	}
	s.mu.Lock()
	if s.lastTotal > 0 && cpuStats.Total > s.lastTotal {
		sample.CPUUsage = 1 - float64(cpuStats.Idle-s.lastIdle)/float64(cpuStats.Total-s.lastTotal)
	}
	s.lastTotal = cpuStats.Total
	s.lastIdle = cpuStats.Idle
	s.mu.Unlock()

	if memStats, err := memory.Get(); err == nil {
		sample.MemoryUsage = memStats.Used
	}

	// interface byte counters are cumulative; the feedback loop takes
	// the per-tick delta itself. Packet counters are not exposed on
	// this path and stay zero.
	if netStats, err := network.Get(); err == nil {
		for _, iface := range netStats {
			if iface.Name == "lo" {
				continue
			}
			sample.BytesSent += iface.TxBytes
			sample.BytesReceived += iface.RxBytes
		}
	}

	return sample, nil
}
