// Package stats samples container resource counters and derives the
// usage figures shown next to the console.
package stats

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/Vova4kaua/UADIA/pkg/runtime"
)

// DefaultInterval is the sampling cadence.
const DefaultInterval = 2 * time.Second

// Sample is one resource usage reading. A server that is offline or
// unreadable yields the zero sample with Online false.
type Sample struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryMB      float64 `json:"memory_mb"`
	MemoryLimitMB float64 `json:"memory_limit_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	Online        bool    `json:"online"`
}

// Derive computes a Sample from raw runtime counters. CPU percent is
// the usage delta over the system delta; a non-positive system delta
// yields zero rather than a spike.
func Derive(c runtime.Counters) Sample {
	var cpu float64
	cpuDelta := float64(c.CPUTotal) - float64(c.PreCPUTotal)
	sysDelta := float64(c.SystemCPU) - float64(c.PreSystemCPU)
	if sysDelta > 0 && cpuDelta > 0 {
		cpu = cpuDelta / sysDelta * 100.0
	}

	memMB := float64(c.MemoryUsage) / (1024 * 1024)
	limitMB := float64(c.MemoryLimit) / (1024 * 1024)
	var memPct float64
	if c.MemoryLimit > 0 {
		memPct = float64(c.MemoryUsage) / float64(c.MemoryLimit) * 100.0
	}

	return Sample{
		CPUPercent:    round2(cpu),
		MemoryMB:      round2(memMB),
		MemoryLimitMB: round2(limitMB),
		MemoryPercent: round2(memPct),
		Online:        true,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Sampler periodically reads one server's counters and emits derived
// samples. Each monitoring connection runs its own sampler.
type Sampler struct {
	serverID string
	rt       runtime.Runtime
	provider *runtime.HandleProvider
	interval time.Duration
}

// NewSampler builds a sampler for serverID. A non-positive interval
// selects DefaultInterval.
func NewSampler(serverID string, rt runtime.Runtime, provider *runtime.HandleProvider, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{serverID: serverID, rt: rt, provider: provider, interval: interval}
}

// Run emits one sample per tick until ctx is cancelled or emit returns
// an error. A sampling failure produces an offline zero sample, not a
// stream error; the next tick retries from a fresh handle.
func (s *Sampler) Run(ctx context.Context, emit func(Sample) error) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := emit(s.sample(ctx)); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sampler) sample(ctx context.Context) Sample {
	h, err := s.provider.Get(ctx, s.serverID)
	if err != nil {
		return Sample{}
	}

	counters, err := s.rt.SampleCounters(ctx, h)
	if err != nil {
		if ctx.Err() == nil {
			slog.Debug("stats sample failed",
				slog.String("server", s.serverID), slog.String("error", err.Error()))
		}
		s.provider.Invalidate(s.serverID)
		return Sample{}
	}

	return Derive(counters)
}
