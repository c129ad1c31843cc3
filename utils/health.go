package utils

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Pinger is anything the health monitor can probe.
type Pinger func(ctx context.Context) error

// HealthStatus represents current status of external services.
type HealthStatus struct {
	Healthy    bool            `json:"healthy"`
	Components map[string]bool `json:"components"`
	CheckedAt  time.Time       `json:"checkedAt"`
}

// HealthMonitor keeps the latest snapshot of dependency health.
type HealthMonitor struct {
	checks   map[string]Pinger
	interval time.Duration

	mu      sync.RWMutex
	current HealthStatus
}

func NewHealthMonitor(interval time.Duration, checks map[string]Pinger) *HealthMonitor {
	return &HealthMonitor{checks: checks, interval: interval}
}

// Status returns latest stored health snapshot.
func (h *HealthMonitor) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Check probes every dependency once and stores the result.
func (h *HealthMonitor) Check(ctx context.Context) HealthStatus {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := HealthStatus{Healthy: true, Components: make(map[string]bool, len(names))}
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		ok := h.checks[name](pctx) == nil
		cancel()
		status.Components[name] = ok
		status.Healthy = status.Healthy && ok
	}
	status.CheckedAt = time.Now()

	h.mu.Lock()
	h.current = status
	h.mu.Unlock()
	return status
}

// Start performs periodic health checks until ctx is done.
func (h *HealthMonitor) Start(ctx context.Context) {
	h.Check(ctx)
	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Check(ctx)
			}
		}
	}()
}
