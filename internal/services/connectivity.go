package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Monitor probes the upstream on an interval and feeds reachability into the worker
type Monitor struct {
	prober   Prober
	worker   *Worker
	interval time.Duration
	logger   *zap.Logger
}

// NewMonitor creates a connectivity monitor
func NewMonitor(prober Prober, worker *Worker, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		prober:   prober,
		worker:   worker,
		interval: interval,
		logger:   logger,
	}
}

// Run probes until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe runs a single reachability check
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	err := m.prober.Ping(probeCtx)
	if err != nil {
		m.logger.Debug("upstream probe failed", zap.Error(err))
	}
	online := err == nil
	m.worker.SetOnline(online)
	return online
}
