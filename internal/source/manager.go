package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"vessel_watch/internal/ais"
)

// DefaultFailoverThreshold is the consecutive-failure count that triggers a
// switch to the next adapter.
const DefaultFailoverThreshold = 3

// DefaultAttemptTimeout bounds a single health-check-plus-fetch attempt so an
// unhealthy adapter cannot stall the whole cycle.
const DefaultAttemptTimeout = 10 * time.Second

// ManagerConfig holds adapter manager settings.
type ManagerConfig struct {
	FailoverThreshold int
	AttemptTimeout    time.Duration
}

// DefaultManagerConfig returns the standard manager settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		FailoverThreshold: DefaultFailoverThreshold,
		AttemptTimeout:    DefaultAttemptTimeout,
	}
}

// ManagerStats is a snapshot of the manager's counters.
type ManagerStats struct {
	ActiveAdapter string        `json:"active_adapter"`
	ActiveIndex   int           `json:"active_index"`
	AdapterCount  int           `json:"adapter_count"`
	TotalFetches  int64         `json:"total_fetches"`
	TotalMessages int64         `json:"total_messages"`
	FailoverCount int64         `json:"failover_count"`
	Uptime        time.Duration `json:"uptime"`
	Started       bool          `json:"started"`
}

// Manager owns an ordered list of adapters (priority order is failover
// order) and performs health-checked fetches with automatic failover and
// cross-source deduplication.
//
// The active index and the per-adapter failure counters are shared between
// the periodic fetch invocation and concurrent status reads; both live behind
// the manager mutex so a status read never observes a torn failover.
type Manager struct {
	mu       sync.RWMutex
	adapters []Adapter
	active   int
	failures []int

	threshold      int
	attemptTimeout time.Duration

	totalFetches  int64
	totalMessages int64
	failoverCount int64
	startTime     time.Time
	started       bool
}

// NewManager builds a manager over the given adapters. The first adapter is
// the primary source.
func NewManager(cfg ManagerConfig, adapters ...Adapter) (*Manager, error) {
	if len(adapters) == 0 {
		return nil, errors.New("manager requires at least one adapter")
	}
	if cfg.FailoverThreshold <= 0 {
		cfg.FailoverThreshold = DefaultFailoverThreshold
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	return &Manager{
		adapters:       adapters,
		failures:       make([]int, len(adapters)),
		threshold:      cfg.FailoverThreshold,
		attemptTimeout: cfg.AttemptTimeout,
	}, nil
}

// StartAll starts every adapter. An adapter that fails to start is logged
// and left to the failover machinery; it does not abort the manager.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.Lock()
	m.startTime = time.Now().UTC()
	m.started = true
	m.mu.Unlock()

	for _, a := range m.adapters {
		if err := a.Start(ctx); err != nil {
			log.Printf("adapter %s failed to start: %v", a.Name(), err)
		}
	}
}

// StopAll stops every adapter.
func (m *Manager) StopAll() {
	for _, a := range m.adapters {
		if err := a.Stop(); err != nil {
			log.Printf("adapter %s failed to stop: %v", a.Name(), err)
		}
	}
	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
}

// Fetch retrieves reports from the active adapter, failing over through the
// adapter list as needed. The result is deduplicated by MMSI, keeping the
// report with the highest source quality. When every adapter has been
// exhausted the call fails with ErrAllSourcesFailed; the process-level
// scheduler retries on its next firing.
func (m *Manager) Fetch(ctx context.Context, bbox *ais.BoundingBox) ([]ais.PositionReport, error) {
	m.mu.Lock()
	m.totalFetches++
	n := len(m.adapters)
	m.mu.Unlock()

	for attempt := 0; attempt < n; attempt++ {
		m.mu.RLock()
		adapter := m.adapters[m.active]
		m.mu.RUnlock()

		reports, err := m.attempt(ctx, adapter, bbox)
		if err == nil {
			reports = Deduplicate(reports)
			m.mu.Lock()
			if i := m.indexOfLocked(adapter); i >= 0 {
				m.failures[i] = 0
			}
			m.totalMessages += int64(len(reports))
			m.mu.Unlock()
			return reports, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch aborted: %w", ctx.Err())
		}

		log.Printf("adapter %s failed: %v", adapter.Name(), err)
		m.recordFailure(adapter)
	}

	return nil, ErrAllSourcesFailed
}

// attempt runs one bounded health-check-plus-fetch against a single adapter.
func (m *Manager) attempt(ctx context.Context, adapter Adapter, bbox *ais.BoundingBox) ([]ais.PositionReport, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
	defer cancel()

	if !adapter.HealthCheck(attemptCtx) {
		return nil, NewFetchError(adapter.Name(), errors.New("health check failed"))
	}
	return adapter.Fetch(attemptCtx, bbox)
}

// recordFailure bumps the adapter's consecutive failure count and advances
// the active index once the failover threshold is reached.
func (m *Manager) recordFailure(adapter Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOfLocked(adapter)
	if i < 0 {
		return
	}
	m.failures[i]++
	if m.failures[i] >= m.threshold {
		old := m.adapters[m.active].Name()
		m.active = (m.active + 1) % len(m.adapters)
		m.failures[m.active] = 0
		m.failoverCount++
		log.Printf("failover: %s -> %s (total failovers: %d)",
			old, m.adapters[m.active].Name(), m.failoverCount)
	}
}

func (m *Manager) indexOfLocked(adapter Adapter) int {
	for i, a := range m.adapters {
		if a == adapter {
			return i
		}
	}
	return -1
}

// Deduplicate keeps one report per MMSI, preferring higher source quality.
// Ties keep the first report encountered.
func Deduplicate(reports []ais.PositionReport) []ais.PositionReport {
	if len(reports) <= 1 {
		return reports
	}

	seen := make(map[int]int, len(reports)) // mmsi -> index into out
	out := make([]ais.PositionReport, 0, len(reports))
	for _, r := range reports {
		if i, ok := seen[r.MMSI]; ok {
			if r.SourceQuality > out[i].SourceQuality {
				out[i] = r
			}
			continue
		}
		seen[r.MMSI] = len(out)
		out = append(out, r)
	}
	return out
}

// SwitchTo manually overrides the active adapter.
func (m *Manager) SwitchTo(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range m.adapters {
		if a.Name() == name {
			old := m.adapters[m.active].Name()
			m.active = i
			log.Printf("manual adapter switch: %s -> %s", old, name)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrAdapterNotFound, name)
}

// ActiveAdapter returns the name of the current active adapter.
func (m *Manager) ActiveAdapter() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.adapters[m.active].Name()
}

// HealthCheckAll probes every adapter. Safe to call concurrently with Fetch.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]bool {
	results := make(map[string]bool, len(m.adapters))
	for _, a := range m.adapters {
		probeCtx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
		results[a.Name()] = a.HealthCheck(probeCtx)
		cancel()
	}
	return results
}

// InfoAll returns the telemetry snapshot of every adapter in priority order.
func (m *Manager) InfoAll() []SourceInfo {
	infos := make([]SourceInfo, 0, len(m.adapters))
	for _, a := range m.adapters {
		infos = append(infos, a.Info())
	}
	return infos
}

// Statistics returns a snapshot of the manager counters.
func (m *Manager) Statistics() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var uptime time.Duration
	if m.started {
		uptime = time.Since(m.startTime)
	}
	return ManagerStats{
		ActiveAdapter: m.adapters[m.active].Name(),
		ActiveIndex:   m.active,
		AdapterCount:  len(m.adapters),
		TotalFetches:  m.totalFetches,
		TotalMessages: m.totalMessages,
		FailoverCount: m.failoverCount,
		Uptime:        uptime,
		Started:       m.started,
	}
}
