// Package source defines the capability contract every AIS data source
// implements, and the manager that fails over between them.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vessel_watch/internal/ais"
)

// FetchError is a transient per-adapter failure (network, parse, timeout).
// The manager converts it into a failover decision; it is never fatal.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("[%s] %v", e.Source, e.Err)
	}
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err with source attribution.
func NewFetchError(source string, err error) *FetchError {
	return &FetchError{Source: source, Err: err}
}

// ErrAllSourcesFailed is returned when every configured adapter has been
// exhausted in a single fetch invocation. Fatal for that invocation only.
var ErrAllSourcesFailed = errors.New("all AIS data sources failed")

// ErrAdapterNotFound is returned by a manual switch to an unknown adapter.
var ErrAdapterNotFound = errors.New("adapter not found")

// SourceInfo is a telemetry snapshot for one adapter.
type SourceInfo struct {
	Name                string         `json:"name"`
	SourceType          string         `json:"type"`
	IsActive            bool           `json:"is_active"`
	LastSuccessfulFetch time.Time      `json:"last_successful_fetch,omitzero"`
	ErrorCount          int            `json:"error_count"`
	TotalMessages       int64          `json:"total_messages_received"`
	AverageLatency      time.Duration  `json:"average_latency"`
	QualityScore        float64        `json:"quality_score"`
	Extra               map[string]any `json:"extra_info,omitempty"`
}

// Adapter is implemented by every AIS data source, simulated or real.
// Implementations confine side effects to their own internal state.
type Adapter interface {
	// Name returns the adapter's unique identifier.
	Name() string

	// Fetch returns zero or more fresh reports, optionally filtered by bbox.
	// Transient failures come back as *FetchError.
	Fetch(ctx context.Context, bbox *ais.BoundingBox) ([]ais.PositionReport, error)

	// HealthCheck is a cheap liveness probe. It must not panic or return an
	// error; any failure reads as false.
	HealthCheck(ctx context.Context) bool

	// Info returns the current telemetry snapshot.
	Info() SourceInfo

	// Start and Stop are idempotent lifecycle hooks.
	Start(ctx context.Context) error
	Stop() error
}

// latencyWindow bounds the rolling average to the most recent samples.
const latencyWindow = 100

// Stats tracks per-adapter fetch telemetry. Embed it in an Adapter
// implementation and call RecordSuccess/RecordError from Fetch.
type Stats struct {
	mu            sync.Mutex
	errorCount    int
	totalMessages int64
	lastFetch     time.Time
	latencies     []time.Duration
}

// RecordSuccess resets the consecutive error counter and folds the sample
// into the latency window.
func (s *Stats) RecordSuccess(messages int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount = 0
	s.totalMessages += int64(messages)
	s.lastFetch = time.Now().UTC()
	s.latencies = append(s.latencies, latency)
	if len(s.latencies) > latencyWindow {
		s.latencies = s.latencies[1:]
	}
}

// RecordError increments the consecutive error counter.
func (s *Stats) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
}

// ErrorCount returns the current consecutive failure count.
func (s *Stats) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCount
}

// ResetErrors zeroes the consecutive failure count.
func (s *Stats) ResetErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount = 0
}

// TotalMessages returns the lifetime message count.
func (s *Stats) TotalMessages() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalMessages
}

// LastFetch returns the time of the last successful fetch.
func (s *Stats) LastFetch() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFetch
}

// AverageLatency returns the mean of the rolling latency window.
func (s *Stats) AverageLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range s.latencies {
		sum += l
	}
	return sum / time.Duration(len(s.latencies))
}
