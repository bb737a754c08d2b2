package sim

import (
	"context"
	"time"

	"vessel_watch/internal/ais"
	"vessel_watch/internal/source"
)

// Adapter exposes a fleet as an AIS data source. Reports carry full quality
// since the simulator knows ground truth.
type Adapter struct {
	source.Stats

	name  string
	fleet *Fleet
}

// NewAdapter wraps a fleet. The fleet's tick loop is owned by the adapter's
// Start/Stop lifecycle.
func NewAdapter(name string, fleet *Fleet) *Adapter {
	if name == "" {
		name = "simulator"
	}
	return &Adapter{name: name, fleet: fleet}
}

func (a *Adapter) Name() string { return a.name }

// Fleet returns the underlying fleet for scenario loading and inspection.
func (a *Adapter) Fleet() *Fleet { return a.fleet }

// Fetch snapshots the transmitting vessels. Fails while the fleet is
// stopped so the manager's failover sees the source as down.
func (a *Adapter) Fetch(ctx context.Context, bbox *ais.BoundingBox) ([]ais.PositionReport, error) {
	if err := ctx.Err(); err != nil {
		a.RecordError()
		return nil, source.NewFetchError(a.name, err)
	}
	if !a.fleet.Running() {
		a.RecordError()
		return nil, source.NewFetchError(a.name, ErrFleetNotRunning)
	}

	start := time.Now()
	reports := a.fleet.Reports(a.name, bbox)
	a.RecordSuccess(len(reports), time.Since(start))
	return reports, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) bool {
	return a.fleet.Running()
}

func (a *Adapter) Info() source.SourceInfo {
	stats := a.fleet.Statistics()
	return source.SourceInfo{
		Name:                a.name,
		SourceType:          "simulator",
		IsActive:            stats.Running,
		LastSuccessfulFetch: a.LastFetch(),
		ErrorCount:          a.ErrorCount(),
		TotalMessages:       a.TotalMessages(),
		AverageLatency:      a.AverageLatency(),
		QualityScore:        1.0,
		Extra: map[string]any{
			"vessel_count":  stats.VesselCount,
			"transmitting":  stats.Transmitting,
			"tick_count":    stats.TickCount,
			"scenario_name": stats.ScenarioName,
		},
	}
}

func (a *Adapter) Start(ctx context.Context) error {
	if err := a.fleet.Start(); err != nil {
		if err == ErrFleetRunning {
			return nil
		}
		return err
	}
	return nil
}

func (a *Adapter) Stop() error {
	if err := a.fleet.Stop(); err != nil && err != ErrFleetNotRunning {
		return err
	}
	return nil
}
