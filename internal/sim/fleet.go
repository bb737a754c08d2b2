package sim

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"vessel_watch/internal/ais"
)

// DefaultTickInterval is the time between fleet position updates.
const DefaultTickInterval = 30 * time.Second

// DefaultBBox is the Thermaikos Gulf sea area used when no bounding box is
// configured. Random traffic generated here stays in the water.
var DefaultBBox = ais.BoundingBox{
	MinLat: 40.50,
	MaxLat: 40.60,
	MinLon: 22.80,
	MaxLon: 22.98,
}

var (
	ErrFleetRunning    = errors.New("fleet already running")
	ErrFleetNotRunning = errors.New("fleet not running")
)

// FleetStats is a snapshot of the fleet's state.
type FleetStats struct {
	Running      bool           `json:"running"`
	VesselCount  int            `json:"vessel_count"`
	Transmitting int            `json:"transmitting_count"`
	TickCount    int64          `json:"tick_count"`
	Elapsed      time.Duration  `json:"elapsed"`
	TickInterval time.Duration  `json:"tick_interval"`
	ScenarioName string         `json:"scenario_name,omitempty"`
	Behaviors    map[string]int `json:"behaviors"`
	ShipClasses  map[string]int `json:"ship_classes"`
	AverageSpeed float64        `json:"average_speed_knots"`
}

// Fleet owns the simulated vessel population and drives it forward on a
// fixed tick. The fleet mutex serializes the tick loop against concurrent
// add/remove calls and report reads.
type Fleet struct {
	mu           sync.RWMutex
	vessels      map[int]*Vessel
	order        []int // insertion order, for stable report output
	scenarioName string

	tickInterval time.Duration
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}

	startTime time.Time
	lastTick  time.Time
	tickCount int64
}

// NewFleet builds an empty fleet.
func NewFleet(tickInterval time.Duration) *Fleet {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Fleet{
		vessels:      make(map[int]*Vessel),
		tickInterval: tickInterval,
	}
}

// LoadScenario replaces the fleet with vessels built from the scenario.
// The existing fleet is untouched if any vessel entry fails to build.
func (f *Fleet) LoadScenario(sc *Scenario) error {
	vessels := make([]*Vessel, 0, len(sc.Vessels))
	for i := range sc.Vessels {
		v, err := sc.Vessels[i].build()
		if err != nil {
			return err
		}
		vessels = append(vessels, v)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.vessels = make(map[int]*Vessel, len(vessels))
	f.order = f.order[:0]
	for _, v := range vessels {
		f.vessels[v.MMSI] = v
		f.order = append(f.order, v.MMSI)
	}
	f.scenarioName = sc.Name
	if sc.TickIntervalSeconds > 0 {
		f.tickInterval = time.Duration(sc.TickIntervalSeconds) * time.Second
	}
	log.Printf("loaded scenario %q with %d vessels", sc.Name, len(vessels))
	return nil
}

// GenerateRandomTraffic replaces the fleet with n random vessels inside the
// bounding box.
func (f *Fleet) GenerateRandomTraffic(n int, bbox ais.BoundingBox) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.vessels = make(map[int]*Vessel, n)
	f.order = f.order[:0]
	f.scenarioName = ""
	for i := 0; i < n; i++ {
		mmsi := 999000000 + i
		f.vessels[mmsi] = RandomVessel(mmsi, bbox)
		f.order = append(f.order, mmsi)
	}
	log.Printf("generated %d random vessels", n)
}

// AddVessel adds (or replaces, on duplicate MMSI) a vessel while running.
func (f *Fleet) AddVessel(v *Vessel) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.vessels[v.MMSI]; exists {
		log.Printf("replacing vessel with MMSI %d", v.MMSI)
	} else {
		f.order = append(f.order, v.MMSI)
	}
	f.vessels[v.MMSI] = v
}

// RemoveVessel removes a vessel by MMSI, reporting whether it existed.
func (f *Fleet) RemoveVessel(mmsi int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.vessels[mmsi]; !ok {
		return false
	}
	delete(f.vessels, mmsi)
	for i, m := range f.order {
		if m == mmsi {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return true
}

// Vessel returns the vessel with the given MMSI, or nil.
func (f *Fleet) Vessel(mmsi int) *Vessel {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.vessels[mmsi]
}

// VesselCount returns the current fleet size.
func (f *Fleet) VesselCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vessels)
}

// Running reports whether the tick loop is active.
func (f *Fleet) Running() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

// Start launches the tick loop. Idempotent with Stop.
func (f *Fleet) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return ErrFleetRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	f.running = true
	f.startTime = time.Now()
	f.lastTick = f.startTime
	f.tickCount = 0

	go f.run(ctx)
	log.Printf("fleet started with %d vessels (tick interval %s)", len(f.vessels), f.tickInterval)
	return nil
}

// Stop halts the tick loop and waits for it to exit.
func (f *Fleet) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return ErrFleetNotRunning
	}
	f.running = false
	cancel := f.cancel
	done := f.done
	f.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (f *Fleet) run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.tick()
		}
	}
}

// tick advances every vessel by the elapsed wall time since the last tick,
// capped at twice the interval so a paused process does not teleport the
// fleet.
func (f *Fleet) tick() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	dt := now.Sub(f.lastTick)
	if dt <= 0 || dt > 2*f.tickInterval {
		dt = f.tickInterval
	}
	f.lastTick = now
	f.tickCount++

	for _, v := range f.vessels {
		v.Advance(dt)
	}
}

// Tick advances the fleet by an explicit delta. Used by tests and by the
// simulate command's offline mode; the live loop calls the internal tick.
func (f *Fleet) Tick(dt time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tickCount++
	for _, v := range f.vessels {
		v.Advance(dt)
	}
}

// Reports converts every transmitting vessel inside bbox to a position
// report. A nil bbox means no spatial filter.
func (f *Fleet) Reports(sourceName string, bbox *ais.BoundingBox) []ais.PositionReport {
	f.mu.RLock()
	defer f.mu.RUnlock()

	reports := make([]ais.PositionReport, 0, len(f.vessels))
	for _, mmsi := range f.order {
		v := f.vessels[mmsi]
		if v == nil || !v.Transmitting() {
			continue
		}
		st := v.State()
		if bbox != nil && !bbox.Contains(st.Lat, st.Lon) {
			continue
		}
		reports = append(reports, v.Report(sourceName))
	}
	return reports
}

// Statistics returns a snapshot of fleet composition and progress.
func (f *Fleet) Statistics() FleetStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	stats := FleetStats{
		Running:      f.running,
		VesselCount:  len(f.vessels),
		TickCount:    f.tickCount,
		TickInterval: f.tickInterval,
		ScenarioName: f.scenarioName,
		Behaviors:    make(map[string]int),
		ShipClasses:  make(map[string]int),
	}
	if f.running {
		stats.Elapsed = time.Since(f.startTime)
	}

	var speedSum float64
	for _, v := range f.vessels {
		if v.Transmitting() {
			stats.Transmitting++
		}
		stats.Behaviors[v.BehaviorName()]++
		stats.ShipClasses[string(v.Class)]++
		speedSum += v.State().Speed
	}
	if len(f.vessels) > 0 {
		stats.AverageSpeed = speedSum / float64(len(f.vessels))
	}
	return stats
}
