package sim

import (
	"math/rand"
	"time"

	"vessel_watch/internal/ais"
)

// GapWindow simulates an AIS transmission gap: the vessel stops appearing in
// fetch output between StartAfter and StartAfter+Duration of simulated time.
type GapWindow struct {
	StartAfter time.Duration
	Duration   time.Duration
}

// Vessel is one simulated vessel: identity, live kinematic state, and an
// owned movement behavior. Only the owning fleet mutates it.
type Vessel struct {
	MMSI      int
	Name      string
	Class     ais.ShipClass
	CallSign  string
	IMONumber int
	Length    float64
	Width     float64
	Draught   float64
	Dest      string

	state    MovementState
	behavior Behavior

	gap          *GapWindow
	elapsed      time.Duration
	transmitting bool
}

// NewVessel constructs a vessel at the given starting state.
func NewVessel(mmsi int, name string, class ais.ShipClass, state MovementState, behavior Behavior) *Vessel {
	if behavior == nil {
		behavior = NewStraight()
	}
	return &Vessel{
		MMSI:         mmsi,
		Name:         name,
		Class:        class,
		state:        state,
		behavior:     behavior,
		transmitting: true,
	}
}

// SetGap configures a simulated AIS gap window.
func (v *Vessel) SetGap(gap *GapWindow) { v.gap = gap }

// State returns the current kinematic state.
func (v *Vessel) State() MovementState { return v.state }

// BehaviorName returns the name of the active movement behavior.
func (v *Vessel) BehaviorName() string { return v.behavior.Name() }

// Transmitting reports whether the vessel currently appears in fetch output.
func (v *Vessel) Transmitting() bool { return v.transmitting }

// Advance moves the vessel by one tick and updates its gap state.
func (v *Vessel) Advance(dt time.Duration) {
	v.elapsed += dt
	v.updateGap()
	v.state = v.behavior.Update(v.state, dt)
}

func (v *Vessel) updateGap() {
	if v.gap == nil {
		v.transmitting = true
		return
	}
	inWindow := v.elapsed >= v.gap.StartAfter && v.elapsed < v.gap.StartAfter+v.gap.Duration
	v.transmitting = !inWindow
}

// navStatus derives the AIS navigation status from behavior and speed.
func (v *Vessel) navStatus() ais.NavStatus {
	switch {
	case v.behavior.Name() == "anchored":
		return ais.StatusAtAnchor
	case v.behavior.Name() == "loiter" && v.state.Speed < 1.0:
		return ais.StatusAtAnchor
	case v.state.Speed < 0.5:
		return ais.StatusMoored
	default:
		return ais.StatusUnderwayEngine
	}
}

// Report converts the current state to a position report. Position noise of
// about one meter is added so emitted tracks look like real receiver output.
func (v *Vessel) Report(sourceName string) ais.PositionReport {
	speed := v.state.Speed
	course := v.state.Course
	heading := int(v.state.Heading) % 360
	status := v.navStatus()
	now := time.Now().UTC()

	r := ais.PositionReport{
		MMSI:          v.MMSI,
		Timestamp:     now,
		Latitude:      v.state.Lat + uniform(-0.00001, 0.00001),
		Longitude:     v.state.Lon + uniform(-0.00001, 0.00001),
		SpeedOverGround:  &speed,
		CourseOverGround: &course,
		Heading:          &heading,
		NavStatus:        &status,
		VesselName:    v.Name,
		ShipClass:     v.Class,
		CallSign:      v.CallSign,
		IMONumber:     v.IMONumber,
		LengthMeters:  v.Length,
		WidthMeters:   v.Width,
		DraughtMeters: v.Draught,
		Destination:   v.Dest,
		Source:        sourceName,
		SourceQuality: 1.0,
		ReceivedAt:    now,
	}
	r.Normalize()
	return r
}

var (
	namePrefixes = []string{"AEGEAN", "POSEIDON", "OLYMPIC", "MEDITERRANEAN", "NORTHERN"}
	nameSuffixes = []string{"SPIRIT", "STAR", "VOYAGER", "CARRIER", "EXPRESS"}
	destinations = []string{"PIRAEUS", "THESSALONIKI", "VOLOS", "PATRAS"}

	randomClasses = []ais.ShipClass{
		ais.ClassCargo,
		ais.ClassTanker,
		ais.ClassPassenger,
		ais.ClassFishing,
		ais.ClassTug,
		ais.ClassPleasureCraft,
	}
)

// RandomVessel generates a vessel with uniformly sampled position, speed,
// course and type inside the bounding box. Behavior is weighted toward
// straight movement.
func RandomVessel(mmsi int, bbox ais.BoundingBox) *Vessel {
	state := MovementState{
		Lat:    uniform(bbox.MinLat, bbox.MaxLat),
		Lon:    uniform(bbox.MinLon, bbox.MaxLon),
		Speed:  uniform(0, 15),
		Course: uniform(0, 360),
	}
	state.Heading = state.Course

	var behavior Behavior
	switch roll := rand.Float64(); {
	case roll < 0.7:
		behavior = NewStraight()
	case roll < 0.85:
		behavior = NewLoiter(nil, uniform(0.05, 0.2))
	default:
		behavior = NewAnchored()
	}

	length := uniform(50, 300)

	v := NewVessel(
		mmsi,
		namePrefixes[rand.Intn(len(namePrefixes))]+" "+nameSuffixes[rand.Intn(len(nameSuffixes))],
		randomClasses[rand.Intn(len(randomClasses))],
		state,
		behavior,
	)
	v.Length = length
	v.Width = length / uniform(4, 7)
	v.Draught = uniform(4, 15)
	v.Dest = destinations[rand.Intn(len(destinations))]
	return v
}
