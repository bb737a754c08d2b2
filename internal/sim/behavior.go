// Package sim implements the kinematic traffic simulator: a tick-driven
// fleet of vessels advancing under pluggable movement behaviors, exposed to
// the rest of the system through a source.Adapter wrapper.
package sim

import (
	"math"
	"math/rand"
	"time"

	"vessel_watch/internal/geo"
)

// MovementState is a vessel's live kinematics.
type MovementState struct {
	Lat     float64
	Lon     float64
	Speed   float64 // knots
	Course  float64 // degrees 0-360
	Heading float64 // degrees 0-360
}

// Behavior advances a movement state by one tick. Implementations keep their
// own private state (waypoint index, loiter angle) and are owned by exactly
// one vessel.
type Behavior interface {
	Name() string
	Update(state MovementState, dt time.Duration) MovementState
}

// Straight is dead-reckoning movement with small random course and speed
// jitter for realism.
type Straight struct {
	CourseVariation float64 // max course change per tick, degrees
	SpeedVariation  float64 // max speed change per tick, knots
}

// NewStraight returns the standard straight-line behavior (±2° course
// jitter, ±0.5 kn speed jitter).
func NewStraight() *Straight {
	return &Straight{CourseVariation: 2.0, SpeedVariation: 0.5}
}

func (b *Straight) Name() string { return "straight" }

func (b *Straight) Update(state MovementState, dt time.Duration) MovementState {
	lat, lon := geo.DeadReckon(state.Lat, state.Lon, state.Speed, state.Course, dt)

	course := geo.NormalizeCourse(state.Course + uniform(-b.CourseVariation, b.CourseVariation))
	speed := state.Speed + uniform(-b.SpeedVariation, b.SpeedVariation)
	if speed < 0 {
		speed = 0
	}

	return MovementState{Lat: lat, Lon: lon, Speed: speed, Course: course, Heading: course}
}

// Waypoints steers toward a list of targets in order. On arrival within the
// tolerance the next waypoint becomes the target; after the last one the
// vessel either wraps to the first (Loop) or falls back to straight movement
// on the last held course.
type Waypoints struct {
	Points       []Waypoint
	ArrivalTolNM float64
	Loop         bool

	index    int
	finished bool
	fallback *Straight
}

// Waypoint is one navigation target.
type Waypoint struct {
	Lat float64
	Lon float64
}

// DefaultArrivalToleranceNM is the distance at which a waypoint counts as
// reached.
const DefaultArrivalToleranceNM = 0.05

// NewWaypoints builds the waypoint-following behavior.
func NewWaypoints(points []Waypoint, loop bool) *Waypoints {
	return &Waypoints{
		Points:       points,
		ArrivalTolNM: DefaultArrivalToleranceNM,
		Loop:         loop,
		fallback:     NewStraight(),
	}
}

func (b *Waypoints) Name() string { return "waypoints" }

// Finished reports whether a non-looping route has been completed.
func (b *Waypoints) Finished() bool { return b.finished }

func (b *Waypoints) Update(state MovementState, dt time.Duration) MovementState {
	if b.finished || b.index >= len(b.Points) {
		return b.fallback.Update(state, dt)
	}

	target := b.Points[b.index]
	bearing := geo.InitialBearing(state.Lat, state.Lon, target.Lat, target.Lon)

	lat, lon := geo.DeadReckon(state.Lat, state.Lon, state.Speed, bearing, dt)
	next := MovementState{Lat: lat, Lon: lon, Speed: state.Speed, Course: bearing, Heading: bearing}

	if geo.DistanceNM(next.Lat, next.Lon, target.Lat, target.Lon) < b.ArrivalTolNM {
		b.index++
		if b.index >= len(b.Points) {
			if b.Loop {
				b.index = 0
			} else {
				b.finished = true
			}
		}
	}
	return next
}

// Loiter drifts slowly around a fixed center point, course tangential to the
// circle. The center defaults to the vessel's position at the first tick.
type Loiter struct {
	Center     *Waypoint
	RadiusNM   float64
	DriftSpeed float64 // knots

	angle float64 // degrees around the circle
}

// loiterAngularRate is the angular progress around the circle, degrees per
// hour of simulated time.
const loiterAngularRate = 10.0

// NewLoiter builds the loiter behavior. A nil center is captured from the
// vessel's position on the first update.
func NewLoiter(center *Waypoint, radiusNM float64) *Loiter {
	if radiusNM <= 0 {
		radiusNM = 0.1
	}
	return &Loiter{Center: center, RadiusNM: radiusNM, DriftSpeed: 0.5}
}

func (b *Loiter) Name() string { return "loiter" }

func (b *Loiter) Update(state MovementState, dt time.Duration) MovementState {
	if b.Center == nil {
		b.Center = &Waypoint{Lat: state.Lat, Lon: state.Lon}
	}

	b.angle = geo.NormalizeCourse(b.angle + loiterAngularRate*dt.Hours())

	radiusDeg := b.RadiusNM / 60
	lat := b.Center.Lat + radiusDeg*cosDeg(b.angle)
	lon := b.Center.Lon + radiusDeg*sinDeg(b.angle)/cosDeg(b.Center.Lat)

	course := geo.NormalizeCourse(b.angle + 90)

	speed := b.DriftSpeed + uniform(-0.2, 0.2)
	if speed < 0.1 {
		speed = 0.1
	} else if speed > 0.8 {
		speed = 0.8
	}

	return MovementState{Lat: lat, Lon: lon, Speed: speed, Course: course, Heading: course}
}

// Anchored keeps the vessel within a small drift envelope of its anchor
// point, speed zero, heading swinging as the vessel rides at anchor.
type Anchored struct {
	MaxDriftNM float64

	anchor *Waypoint
}

// NewAnchored builds the anchored behavior.
func NewAnchored() *Anchored {
	return &Anchored{MaxDriftNM: 0.01}
}

func (b *Anchored) Name() string { return "anchored" }

func (b *Anchored) Update(state MovementState, dt time.Duration) MovementState {
	if b.anchor == nil {
		b.anchor = &Waypoint{Lat: state.Lat, Lon: state.Lon}
	}

	lat := state.Lat + uniform(-0.0001, 0.0001)
	lon := state.Lon + uniform(-0.0001, 0.0001)
	if geo.DistanceNM(lat, lon, b.anchor.Lat, b.anchor.Lon) > b.MaxDriftNM {
		lat, lon = b.anchor.Lat, b.anchor.Lon
	}

	heading := geo.NormalizeCourse(state.Heading + uniform(-5, 5))

	return MovementState{Lat: lat, Lon: lon, Speed: 0, Course: state.Course, Heading: heading}
}

// Evasive makes large random course and speed changes each tick, the pattern
// of a vessel trying not to be predictable.
type Evasive struct {
	CourseChangeRange float64 // degrees
	SpeedChangeRange  float64 // knots
	MinSpeed          float64
	MaxSpeed          float64
}

// NewEvasive builds the evasive behavior with the standard bounds.
func NewEvasive() *Evasive {
	return &Evasive{
		CourseChangeRange: 45.0,
		SpeedChangeRange:  3.0,
		MinSpeed:          1.0,
		MaxSpeed:          20.0,
	}
}

func (b *Evasive) Name() string { return "evasive" }

func (b *Evasive) Update(state MovementState, dt time.Duration) MovementState {
	course := geo.NormalizeCourse(state.Course + uniform(-b.CourseChangeRange, b.CourseChangeRange))

	speed := state.Speed + uniform(-b.SpeedChangeRange, b.SpeedChangeRange)
	if speed < b.MinSpeed {
		speed = b.MinSpeed
	} else if speed > b.MaxSpeed {
		speed = b.MaxSpeed
	}

	lat, lon := geo.DeadReckon(state.Lat, state.Lon, speed, course, dt)

	return MovementState{Lat: lat, Lon: lon, Speed: speed, Course: course, Heading: course}
}

func uniform(min, max float64) float64 {
	return min + rand.Float64()*(max-min)
}

func sinDeg(deg float64) float64 { return math.Sin(deg * math.Pi / 180) }
func cosDeg(deg float64) float64 { return math.Cos(deg * math.Pi / 180) }
