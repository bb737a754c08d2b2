// Package ais provides the normalized vessel position report and its
// supporting value types.
package ais

import (
	"fmt"
	"math"
	"time"
)

// PositionReport is one source-agnostic vessel observation. Adapters build one
// per vessel per fetch; the report is immutable once produced.
type PositionReport struct {
	MMSI      int       `json:"mmsi"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`

	// Navigation data. SOG/COG/heading use pointers because a report may
	// legitimately omit them (static-data-only updates).
	SpeedOverGround  *float64 `json:"speed_over_ground,omitempty"`  // knots
	CourseOverGround *float64 `json:"course_over_ground,omitempty"` // degrees 0-360
	Heading          *int     `json:"heading,omitempty"`            // degrees 0-359
	RateOfTurn       *float64 `json:"rate_of_turn,omitempty"`       // degrees/minute

	NavStatus *NavStatus `json:"navigation_status,omitempty"`

	// Static vessel data, present when the source carries it.
	VesselName    string    `json:"vessel_name,omitempty"`
	ShipClass     ShipClass `json:"ship_class,omitempty"`
	ShipTypeCode  int       `json:"ship_type_code,omitempty"`
	CallSign      string    `json:"call_sign,omitempty"`
	IMONumber     int       `json:"imo_number,omitempty"`
	LengthMeters  float64   `json:"length,omitempty"`
	WidthMeters   float64   `json:"width,omitempty"`
	DraughtMeters float64   `json:"draught,omitempty"`
	Destination   string    `json:"destination,omitempty"`
	ETA           time.Time `json:"eta,omitzero"`

	// Source metadata.
	Source        string  `json:"source"`
	SourceQuality float64 `json:"source_quality"` // 0.0-1.0

	ReceivedAt time.Time `json:"received_at"`
}

// Maximum SOG transmittable in an AIS position report (1023 raw = 102.2 kn).
const MaxSpeedKnots = 102.2

// Validate checks the report against the AIS field ranges. It is called by
// the pipeline before storage; a failing report is skipped, not fatal.
func (r *PositionReport) Validate() error {
	if r.MMSI < 100000000 || r.MMSI > 999999999 {
		return fmt.Errorf("invalid MMSI %d: must be a 9-digit number", r.MMSI)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("mmsi %d: missing timestamp", r.MMSI)
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return fmt.Errorf("mmsi %d: invalid latitude %.6f", r.MMSI, r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("mmsi %d: invalid longitude %.6f", r.MMSI, r.Longitude)
	}
	if r.SpeedOverGround != nil {
		if s := *r.SpeedOverGround; s < 0 || s > MaxSpeedKnots {
			return fmt.Errorf("mmsi %d: invalid speed %.1f kn", r.MMSI, s)
		}
	}
	return nil
}

// Normalize folds course and heading into their canonical ranges and clamps
// the source quality to [0,1]. Adapters call this once at construction.
func (r *PositionReport) Normalize() {
	if r.CourseOverGround != nil {
		c := math.Mod(*r.CourseOverGround, 360)
		if c < 0 {
			c += 360
		}
		*r.CourseOverGround = c
	}
	if r.Heading != nil {
		h := *r.Heading % 360
		if h < 0 {
			h += 360
		}
		*r.Heading = h
	}
	if r.SourceQuality < 0 {
		r.SourceQuality = 0
	} else if r.SourceQuality > 1 {
		r.SourceQuality = 1
	}
}

// Speed returns SOG or zero when absent.
func (r *PositionReport) Speed() float64 {
	if r.SpeedOverGround == nil {
		return 0
	}
	return *r.SpeedOverGround
}

// Course returns COG or zero when absent.
func (r *PositionReport) Course() float64 {
	if r.CourseOverGround == nil {
		return 0
	}
	return *r.CourseOverGround
}

// IsMoving reports whether the vessel is under way (SOG above 0.5 knots).
func (r *PositionReport) IsMoving() bool {
	return r.Speed() > 0.5
}

// MMSIString formats the MMSI as the canonical 9-digit string.
func (r *PositionReport) MMSIString() string {
	return fmt.Sprintf("%09d", r.MMSI)
}

// BoundingBox is a degree-bounded spatial filter.
type BoundingBox struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

// Validate rejects out-of-range or inverted bounds.
func (b BoundingBox) Validate() error {
	if b.MinLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("latitude bounds [%.4f, %.4f] outside [-90, 90]", b.MinLat, b.MaxLat)
	}
	if b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("longitude bounds [%.4f, %.4f] outside [-180, 180]", b.MinLon, b.MaxLon)
	}
	if b.MinLat > b.MaxLat {
		return fmt.Errorf("min_lat %.4f greater than max_lat %.4f", b.MinLat, b.MaxLat)
	}
	if b.MinLon > b.MaxLon {
		return fmt.Errorf("min_lon %.4f greater than max_lon %.4f", b.MinLon, b.MaxLon)
	}
	return nil
}

// Contains reports whether the point lies inside the box (inclusive).
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}
