package sim

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"vessel_watch/internal/ais"
)

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// ScenarioError describes a validation failure in a scenario file, pointing
// at the vessel entry and field that failed.
type ScenarioError struct {
	Vessel int // index into the vessels list, -1 for scenario-level errors
	Field  string
	Reason string
}

func (e *ScenarioError) Error() string {
	if e.Vessel < 0 {
		return fmt.Sprintf("scenario: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("scenario: vessel[%d].%s: %s", e.Vessel, e.Field, e.Reason)
}

// Position is a lat/lon pair as written in scenario files.
type Position struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// GapSpec describes a transmission gap in scenario time.
type GapSpec struct {
	StartAfterMinutes float64 `yaml:"start_after_minutes"`
	DurationMinutes   float64 `yaml:"duration_minutes"`
}

// ScenarioVessel is one vessel entry in a scenario file.
type ScenarioVessel struct {
	MMSI          int        `yaml:"mmsi"`
	Name          string     `yaml:"name"`
	ShipType      string     `yaml:"ship_type"`
	Start         Position   `yaml:"start_position"`
	SpeedKnots    float64    `yaml:"speed_knots"`
	CourseDegrees float64    `yaml:"course_degrees"`
	Behavior      string     `yaml:"behavior"`
	Waypoints     []Position `yaml:"waypoints,omitempty"`
	LoopWaypoints bool       `yaml:"loop_waypoints,omitempty"`
	LoiterRadius  float64    `yaml:"loiter_radius_nm,omitempty"`
	LoiterCenter  *Position  `yaml:"loiter_center,omitempty"`
	Gap           *GapSpec   `yaml:"gap,omitempty"`
}

// ExpectedAlert records which vessel pairs a scenario is built to bring into
// conflict. Informational; the simulator does not enforce it.
type ExpectedAlert struct {
	MMSIA    int    `yaml:"mmsi_a"`
	MMSIB    int    `yaml:"mmsi_b"`
	Severity string `yaml:"severity,omitempty"`
}

// Scenario is a complete scenario file.
type Scenario struct {
	Name                string           `yaml:"name"`
	Description         string           `yaml:"description,omitempty"`
	DurationMinutes     float64          `yaml:"duration_minutes,omitempty"`
	TickIntervalSeconds int              `yaml:"tick_interval_seconds,omitempty"`
	BBox                *ais.BoundingBox `yaml:"bounding_box,omitempty"`
	Vessels             []ScenarioVessel `yaml:"vessels"`
	ExpectedAlerts      []ExpectedAlert  `yaml:"expected_alerts,omitempty"`
}

var scenarioBehaviors = map[string]bool{
	"straight": true,
	"waypoint": true,
	"loiter":   true,
	"anchored": true,
	"evasive":  true,
}

// LoadScenarioFile reads and validates a YAML scenario.
func LoadScenarioFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario unmarshals and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks every field the simulator depends on. The first failure
// wins; a scenario either loads whole or not at all.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return &ScenarioError{Vessel: -1, Field: "name", Reason: "required"}
	}
	if len(sc.Vessels) == 0 {
		return &ScenarioError{Vessel: -1, Field: "vessels", Reason: "at least one vessel required"}
	}
	if sc.TickIntervalSeconds < 0 {
		return &ScenarioError{Vessel: -1, Field: "tick_interval_seconds", Reason: "must not be negative"}
	}
	if sc.BBox != nil {
		if err := sc.BBox.Validate(); err != nil {
			return &ScenarioError{Vessel: -1, Field: "bounding_box", Reason: err.Error()}
		}
	}

	seen := make(map[int]int, len(sc.Vessels))
	for i, v := range sc.Vessels {
		if v.MMSI < 100000000 || v.MMSI > 999999999 {
			return &ScenarioError{Vessel: i, Field: "mmsi", Reason: fmt.Sprintf("must be a 9-digit number, got %d", v.MMSI)}
		}
		if prev, dup := seen[v.MMSI]; dup {
			return &ScenarioError{Vessel: i, Field: "mmsi", Reason: fmt.Sprintf("duplicate of vessel[%d]", prev)}
		}
		seen[v.MMSI] = i

		if v.Start.Lat < -90 || v.Start.Lat > 90 {
			return &ScenarioError{Vessel: i, Field: "start_position.lat", Reason: fmt.Sprintf("out of range: %v", v.Start.Lat)}
		}
		if v.Start.Lon < -180 || v.Start.Lon > 180 {
			return &ScenarioError{Vessel: i, Field: "start_position.lon", Reason: fmt.Sprintf("out of range: %v", v.Start.Lon)}
		}
		if v.SpeedKnots < 0 || v.SpeedKnots > 50 {
			return &ScenarioError{Vessel: i, Field: "speed_knots", Reason: fmt.Sprintf("must be within [0, 50], got %v", v.SpeedKnots)}
		}
		if v.CourseDegrees < 0 || v.CourseDegrees >= 360 {
			return &ScenarioError{Vessel: i, Field: "course_degrees", Reason: fmt.Sprintf("must be within [0, 360), got %v", v.CourseDegrees)}
		}

		behavior := v.Behavior
		if behavior == "" {
			behavior = "straight"
		}
		if !scenarioBehaviors[behavior] {
			return &ScenarioError{Vessel: i, Field: "behavior", Reason: fmt.Sprintf("unknown behavior %q", v.Behavior)}
		}
		if behavior == "waypoint" && len(v.Waypoints) == 0 {
			return &ScenarioError{Vessel: i, Field: "waypoints", Reason: "waypoint behavior requires at least one waypoint"}
		}
		for j, wp := range v.Waypoints {
			if wp.Lat < -90 || wp.Lat > 90 || wp.Lon < -180 || wp.Lon > 180 {
				return &ScenarioError{Vessel: i, Field: fmt.Sprintf("waypoints[%d]", j), Reason: "out of range"}
			}
		}
		if behavior == "loiter" && v.LoiterRadius < 0 {
			return &ScenarioError{Vessel: i, Field: "loiter_radius_nm", Reason: "must not be negative"}
		}
		if v.Gap != nil {
			if v.Gap.StartAfterMinutes < 0 || v.Gap.DurationMinutes <= 0 {
				return &ScenarioError{Vessel: i, Field: "gap", Reason: "start_after_minutes must not be negative and duration_minutes must be positive"}
			}
		}
	}
	return nil
}

// build turns a validated scenario entry into a simulated vessel.
func (sv *ScenarioVessel) build() (*Vessel, error) {
	var behavior Behavior
	switch sv.Behavior {
	case "", "straight":
		behavior = NewStraight()
	case "waypoint":
		points := make([]Waypoint, len(sv.Waypoints))
		for i, wp := range sv.Waypoints {
			points[i] = Waypoint{Lat: wp.Lat, Lon: wp.Lon}
		}
		behavior = NewWaypoints(points, sv.LoopWaypoints)
	case "loiter":
		radius := sv.LoiterRadius
		if radius == 0 {
			radius = 1.0
		}
		var center *Waypoint
		if sv.LoiterCenter != nil {
			center = &Waypoint{Lat: sv.LoiterCenter.Lat, Lon: sv.LoiterCenter.Lon}
		}
		behavior = NewLoiter(center, radius)
	case "anchored":
		behavior = NewAnchored()
	case "evasive":
		behavior = NewEvasive()
	default:
		return nil, &ScenarioError{Field: "behavior", Reason: fmt.Sprintf("unknown behavior %q", sv.Behavior)}
	}

	v := NewVessel(sv.MMSI, sv.Name, ais.ParseShipClass(sv.ShipType), MovementState{
		Lat:     sv.Start.Lat,
		Lon:     sv.Start.Lon,
		Speed:   sv.SpeedKnots,
		Course:  sv.CourseDegrees,
		Heading: sv.CourseDegrees,
	}, behavior)
	if sv.Gap != nil {
		v.SetGap(&GapWindow{
			StartAfter: minutes(sv.Gap.StartAfterMinutes),
			Duration:   minutes(sv.Gap.DurationMinutes),
		})
	}
	return v, nil
}
