// Package collision computes closest point of approach for vessel pairs and
// grades the resulting encounter risk.
package collision

import (
	"math"
	"sort"
	"time"

	"vessel_watch/internal/geo"
)

// Default detector thresholds.
const (
	DefaultCPAThresholdNM = 0.5
	DefaultTCPAThreshold  = 30 * time.Minute
	DefaultMinSpeedKnots  = 0.5
	DefaultPairFilterNM   = 10.0
)

// relVelEpsilon guards the TCPA division. Pairs whose squared relative
// speed falls below it are effectively stationary with respect to each
// other and produce no meaningful approach time.
const relVelEpsilon = 1e-4

// Severity grades an encounter.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for sorting, critical first.
func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// VesselState is the kinematic snapshot of one vessel at detection time.
type VesselState struct {
	MMSI       int       `json:"mmsi"`
	Name       string    `json:"name,omitempty"`
	Lat        float64   `json:"latitude"`
	Lon        float64   `json:"longitude"`
	SpeedKnots float64   `json:"speed_over_ground"`
	CourseTrue float64   `json:"course_over_ground"`
	Timestamp  time.Time `json:"timestamp"`
}

// Risk is one detected close-approach pair.
type Risk struct {
	MMSIA           int           `json:"mmsi_a"`
	MMSIB           int           `json:"mmsi_b"`
	NameA           string        `json:"name_a,omitempty"`
	NameB           string        `json:"name_b,omitempty"`
	CPANauticalMi   float64       `json:"cpa_nm"`
	TCPA            time.Duration `json:"tcpa"`
	CurrentRangeNM  float64       `json:"current_range_nm"`
	RelativeBearing float64       `json:"relative_bearing"`
	Severity        Severity      `json:"severity"`
	DetectedAt      time.Time     `json:"detected_at"`
}

// Detector runs pairwise CPA/TCPA over a set of vessel states.
type Detector struct {
	CPAThresholdNM float64
	TCPAThreshold  time.Duration
	MinSpeedKnots  float64
	PairFilterNM   float64
}

// NewDetector builds a detector with the default thresholds.
func NewDetector() *Detector {
	return &Detector{
		CPAThresholdNM: DefaultCPAThresholdNM,
		TCPAThreshold:  DefaultTCPAThreshold,
		MinSpeedKnots:  DefaultMinSpeedKnots,
		PairFilterNM:   DefaultPairFilterNM,
	}
}

// Detect evaluates every moving pair and returns the risks ordered by
// severity, then soonest approach first. Vessels slower than MinSpeedKnots
// are ignored; pairs further apart than PairFilterNM are skipped before the
// CPA math runs.
func (d *Detector) Detect(states []VesselState, now time.Time) []Risk {
	moving := make([]VesselState, 0, len(states))
	for _, s := range states {
		if s.SpeedKnots >= d.MinSpeedKnots {
			moving = append(moving, s)
		}
	}

	var risks []Risk
	for i := 0; i < len(moving); i++ {
		for j := i + 1; j < len(moving); j++ {
			a, b := moving[i], moving[j]

			rangeNM := geo.DistanceNM(a.Lat, a.Lon, b.Lat, b.Lon)
			if rangeNM > d.PairFilterNM {
				continue
			}

			cpa, tcpa, ok := ApproachPoint(a, b)
			if !ok {
				continue
			}
			if cpa > d.CPAThresholdNM || tcpa <= 0 || tcpa > d.TCPAThreshold {
				continue
			}

			risks = append(risks, Risk{
				MMSIA:           a.MMSI,
				MMSIB:           b.MMSI,
				NameA:           a.Name,
				NameB:           b.Name,
				CPANauticalMi:   cpa,
				TCPA:            tcpa,
				CurrentRangeNM:  rangeNM,
				RelativeBearing: geo.InitialBearing(a.Lat, a.Lon, b.Lat, b.Lon),
				Severity:        d.classify(cpa, tcpa),
				DetectedAt:      now,
			})
		}
	}

	sort.Slice(risks, func(i, j int) bool {
		ri, rj := severityRank(risks[i].Severity), severityRank(risks[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return risks[i].TCPA < risks[j].TCPA
	})
	return risks
}

// classify grades an encounter already known to be within both thresholds.
func (d *Detector) classify(cpaNM float64, tcpa time.Duration) Severity {
	switch {
	case cpaNM < 0.5*d.CPAThresholdNM && tcpa < 10*time.Minute:
		return SeverityCritical
	case tcpa < 15*time.Minute:
		return SeverityHigh
	case tcpa < 20*time.Minute:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ApproachPoint projects both vessels onto a local tangent plane centered
// between them and solves for the closest point of approach. Positions are
// in nautical miles, velocities in knots, so TCPA comes out in hours. ok is
// false when the pair has no meaningful relative motion.
func ApproachPoint(a, b VesselState) (cpaNM float64, tcpa time.Duration, ok bool) {
	avgLat := (a.Lat + b.Lat) / 2
	lonScale := 60 * math.Cos(avgLat*math.Pi/180)

	// Relative position of b as seen from a, nm.
	rx := (b.Lon - a.Lon) * lonScale
	ry := (b.Lat - a.Lat) * 60

	vax, vay := velocityNM(a)
	vbx, vby := velocityNM(b)

	// Relative velocity, knots.
	dvx := vbx - vax
	dvy := vby - vay

	relSpeedSq := dvx*dvx + dvy*dvy
	if relSpeedSq < relVelEpsilon {
		return 0, 0, false
	}

	tcpaHours := -(rx*dvx + ry*dvy) / relSpeedSq

	cx := rx + dvx*tcpaHours
	cy := ry + dvy*tcpaHours
	cpaNM = math.Hypot(cx, cy)

	return cpaNM, time.Duration(tcpaHours * float64(time.Hour)), true
}

// velocityNM resolves speed and true course into east/north components in
// knots. Course is measured clockwise from north.
func velocityNM(s VesselState) (vx, vy float64) {
	rad := s.CourseTrue * math.Pi / 180
	return s.SpeedKnots * math.Sin(rad), s.SpeedKnots * math.Cos(rad)
}
