package ais

import (
	"testing"
	"time"
)

func validReport() PositionReport {
	sog := 12.5
	cog := 180.0
	return PositionReport{
		MMSI:             237000123,
		Timestamp:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Latitude:         40.55,
		Longitude:        22.9,
		SpeedOverGround:  &sog,
		CourseOverGround: &cog,
		Source:           "test",
		SourceQuality:    0.9,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PositionReport)
		wantErr bool
	}{
		{
			name:   "valid report",
			mutate: func(r *PositionReport) {},
		},
		{
			name:    "mmsi too short",
			mutate:  func(r *PositionReport) { r.MMSI = 12345678 },
			wantErr: true,
		},
		{
			name:    "mmsi too long",
			mutate:  func(r *PositionReport) { r.MMSI = 1000000000 },
			wantErr: true,
		},
		{
			name:    "latitude above range",
			mutate:  func(r *PositionReport) { r.Latitude = 90.001 },
			wantErr: true,
		},
		{
			name:    "latitude below range",
			mutate:  func(r *PositionReport) { r.Latitude = -91 },
			wantErr: true,
		},
		{
			name:    "longitude out of range",
			mutate:  func(r *PositionReport) { r.Longitude = 180.5 },
			wantErr: true,
		},
		{
			name:    "negative speed",
			mutate:  func(r *PositionReport) { s := -1.0; r.SpeedOverGround = &s },
			wantErr: true,
		},
		{
			name:    "speed above AIS maximum",
			mutate:  func(r *PositionReport) { s := 103.0; r.SpeedOverGround = &s },
			wantErr: true,
		},
		{
			name:   "speed at AIS maximum",
			mutate: func(r *PositionReport) { s := MaxSpeedKnots; r.SpeedOverGround = &s },
		},
		{
			name:   "nil speed is allowed",
			mutate: func(r *PositionReport) { r.SpeedOverGround = nil },
		},
		{
			name:    "zero timestamp",
			mutate:  func(r *PositionReport) { r.Timestamp = time.Time{} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReport()
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	r := validReport()
	cog := 370.0
	heading := 365
	r.CourseOverGround = &cog
	r.Heading = &heading
	r.SourceQuality = 1.5

	r.Normalize()

	if *r.CourseOverGround != 10.0 {
		t.Errorf("course = %v, want 10", *r.CourseOverGround)
	}
	if *r.Heading != 5 {
		t.Errorf("heading = %v, want 5", *r.Heading)
	}
	if r.SourceQuality != 1.0 {
		t.Errorf("quality = %v, want 1.0", r.SourceQuality)
	}
}

func TestSpeedCourseHelpers(t *testing.T) {
	r := validReport()
	if got := r.Speed(); got != 12.5 {
		t.Errorf("Speed() = %v, want 12.5", got)
	}
	if !r.IsMoving() {
		t.Error("IsMoving() = false, want true")
	}

	r.SpeedOverGround = nil
	if got := r.Speed(); got != 0 {
		t.Errorf("Speed() with nil SOG = %v, want 0", got)
	}
	if r.IsMoving() {
		t.Error("IsMoving() with nil SOG = true, want false")
	}
}

func TestBoundingBox(t *testing.T) {
	bbox := BoundingBox{MinLat: 40.0, MaxLat: 41.0, MinLon: 22.0, MaxLon: 23.0}
	if err := bbox.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	tests := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"inside", 40.5, 22.5, true},
		{"on corner", 40.0, 22.0, true},
		{"north of box", 41.5, 22.5, false},
		{"west of box", 40.5, 21.9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bbox.Contains(tt.lat, tt.lon); got != tt.want {
				t.Errorf("Contains(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
			}
		})
	}

	inverted := BoundingBox{MinLat: 41.0, MaxLat: 40.0, MinLon: 22.0, MaxLon: 23.0}
	if err := inverted.Validate(); err == nil {
		t.Error("Validate() on inverted box = nil, want error")
	}
}

func TestShipClassFromAISCode(t *testing.T) {
	tests := []struct {
		code int
		want ShipClass
	}{
		{70, ClassCargo},
		{79, ClassCargo},
		{80, ClassTanker},
		{65, ClassPassenger},
		{30, ClassFishing},
		{36, ClassSailing},
		{37, ClassPleasureCraft},
		{51, ClassSearchRescue},
		{0, ClassUnknown},
		{99, ClassOther},
	}
	for _, tt := range tests {
		if got := ShipClassFromAISCode(tt.code); got != tt.want {
			t.Errorf("ShipClassFromAISCode(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestNavStatusFromCode(t *testing.T) {
	if got := NavStatusFromCode(1); got != StatusAtAnchor {
		t.Errorf("NavStatusFromCode(1) = %v, want at anchor", got)
	}
	if got := NavStatusFromCode(42); got != StatusNotDefined {
		t.Errorf("NavStatusFromCode(42) = %v, want not defined", got)
	}
}
