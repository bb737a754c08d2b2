package geo

import (
	"math"
	"testing"
	"time"
)

func TestDistanceNM(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{
			name: "same point",
			lat1: 40.5, lon1: 22.9, lat2: 40.5, lon2: 22.9,
			want: 0, tolerance: 1e-9,
		},
		{
			// One degree of latitude is one 60th of a meridian, 60 nm.
			name: "one degree latitude",
			lat1: 40.0, lon1: 22.9, lat2: 41.0, lon2: 22.9,
			want: 60.04, tolerance: 0.1,
		},
		{
			name: "one degree longitude at equator",
			lat1: 0, lon1: 0, lat2: 0, lon2: 1,
			want: 60.04, tolerance: 0.1,
		},
		{
			name: "piraeus to thessaloniki",
			lat1: 37.94, lon1: 23.63, lat2: 40.63, lon2: 22.93,
			want: 164, tolerance: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceNM(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("DistanceNM() = %v, want %v +/- %v", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestDistanceNMSymmetric(t *testing.T) {
	d1 := DistanceNM(40.5, 22.8, 40.6, 23.0)
	d2 := DistanceNM(40.6, 23.0, 40.5, 22.8)
	if math.Abs(d1-d2) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", d1, d2)
	}
}

func TestInitialBearing(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{"due north", 40.0, 22.9, 41.0, 22.9, 0, 0.01},
		{"due south", 41.0, 22.9, 40.0, 22.9, 180, 0.01},
		{"due east at equator", 0, 0, 0, 1, 90, 0.01},
		{"due west at equator", 0, 1, 0, 0, 270, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InitialBearing(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("InitialBearing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeadReckon(t *testing.T) {
	// 10 knots due east for one hour covers 10 nm, a sixth of a degree of
	// longitude at the equator.
	lat, lon := DeadReckon(0, 0, 10, 90, time.Hour)
	if math.Abs(lat) > 1e-9 {
		t.Errorf("latitude drifted to %v on a due-east course", lat)
	}
	if math.Abs(lon-10.0/60.0) > 1e-6 {
		t.Errorf("longitude = %v, want %v", lon, 10.0/60.0)
	}

	// Due north: longitude fixed, latitude up by a sixth of a degree.
	lat, lon = DeadReckon(40.0, 22.9, 10, 0, time.Hour)
	if math.Abs(lon-22.9) > 1e-9 {
		t.Errorf("longitude drifted to %v on a due-north course", lon)
	}
	if math.Abs(lat-40.0-10.0/60.0) > 1e-6 {
		t.Errorf("latitude = %v, want %v", lat, 40.0+10.0/60.0)
	}

	// At 60 degrees north a degree of longitude is half as wide, so the
	// eastward displacement doubles in degrees.
	_, lonHigh := DeadReckon(60.0, 0, 10, 90, time.Hour)
	if math.Abs(lonHigh-10.0/60.0/math.Cos(60*math.Pi/180)) > 1e-6 {
		t.Errorf("longitude at 60N = %v", lonHigh)
	}

	// Zero elapsed time moves nothing.
	lat, lon = DeadReckon(40.0, 22.9, 15, 45, 0)
	if lat != 40.0 || lon != 22.9 {
		t.Errorf("DeadReckon with dt=0 moved to (%v, %v)", lat, lon)
	}
}

func TestNormalizeCourse(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{360, 0},
		{370, 10},
		{-10, 350},
		{725, 5},
	}
	for _, tt := range tests {
		if got := NormalizeCourse(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeCourse(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
