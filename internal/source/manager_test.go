package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"vessel_watch/internal/ais"
)

// fakeAdapter implements Adapter for testing with scripted results.
type fakeAdapter struct {
	Stats

	name    string
	reports []ais.PositionReport
	err     error
	healthy bool

	fetchCalls int
}

func newFakeAdapter(name string, reports []ais.PositionReport) *fakeAdapter {
	return &fakeAdapter{name: name, reports: reports, healthy: true}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Fetch(ctx context.Context, bbox *ais.BoundingBox) ([]ais.PositionReport, error) {
	f.fetchCalls++
	if f.err != nil {
		f.RecordError()
		return nil, NewFetchError(f.name, f.err)
	}
	f.RecordSuccess(len(f.reports), time.Millisecond)
	return f.reports, nil
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) bool { return f.healthy }

func (f *fakeAdapter) Info() SourceInfo {
	return SourceInfo{Name: f.name, SourceType: "fake"}
}

func (f *fakeAdapter) Start(ctx context.Context) error { return nil }
func (f *fakeAdapter) Stop() error                     { return nil }

func report(mmsi int, quality float64) ais.PositionReport {
	return ais.PositionReport{
		MMSI:          mmsi,
		Timestamp:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Latitude:      40.55,
		Longitude:     22.9,
		SourceQuality: quality,
	}
}

func TestFetchReturnsActiveAdapterReports(t *testing.T) {
	a := newFakeAdapter("primary", []ais.PositionReport{report(237000001, 0.9)})
	b := newFakeAdapter("backup", []ais.PositionReport{report(237000002, 0.5)})

	m, err := NewManager(DefaultManagerConfig(), a, b)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	reports, err := m.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(reports) != 1 || reports[0].MMSI != 237000001 {
		t.Errorf("got %v, want primary's report", reports)
	}
	if b.fetchCalls != 0 {
		t.Errorf("backup fetched %d times, want 0", b.fetchCalls)
	}
}

func TestFailoverAfterThreshold(t *testing.T) {
	a := newFakeAdapter("primary", nil)
	a.err = errors.New("connection refused")
	b := newFakeAdapter("backup", []ais.PositionReport{report(237000002, 0.5)})

	cfg := ManagerConfig{FailoverThreshold: 3, AttemptTimeout: time.Second}
	m, err := NewManager(cfg, a, b)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	// The first fetch burns two attempts on the primary (counter at 2,
	// below the threshold) and fails; the primary stays active.
	if _, err := m.Fetch(context.Background(), nil); !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("first Fetch error = %v, want ErrAllSourcesFailed", err)
	}
	if got := m.ActiveAdapter(); got != "primary" {
		t.Fatalf("below threshold active = %q, want primary", got)
	}

	// The next fetch pushes the counter to the threshold, fails over, and
	// succeeds against the backup within the same call.
	reports, err := m.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if len(reports) != 1 || reports[0].MMSI != 237000002 {
		t.Errorf("got %v, want backup's report", reports)
	}
	if got := m.ActiveAdapter(); got != "backup" {
		t.Errorf("after threshold active = %q, want backup", got)
	}

	stats := m.Statistics()
	if stats.FailoverCount != 1 {
		t.Errorf("failover count = %d, want 1", stats.FailoverCount)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	a := newFakeAdapter("primary", []ais.PositionReport{report(237000001, 0.9)})
	a.err = errors.New("flaky")
	b := newFakeAdapter("backup", []ais.PositionReport{report(237000002, 0.5)})

	cfg := ManagerConfig{FailoverThreshold: 3, AttemptTimeout: time.Second}
	m, err := NewManager(cfg, a, b)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	// One failed fetch leaves the primary's counter at 2, one short of the
	// threshold.
	if _, err := m.Fetch(context.Background(), nil); !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("Fetch error = %v, want ErrAllSourcesFailed", err)
	}

	// Recovery resets the counter.
	a.err = nil
	if _, err := m.Fetch(context.Background(), nil); err != nil {
		t.Fatalf("Fetch after recovery: %v", err)
	}

	// Another failed fetch only brings the counter back to 2; without the
	// reset it would have tripped the threshold.
	a.err = errors.New("flaky again")
	if _, err := m.Fetch(context.Background(), nil); !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("Fetch error = %v, want ErrAllSourcesFailed", err)
	}
	if got := m.ActiveAdapter(); got != "primary" {
		t.Errorf("active = %q, want primary (counter should have reset)", got)
	}
}

func TestAllSourcesFailed(t *testing.T) {
	a := newFakeAdapter("primary", nil)
	a.err = errors.New("down")
	b := newFakeAdapter("backup", nil)
	b.err = errors.New("also down")

	m, err := NewManager(DefaultManagerConfig(), a, b)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	_, err = m.Fetch(context.Background(), nil)
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Errorf("Fetch error = %v, want ErrAllSourcesFailed", err)
	}
}

func TestUnhealthyAdapterNeverFetched(t *testing.T) {
	a := newFakeAdapter("primary", []ais.PositionReport{report(237000001, 0.9)})
	a.healthy = false
	b := newFakeAdapter("backup", []ais.PositionReport{report(237000002, 0.5)})

	cfg := ManagerConfig{FailoverThreshold: 1, AttemptTimeout: time.Second}
	m, err := NewManager(cfg, a, b)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	// Failed health checks count as failures; at threshold 1 a single
	// fetch trips the failover and lands on the backup.
	reports, err := m.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(reports) != 1 || reports[0].MMSI != 237000002 {
		t.Errorf("got %v, want backup's report", reports)
	}
	if a.fetchCalls != 0 {
		t.Errorf("unhealthy primary fetched %d times, want 0", a.fetchCalls)
	}
}

func TestSwitchTo(t *testing.T) {
	a := newFakeAdapter("primary", nil)
	b := newFakeAdapter("backup", nil)

	m, err := NewManager(DefaultManagerConfig(), a, b)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := m.SwitchTo("backup"); err != nil {
		t.Fatalf("SwitchTo: %v", err)
	}
	if got := m.ActiveAdapter(); got != "backup" {
		t.Errorf("active = %q, want backup", got)
	}

	err = m.SwitchTo("nonexistent")
	if !errors.Is(err, ErrAdapterNotFound) {
		t.Errorf("SwitchTo unknown = %v, want ErrAdapterNotFound", err)
	}
}

func TestDeduplicate(t *testing.T) {
	tests := []struct {
		name string
		in   []ais.PositionReport
		want []int // expected MMSI sequence
	}{
		{
			name: "no duplicates",
			in:   []ais.PositionReport{report(237000001, 0.9), report(237000002, 0.5)},
			want: []int{237000001, 237000002},
		},
		{
			name: "keeps higher quality",
			in: []ais.PositionReport{
				report(237000001, 0.5),
				report(237000001, 0.9),
			},
			want: []int{237000001},
		},
		{
			name: "tie keeps first",
			in: []ais.PositionReport{
				report(237000001, 0.7),
				report(237000001, 0.7),
			},
			want: []int{237000001},
		},
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Deduplicate(tt.in)
			if len(out) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(out), len(tt.want))
			}
			for i, mmsi := range tt.want {
				if out[i].MMSI != mmsi {
					t.Errorf("out[%d].MMSI = %d, want %d", i, out[i].MMSI, mmsi)
				}
			}
		})
	}
}

func TestDeduplicateKeepsHighestQuality(t *testing.T) {
	in := []ais.PositionReport{
		report(237000001, 0.5),
		report(237000001, 0.95),
		report(237000001, 0.7),
	}
	out := Deduplicate(in)
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if out[0].SourceQuality != 0.95 {
		t.Errorf("kept quality %v, want 0.95", out[0].SourceQuality)
	}
}
