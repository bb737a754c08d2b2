package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"vessel_watch/internal/ais"
)

type fakeStateStore struct {
	vessels []int
	states  []int

	failVessel map[int]error
	failState  map[int]error
}

func (f *fakeStateStore) UpsertVessel(_ context.Context, r ais.PositionReport) error {
	if err := f.failVessel[r.MMSI]; err != nil {
		return err
	}
	f.vessels = append(f.vessels, r.MMSI)
	return nil
}

func (f *fakeStateStore) UpsertState(_ context.Context, r ais.PositionReport) error {
	if err := f.failState[r.MMSI]; err != nil {
		return err
	}
	f.states = append(f.states, r.MMSI)
	return nil
}

type fakeHistoryStore struct {
	batches [][]ais.PositionReport
	err     error
}

func (f *fakeHistoryStore) InsertPositions(_ context.Context, reports []ais.PositionReport) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, reports)
	return nil
}

type fakePositionPublisher struct {
	published [][]ais.PositionReport
}

func (f *fakePositionPublisher) PublishPositions(reports []ais.PositionReport) error {
	f.published = append(f.published, reports)
	return nil
}

func ingestReport(mmsi int, ts time.Time) ais.PositionReport {
	speed := 10.0
	course := 90.0
	return ais.PositionReport{
		MMSI:             mmsi,
		Timestamp:        ts,
		Latitude:         40.55,
		Longitude:        22.90,
		SpeedOverGround:  &speed,
		CourseOverGround: &course,
		Source:           "test",
		SourceQuality:    0.9,
	}
}

func TestProcessStoresBatch(t *testing.T) {
	states := &fakeStateStore{}
	history := &fakeHistoryStore{}
	pub := &fakePositionPublisher{}
	p := NewProcessor(states, history, pub)

	ts := time.Now().UTC()
	reports := []ais.PositionReport{
		ingestReport(237000001, ts),
		ingestReport(237000002, ts),
	}

	res, err := p.Process(context.Background(), reports)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Received != 2 || res.Stored != 2 || res.Invalid != 0 || res.Errors != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.CacheWrites != 2 {
		t.Errorf("expected 2 cache writes, got %d", res.CacheWrites)
	}
	if len(states.vessels) != 2 || len(states.states) != 2 {
		t.Errorf("upserts = %d vessels, %d states", len(states.vessels), len(states.states))
	}
	if len(history.batches) != 1 || len(history.batches[0]) != 2 {
		t.Errorf("history batches = %+v", history.batches)
	}
	if len(pub.published) != 1 {
		t.Errorf("published %d batches", len(pub.published))
	}
}

func TestProcessSkipsInvalidReports(t *testing.T) {
	states := &fakeStateStore{}
	p := NewProcessor(states, nil, nil)

	ts := time.Now().UTC()
	bad := ingestReport(42, ts) // MMSI too short
	good := ingestReport(237000001, ts)

	res, err := p.Process(context.Background(), []ais.PositionReport{bad, good})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Invalid != 1 || res.Stored != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(states.vessels) != 1 || states.vessels[0] != 237000001 {
		t.Errorf("stored vessels = %v", states.vessels)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	states := &fakeStateStore{}
	p := NewProcessor(states, nil, nil)

	ts := time.Now().UTC()
	batch := []ais.PositionReport{ingestReport(237000001, ts)}

	if _, err := p.Process(context.Background(), batch); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	res, err := p.Process(context.Background(), batch)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}

	if res.Duplicates != 1 || res.Stored != 0 || res.CacheWrites != 0 {
		t.Errorf("replay result = %+v", res)
	}
	if len(states.states) != 1 {
		t.Errorf("state upserted %d times for one report", len(states.states))
	}

	// A newer timestamp for the same vessel is not a duplicate.
	later := []ais.PositionReport{ingestReport(237000001, ts.Add(30*time.Second))}
	res, err = p.Process(context.Background(), later)
	if err != nil {
		t.Fatalf("third Process: %v", err)
	}
	if res.Stored != 1 {
		t.Errorf("newer report result = %+v", res)
	}
}

func TestProcessFailedUpsertIsRetriable(t *testing.T) {
	states := &fakeStateStore{
		failState: map[int]error{237000001: errors.New("connection reset")},
	}
	p := NewProcessor(states, nil, nil)

	ts := time.Now().UTC()
	batch := []ais.PositionReport{
		ingestReport(237000001, ts),
		ingestReport(237000002, ts),
	}

	res, err := p.Process(context.Background(), batch)
	if err != nil {
		t.Fatalf("Process with one bad row: %v", err)
	}
	if res.Stored != 1 || res.Errors != 1 {
		t.Errorf("result = %+v", res)
	}
	// The failed upsert must not count as a cache write.
	if res.CacheWrites != 1 {
		t.Errorf("expected 1 cache write, got %d", res.CacheWrites)
	}

	// The failed report was never marked seen, so a retry stores it.
	states.failState = nil
	res, err = p.Process(context.Background(), batch)
	if err != nil {
		t.Fatalf("retry Process: %v", err)
	}
	if res.Stored != 1 || res.Duplicates != 1 {
		t.Errorf("retry result = %+v", res)
	}
}

func TestProcessAllErrorsFailsBatch(t *testing.T) {
	states := &fakeStateStore{
		failVessel: map[int]error{237000001: errors.New("database down")},
	}
	p := NewProcessor(states, nil, nil)

	batch := []ais.PositionReport{ingestReport(237000001, time.Now().UTC())}
	res, err := p.Process(context.Background(), batch)
	if err == nil {
		t.Fatal("expected an error when nothing was stored")
	}
	if res.Errors != 1 || res.Stored != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessHistoryErrorIsTallied(t *testing.T) {
	states := &fakeStateStore{}
	history := &fakeHistoryStore{err: errors.New("clickhouse unavailable")}
	p := NewProcessor(states, history, nil)

	batch := []ais.PositionReport{ingestReport(237000001, time.Now().UTC())}
	res, err := p.Process(context.Background(), batch)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Stored != 1 || res.Errors != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessNormalizesBeforeStoring(t *testing.T) {
	states := &fakeStateStore{}
	history := &fakeHistoryStore{}
	p := NewProcessor(states, history, nil)

	r := ingestReport(237000001, time.Now().UTC())
	course := 370.0 // normalized to 10
	r.CourseOverGround = &course

	if _, err := p.Process(context.Background(), []ais.PositionReport{r}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	stored := history.batches[0][0]
	if stored.CourseOverGround == nil || *stored.CourseOverGround != 10.0 {
		t.Errorf("stored course = %v, want normalized 10", stored.CourseOverGround)
	}
}
