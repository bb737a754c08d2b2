package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vessel_watch/internal/collision"
	"vessel_watch/internal/storage"
)

// mockStore implements StatesReader and AlertsReader for testing.
type mockStore struct {
	states  []collision.VesselState
	vessels map[int]*storage.VesselRecord
	alerts  []storage.AlertRecord
}

func newMockStore() *mockStore {
	return &mockStore{vessels: make(map[int]*storage.VesselRecord)}
}

func (m *mockStore) RecentStates(ctx context.Context, maxAge time.Duration) ([]collision.VesselState, error) {
	return m.states, nil
}

func (m *mockStore) GetVessel(ctx context.Context, mmsi int) (*storage.VesselRecord, error) {
	return m.vessels[mmsi], nil
}

func (m *mockStore) VesselCount(ctx context.Context) (int, error) {
	return len(m.vessels), nil
}

func (m *mockStore) ActiveAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error) {
	if limit < len(m.alerts) {
		return m.alerts[:limit], nil
	}
	return m.alerts, nil
}

func TestHealthEndpoint(t *testing.T) {
	server := NewStatusServer(nil, newMockStore(), newMockStore(), nil, Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	server := NewStatusServer(nil, newMockStore(), newMockStore(), nil, Config{
		Port:        8080,
		AuthEnabled: true,
		APIKeys:     []string{"test-key-123", "another-key"},
	})
	handler := server.authMiddleware(server.Router())

	tests := []struct {
		name       string
		apiKey     string
		keyHeader  string
		wantStatus int
	}{
		{
			name:       "no key",
			apiKey:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid key",
			apiKey:     "wrong-key",
			keyHeader:  "X-API-Key",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "valid key via X-API-Key",
			apiKey:     "test-key-123",
			keyHeader:  "X-API-Key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid key via Bearer",
			apiKey:     "another-key",
			keyHeader:  "Authorization",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid key via query parameter",
			apiKey:     "test-key-123",
			keyHeader:  "query",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/health"
			if tt.keyHeader == "query" {
				target += "?api_key=" + tt.apiKey
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.apiKey != "" && tt.keyHeader != "query" {
				if tt.keyHeader == "Authorization" {
					req.Header.Set("Authorization", "Bearer "+tt.apiKey)
				} else {
					req.Header.Set(tt.keyHeader, tt.apiKey)
				}
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestPositionsEndpoint(t *testing.T) {
	store := newMockStore()
	store.states = []collision.VesselState{
		{MMSI: 237000001, Name: "AEGEAN SPIRIT", Lat: 40.55, Lon: 22.90, SpeedKnots: 12, CourseTrue: 90},
		{MMSI: 237000002, Name: "POSEIDON STAR", Lat: 40.56, Lon: 22.91, SpeedKnots: 8, CourseTrue: 270},
	}
	server := NewStatusServer(nil, store, store, nil, Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/positions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Count     int                     `json:"count"`
		Positions []collision.VesselState `json:"positions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Positions) != 2 {
		t.Errorf("expected 2 positions, got count=%d len=%d", resp.Count, len(resp.Positions))
	}
	if resp.Positions[0].MMSI != 237000001 {
		t.Errorf("unexpected first position: %+v", resp.Positions[0])
	}
}

func TestPositionsRejectsBadMaxAge(t *testing.T) {
	server := NewStatusServer(nil, newMockStore(), newMockStore(), nil, Config{Port: 8080})
	router := server.Router()

	for _, q := range []string{"?max_age_minutes=abc", "?max_age_minutes=0", "?max_age_minutes=-5"} {
		req := httptest.NewRequest(http.MethodGet, "/positions"+q, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", q, rec.Code)
		}
	}
}

func TestVesselEndpoint(t *testing.T) {
	store := newMockStore()
	imo := 9351426
	store.vessels[237000001] = &storage.VesselRecord{
		MMSI:      237000001,
		Name:      "AEGEAN SPIRIT",
		ShipClass: "cargo",
		IMONumber: &imo,
		FirstSeen: time.Now().Add(-time.Hour),
		LastSeen:  time.Now(),
		MsgCount:  42,
	}
	server := NewStatusServer(nil, store, store, nil, Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/vessels/237000001", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp VesselResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.MMSI != 237000001 || resp.Name != "AEGEAN SPIRIT" {
		t.Errorf("unexpected vessel: %+v", resp)
	}
	if resp.IMONumber == nil || *resp.IMONumber != imo {
		t.Errorf("unexpected IMO number: %v", resp.IMONumber)
	}
	if resp.MsgCount != 42 {
		t.Errorf("expected msg_count 42, got %d", resp.MsgCount)
	}
}

func TestVesselEndpointNotFound(t *testing.T) {
	server := NewStatusServer(nil, newMockStore(), newMockStore(), nil, Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/vessels/237009999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestVesselEndpointBadMMSI(t *testing.T) {
	server := NewStatusServer(nil, newMockStore(), newMockStore(), nil, Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/vessels/not-a-number", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	store := newMockStore()
	store.alerts = []storage.AlertRecord{
		{
			ID:            "a1",
			MMSIA:         237000001,
			MMSIB:         237000002,
			Severity:      "critical",
			CPANM:         0.2,
			TCPA:          6 * time.Minute,
			Status:        "open",
			FirstDetected: time.Now().Add(-5 * time.Minute),
			LastRefreshed: time.Now(),
		},
	}
	server := NewStatusServer(nil, store, store, nil, Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Count  int             `json:"count"`
		Alerts []AlertResponse `json:"alerts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("expected 1 alert, got %d", resp.Count)
	}
	a := resp.Alerts[0]
	if a.ID != "a1" || a.Severity != "critical" || a.Status != "open" {
		t.Errorf("unexpected alert: %+v", a)
	}
	if a.TCPAMinutes != 6 {
		t.Errorf("expected tcpa_minutes 6, got %v", a.TCPAMinutes)
	}
}

// mockHistory implements HistoryReader for testing.
type mockHistory struct {
	points []storage.TrackPoint
	stats  storage.CHStats
}

func (m *mockHistory) Track(ctx context.Context, mmsi int, since time.Time, limit int) ([]storage.TrackPoint, error) {
	if limit < len(m.points) {
		return m.points[:limit], nil
	}
	return m.points, nil
}

func (m *mockHistory) GetStats(ctx context.Context) (*storage.CHStats, error) {
	return &m.stats, nil
}

func TestTrackEndpoint(t *testing.T) {
	speed := float32(11.5)
	history := &mockHistory{
		points: []storage.TrackPoint{
			{MMSI: 237000001, Timestamp: time.Now().Add(-10 * time.Minute), Latitude: 40.55, Longitude: 22.88, SpeedKnots: &speed, Source: "simulator", Quality: 1.0},
			{MMSI: 237000001, Timestamp: time.Now().Add(-5 * time.Minute), Latitude: 40.55, Longitude: 22.90, SpeedKnots: &speed, Source: "simulator", Quality: 1.0},
		},
	}
	server := NewStatusServer(nil, newMockStore(), newMockStore(), history, Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/vessels/237000001/track", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		MMSI  int                  `json:"mmsi"`
		Count int                  `json:"count"`
		Track []TrackPointResponse `json:"track"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.MMSI != 237000001 || resp.Count != 2 || len(resp.Track) != 2 {
		t.Fatalf("unexpected track response: mmsi=%d count=%d track=%d", resp.MMSI, resp.Count, len(resp.Track))
	}
	if resp.Track[0].Longitude != 22.88 {
		t.Errorf("points out of order: %+v", resp.Track)
	}
	if resp.Track[0].SpeedKnots == nil || *resp.Track[0].SpeedKnots != speed {
		t.Errorf("unexpected speed: %v", resp.Track[0].SpeedKnots)
	}
}

func TestTrackEndpointRejectsBadParams(t *testing.T) {
	server := NewStatusServer(nil, newMockStore(), newMockStore(), &mockHistory{}, Config{Port: 8080})
	router := server.Router()

	for _, target := range []string{
		"/vessels/not-a-number/track",
		"/vessels/237000001/track?since_minutes=0",
		"/vessels/237000001/track?limit=-1",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", target, rec.Code)
		}
	}
}

func TestTrackWithoutHistory(t *testing.T) {
	server := NewStatusServer(nil, newMockStore(), newMockStore(), nil, Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/vessels/237000001/track", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
}

func TestStatisticsIncludesHistory(t *testing.T) {
	history := &mockHistory{
		stats: storage.CHStats{TotalPositions: 1200, DistinctVessels: 20},
	}
	server := NewStatusServer(nil, newMockStore(), newMockStore(), history, Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/statistics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		History *storage.CHStats `json:"history"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.History == nil || resp.History.TotalPositions != 1200 {
		t.Errorf("unexpected history stats: %+v", resp.History)
	}
}

func TestSourcesWithoutManager(t *testing.T) {
	server := NewStatusServer(nil, newMockStore(), newMockStore(), nil, Config{Port: 8080})
	router := server.Router()

	for _, tt := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/sources"},
		{http.MethodPost, "/sources/simulator/activate"},
	} {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: expected status 503, got %d", tt.method, tt.path, rec.Code)
		}
	}
}

func TestStatisticsWithoutManager(t *testing.T) {
	store := newMockStore()
	store.vessels[237000001] = &storage.VesselRecord{MMSI: 237000001}
	server := NewStatusServer(nil, store, store, nil, Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/statistics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["vessel_count"] != float64(1) {
		t.Errorf("expected vessel_count 1, got %v", resp["vessel_count"])
	}
	if _, ok := resp["manager"]; ok {
		t.Error("manager stats present without a manager")
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/anything", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard CORS origin, got %q", got)
	}
}
