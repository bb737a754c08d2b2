// Package api provides REST API endpoints for traffic and alert status.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vessel_watch/internal/collision"
	"vessel_watch/internal/source"
	"vessel_watch/internal/storage"
)

// StatesReader is the read side of the state store the API serves from.
// Both the PostgreSQL and the embedded SQLite stores satisfy it.
type StatesReader interface {
	RecentStates(ctx context.Context, maxAge time.Duration) ([]collision.VesselState, error)
	GetVessel(ctx context.Context, mmsi int) (*storage.VesselRecord, error)
	VesselCount(ctx context.Context) (int, error)
}

// AlertsReader is the read side of the alert store.
type AlertsReader interface {
	ActiveAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error)
}

// HistoryReader is the read side of the position history store (ClickHouse).
type HistoryReader interface {
	Track(ctx context.Context, mmsi int, since time.Time, limit int) ([]storage.TrackPoint, error)
	GetStats(ctx context.Context) (*storage.CHStats, error)
}

// StatusServer provides REST API access to live traffic and alert state.
type StatusServer struct {
	manager     *source.Manager
	states      StatesReader
	alerts      AlertsReader
	history     HistoryReader
	port        int
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
}

// Config holds configuration for the status API server.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.
}

// NewStatusServer creates a new status API server. manager may be nil for
// read-only deployments serving storage alone; history may be nil when the
// deployment runs without ClickHouse.
func NewStatusServer(manager *source.Manager, states StatesReader, alerts AlertsReader, history HistoryReader, cfg Config) *StatusServer {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}

	return &StatusServer{
		manager:     manager,
		states:      states,
		alerts:      alerts,
		history:     history,
		port:        cfg.Port,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
	}
}

// Run starts the HTTP server.
func (s *StatusServer) Run() error {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for browser access.
	r.Use(corsMiddleware)

	// Optional authentication.
	if s.authEnabled {
		r.Use(s.authMiddleware)
	}

	r.Mount("/api/v1", s.Router())

	addr := ":" + strconv.Itoa(s.port)
	log.Printf("Status API starting at http://localhost%s", addr)
	if s.authEnabled {
		log.Printf("Authentication: ENABLED (API key required)")
	} else {
		log.Printf("Authentication: DISABLED (open access)")
	}

	return http.ListenAndServe(addr, r)
}

// Router returns the configured chi router for embedding in other servers.
func (s *StatusServer) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/sources", s.handleSources)
	r.Post("/sources/{name}/activate", s.handleActivateSource)
	r.Get("/statistics", s.handleStatistics)
	r.Get("/positions", s.handlePositions)
	r.Get("/vessels/{mmsi}", s.handleVessel)
	r.Get("/vessels/{mmsi}/track", s.handleTrack)
	r.Get("/alerts", s.handleAlerts)

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *StatusServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *StatusServer) handleSources(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		writeError(w, http.StatusServiceUnavailable, "No source manager in this deployment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  s.manager.ActiveAdapter(),
		"sources": s.manager.InfoAll(),
	})
}

func (s *StatusServer) handleActivateSource(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		writeError(w, http.StatusServiceUnavailable, "No source manager in this deployment")
		return
	}
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "source name is required")
		return
	}

	if err := s.manager.SwitchTo(name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"active": name})
}

func (s *StatusServer) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vesselCount, err := s.states.VesselCount(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"vessel_count": vesselCount}
	if s.manager != nil {
		resp["manager"] = s.manager.Statistics()
		resp["health_checks"] = s.manager.HealthCheckAll(ctx)
	}
	if s.history != nil {
		hist, err := s.history.GetStats(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["history"] = hist
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *StatusServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	maxAge := 10 * time.Minute
	if v := r.URL.Query().Get("max_age_minutes"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			writeError(w, http.StatusBadRequest, "max_age_minutes must be a positive integer")
			return
		}
		maxAge = time.Duration(minutes) * time.Minute
	}

	states, err := s.states.RecentStates(r.Context(), maxAge)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(states),
		"positions": states,
	})
}

func (s *StatusServer) handleVessel(w http.ResponseWriter, r *http.Request) {
	mmsi, err := strconv.Atoi(chi.URLParam(r, "mmsi"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "mmsi must be numeric")
		return
	}

	vessel, err := s.states.GetVessel(r.Context(), mmsi)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if vessel == nil {
		writeError(w, http.StatusNotFound, "No vessel found")
		return
	}

	writeJSON(w, http.StatusOK, vesselToResponse(vessel))
}

func (s *StatusServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "No position history store in this deployment")
		return
	}

	mmsi, err := strconv.Atoi(chi.URLParam(r, "mmsi"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "mmsi must be numeric")
		return
	}

	sinceMinutes := 60
	if v := r.URL.Query().Get("since_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "since_minutes must be a positive integer")
			return
		}
		sinceMinutes = n
	}

	limit := 1000
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	since := time.Now().UTC().Add(-time.Duration(sinceMinutes) * time.Minute)
	points, err := s.history.Track(r.Context(), mmsi, since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	track := make([]TrackPointResponse, 0, len(points))
	for i := range points {
		track = append(track, trackPointToResponse(&points[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mmsi":  mmsi,
		"count": len(track),
		"track": track,
	})
}

func (s *StatusServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	alerts, err := s.alerts.ActiveAlerts(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]AlertResponse, 0, len(alerts))
	for i := range alerts {
		results = append(results, alertToResponse(&alerts[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(results),
		"alerts": results,
	})
}

// VesselResponse is the JSON response for vessel lookups.
type VesselResponse struct {
	MMSI          int      `json:"mmsi"`
	Name          string   `json:"name,omitempty"`
	CallSign      string   `json:"call_sign,omitempty"`
	IMONumber     *int     `json:"imo_number,omitempty"`
	ShipClass     string   `json:"ship_class"`
	ShipTypeCode  *int     `json:"ship_type_code,omitempty"`
	LengthMeters  *float64 `json:"length,omitempty"`
	WidthMeters   *float64 `json:"width,omitempty"`
	DraughtMeters *float64 `json:"draught,omitempty"`
	Destination   string   `json:"destination,omitempty"`
	FirstSeen     string   `json:"first_seen"`
	LastSeen      string   `json:"last_seen"`
	MsgCount      int      `json:"msg_count"`
}

func vesselToResponse(v *storage.VesselRecord) VesselResponse {
	return VesselResponse{
		MMSI:          v.MMSI,
		Name:          v.Name,
		CallSign:      v.CallSign,
		IMONumber:     v.IMONumber,
		ShipClass:     v.ShipClass,
		ShipTypeCode:  v.ShipTypeCode,
		LengthMeters:  v.LengthMeters,
		WidthMeters:   v.WidthMeters,
		DraughtMeters: v.DraughtMeters,
		Destination:   v.Destination,
		FirstSeen:     v.FirstSeen.Format(time.RFC3339),
		LastSeen:      v.LastSeen.Format(time.RFC3339),
		MsgCount:      v.MsgCount,
	}
}

// TrackPointResponse is one historical position sample in a track response.
type TrackPointResponse struct {
	Timestamp  string   `json:"timestamp"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	SpeedKnots *float32 `json:"speed_knots,omitempty"`
	Course     *float32 `json:"course_degrees,omitempty"`
	Source     string   `json:"source"`
	Quality    float32  `json:"quality"`
}

func trackPointToResponse(p *storage.TrackPoint) TrackPointResponse {
	return TrackPointResponse{
		Timestamp:  p.Timestamp.Format(time.RFC3339),
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		SpeedKnots: p.SpeedKnots,
		Course:     p.Course,
		Source:     p.Source,
		Quality:    p.Quality,
	}
}

// AlertResponse is the JSON response for alert queries.
type AlertResponse struct {
	ID            string  `json:"id"`
	MMSIA         int     `json:"mmsi_a"`
	MMSIB         int     `json:"mmsi_b"`
	Severity      string  `json:"severity"`
	CPANM         float64 `json:"cpa_nm"`
	TCPAMinutes   float64 `json:"tcpa_minutes"`
	RangeNM       float64 `json:"range_nm,omitempty"`
	Status        string  `json:"status"`
	FirstDetected string  `json:"first_detected"`
	LastRefreshed string  `json:"last_refreshed"`
}

func alertToResponse(a *storage.AlertRecord) AlertResponse {
	return AlertResponse{
		ID:            a.ID,
		MMSIA:         a.MMSIA,
		MMSIB:         a.MMSIB,
		Severity:      a.Severity,
		CPANM:         a.CPANM,
		TCPAMinutes:   a.TCPA.Minutes(),
		RangeNM:       a.RangeNM,
		Status:        a.Status,
		FirstDetected: a.FirstDetected.Format(time.RFC3339),
		LastRefreshed: a.LastRefreshed.Format(time.RFC3339),
	}
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
