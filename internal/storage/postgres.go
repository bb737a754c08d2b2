package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vessel_watch/internal/ais"
	"vessel_watch/internal/collision"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB wraps a PostgreSQL connection pool for mutable vessel state.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- Reference data: Vessel registry
	CREATE TABLE IF NOT EXISTS vessels (
		mmsi            BIGINT PRIMARY KEY,
		name            TEXT,
		call_sign       TEXT,
		imo_number      BIGINT,
		ship_class      TEXT NOT NULL DEFAULT 'unknown',
		ship_type_code  INTEGER,
		length_meters   DOUBLE PRECISION,
		width_meters    DOUBLE PRECISION,
		draught_meters  DOUBLE PRECISION,
		destination     TEXT,
		first_seen      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		msg_count       INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_vessels_name ON vessels(name);
	CREATE INDEX IF NOT EXISTS idx_vessels_class ON vessels(ship_class);

	-- Ephemeral: Latest kinematic state per vessel
	CREATE TABLE IF NOT EXISTS vessel_states (
		mmsi            BIGINT PRIMARY KEY REFERENCES vessels(mmsi) ON DELETE CASCADE,
		latitude        DOUBLE PRECISION NOT NULL,
		longitude       DOUBLE PRECISION NOT NULL,
		speed_knots     DOUBLE PRECISION,
		course_degrees  DOUBLE PRECISION,
		heading_degrees INTEGER,
		nav_status      INTEGER,
		source          TEXT NOT NULL,
		quality         DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		reported_at     TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_vessel_states_reported ON vessel_states(reported_at);

	-- Operational: Collision alerts
	CREATE TABLE IF NOT EXISTS alerts (
		id              UUID PRIMARY KEY,
		mmsi_a          BIGINT NOT NULL,
		mmsi_b          BIGINT NOT NULL,
		severity        TEXT NOT NULL,
		cpa_nm          DOUBLE PRECISION NOT NULL,
		tcpa_seconds    DOUBLE PRECISION NOT NULL,
		range_nm        DOUBLE PRECISION,
		status          TEXT NOT NULL DEFAULT 'open',
		first_detected  TIMESTAMPTZ NOT NULL,
		last_refreshed  TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_pair ON alerts(mmsi_a, mmsi_b);
	CREATE INDEX IF NOT EXISTS idx_alerts_refreshed ON alerts(last_refreshed);
	`

	_, err := d.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Create partial index separately (IF NOT EXISTS syntax differs).
	_, _ = d.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_alerts_open ON alerts(status) WHERE status = 'open'`)

	return nil
}

// UpsertVessel inserts or updates the static record for a report's vessel.
// Static fields only overwrite when the report actually carries them.
func (d *PostgresDB) UpsertVessel(ctx context.Context, r ais.PositionReport) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO vessels (mmsi, name, call_sign, imo_number, ship_class, ship_type_code, length_meters, width_meters, draught_meters, destination, first_seen, last_seen)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, 0), $5, $6, NULLIF($7, 0.0), NULLIF($8, 0.0), NULLIF($9, 0.0), NULLIF($10, ''), $11, $11)
		ON CONFLICT (mmsi) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, vessels.name),
			call_sign = COALESCE(EXCLUDED.call_sign, vessels.call_sign),
			imo_number = COALESCE(EXCLUDED.imo_number, vessels.imo_number),
			ship_class = CASE WHEN EXCLUDED.ship_class = 'unknown' THEN vessels.ship_class ELSE EXCLUDED.ship_class END,
			ship_type_code = COALESCE(EXCLUDED.ship_type_code, vessels.ship_type_code),
			length_meters = COALESCE(EXCLUDED.length_meters, vessels.length_meters),
			width_meters = COALESCE(EXCLUDED.width_meters, vessels.width_meters),
			draught_meters = COALESCE(EXCLUDED.draught_meters, vessels.draught_meters),
			destination = COALESCE(EXCLUDED.destination, vessels.destination),
			last_seen = EXCLUDED.last_seen,
			msg_count = vessels.msg_count + 1
	`, r.MMSI, r.VesselName, r.CallSign, r.IMONumber, string(r.ShipClass), nullableInt(r.ShipTypeCode),
		r.LengthMeters, r.WidthMeters, r.DraughtMeters, r.Destination, r.Timestamp)
	return err
}

func nullableInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

// VesselRecord is a row from the vessels table.
type VesselRecord struct {
	MMSI          int
	Name          string
	CallSign      string
	IMONumber     *int
	ShipClass     string
	ShipTypeCode  *int
	LengthMeters  *float64
	WidthMeters   *float64
	DraughtMeters *float64
	Destination   string
	FirstSeen     time.Time
	LastSeen      time.Time
	MsgCount      int
}

// GetVessel retrieves a vessel by MMSI. Returns nil when unknown.
func (d *PostgresDB) GetVessel(ctx context.Context, mmsi int) (*VesselRecord, error) {
	var v VesselRecord
	var name, callSign, destination *string
	err := d.pool.QueryRow(ctx, `
		SELECT mmsi, name, call_sign, imo_number, ship_class, ship_type_code, length_meters, width_meters, draught_meters, destination, first_seen, last_seen, msg_count
		FROM vessels WHERE mmsi = $1
	`, mmsi).Scan(&v.MMSI, &name, &callSign, &v.IMONumber, &v.ShipClass, &v.ShipTypeCode,
		&v.LengthMeters, &v.WidthMeters, &v.DraughtMeters, &destination, &v.FirstSeen, &v.LastSeen, &v.MsgCount)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.Name = deref(name)
	v.CallSign = deref(callSign)
	v.Destination = deref(destination)
	return &v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// UpsertState writes the latest kinematics for a vessel. A row already
// holding a newer reported_at wins; out-of-order reports are dropped.
func (d *PostgresDB) UpsertState(ctx context.Context, r ais.PositionReport) error {
	var heading *int
	if r.Heading != nil {
		heading = r.Heading
	}
	var navStatus *int
	if r.NavStatus != nil {
		code := int(*r.NavStatus)
		navStatus = &code
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO vessel_states (mmsi, latitude, longitude, speed_knots, course_degrees, heading_degrees, nav_status, source, quality, reported_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (mmsi) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			speed_knots = EXCLUDED.speed_knots,
			course_degrees = EXCLUDED.course_degrees,
			heading_degrees = EXCLUDED.heading_degrees,
			nav_status = EXCLUDED.nav_status,
			source = EXCLUDED.source,
			quality = EXCLUDED.quality,
			reported_at = EXCLUDED.reported_at,
			updated_at = NOW()
		WHERE vessel_states.reported_at <= EXCLUDED.reported_at
	`, r.MMSI, r.Latitude, r.Longitude, r.SpeedOverGround, r.CourseOverGround, heading, navStatus,
		r.Source, r.SourceQuality, r.Timestamp)
	return err
}

// RecentStates returns the detector input: every vessel whose latest report
// is younger than maxAge.
func (d *PostgresDB) RecentStates(ctx context.Context, maxAge time.Duration) ([]collision.VesselState, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT s.mmsi, COALESCE(v.name, ''), s.latitude, s.longitude, COALESCE(s.speed_knots, 0), COALESCE(s.course_degrees, 0), s.reported_at
		FROM vessel_states s
		LEFT JOIN vessels v ON v.mmsi = s.mmsi
		WHERE s.reported_at > NOW() - $1::interval
	`, maxAge.String())
	if err != nil {
		return nil, fmt.Errorf("query recent states: %w", err)
	}
	defer rows.Close()

	var states []collision.VesselState
	for rows.Next() {
		var s collision.VesselState
		if err := rows.Scan(&s.MMSI, &s.Name, &s.Lat, &s.Lon, &s.SpeedKnots, &s.CourseTrue, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return states, nil
}

// AlertRecord is a row from the alerts table.
type AlertRecord struct {
	ID            string
	MMSIA         int
	MMSIB         int
	Severity      string
	CPANM         float64
	TCPA          time.Duration
	RangeNM       float64
	Status        string
	FirstDetected time.Time
	LastRefreshed time.Time
}

// FindOpenAlert returns the open alert for the pair refreshed within the
// window, if any. The pair is matched in either order.
func (d *PostgresDB) FindOpenAlert(ctx context.Context, mmsiA, mmsiB int, window time.Duration) (*AlertRecord, error) {
	var a AlertRecord
	var tcpaSeconds float64
	err := d.pool.QueryRow(ctx, `
		SELECT id, mmsi_a, mmsi_b, severity, cpa_nm, tcpa_seconds, COALESCE(range_nm, 0), status, first_detected, last_refreshed
		FROM alerts
		WHERE status = 'open'
		  AND ((mmsi_a = $1 AND mmsi_b = $2) OR (mmsi_a = $2 AND mmsi_b = $1))
		  AND last_refreshed > NOW() - $3::interval
		ORDER BY last_refreshed DESC
		LIMIT 1
	`, mmsiA, mmsiB, window.String()).Scan(&a.ID, &a.MMSIA, &a.MMSIB, &a.Severity, &a.CPANM,
		&tcpaSeconds, &a.RangeNM, &a.Status, &a.FirstDetected, &a.LastRefreshed)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.TCPA = time.Duration(tcpaSeconds * float64(time.Second))
	return &a, nil
}

// InsertAlert records a newly raised alert.
func (d *PostgresDB) InsertAlert(ctx context.Context, a AlertRecord) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO alerts (id, mmsi_a, mmsi_b, severity, cpa_nm, tcpa_seconds, range_nm, status, first_detected, last_refreshed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'open', $8, $9)
	`, a.ID, a.MMSIA, a.MMSIB, a.Severity, a.CPANM, a.TCPA.Seconds(), a.RangeNM, a.FirstDetected, a.LastRefreshed)
	return err
}

// RefreshAlert updates the geometry of an already open alert.
func (d *PostgresDB) RefreshAlert(ctx context.Context, id string, severity string, cpaNM float64, tcpa time.Duration, at time.Time) error {
	_, err := d.pool.Exec(ctx, `
		UPDATE alerts SET severity = $2, cpa_nm = $3, tcpa_seconds = $4, last_refreshed = $5
		WHERE id = $1
	`, id, severity, cpaNM, tcpa.Seconds(), at)
	return err
}

// CloseStaleAlerts closes open alerts not refreshed within the window,
// returning how many were closed.
func (d *PostgresDB) CloseStaleAlerts(ctx context.Context, window time.Duration) (int, error) {
	tag, err := d.pool.Exec(ctx, `
		UPDATE alerts SET status = 'closed'
		WHERE status = 'open' AND last_refreshed < NOW() - $1::interval
	`, window.String())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ActiveAlerts returns all open alerts, most recently refreshed first.
func (d *PostgresDB) ActiveAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.pool.Query(ctx, `
		SELECT id, mmsi_a, mmsi_b, severity, cpa_nm, tcpa_seconds, COALESCE(range_nm, 0), status, first_detected, last_refreshed
		FROM alerts WHERE status = 'open'
		ORDER BY last_refreshed DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var a AlertRecord
		var tcpaSeconds float64
		if err := rows.Scan(&a.ID, &a.MMSIA, &a.MMSIB, &a.Severity, &a.CPANM, &tcpaSeconds,
			&a.RangeNM, &a.Status, &a.FirstDetected, &a.LastRefreshed); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.TCPA = time.Duration(tcpaSeconds * float64(time.Second))
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

// VesselCount returns the number of known vessels.
func (d *PostgresDB) VesselCount(ctx context.Context) (int, error) {
	var n int
	err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vessels`).Scan(&n)
	return n, err
}
