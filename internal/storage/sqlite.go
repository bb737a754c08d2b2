package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"vessel_watch/internal/ais"
	"vessel_watch/internal/collision"
)

// SQLiteDB is the embedded single-node store. It carries the same vessel,
// state, alert, and history operations as the PostgreSQL plus ClickHouse
// pair, for deployments without external databases.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vessels (
		mmsi INTEGER PRIMARY KEY,
		name TEXT,
		call_sign TEXT,
		imo_number INTEGER,
		ship_class TEXT NOT NULL DEFAULT 'unknown',
		ship_type_code INTEGER,
		length_meters REAL,
		width_meters REAL,
		draught_meters REAL,
		destination TEXT,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		msg_count INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS vessel_states (
		mmsi INTEGER PRIMARY KEY REFERENCES vessels(mmsi),
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		speed_knots REAL,
		course_degrees REAL,
		heading_degrees INTEGER,
		nav_status INTEGER,
		source TEXT NOT NULL,
		quality REAL NOT NULL DEFAULT 1.0,
		reported_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_vessel_states_reported ON vessel_states(reported_at);

	CREATE TABLE IF NOT EXISTS position_history (
		mmsi INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		speed_knots REAL,
		course_degrees REAL,
		source TEXT NOT NULL,
		quality REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_position_history_mmsi ON position_history(mmsi, timestamp);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		mmsi_a INTEGER NOT NULL,
		mmsi_b INTEGER NOT NULL,
		severity TEXT NOT NULL,
		cpa_nm REAL NOT NULL,
		tcpa_seconds REAL NOT NULL,
		range_nm REAL,
		status TEXT NOT NULL DEFAULT 'open',
		first_detected TEXT NOT NULL,
		last_refreshed TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_pair ON alerts(mmsi_a, mmsi_b);
	CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
	`

	_, err := db.Exec(schema)
	return err
}

const sqliteTime = time.RFC3339Nano

// UpsertVessel inserts or updates the static record for a report's vessel.
func (d *SQLiteDB) UpsertVessel(ctx context.Context, r ais.PositionReport) error {
	ts := r.Timestamp.UTC().Format(sqliteTime)
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO vessels (mmsi, name, call_sign, imo_number, ship_class, ship_type_code, length_meters, width_meters, draught_meters, destination, first_seen, last_seen)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, 0), ?, NULLIF(?, 0), NULLIF(?, 0.0), NULLIF(?, 0.0), NULLIF(?, 0.0), NULLIF(?, ''), ?, ?)
		ON CONFLICT (mmsi) DO UPDATE SET
			name = COALESCE(excluded.name, vessels.name),
			call_sign = COALESCE(excluded.call_sign, vessels.call_sign),
			imo_number = COALESCE(excluded.imo_number, vessels.imo_number),
			ship_class = CASE WHEN excluded.ship_class = 'unknown' THEN vessels.ship_class ELSE excluded.ship_class END,
			ship_type_code = COALESCE(excluded.ship_type_code, vessels.ship_type_code),
			length_meters = COALESCE(excluded.length_meters, vessels.length_meters),
			width_meters = COALESCE(excluded.width_meters, vessels.width_meters),
			draught_meters = COALESCE(excluded.draught_meters, vessels.draught_meters),
			destination = COALESCE(excluded.destination, vessels.destination),
			last_seen = excluded.last_seen,
			msg_count = vessels.msg_count + 1
	`, r.MMSI, r.VesselName, r.CallSign, r.IMONumber, string(r.ShipClass), r.ShipTypeCode,
		r.LengthMeters, r.WidthMeters, r.DraughtMeters, r.Destination, ts, ts)
	return err
}

// UpsertState writes the latest kinematics for a vessel, dropping
// out-of-order reports.
func (d *SQLiteDB) UpsertState(ctx context.Context, r ais.PositionReport) error {
	var navStatus *int
	if r.NavStatus != nil {
		code := int(*r.NavStatus)
		navStatus = &code
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO vessel_states (mmsi, latitude, longitude, speed_knots, course_degrees, heading_degrees, nav_status, source, quality, reported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mmsi) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			speed_knots = excluded.speed_knots,
			course_degrees = excluded.course_degrees,
			heading_degrees = excluded.heading_degrees,
			nav_status = excluded.nav_status,
			source = excluded.source,
			quality = excluded.quality,
			reported_at = excluded.reported_at
		WHERE vessel_states.reported_at <= excluded.reported_at
	`, r.MMSI, r.Latitude, r.Longitude, r.SpeedOverGround, r.CourseOverGround, r.Heading,
		navStatus, r.Source, r.SourceQuality, r.Timestamp.UTC().Format(sqliteTime))
	return err
}

// InsertPositions appends position reports to the history table in one
// transaction.
func (d *SQLiteDB) InsertPositions(ctx context.Context, reports []ais.PositionReport) error {
	if len(reports) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO position_history (mmsi, timestamp, latitude, longitude, speed_knots, course_degrees, source, quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range reports {
		_, err := stmt.ExecContext(ctx, r.MMSI, r.Timestamp.UTC().Format(sqliteTime),
			r.Latitude, r.Longitude, r.SpeedOverGround, r.CourseOverGround, r.Source, r.SourceQuality)
		if err != nil {
			return fmt.Errorf("insert position: %w", err)
		}
	}

	return tx.Commit()
}

// RecentStates returns detector input for vessels reporting within maxAge.
func (d *SQLiteDB) RecentStates(ctx context.Context, maxAge time.Duration) ([]collision.VesselState, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(sqliteTime)
	rows, err := d.db.QueryContext(ctx, `
		SELECT s.mmsi, COALESCE(v.name, ''), s.latitude, s.longitude, COALESCE(s.speed_knots, 0), COALESCE(s.course_degrees, 0), s.reported_at
		FROM vessel_states s
		LEFT JOIN vessels v ON v.mmsi = s.mmsi
		WHERE s.reported_at > ?
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query recent states: %w", err)
	}
	defer rows.Close()

	var states []collision.VesselState
	for rows.Next() {
		var s collision.VesselState
		var reportedAt string
		if err := rows.Scan(&s.MMSI, &s.Name, &s.Lat, &s.Lon, &s.SpeedKnots, &s.CourseTrue, &reportedAt); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		s.Timestamp, _ = time.Parse(sqliteTime, reportedAt)
		states = append(states, s)
	}
	return states, rows.Err()
}

// FindOpenAlert returns the open alert for the pair refreshed within the
// window, matched in either order.
func (d *SQLiteDB) FindOpenAlert(ctx context.Context, mmsiA, mmsiB int, window time.Duration) (*AlertRecord, error) {
	cutoff := time.Now().UTC().Add(-window).Format(sqliteTime)
	var a AlertRecord
	var tcpaSeconds float64
	var firstDetected, lastRefreshed string
	err := d.db.QueryRowContext(ctx, `
		SELECT id, mmsi_a, mmsi_b, severity, cpa_nm, tcpa_seconds, COALESCE(range_nm, 0), status, first_detected, last_refreshed
		FROM alerts
		WHERE status = 'open'
		  AND ((mmsi_a = ? AND mmsi_b = ?) OR (mmsi_a = ? AND mmsi_b = ?))
		  AND last_refreshed > ?
		ORDER BY last_refreshed DESC
		LIMIT 1
	`, mmsiA, mmsiB, mmsiB, mmsiA, cutoff).Scan(&a.ID, &a.MMSIA, &a.MMSIB, &a.Severity,
		&a.CPANM, &tcpaSeconds, &a.RangeNM, &a.Status, &firstDetected, &lastRefreshed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.TCPA = time.Duration(tcpaSeconds * float64(time.Second))
	a.FirstDetected, _ = time.Parse(sqliteTime, firstDetected)
	a.LastRefreshed, _ = time.Parse(sqliteTime, lastRefreshed)
	return &a, nil
}

// InsertAlert records a newly raised alert.
func (d *SQLiteDB) InsertAlert(ctx context.Context, a AlertRecord) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO alerts (id, mmsi_a, mmsi_b, severity, cpa_nm, tcpa_seconds, range_nm, status, first_detected, last_refreshed)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'open', ?, ?)
	`, a.ID, a.MMSIA, a.MMSIB, a.Severity, a.CPANM, a.TCPA.Seconds(), a.RangeNM,
		a.FirstDetected.UTC().Format(sqliteTime), a.LastRefreshed.UTC().Format(sqliteTime))
	return err
}

// RefreshAlert updates the geometry of an already open alert.
func (d *SQLiteDB) RefreshAlert(ctx context.Context, id string, severity string, cpaNM float64, tcpa time.Duration, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE alerts SET severity = ?, cpa_nm = ?, tcpa_seconds = ?, last_refreshed = ?
		WHERE id = ?
	`, severity, cpaNM, tcpa.Seconds(), at.UTC().Format(sqliteTime), id)
	return err
}

// CloseStaleAlerts closes open alerts not refreshed within the window.
func (d *SQLiteDB) CloseStaleAlerts(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-window).Format(sqliteTime)
	res, err := d.db.ExecContext(ctx, `
		UPDATE alerts SET status = 'closed'
		WHERE status = 'open' AND last_refreshed < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ActiveAlerts returns all open alerts, most recently refreshed first.
func (d *SQLiteDB) ActiveAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, mmsi_a, mmsi_b, severity, cpa_nm, tcpa_seconds, COALESCE(range_nm, 0), status, first_detected, last_refreshed
		FROM alerts WHERE status = 'open'
		ORDER BY last_refreshed DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var a AlertRecord
		var tcpaSeconds float64
		var firstDetected, lastRefreshed string
		if err := rows.Scan(&a.ID, &a.MMSIA, &a.MMSIB, &a.Severity, &a.CPANM, &tcpaSeconds,
			&a.RangeNM, &a.Status, &firstDetected, &lastRefreshed); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.TCPA = time.Duration(tcpaSeconds * float64(time.Second))
		a.FirstDetected, _ = time.Parse(sqliteTime, firstDetected)
		a.LastRefreshed, _ = time.Parse(sqliteTime, lastRefreshed)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// GetVessel retrieves a vessel by MMSI. Returns nil when unknown.
func (d *SQLiteDB) GetVessel(ctx context.Context, mmsi int) (*VesselRecord, error) {
	var v VesselRecord
	var name, callSign, destination sql.NullString
	var firstSeen, lastSeen string
	err := d.db.QueryRowContext(ctx, `
		SELECT mmsi, name, call_sign, imo_number, ship_class, ship_type_code, length_meters, width_meters, draught_meters, destination, first_seen, last_seen, msg_count
		FROM vessels WHERE mmsi = ?
	`, mmsi).Scan(&v.MMSI, &name, &callSign, &v.IMONumber, &v.ShipClass, &v.ShipTypeCode,
		&v.LengthMeters, &v.WidthMeters, &v.DraughtMeters, &destination, &firstSeen, &lastSeen, &v.MsgCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.Name = name.String
	v.CallSign = callSign.String
	v.Destination = destination.String
	v.FirstSeen, _ = time.Parse(sqliteTime, firstSeen)
	v.LastSeen, _ = time.Parse(sqliteTime, lastSeen)
	return &v, nil
}

// VesselCount returns the number of known vessels.
func (d *SQLiteDB) VesselCount(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vessels`).Scan(&n)
	return n, err
}
