// Package storage provides persistent storage for vessel traffic data:
// PostgreSQL for mutable state and ClickHouse for append-only history.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"vessel_watch/internal/ais"
	"vessel_watch/internal/collision"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection for history storage.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS position_history (
			mmsi            UInt32,
			timestamp       DateTime64(3),
			latitude        Float64,
			longitude       Float64,
			speed_knots     Nullable(Float32),
			course_degrees  Nullable(Float32),
			heading_degrees Nullable(Int16),
			nav_status      Nullable(Int8),
			source          LowCardinality(String),
			quality         Float32,
			received_at     DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (mmsi, timestamp)
		SETTINGS index_granularity = 8192`,

		`CREATE TABLE IF NOT EXISTS alert_history (
			alert_id        String,
			mmsi_a          UInt32,
			mmsi_b          UInt32,
			severity        LowCardinality(String),
			cpa_nm          Float64,
			tcpa_seconds    Float64,
			range_nm        Float64,
			detected_at     DateTime64(3),
			recorded_at     DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(detected_at)
		ORDER BY (detected_at, mmsi_a, mmsi_b)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	return nil
}

// InsertPositions appends a batch of position reports to the history table.
func (d *ClickHouseDB) InsertPositions(ctx context.Context, reports []ais.PositionReport) error {
	if len(reports) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO position_history (mmsi, timestamp, latitude, longitude, speed_knots, course_degrees, heading_degrees, nav_status, source, quality, received_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range reports {
		var speed, course *float32
		if r.SpeedOverGround != nil {
			v := float32(*r.SpeedOverGround)
			speed = &v
		}
		if r.CourseOverGround != nil {
			v := float32(*r.CourseOverGround)
			course = &v
		}
		var heading *int16
		if r.Heading != nil {
			v := int16(*r.Heading)
			heading = &v
		}
		var navStatus *int8
		if r.NavStatus != nil {
			v := int8(*r.NavStatus)
			navStatus = &v
		}

		err = batch.Append(uint32(r.MMSI), r.Timestamp, r.Latitude, r.Longitude,
			speed, course, heading, navStatus, r.Source, float32(r.SourceQuality), r.ReceivedAt)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// InsertAlert appends one detected risk to the alert history.
func (d *ClickHouseDB) InsertAlert(ctx context.Context, alertID string, r collision.Risk) error {
	err := d.conn.Exec(ctx, `
		INSERT INTO alert_history (alert_id, mmsi_a, mmsi_b, severity, cpa_nm, tcpa_seconds, range_nm, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, alertID, uint32(r.MMSIA), uint32(r.MMSIB), string(r.Severity), r.CPANauticalMi,
		r.TCPA.Seconds(), r.CurrentRangeNM, r.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// TrackPoint is one historical position sample.
type TrackPoint struct {
	MMSI       uint32
	Timestamp  time.Time
	Latitude   float64
	Longitude  float64
	SpeedKnots *float32
	Course     *float32
	Source     string
	Quality    float32
}

// Track returns a vessel's position history since the given time, oldest
// first.
func (d *ClickHouseDB) Track(ctx context.Context, mmsi int, since time.Time, limit int) ([]TrackPoint, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := d.conn.Query(ctx, `
		SELECT mmsi, timestamp, latitude, longitude, speed_knots, course_degrees, source, quality
		FROM position_history
		WHERE mmsi = ? AND timestamp >= ?
		ORDER BY timestamp ASC
		LIMIT ?
	`, uint32(mmsi), since, limit)
	if err != nil {
		return nil, fmt.Errorf("query track: %w", err)
	}
	defer rows.Close()

	var points []TrackPoint
	for rows.Next() {
		var p TrackPoint
		if err := rows.Scan(&p.MMSI, &p.Timestamp, &p.Latitude, &p.Longitude,
			&p.SpeedKnots, &p.Course, &p.Source, &p.Quality); err != nil {
			return nil, fmt.Errorf("scan track point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate track: %w", err)
	}
	return points, nil
}

// CHStats contains aggregate statistics about stored history.
type CHStats struct {
	TotalPositions  uint64
	DistinctVessels uint64
	BySource        map[string]uint64
	TotalAlerts     uint64
	BySeverity      map[string]uint64
}

// GetStats returns statistics about stored history.
func (d *ClickHouseDB) GetStats(ctx context.Context) (*CHStats, error) {
	stats := &CHStats{
		BySource:   make(map[string]uint64),
		BySeverity: make(map[string]uint64),
	}

	row := d.conn.QueryRow(ctx, "SELECT count(), uniqExact(mmsi) FROM position_history")
	if err := row.Scan(&stats.TotalPositions, &stats.DistinctVessels); err != nil {
		return nil, err
	}

	rows, err := d.conn.Query(ctx, "SELECT source, count() FROM position_history GROUP BY source ORDER BY count() DESC")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var source string
		var count uint64
		if err := rows.Scan(&source, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan source stats: %w", err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate source stats: %w", err)
	}
	rows.Close()

	row = d.conn.QueryRow(ctx, "SELECT count() FROM alert_history")
	if err := row.Scan(&stats.TotalAlerts); err != nil {
		return nil, err
	}

	rows, err = d.conn.Query(ctx, "SELECT severity, count() FROM alert_history GROUP BY severity")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var severity string
		var count uint64
		if err := rows.Scan(&severity, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan severity stats: %w", err)
		}
		stats.BySeverity[severity] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate severity stats: %w", err)
	}
	rows.Close()

	return stats, nil
}
