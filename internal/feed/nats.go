// Package feed publishes position and alert events to NATS for downstream
// consumers.
package feed

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"vessel_watch/internal/ais"
	"vessel_watch/internal/collision"
)

// Subjects used on the wire. Alerts fan out per severity so consumers can
// subscribe to vessel.alerts.critical alone.
const (
	SubjectPositions   = "vessel.positions"
	SubjectAlertPrefix = "vessel.alerts."
)

// Publisher sends traffic events to NATS. A nil Publisher is a no-op, so
// callers can run without a broker configured.
type Publisher struct {
	conn *nats.Conn
}

// Connect dials the NATS server at url.
func Connect(url string) (*Publisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name("vessel-watch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// PublishPositions sends a batch of position reports, one message per
// report.
func (p *Publisher) PublishPositions(reports []ais.PositionReport) error {
	if p == nil || p.conn == nil {
		return nil
	}
	for i := range reports {
		data, err := json.Marshal(&reports[i])
		if err != nil {
			return fmt.Errorf("marshal position: %w", err)
		}
		if err := p.conn.Publish(SubjectPositions, data); err != nil {
			return fmt.Errorf("publish position: %w", err)
		}
	}
	return nil
}

// AlertEvent is the wire form of a raised or refreshed alert.
type AlertEvent struct {
	AlertID string         `json:"alert_id"`
	New     bool           `json:"new"`
	Risk    collision.Risk `json:"risk"`
}

// PublishAlert sends one alert event on the severity-specific subject.
func (p *Publisher) PublishAlert(ev AlertEvent) error {
	if p == nil || p.conn == nil {
		return nil
	}
	data, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	subject := SubjectAlertPrefix + string(ev.Risk.Severity)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}
