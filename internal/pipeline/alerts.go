package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"vessel_watch/internal/collision"
	"vessel_watch/internal/feed"
	"vessel_watch/internal/storage"
)

// AlertStore is the mutable alert side. Both the PostgreSQL and the
// embedded SQLite stores satisfy it.
type AlertStore interface {
	FindOpenAlert(ctx context.Context, mmsiA, mmsiB int, window time.Duration) (*storage.AlertRecord, error)
	InsertAlert(ctx context.Context, a storage.AlertRecord) error
	RefreshAlert(ctx context.Context, id string, severity string, cpaNM float64, tcpa time.Duration, at time.Time) error
	CloseStaleAlerts(ctx context.Context, window time.Duration) (int, error)
}

// AlertHistoryStore appends raised alerts to the analytics store.
type AlertHistoryStore interface {
	InsertAlert(ctx context.Context, alertID string, r collision.Risk) error
}

// AlertPublisher fans alert events out to the message bus.
type AlertPublisher interface {
	PublishAlert(ev feed.AlertEvent) error
}

// DefaultAlertWindow is how long an open alert suppresses re-raising for
// the same vessel pair. A risk seen again inside the window refreshes the
// existing alert instead of creating a new one.
const DefaultAlertWindow = 10 * time.Minute

// AlertSink persists detected risks and publishes them, deduplicating per
// vessel pair within the alert window.
type AlertSink struct {
	store   AlertStore
	history AlertHistoryStore
	pub     AlertPublisher
	window  time.Duration
}

// NewAlertSink builds a sink. history and pub may be nil.
func NewAlertSink(store AlertStore, history AlertHistoryStore, pub AlertPublisher) *AlertSink {
	return &AlertSink{
		store:   store,
		history: history,
		pub:     pub,
		window:  DefaultAlertWindow,
	}
}

// SinkResult summarizes one detection cycle.
type SinkResult struct {
	Raised    int `json:"raised"`
	Refreshed int `json:"refreshed"`
	Closed    int `json:"closed"`
	Errors    int `json:"errors"`
}

// Sink processes the detector's output. New pairs get a fresh alert; pairs
// with an open alert inside the window get that alert refreshed with the
// latest geometry. Open alerts whose pair has stopped appearing are closed.
func (s *AlertSink) Sink(ctx context.Context, risks []collision.Risk) SinkResult {
	var res SinkResult

	for i := range risks {
		r := &risks[i]

		existing, err := s.store.FindOpenAlert(ctx, r.MMSIA, r.MMSIB, s.window)
		if err != nil {
			res.Errors++
			log.Printf("find alert %d/%d: %v", r.MMSIA, r.MMSIB, err)
			continue
		}

		if existing != nil {
			if err := s.store.RefreshAlert(ctx, existing.ID, string(r.Severity), r.CPANauticalMi, r.TCPA, r.DetectedAt); err != nil {
				res.Errors++
				log.Printf("refresh alert %s: %v", existing.ID, err)
				continue
			}
			res.Refreshed++
			s.publish(existing.ID, false, *r)
			continue
		}

		id := uuid.NewString()
		rec := storage.AlertRecord{
			ID:            id,
			MMSIA:         r.MMSIA,
			MMSIB:         r.MMSIB,
			Severity:      string(r.Severity),
			CPANM:         r.CPANauticalMi,
			TCPA:          r.TCPA,
			RangeNM:       r.CurrentRangeNM,
			FirstDetected: r.DetectedAt,
			LastRefreshed: r.DetectedAt,
		}
		if err := s.store.InsertAlert(ctx, rec); err != nil {
			res.Errors++
			log.Printf("insert alert %d/%d: %v", r.MMSIA, r.MMSIB, err)
			continue
		}
		res.Raised++
		log.Printf("alert %s raised: %d/%d severity=%s cpa=%.2fnm tcpa=%s",
			id, r.MMSIA, r.MMSIB, r.Severity, r.CPANauticalMi, r.TCPA.Round(time.Second))

		if s.history != nil {
			if err := s.history.InsertAlert(ctx, id, *r); err != nil {
				res.Errors++
				log.Printf("alert history %s: %v", id, err)
			}
		}
		s.publish(id, true, *r)
	}

	closed, err := s.store.CloseStaleAlerts(ctx, s.window)
	if err != nil {
		res.Errors++
		log.Printf("close stale alerts: %v", err)
	}
	res.Closed = closed

	return res
}

func (s *AlertSink) publish(id string, isNew bool, r collision.Risk) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishAlert(feed.AlertEvent{AlertID: id, New: isNew, Risk: r}); err != nil {
		log.Printf("publish alert %s: %v", id, err)
	}
}
