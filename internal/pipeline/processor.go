// Package pipeline moves fetched reports into storage and turns detected
// risks into persisted, published alerts.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"vessel_watch/internal/ais"
)

// StateStore is the mutable-state side of ingest. Both the PostgreSQL and
// the embedded SQLite stores satisfy it.
type StateStore interface {
	UpsertVessel(ctx context.Context, r ais.PositionReport) error
	UpsertState(ctx context.Context, r ais.PositionReport) error
}

// HistoryStore is the append-only side of ingest.
type HistoryStore interface {
	InsertPositions(ctx context.Context, reports []ais.PositionReport) error
}

// PositionPublisher fans reports out to the message bus.
type PositionPublisher interface {
	PublishPositions(reports []ais.PositionReport) error
}

// Result summarizes one ingest batch. CacheWrites counts latest-state
// upserts; the vessel_states table is the latest-position cache.
type Result struct {
	Received    int `json:"received"`
	Stored      int `json:"stored"`
	Invalid     int `json:"invalid"`
	Duplicates  int `json:"duplicates"`
	CacheWrites int `json:"cache_writes"`
	Errors      int `json:"errors"`
}

// seenTTL bounds the in-memory duplicate window. Reports re-fetched from a
// source within it are dropped without touching storage.
const seenTTL = 10 * time.Minute

// Processor validates, deduplicates, stores, and publishes position
// reports. Reprocessing the same (MMSI, timestamp) pair is a no-op.
type Processor struct {
	states  StateStore
	history HistoryStore
	pub     PositionPublisher

	mu   sync.Mutex
	seen map[seenKey]time.Time
}

type seenKey struct {
	mmsi int
	ts   int64 // unix millis
}

// NewProcessor builds a processor. history and pub may be nil when the
// deployment runs without ClickHouse or NATS.
func NewProcessor(states StateStore, history HistoryStore, pub PositionPublisher) *Processor {
	return &Processor{
		states:  states,
		history: history,
		pub:     pub,
		seen:    make(map[seenKey]time.Time),
	}
}

// Process ingests one batch of reports. Malformed reports are skipped and
// tallied, never fatal; storage errors are tallied per report so one bad
// row does not sink the batch.
func (p *Processor) Process(ctx context.Context, reports []ais.PositionReport) (Result, error) {
	res := Result{Received: len(reports)}

	fresh := make([]ais.PositionReport, 0, len(reports))
	for i := range reports {
		r := &reports[i]
		r.Normalize()
		if err := r.Validate(); err != nil {
			res.Invalid++
			log.Printf("dropping invalid report: %v", err)
			continue
		}
		if p.isDuplicate(r.MMSI, r.Timestamp) {
			res.Duplicates++
			continue
		}
		fresh = append(fresh, *r)
	}

	for i := range fresh {
		r := &fresh[i]
		if err := p.states.UpsertVessel(ctx, *r); err != nil {
			res.Errors++
			log.Printf("upsert vessel %d: %v", r.MMSI, err)
			continue
		}
		if err := p.states.UpsertState(ctx, *r); err != nil {
			res.Errors++
			log.Printf("upsert state %d: %v", r.MMSI, err)
			continue
		}
		res.CacheWrites++
		p.markSeen(r.MMSI, r.Timestamp)
		res.Stored++
	}

	if p.history != nil && len(fresh) > 0 {
		if err := p.history.InsertPositions(ctx, fresh); err != nil {
			res.Errors++
			log.Printf("insert history: %v", err)
		}
	}

	if p.pub != nil && len(fresh) > 0 {
		if err := p.pub.PublishPositions(fresh); err != nil {
			res.Errors++
			log.Printf("publish positions: %v", err)
		}
	}

	if res.Stored == 0 && res.Errors > 0 {
		return res, fmt.Errorf("ingest batch failed: %d errors", res.Errors)
	}
	return res, nil
}

func (p *Processor) isDuplicate(mmsi int, ts time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seen[seenKey{mmsi: mmsi, ts: ts.UnixMilli()}]
	return ok
}

func (p *Processor) markSeen(mmsi int, ts time.Time) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[seenKey{mmsi: mmsi, ts: ts.UnixMilli()}] = now

	// Prune opportunistically once the window map grows.
	if len(p.seen) > 10000 {
		cutoff := now.Add(-seenTTL)
		for k, at := range p.seen {
			if at.Before(cutoff) {
				delete(p.seen, k)
			}
		}
	}
}
