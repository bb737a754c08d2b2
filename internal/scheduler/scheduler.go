// Package scheduler drives the periodic fetch and detection jobs.
package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"vessel_watch/internal/ais"
	"vessel_watch/internal/collision"
	"vessel_watch/internal/pipeline"
	"vessel_watch/internal/source"
)

// Default job cadence.
const (
	DefaultFetchInterval  = 60 * time.Second
	DefaultDetectInterval = 30 * time.Second
	DefaultJobTimeout     = 30 * time.Second
	DefaultStateMaxAge    = 5 * time.Minute
)

// StatesSource supplies the detector's input snapshot.
type StatesSource interface {
	RecentStates(ctx context.Context, maxAge time.Duration) ([]collision.VesselState, error)
}

// Config tunes the scheduler's cadence.
type Config struct {
	FetchInterval  time.Duration
	DetectInterval time.Duration
	JobTimeout     time.Duration
	StateMaxAge    time.Duration
	BBox           *ais.BoundingBox
}

// DefaultConfig returns the standard cadence.
func DefaultConfig() Config {
	return Config{
		FetchInterval:  DefaultFetchInterval,
		DetectInterval: DefaultDetectInterval,
		JobTimeout:     DefaultJobTimeout,
		StateMaxAge:    DefaultStateMaxAge,
	}
}

// Scheduler runs the fetch and detect loops until its context is canceled.
// Job failures are logged and the loop continues; only context cancelation
// stops it.
type Scheduler struct {
	cfg       Config
	manager   *source.Manager
	processor *pipeline.Processor
	detector  *collision.Detector
	states    StatesSource
	alerts    *pipeline.AlertSink
}

// New builds a scheduler.
func New(cfg Config, manager *source.Manager, processor *pipeline.Processor,
	detector *collision.Detector, states StatesSource, alerts *pipeline.AlertSink) *Scheduler {
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = DefaultFetchInterval
	}
	if cfg.DetectInterval <= 0 {
		cfg.DetectInterval = DefaultDetectInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.StateMaxAge <= 0 {
		cfg.StateMaxAge = DefaultStateMaxAge
	}
	return &Scheduler{
		cfg:       cfg,
		manager:   manager,
		processor: processor,
		detector:  detector,
		states:    states,
		alerts:    alerts,
	}
}

// Run blocks until ctx is canceled. Both loops fire once immediately so a
// fresh process has data before the first full interval elapses.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.fetchOnce(ctx)
		ticker := time.NewTicker(s.cfg.FetchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				s.fetchOnce(ctx)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.DetectInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				s.detectOnce(ctx)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Scheduler) fetchOnce(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	reports, err := s.manager.Fetch(jobCtx, s.cfg.BBox)
	if err != nil {
		log.Printf("fetch job: %v", err)
		return
	}

	res, err := s.processor.Process(jobCtx, reports)
	if err != nil {
		log.Printf("ingest job: %v", err)
		return
	}
	if res.Stored > 0 || res.Invalid > 0 || res.Errors > 0 {
		log.Printf("ingest: received=%d stored=%d invalid=%d duplicates=%d errors=%d",
			res.Received, res.Stored, res.Invalid, res.Duplicates, res.Errors)
	}
}

func (s *Scheduler) detectOnce(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	states, err := s.states.RecentStates(jobCtx, s.cfg.StateMaxAge)
	if err != nil {
		log.Printf("detect job: load states: %v", err)
		return
	}
	if len(states) < 2 {
		return
	}

	risks := s.detector.Detect(states, time.Now().UTC())
	res := s.alerts.Sink(jobCtx, risks)
	if res.Raised > 0 || res.Refreshed > 0 || res.Closed > 0 || res.Errors > 0 {
		log.Printf("detect: pairs=%d raised=%d refreshed=%d closed=%d errors=%d",
			len(risks), res.Raised, res.Refreshed, res.Closed, res.Errors)
	}
}
