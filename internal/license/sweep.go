package license

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SweepStore defines the data access the expiry sweep needs.
type SweepStore interface {
	ExpireLapsedLicenses(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically transitions lapsed time-bound licenses to expired so
// gate decisions and license listings reflect reality without waiting for a
// request to observe the expiry.
type Sweeper struct {
	store   SweepStore
	spec    string
	cron    *cron.Cron
	logger  zerolog.Logger
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper with the given cron spec, e.g. "@every 5m".
func NewSweeper(store SweepStore, spec string, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		spec:   spec,
		cron:   cron.New(),
		logger: logger.With().Str("component", "license-sweep").Logger(),
	}
}

// Start begins the periodic sweep.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("license sweeper already running")
	}

	_, err := s.cron.AddFunc(s.spec, s.runSweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Str("schedule", s.spec).Msg("license sweeper started")
	return nil
}

// Stop stops the sweeper gracefully.
func (s *Sweeper) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping license sweeper")
	return s.cron.Stop()
}

// runSweep executes one expiry pass.
func (s *Sweeper) runSweep() {
	ctx := context.Background()

	expired, err := s.store.ExpireLapsedLicenses(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error().Err(err).Msg("license expiry sweep failed")
		return
	}
	if expired > 0 {
		s.logger.Info().Int64("expired", expired).Msg("licenses transitioned to expired")
	}
}

// RunNow triggers an immediate sweep (useful for testing).
func (s *Sweeper) RunNow() {
	s.runSweep()
}
