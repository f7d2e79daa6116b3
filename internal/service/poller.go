package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Poller runs a cycle on every tick until its context ends
type Poller struct {
	runner     CycleRunner
	interval   time.Duration
	runOnStart bool
	logger     zerolog.Logger
}

// NewPoller creates a new poller
func NewPoller(runner CycleRunner, interval time.Duration, runOnStart bool, logger zerolog.Logger) *Poller {
	return &Poller{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger.With().Str("component", "poller").Logger(),
	}
}

// Run blocks until ctx is cancelled. Cycles never overlap; a failed cycle
// is logged and the next tick tries again.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Bool("run_on_start", p.runOnStart).Msg("started polling")

	if p.runOnStart {
		p.runOnce(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("stopping poller")
			return nil
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	snapshot, err := p.runner.RunCycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error().Err(err).Msg("cycle failed")
		return
	}

	p.logger.Debug().Str("cycle_id", snapshot.CycleID.String()).Msg("cycle finished")
}
