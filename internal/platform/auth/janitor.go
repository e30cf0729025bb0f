package auth

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor periodically sweeps expired admin sessions.
type Janitor struct {
	cron     *cron.Cron
	registry *Registry
	logger   zerolog.Logger
}

// NewJanitor schedules Registry.Sweep on spec, a cron expression such as
// "@every 5m".
func NewJanitor(r *Registry, spec string, logger zerolog.Logger) (*Janitor, error) {
	j := &Janitor{
		cron:     cron.New(),
		registry: r,
		logger:   logger.With().Str("component", "session-janitor").Logger(),
	}
	if _, err := j.cron.AddFunc(spec, j.run); err != nil {
		return nil, fmt.Errorf("schedule session sweep %q: %w", spec, err)
	}
	return j, nil
}

func (j *Janitor) run() {
	n := j.registry.Sweep(context.Background())
	j.logger.Debug().Int("ended", n).Msg("sweep finished")
}

// Start begins running the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and returns a context that is done once a
// running sweep has finished.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}
