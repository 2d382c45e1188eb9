package heartbeat

import (
	"context"
	"log"
	"time"

	commands "shuttle-gateway/internal/commands/domain"
	fleet "shuttle-gateway/internal/fleet/domain"
	"shuttle-gateway/internal/observability/metrics"
	"shuttle-gateway/internal/retry"
)

// Prober issues a liveness probe to a shuttle.
type Prober interface {
	Send(ctx context.Context, shuttleID string, verb commands.Verb, params string) error
}

// StateStore is the slice of the fleet repository the monitor touches.
type StateStore interface {
	Get(ctx context.Context, shuttleID string) (*fleet.State, error)
	Update(ctx context.Context, shuttleID string, update fleet.StateUpdate) (*fleet.State, error)
}

// Options tunes the monitor.
type Options struct {
	Interval  time.Duration // probe period, default 60s
	StaleUnit time.Duration // how old last_seen may get before a probe fires
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.StaleUnit <= 0 {
		o.StaleUnit = 2 * time.Minute
	}
	return o
}

// Monitor probes quiet shuttles with STATUS and flips them to NOT_READY
// when they stop answering. Responses arrive on the listener and refresh
// last_seen, which is what clears the stale flag.
type Monitor struct {
	shuttleIDs []string
	prober     Prober
	states     StateStore
	opts       Options
	logger     *log.Logger
}

// New builds a monitor over the configured fleet.
func New(shuttleIDs []string, prober Prober, states StateStore, opts Options, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		shuttleIDs: shuttleIDs,
		prober:     prober,
		states:     states,
		opts:       opts.withDefaults(),
		logger:     logger,
	}
}

// Run probes until the context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.opts.StaleUnit)
	for _, id := range m.shuttleIDs {
		state, err := m.states.Get(ctx, id)
		if err != nil {
			m.logger.Printf("heartbeat: state %s: %v", id, err)
			continue
		}
		if state != nil && state.LastSeen.After(cutoff) {
			metrics.SetHeartbeat(id, true)
			continue
		}
		m.probe(ctx, id)
	}
}

func (m *Monitor) probe(ctx context.Context, shuttleID string) {
	err := retry.Do(ctx, func(ctx context.Context) error {
		return m.prober.Send(ctx, shuttleID, commands.VerbStatus, "")
	}, retry.Options{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
		OnRetry: func(attempt int, err error) {
			metrics.IncReconnectAttempt(shuttleID, "retry")
			m.logger.Printf("heartbeat: probe %s attempt %d: %v", shuttleID, attempt, err)
		},
	})
	if err != nil {
		metrics.SetHeartbeat(shuttleID, false)
		metrics.IncReconnectAttempt(shuttleID, "failed")
		m.logger.Printf("heartbeat: shuttle %s unreachable: %v", shuttleID, err)
		_, updateErr := m.states.Update(ctx, shuttleID, fleet.StateUpdate{
			Status: fleet.StatusPtr(fleet.StatusNotReady),
		})
		if updateErr != nil {
			m.logger.Printf("heartbeat: mark %s not ready: %v", shuttleID, updateErr)
		}
		return
	}
	metrics.SetHeartbeat(shuttleID, true)
	metrics.IncReconnectAttempt(shuttleID, "ok")
}
