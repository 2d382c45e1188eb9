package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"shuttle-gateway/internal/commands/application/events"
	"shuttle-gateway/internal/eventing"
)

// Clock provides time, replaceable in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type sendRecord struct {
	at time.Time
}

// Notifier pushes shuttle faults and command failures to a channel. It
// subscribes to the event bus and applies a per-shuttle cooldown so a
// flapping shuttle does not flood the receiver.
type Notifier struct {
	channel  Channel
	cooldown time.Duration
	clock    Clock
	logger   *log.Logger

	mu   sync.Mutex
	sent map[string]sendRecord
}

// Option configures the notifier.
type Option func(*Notifier)

// WithCooldown sets the minimum interval between pushes for the same
// shuttle and event type.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// NewNotifier constructs a notifier over the channel.
func NewNotifier(channel Channel, logger *log.Logger, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("notify: nil channel")
	}
	if logger == nil {
		logger = log.Default()
	}
	n := &Notifier{
		channel:  channel,
		cooldown: time.Minute,
		clock:    systemClock{},
		logger:   logger,
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// ConsumerName identifies the notifier in the processed-events ledger.
const ConsumerName = "wms-webhook"

// Register subscribes the notifier to the fault-bearing events. With a
// processed store the webhook fires at most once per event, even when the
// outbox redelivers.
func (n *Notifier) Register(bus eventing.Bus, store eventing.ProcessedStore) {
	eventing.Subscribe(bus, eventing.EventTypeOf[events.CommandFailed](), ConsumerName, n.onCommandFailed, store)
	eventing.Subscribe(bus, eventing.EventTypeOf[events.ShuttleMessageReceived](), ConsumerName, n.onShuttleMessage, store)
}

func (n *Notifier) onCommandFailed(ctx context.Context, event any) error {
	failed, ok := coerce[events.CommandFailed](event)
	if !ok {
		return nil
	}
	n.push(ctx, "command_failed", Payload{
		Event:      "command_failed",
		ShuttleID:  failed.ShuttleID,
		ExternalID: failed.ExternalID,
		Message:    failed.Error,
		OccurredAt: failed.OccurredAt,
	})
	return nil
}

func (n *Notifier) onShuttleMessage(ctx context.Context, event any) error {
	msg, ok := coerce[events.ShuttleMessageReceived](event)
	if !ok {
		return nil
	}
	// Only faults leave the building.
	if msg.ErrorCode == "" {
		return nil
	}
	n.push(ctx, "shuttle_fault", Payload{
		Event:      "shuttle_fault",
		ShuttleID:  msg.ShuttleID,
		Message:    msg.Message,
		ErrorCode:  msg.ErrorCode,
		OccurredAt: msg.OccurredAt,
	})
	return nil
}

func (n *Notifier) push(ctx context.Context, eventType string, payload Payload) {
	key := payload.ShuttleID + "|" + eventType
	now := n.clock.Now().UTC()

	n.mu.Lock()
	record, seen := n.sent[key]
	if seen && now.Sub(record.at) < n.cooldown {
		n.mu.Unlock()
		return
	}
	n.sent[key] = sendRecord{at: now}
	n.mu.Unlock()

	if err := n.channel.Send(ctx, payload); err != nil {
		n.logger.Printf("notify: push %s for %s: %v", eventType, payload.ShuttleID, err)
	}
}

// coerce accepts both the typed event and its envelope-decoded form.
func coerce[T any](event any) (T, bool) {
	if typed, ok := event.(T); ok {
		return typed, true
	}
	if ptr, ok := event.(*T); ok && ptr != nil {
		return *ptr, true
	}
	if env, ok := event.(eventing.Envelope); ok {
		var typed T
		if err := json.Unmarshal(env.Payload, &typed); err == nil {
			return typed, true
		}
	}
	var zero T
	return zero, false
}
