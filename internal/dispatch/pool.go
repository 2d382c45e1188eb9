package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"shuttle-gateway/internal/commands/application/events"
	commands "shuttle-gateway/internal/commands/domain"
	"shuttle-gateway/internal/eventing"
	fleet "shuttle-gateway/internal/fleet/domain"
	"shuttle-gateway/internal/observability/metrics"
	"shuttle-gateway/internal/retry"
	"shuttle-gateway/internal/shuttlelink"
)

// Sender delivers one command line to a shuttle.
type Sender interface {
	Send(ctx context.Context, shuttleID string, verb commands.Verb, params string) error
}

// CommandStore is the slice of the command repository the workers need.
type CommandStore interface {
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// StateStore updates shuttle state as commands go out.
type StateStore interface {
	Update(ctx context.Context, shuttleID string, update fleet.StateUpdate) (*fleet.State, error)
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Pool drains the queue with a fixed set of workers. A per-shuttle mutex
// guarantees each shuttle receives one command at a time even when
// several workers hold work for it.
type Pool struct {
	queue    *Queue
	sender   Sender
	store    CommandStore
	states   StateStore
	pub      Publisher
	logger   *log.Logger
	workers  int
	sendOpts retry.Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	wg sync.WaitGroup
}

// NewPool constructs a worker pool over the queue.
func NewPool(queue *Queue, sender Sender, store CommandStore, states StateStore, pub Publisher, workers int, logger *log.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Pool{
		queue:   queue,
		sender:  sender,
		store:   store,
		states:  states,
		pub:     pub,
		logger:  logger,
		workers: workers,
		sendOpts: retry.Options{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Jitter:      0.2,
		},
		locks: make(map[string]*sync.Mutex),
	}
}

// Start launches the workers. They run until the context is canceled or
// the queue is closed.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, worker int) {
	for {
		item, err := p.queue.Pop()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		p.process(ctx, item.Command)
	}
}

func (p *Pool) process(ctx context.Context, cmd commands.Command) {
	lock := p.shuttleLock(cmd.ShuttleID)
	lock.Lock()
	defer lock.Unlock()

	err := retry.Do(ctx, func(ctx context.Context) error {
		return p.sender.Send(ctx, cmd.ShuttleID, cmd.Verb, cmd.Params)
	}, p.sendOpts)
	if err != nil {
		p.fail(ctx, cmd, err)
		return
	}

	now := time.Now().UTC()
	if err := p.store.MarkSent(ctx, cmd.ID, now); err != nil {
		p.logger.Printf("dispatch: mark sent %s: %v", cmd.ID, err)
	}
	if p.states != nil {
		_, err := p.states.Update(ctx, cmd.ShuttleID, fleet.StateUpdate{
			Status:         fleet.StatusPtr(fleet.StatusBusy),
			CurrentCommand: fleet.StringPtr(string(cmd.Verb)),
			ExternalID:     fleet.StringPtr(cmd.ExternalID),
		})
		if err != nil {
			p.logger.Printf("dispatch: update state %s: %v", cmd.ShuttleID, err)
		}
	}
	metrics.IncCommandSent(cmd.ShuttleID, string(cmd.Verb), "ok")
	if p.pub != nil {
		event := events.CommandSent{
			EventID:    eventing.NewEventID(),
			CommandID:  cmd.ID,
			ShuttleID:  cmd.ShuttleID,
			Verb:       string(cmd.Verb),
			OccurredAt: now,
		}
		if err := p.pub.Publish(ctx, event); err != nil {
			p.logger.Printf("dispatch: publish sent %s: %v", cmd.ID, err)
		}
	}
}

func (p *Pool) fail(ctx context.Context, cmd commands.Command, sendErr error) {
	code := "SEND_FAILED"
	var se *shuttlelink.SendError
	if errors.As(sendErr, &se) {
		code = se.Code
	}
	p.logger.Printf("dispatch: send %s to %s failed: %v", cmd.Verb, cmd.ShuttleID, sendErr)

	if err := p.store.MarkFailed(ctx, cmd.ID, code); err != nil {
		p.logger.Printf("dispatch: mark failed %s: %v", cmd.ID, err)
	}
	if p.states != nil {
		_, err := p.states.Update(ctx, cmd.ShuttleID, fleet.StateUpdate{
			Status:    fleet.StatusPtr(fleet.StatusError),
			ErrorCode: fleet.StringPtr(code),
		})
		if err != nil {
			p.logger.Printf("dispatch: update state %s: %v", cmd.ShuttleID, err)
		}
	}
	metrics.IncCommandSent(cmd.ShuttleID, string(cmd.Verb), "error")
	metrics.IncCommandResult(metrics.CommandResultFailed)
	if p.pub != nil {
		event := events.CommandFailed{
			EventID:    eventing.NewEventID(),
			CommandID:  cmd.ID,
			ExternalID: cmd.ExternalID,
			ShuttleID:  cmd.ShuttleID,
			Error:      code,
			OccurredAt: time.Now().UTC(),
		}
		if err := p.pub.Publish(ctx, event); err != nil {
			p.logger.Printf("dispatch: publish failed %s: %v", cmd.ID, err)
		}
	}
}

func (p *Pool) shuttleLock(shuttleID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[shuttleID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[shuttleID] = lock
	}
	return lock
}
