package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"shuttle-gateway/internal/commands/application/events"
	commands "shuttle-gateway/internal/commands/domain"
	"shuttle-gateway/internal/dispatch"
	"shuttle-gateway/internal/eventing"
	fleet "shuttle-gateway/internal/fleet/domain"
	"shuttle-gateway/internal/observability/metrics"
	"shuttle-gateway/internal/shuttlelink"
)

// CommandRepository is the persistence surface the service needs.
type CommandRepository interface {
	Create(ctx context.Context, cmd *commands.Command) error
	FindByExternalID(ctx context.Context, externalID string) (*commands.Command, error)
	GetByID(ctx context.Context, id string) (*commands.Command, error)
	MarkAcked(ctx context.Context, id string, ackedAt time.Time) error
	MarkCompleted(ctx context.Context, id string, doneAt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// StateRepository reads and writes shuttle condition.
type StateRepository interface {
	Get(ctx context.Context, shuttleID string) (*fleet.State, error)
	Update(ctx context.Context, shuttleID string, update fleet.StateUpdate) (*fleet.State, error)
	List(ctx context.Context) ([]fleet.State, error)
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Service turns classified WMS commands into queued shuttle work and folds
// shuttle messages back into command and fleet state.
type Service struct {
	repo    CommandRepository
	states  StateRepository
	fleet   fleet.Config
	queue   *dispatch.Queue
	machine *fleet.StateMachine
	pub     Publisher
	logger  *log.Logger
}

// NewService wires the ingest pipeline.
func NewService(repo CommandRepository, states StateRepository, cfg fleet.Config, queue *dispatch.Queue, machine *fleet.StateMachine, pub Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:    repo,
		states:  states,
		fleet:   cfg,
		queue:   queue,
		machine: machine,
		pub:     pub,
		logger:  logger,
	}
}

// IngestResult summarizes one poll cycle's intake.
type IngestResult struct {
	Queued     int
	Duplicates int
	Skipped    int
	Failed     int
}

// Ingest takes the merged poll output and queues what is new. Commands the
// gateway has already seen are counted as duplicates and dropped; records
// whose warehouse has no mapped shuttle are counted as failed.
func (s *Service) Ingest(ctx context.Context, batch []commands.Command) (IngestResult, error) {
	var result IngestResult
	for _, incoming := range batch {
		queued, err := s.ingestOne(ctx, incoming)
		switch {
		case err == nil && queued:
			result.Queued++
		case err == nil:
			result.Duplicates++
		case errors.Is(err, errNoShuttle):
			result.Failed++
		default:
			s.logger.Printf("commands: ingest %s: %v", incoming.ExternalID, err)
			result.Skipped++
		}
	}
	return result, nil
}

var errNoShuttle = errors.New("no available shuttle")

func (s *Service) ingestOne(ctx context.Context, cmd commands.Command) (bool, error) {
	if cmd.ExternalID == "" {
		return false, errors.New("empty external id")
	}
	existing, err := s.repo.FindByExternalID(ctx, cmd.ExternalID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	shuttleID, err := s.pickShuttle(ctx, cmd.Warehouse)
	if err != nil {
		return false, err
	}

	cmd.ID = uuid.NewString()
	cmd.ShuttleID = shuttleID
	cmd.Status = commands.StatusQueued
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.Create(ctx, &cmd); err != nil {
		return false, err
	}

	priority := commands.PriorityDefault
	if cmd.Verb == commands.VerbHome {
		priority = commands.PriorityHome
	}
	if err := s.queue.Push(cmd, priority); err != nil {
		if markErr := s.repo.MarkFailed(ctx, cmd.ID, "QUEUE_FULL"); markErr != nil {
			s.logger.Printf("commands: mark failed %s: %v", cmd.ID, markErr)
		}
		return false, err
	}
	metrics.IncWMSCommand(string(cmd.Source), "queued")

	if s.pub != nil {
		event := events.CommandQueued{
			EventID:    eventing.NewEventID(),
			CommandID:  cmd.ID,
			ExternalID: cmd.ExternalID,
			Source:     string(cmd.Source),
			Kind:       string(cmd.Kind),
			ShuttleID:  cmd.ShuttleID,
			Warehouse:  cmd.Warehouse,
			Priority:   priority,
			OccurredAt: cmd.CreatedAt,
		}
		if err := s.pub.Publish(ctx, event); err != nil {
			s.logger.Printf("commands: publish queued %s: %v", cmd.ID, err)
		}
	}
	return true, nil
}

// pickShuttle chooses a free shuttle mapped to the warehouse. When all
// mapped shuttles are busy the first one is used anyway; the queue and the
// per-shuttle lock serialize the work.
func (s *Service) pickShuttle(ctx context.Context, warehouse string) (string, error) {
	ids := s.fleet.ShuttlesForStock(warehouse)
	if len(ids) == 0 {
		return "", fmt.Errorf("%w for warehouse %s", errNoShuttle, warehouse)
	}
	for _, id := range ids {
		state, err := s.states.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if state == nil || state.Available() {
			return id, nil
		}
	}
	return ids[0], nil
}

// Place queues an operator-initiated command for a specific shuttle,
// bypassing warehouse assignment. Used by the HTTP API.
func (s *Service) Place(ctx context.Context, shuttleID string, verb commands.Verb, params string) (*commands.Command, error) {
	if _, ok := s.fleet.Shuttles[shuttleID]; !ok {
		return nil, fmt.Errorf("commands: unknown shuttle %s", shuttleID)
	}
	cmd := commands.Command{
		ID:         uuid.NewString(),
		ExternalID: "manual-" + uuid.NewString(),
		Source:     commands.SourceTransfer,
		Kind:       commands.KindUnknown,
		Verb:       verb,
		ShuttleID:  shuttleID,
		Status:     commands.StatusQueued,
		Params:     params,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, &cmd); err != nil {
		return nil, err
	}
	priority := commands.PriorityDefault
	if verb == commands.VerbHome {
		priority = commands.PriorityHome
	}
	if err := s.queue.Push(cmd, priority); err != nil {
		if markErr := s.repo.MarkFailed(ctx, cmd.ID, "QUEUE_FULL"); markErr != nil {
			s.logger.Printf("commands: mark failed %s: %v", cmd.ID, markErr)
		}
		return nil, err
	}
	return &cmd, nil
}

// HandleMessage folds one shuttle protocol line into state. It is the
// listener's handler.
func (s *Service) HandleMessage(ctx context.Context, shuttleID string, msg shuttlelink.Message) {
	ctx = eventing.WithShuttleID(ctx, shuttleID)
	switch msg.Type {
	case shuttlelink.MessageStarted:
		s.onStarted(ctx, shuttleID, msg)
	case shuttlelink.MessageDone:
		s.onDone(ctx, shuttleID, msg)
	case shuttlelink.MessageAbort:
		s.onAbort(ctx, shuttleID, msg)
	case shuttlelink.MessageFCode:
		s.onFault(ctx, shuttleID, msg)
	case shuttlelink.MessageLocation:
		s.updateState(ctx, shuttleID, fleet.StateUpdate{Location: fleet.StringPtr(msg.Value)})
	case shuttlelink.MessageBattery:
		if level, ok := msg.IntValue(); ok {
			metrics.SetBatteryLevel(shuttleID, float64(level))
		}
		s.updateState(ctx, shuttleID, fleet.StateUpdate{BatteryLevel: fleet.StringPtr(msg.Value)})
	case shuttlelink.MessageCount:
		s.updateState(ctx, shuttleID, fleet.StateUpdate{PalletCount: fleet.StringPtr(msg.Value)})
	case shuttlelink.MessageStatus:
		s.updateState(ctx, shuttleID, fleet.StateUpdate{LastMessage: fleet.StringPtr(msg.Raw)})
	case shuttlelink.MessageWDH:
		if hours, ok := msg.IntValue(); ok {
			s.updateState(ctx, shuttleID, fleet.StateUpdate{WDHHours: fleet.IntPtr(hours)})
		}
	case shuttlelink.MessageWLH:
		if hours, ok := msg.IntValue(); ok {
			s.updateState(ctx, shuttleID, fleet.StateUpdate{WLHHours: fleet.IntPtr(hours)})
		}
	default:
		s.logger.Printf("commands: shuttle %s unknown message %q", shuttleID, msg.Raw)
		s.updateState(ctx, shuttleID, fleet.StateUpdate{LastMessage: fleet.StringPtr(msg.Raw)})
	}

	if s.pub != nil {
		event := events.ShuttleMessageReceived{
			EventID:    eventing.NewEventID(),
			ShuttleID:  shuttleID,
			Message:    msg.Raw,
			Status:     string(msg.Type),
			OccurredAt: time.Now().UTC(),
		}
		if msg.Type == shuttlelink.MessageFCode {
			event.ErrorCode = msg.Value
		}
		if err := s.pub.Publish(ctx, event); err != nil {
			s.logger.Printf("commands: publish message %s: %v", shuttleID, err)
		}
	}
}

func (s *Service) onStarted(ctx context.Context, shuttleID string, msg shuttlelink.Message) {
	cmd := s.activeCommand(ctx, shuttleID)
	if cmd != nil {
		if err := s.repo.MarkAcked(ctx, cmd.ID, time.Now().UTC()); err != nil {
			s.logger.Printf("commands: mark acked %s: %v", cmd.ID, err)
		}
		// Trigger names mirror the wire verbs.
		s.transition(ctx, shuttleID, fleet.Trigger(cmd.Verb))
	}
	s.updateState(ctx, shuttleID, fleet.StateUpdate{LastMessage: fleet.StringPtr(msg.Raw)})
}

func (s *Service) onDone(ctx context.Context, shuttleID string, msg shuttlelink.Message) {
	cmd := s.activeCommand(ctx, shuttleID)
	if cmd != nil {
		if err := s.repo.MarkCompleted(ctx, cmd.ID, time.Now().UTC()); err != nil {
			s.logger.Printf("commands: mark completed %s: %v", cmd.ID, err)
		}
		metrics.IncCommandResult(metrics.CommandResultAcked)
		if s.pub != nil {
			event := events.CommandCompleted{
				EventID:    eventing.NewEventID(),
				CommandID:  cmd.ID,
				ExternalID: cmd.ExternalID,
				Source:     string(cmd.Source),
				ShuttleID:  shuttleID,
				OccurredAt: time.Now().UTC(),
			}
			if err := s.pub.Publish(ctx, event); err != nil {
				s.logger.Printf("commands: publish completed %s: %v", cmd.ID, err)
			}
		}
	}
	s.transition(ctx, shuttleID, fleet.TriggerDone)
	s.updateState(ctx, shuttleID, fleet.StateUpdate{
		Status:         fleet.StatusPtr(fleet.StatusFree),
		CurrentCommand: fleet.StringPtr(""),
		ExternalID:     fleet.StringPtr(""),
		LastMessage:    fleet.StringPtr(msg.Raw),
	})
}

func (s *Service) onAbort(ctx context.Context, shuttleID string, msg shuttlelink.Message) {
	cmd := s.activeCommand(ctx, shuttleID)
	if cmd != nil {
		if err := s.repo.MarkFailed(ctx, cmd.ID, "ABORTED"); err != nil {
			s.logger.Printf("commands: mark failed %s: %v", cmd.ID, err)
		}
		metrics.IncCommandResult(metrics.CommandResultFailed)
	}
	s.transition(ctx, shuttleID, fleet.TriggerError)
	s.updateState(ctx, shuttleID, fleet.StateUpdate{
		Status:      fleet.StatusPtr(fleet.StatusError),
		LastMessage: fleet.StringPtr(msg.Raw),
	})
}

func (s *Service) onFault(ctx context.Context, shuttleID string, msg shuttlelink.Message) {
	metrics.IncShuttleError(shuttleID, msg.Value)
	s.transition(ctx, shuttleID, fleet.TriggerError)
	s.updateState(ctx, shuttleID, fleet.StateUpdate{
		Status:      fleet.StatusPtr(fleet.StatusError),
		ErrorCode:   fleet.StringPtr(msg.Value),
		LastMessage: fleet.StringPtr(msg.Raw),
	})
}

// activeCommand resolves the command a shuttle is presently working on via
// the external id stamped on the state when the command was sent.
func (s *Service) activeCommand(ctx context.Context, shuttleID string) *commands.Command {
	state, err := s.states.Get(ctx, shuttleID)
	if err != nil || state == nil || state.ExternalID == "" {
		return nil
	}
	cmd, err := s.repo.FindByExternalID(ctx, state.ExternalID)
	if err != nil {
		s.logger.Printf("commands: lookup active for %s: %v", shuttleID, err)
		return nil
	}
	return cmd
}

func (s *Service) transition(ctx context.Context, shuttleID string, trigger fleet.Trigger) {
	if s.machine == nil {
		return
	}
	state, err := s.states.Get(ctx, shuttleID)
	if err != nil || state == nil {
		return
	}
	if next, ok := s.machine.TryTransition(ctx, shuttleID, state.Status, trigger); ok {
		s.updateState(ctx, shuttleID, fleet.StateUpdate{Status: fleet.StatusPtr(next)})
	}
}

func (s *Service) updateState(ctx context.Context, shuttleID string, update fleet.StateUpdate) {
	if s.states == nil {
		return
	}
	if _, err := s.states.Update(ctx, shuttleID, update); err != nil {
		s.logger.Printf("commands: update state %s: %v", shuttleID, err)
	}
}

// ShuttleStates lists the fleet for the HTTP status endpoint.
func (s *Service) ShuttleStates(ctx context.Context) ([]fleet.State, error) {
	return s.states.List(ctx)
}
