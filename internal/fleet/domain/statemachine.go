package fleet

import (
	"context"
	"fmt"
	"log"
)

// Trigger is an event or command that may move a shuttle between states.
type Trigger string

const (
	TriggerPalletIn   Trigger = "PALLET_IN"
	TriggerPalletOut  Trigger = "PALLET_OUT"
	TriggerFIFO       Trigger = "FIFO"
	TriggerFILO       Trigger = "FILO"
	TriggerStackIn    Trigger = "STACK_IN"
	TriggerStackOut   Trigger = "STACK_OUT"
	TriggerHome       Trigger = "HOME"
	TriggerDone       Trigger = "DONE"
	TriggerError      Trigger = "ERROR"
	TriggerReset      Trigger = "RESET"
	TriggerBatteryLow Trigger = "BATTERY_LOW"
	TriggerCharging   Trigger = "CHARGING"
	TriggerCharged    Trigger = "CHARGED"
)

// TransitionHandler runs after a transition is accepted.
type TransitionHandler func(ctx context.Context, shuttleID string, transition string) error

// StateMachine validates shuttle status transitions against a fixed table.
type StateMachine struct {
	transitions map[OperationalStatus]map[Trigger]OperationalStatus
	handlers    map[string]TransitionHandler
	logger      *log.Logger
}

// NewStateMachine builds the machine with the gateway's transition table.
func NewStateMachine(logger *log.Logger) *StateMachine {
	if logger == nil {
		logger = log.Default()
	}
	return &StateMachine{
		logger:   logger,
		handlers: make(map[string]TransitionHandler),
		transitions: map[OperationalStatus]map[Trigger]OperationalStatus{
			StatusFree: {
				TriggerPalletIn:   StatusLoading,
				TriggerPalletOut:  StatusUnloading,
				TriggerFIFO:       StatusMoving,
				TriggerFILO:       StatusMoving,
				TriggerStackIn:    StatusLoading,
				TriggerStackOut:   StatusUnloading,
				TriggerHome:       StatusMoving,
				TriggerBatteryLow: StatusLowBattery,
				TriggerError:      StatusError,
			},
			StatusBusy: {
				TriggerDone:  StatusFree,
				TriggerError: StatusError,
				TriggerHome:  StatusMoving,
			},
			StatusLoading: {
				TriggerDone:  StatusFree,
				TriggerError: StatusError,
				TriggerHome:  StatusMoving,
			},
			StatusUnloading: {
				TriggerDone:  StatusFree,
				TriggerError: StatusError,
				TriggerHome:  StatusMoving,
			},
			StatusMoving: {
				TriggerDone:  StatusFree,
				TriggerError: StatusError,
			},
			StatusError: {
				TriggerReset: StatusFree,
			},
			StatusLowBattery: {
				TriggerCharging: StatusCharging,
				TriggerError:    StatusError,
			},
			StatusCharging: {
				TriggerCharged: StatusFree,
				TriggerError:   StatusError,
			},
		},
	}
}

// RegisterHandler attaches a handler to a "from:trigger:to" transition key.
func (m *StateMachine) RegisterHandler(transitionKey string, handler TransitionHandler) {
	if m == nil || transitionKey == "" || handler == nil {
		return
	}
	m.handlers[transitionKey] = handler
}

// TryTransition returns the new state for a trigger, or false when the
// transition is not allowed from the current state.
func (m *StateMachine) TryTransition(ctx context.Context, shuttleID string, current OperationalStatus, trigger Trigger) (OperationalStatus, bool) {
	if m == nil {
		return current, false
	}
	allowed, ok := m.transitions[current]
	if !ok {
		m.logger.Printf("state machine: unknown state %s for shuttle %s", current, shuttleID)
		return current, false
	}
	next, ok := allowed[trigger]
	if !ok {
		m.logger.Printf("state machine: rejected %s -> (%s) for shuttle %s", current, trigger, shuttleID)
		return current, false
	}

	key := fmt.Sprintf("%s:%s:%s", current, trigger, next)
	if handler, ok := m.handlers[key]; ok {
		if err := handler(ctx, shuttleID, key); err != nil {
			m.logger.Printf("state machine: handler %s for shuttle %s: %v", key, shuttleID, err)
		}
	}
	return next, true
}
