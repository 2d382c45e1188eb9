package events

import "time"

// CommandQueued is emitted when a WMS command enters the dispatch queue.
type CommandQueued struct {
	EventID    string    `json:"event_id"`
	CommandID  string    `json:"command_id"`
	ExternalID string    `json:"external_id"`
	Source     string    `json:"source"`
	Kind       string    `json:"kind"`
	ShuttleID  string    `json:"shuttle_id"`
	Warehouse  string    `json:"warehouse"`
	Priority   int       `json:"priority"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CommandSent is emitted when a command went out on the shuttle wire.
type CommandSent struct {
	EventID    string    `json:"event_id"`
	CommandID  string    `json:"command_id"`
	ShuttleID  string    `json:"shuttle_id"`
	Verb       string    `json:"verb"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CommandCompleted is emitted when the shuttle reported the work done.
type CommandCompleted struct {
	EventID    string    `json:"event_id"`
	CommandID  string    `json:"command_id"`
	ExternalID string    `json:"external_id"`
	Source     string    `json:"source"`
	ShuttleID  string    `json:"shuttle_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CommandFailed is emitted when sending or executing a command failed.
type CommandFailed struct {
	EventID    string    `json:"event_id"`
	CommandID  string    `json:"command_id"`
	ExternalID string    `json:"external_id"`
	ShuttleID  string    `json:"shuttle_id"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ShuttleMessageReceived is emitted for every parsed shuttle report.
type ShuttleMessageReceived struct {
	EventID    string    `json:"event_id"`
	ShuttleID  string    `json:"shuttle_id"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	ErrorCode  string    `json:"error_code,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
