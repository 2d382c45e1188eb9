package fleet

import "time"

// OperationalStatus is the coarse state a shuttle reports or is inferred to be in.
type OperationalStatus string

const (
	StatusFree         OperationalStatus = "FREE"
	StatusBusy         OperationalStatus = "BUSY"
	StatusLoading      OperationalStatus = "LOADING"
	StatusUnloading    OperationalStatus = "UNLOADING"
	StatusMoving       OperationalStatus = "MOVING"
	StatusError        OperationalStatus = "ERROR"
	StatusLowBattery   OperationalStatus = "LOW_BATTERY"
	StatusCharging     OperationalStatus = "CHARGING"
	StatusNotReady     OperationalStatus = "NOT_READY"
	StatusAwaitingMRCD OperationalStatus = "AWAITING_MRCD"
	StatusUnknown      OperationalStatus = "UNKNOWN"
)

// State is the last known condition of a shuttle.
type State struct {
	ShuttleID      string
	Status         OperationalStatus
	CurrentCommand string
	LastMessage    string
	BatteryLevel   string
	Location       string
	PalletCount    string
	WDHHours       int
	WLHHours       int
	ErrorCode      string
	LastSeen       time.Time
	ExternalID     string
}

// NewState returns the initial state for a configured shuttle.
func NewState(shuttleID string) State {
	return State{
		ShuttleID: shuttleID,
		Status:    StatusUnknown,
		LastSeen:  time.Now().UTC(),
	}
}

// Available reports whether the shuttle can accept a regular command.
func (s State) Available() bool {
	return s.Status == StatusFree || s.Status == StatusUnknown
}

// StateUpdate carries partial changes to a shuttle state. Nil fields are
// left untouched; LastSeen is always refreshed by the repository.
type StateUpdate struct {
	Status         *OperationalStatus
	CurrentCommand *string
	LastMessage    *string
	BatteryLevel   *string
	Location       *string
	PalletCount    *string
	WDHHours       *int
	WLHHours       *int
	ErrorCode      *string
	ExternalID     *string
}

// Apply merges the update into a state copy.
func (u StateUpdate) Apply(state State) State {
	if u.Status != nil {
		state.Status = *u.Status
	}
	if u.CurrentCommand != nil {
		state.CurrentCommand = *u.CurrentCommand
	}
	if u.LastMessage != nil {
		state.LastMessage = *u.LastMessage
	}
	if u.BatteryLevel != nil {
		state.BatteryLevel = *u.BatteryLevel
	}
	if u.Location != nil {
		state.Location = *u.Location
	}
	if u.PalletCount != nil {
		state.PalletCount = *u.PalletCount
	}
	if u.WDHHours != nil {
		state.WDHHours = *u.WDHHours
	}
	if u.WLHHours != nil {
		state.WLHHours = *u.WLHHours
	}
	if u.ErrorCode != nil {
		state.ErrorCode = *u.ErrorCode
	}
	if u.ExternalID != nil {
		state.ExternalID = *u.ExternalID
	}
	state.LastSeen = time.Now().UTC()
	return state
}

// StatusPtr is a convenience for building updates.
func StatusPtr(status OperationalStatus) *OperationalStatus {
	return &status
}

// StringPtr is a convenience for building updates.
func StringPtr(value string) *string {
	return &value
}

// IntPtr is a convenience for building updates.
func IntPtr(value int) *int {
	return &value
}
