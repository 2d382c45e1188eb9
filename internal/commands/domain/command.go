package commands

import "time"

// Source identifies which WMS document a command came from.
type Source string

const (
	SourceShipment Source = "shipment"
	SourceTransfer Source = "transfer"
)

// Kind is the physical action a shuttle command requests.
type Kind string

const (
	KindPickup   Kind = "pickup"
	KindDelivery Kind = "delivery"
	KindUnknown  Kind = "unknown"
)

// KindFromWMS maps the WMS shuttleCommand string to a Kind by exact match.
// Anything else maps to KindUnknown; callers decide whether to skip or flag.
func KindFromWMS(value string) Kind {
	switch value {
	case string(KindPickup):
		return KindPickup
	case string(KindDelivery):
		return KindDelivery
	default:
		return KindUnknown
	}
}

// Verb is a command word on the shuttle wire protocol.
type Verb string

const (
	VerbPalletIn  Verb = "PALLET_IN"
	VerbPalletOut Verb = "PALLET_OUT"
	VerbFIFO      Verb = "FIFO"
	VerbFILO      Verb = "FILO"
	VerbStackIn   Verb = "STACK_IN"
	VerbStackOut  Verb = "STACK_OUT"
	VerbHome      Verb = "HOME"
	VerbCount     Verb = "COUNT"
	VerbStatus    Verb = "STATUS"
	VerbBattery   Verb = "BATTERY"
	VerbWDH       Verb = "WDH"
	VerbWLH       Verb = "WLH"
	VerbMRCD      Verb = "MRCD"
)

// WireVerb returns the shuttle protocol verb for a classified kind.
// A delivery stores a pallet into the channel, a pickup retrieves one.
func (k Kind) WireVerb() (Verb, bool) {
	switch k {
	case KindDelivery:
		return VerbPalletIn, true
	case KindPickup:
		return VerbPalletOut, true
	default:
		return "", false
	}
}

const (
	StatusCreated   = "created"
	StatusQueued    = "queued"
	StatusSent      = "sent"
	StatusAcked     = "acked"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// Queue priorities: lower is served first. HOME preempts regular work.
const (
	PriorityHome    = 5
	PriorityDefault = 10
)

// Command is a shuttle command normalized from a WMS document line.
type Command struct {
	ID         string
	ExternalID string
	Source     Source
	Kind       Kind
	Verb       Verb
	Warehouse  string
	Cell       string
	Params     string
	ShuttleID  string
	Status     string
	CreatedAt  time.Time
	SentAt     time.Time
	AckedAt    time.Time
	DoneAt     time.Time
	WMSUpdated bool
	Error      string
}
