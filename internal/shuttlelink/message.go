package shuttlelink

import (
	"strconv"
	"strings"
)

// MessageType classifies an inbound line from a shuttle.
type MessageType string

const (
	MessageStarted  MessageType = "started"
	MessageDone     MessageType = "done"
	MessageAbort    MessageType = "abort"
	MessageLocation MessageType = "location"
	MessageCount    MessageType = "count"
	MessageStatus   MessageType = "status"
	MessageBattery  MessageType = "battery"
	MessageWDH      MessageType = "wdh"
	MessageWLH      MessageType = "wlh"
	MessageFCode    MessageType = "f_code"
	MessageUnknown  MessageType = "unknown"
)

// Message is one parsed line of the shuttle protocol.
type Message struct {
	Type  MessageType
	Verb  string // command word for started/done/abort lines
	Value string // payload after '=' or '_' for report lines
	Raw   string
}

// IntValue parses the payload as an integer.
func (m Message) IntValue() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(m.Value))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseMessage decodes one newline-framed shuttle line. Lines look like
// "PALLET_IN_STARTED", "FIFO-012_DONE", "LOCATION=105", "F_CODE=31",
// "BATTERY=87" or "COUNT_FIFO-001=5". Unrecognized lines come back as
// MessageUnknown with Raw set.
func ParseMessage(line string) Message {
	raw := strings.TrimSpace(line)
	msg := Message{Type: MessageUnknown, Raw: raw}
	if raw == "" {
		return msg
	}

	if key, value, ok := strings.Cut(raw, "="); ok {
		msg.Value = strings.TrimSpace(value)
		key = strings.TrimSpace(key)
		// Pallet counts are framed per channel: "COUNT_<channel>=<n>".
		if channel, found := strings.CutPrefix(key, "COUNT_"); found {
			msg.Type = MessageCount
			msg.Verb = channel
			return msg
		}
		switch key {
		case "LOCATION":
			msg.Type = MessageLocation
		case "STATUS":
			msg.Type = MessageStatus
		case "BATTERY":
			msg.Type = MessageBattery
		case "WDH":
			msg.Type = MessageWDH
		case "WLH":
			msg.Type = MessageWLH
		case "F_CODE":
			msg.Type = MessageFCode
		}
		return msg
	}

	switch {
	case strings.HasSuffix(raw, "_STARTED"):
		msg.Type = MessageStarted
		msg.Verb = trimSuffixAndCount(raw, "_STARTED")
	case strings.HasSuffix(raw, "_DONE"):
		msg.Type = MessageDone
		msg.Verb = trimSuffixAndCount(raw, "_DONE")
	case strings.HasSuffix(raw, "_ABORT"):
		msg.Type = MessageAbort
		msg.Verb = trimSuffixAndCount(raw, "_ABORT")
	case strings.HasPrefix(raw, "COUNT_"):
		msg.Type = MessageCount
		msg.Value = strings.TrimPrefix(raw, "COUNT_")
	}
	return msg
}

// trimSuffixAndCount strips the lifecycle suffix and any "-NNN" count
// argument, so "FIFO-012_DONE" yields verb "FIFO".
func trimSuffixAndCount(raw, suffix string) string {
	verb := strings.TrimSuffix(raw, suffix)
	if i := strings.IndexByte(verb, '-'); i > 0 {
		verb = verb[:i]
	}
	return verb
}
