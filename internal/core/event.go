package core

import "github.com/vovakirdan/wirerelay/internal/store"

// EventKind is a notification the core emits to a connection.
type EventKind int

const (
	// EventDelivery carries a message addressed to this connection's identifier.
	EventDelivery EventKind = iota
	// EventConfirmation echoes a message back to the connection that sent it.
	EventConfirmation
	// EventHistory answers a history request.
	EventHistory
)

func (k EventKind) String() string {
	switch k {
	case EventDelivery:
		return "delivery"
	case EventConfirmation:
		return "confirmation"
	case EventHistory:
		return "history"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Message Message
	History *History // non-nil for EventHistory
}

// History is the result of a history request.
type History struct {
	Correlation string
	Requester   string
	Counterpart string
	Records     []store.Record
}
