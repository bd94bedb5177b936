package core

// CommandKind describes what the connection asked for.
type CommandKind int

const (
	// CommandRelay relays a message and records it in history.
	CommandRelay CommandKind = iota
	// CommandHistory replays history between the requester and a counterpart.
	CommandHistory
)

// Command represents one decoded request frame.
type Command struct {
	Kind    CommandKind
	Message Message

	// History requests only. Message.From is the requester and Message.To the counterpart.
	Correlation string
}
