package core

import "errors"

var (
	// ErrClientClosed is returned when delivering to a connection that is gone.
	ErrClientClosed = errors.New("client closed")
	// ErrInvalidMessage is returned for messages that cannot be relayed.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUnknownCommand is returned for command kinds the hub does not handle.
	ErrUnknownCommand = errors.New("unknown command")
)
