// Package proto implements the line-framed wire protocol spoken between relay
// clients and the relay server.
//
// Every frame starts with a tag line naming its kind, so identifiers carry no
// reserved markers:
//
//	RELAY\n<from>\n<to>\n<body>\n
//	HISTORY <correlation>\n<requester>\n<counterpart>\n                 (request)
//	HISTORY <correlation>\n<requester>\n<counterpart>\n<line>...\nEND <correlation>\n  (response)
package proto

import (
	"errors"
	"fmt"
	"strings"
)

const (
	TagRelay   = "RELAY"
	TagHistory = "HISTORY"
	TagEnd     = "END"

	// DefaultMaxLineBytes bounds a single line when no limit is configured.
	DefaultMaxLineBytes = 64 * 1024
)

var (
	// ErrProtocol marks malformed or truncated input.
	ErrProtocol = errors.New("protocol violation")
	// ErrLineTooLong is returned when a line exceeds the reader's limit.
	ErrLineTooLong = errors.New("line too long")
	// ErrInvalidField is returned when encoding a field that would break framing.
	ErrInvalidField = errors.New("invalid frame field")
)

// Kind identifies the frame shape.
type Kind int

const (
	// KindRelay carries one message, in either direction.
	KindRelay Kind = iota + 1
	// KindHistoryRequest asks the server to replay history with a counterpart.
	KindHistoryRequest
	// KindHistoryResponse carries the replayed history lines.
	KindHistoryResponse
)

func (k Kind) String() string {
	switch k {
	case KindRelay:
		return "relay"
	case KindHistoryRequest:
		return "history_request"
	case KindHistoryResponse:
		return "history_response"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is one decoded protocol unit. For relay frames From/To/Body are the
// message; for history frames From is the requester and To the counterpart.
type Frame struct {
	Kind        Kind
	Correlation string
	From        string
	To          string
	Body        string
	Lines       []string
}

// Relay builds a relay frame.
func Relay(from, to, body string) *Frame {
	return &Frame{Kind: KindRelay, From: from, To: to, Body: body}
}

// HistoryRequest builds a history request frame.
func HistoryRequest(correlation, requester, counterpart string) *Frame {
	return &Frame{Kind: KindHistoryRequest, Correlation: correlation, From: requester, To: counterpart}
}

// HistoryResponse builds a history response frame.
func HistoryResponse(correlation, requester, counterpart string, lines []string) *Frame {
	return &Frame{
		Kind:        KindHistoryResponse,
		Correlation: correlation,
		From:        requester,
		To:          counterpart,
		Lines:       lines,
	}
}

// Validate checks that the frame can be encoded without breaking line framing.
func (f *Frame) Validate() error {
	if f.From == "" || f.To == "" {
		return fmt.Errorf("%w: empty identifier", ErrInvalidField)
	}
	for _, field := range []string{f.From, f.To, f.Body} {
		if strings.ContainsAny(field, "\r\n") {
			return fmt.Errorf("%w: line terminator in field", ErrInvalidField)
		}
	}

	switch f.Kind {
	case KindRelay:
		return nil
	case KindHistoryRequest, KindHistoryResponse:
		if f.Correlation == "" || strings.ContainsAny(f.Correlation, " \r\n") {
			return fmt.Errorf("%w: bad correlation id %q", ErrInvalidField, f.Correlation)
		}
		for _, line := range f.Lines {
			if strings.ContainsAny(line, "\r\n") || strings.HasPrefix(line, TagEnd+" ") {
				return fmt.Errorf("%w: history line would break framing", ErrInvalidField)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrInvalidField, f.Kind)
	}
}
