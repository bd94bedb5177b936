package core

import (
	"fmt"
	"strings"
)

// Message is one point-to-point text message. It is a value type and is never
// mutated after construction.
type Message struct {
	From string
	To   string
	Body string
}

// Validate checks identifiers are present and no field would break line framing.
func (m Message) Validate() error {
	if m.From == "" {
		return fmt.Errorf("%w: empty sender", ErrInvalidMessage)
	}
	if m.To == "" {
		return fmt.Errorf("%w: empty recipient", ErrInvalidMessage)
	}
	if strings.ContainsAny(m.From, "\r\n") || strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Body, "\r\n") {
		return fmt.Errorf("%w: line terminator in field", ErrInvalidMessage)
	}
	return nil
}
