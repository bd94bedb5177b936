package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the timestamp format used inside history lines.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrClosed is returned by stores after Close.
var ErrClosed = errors.New("history store closed")

// Record is one relayed message as persisted in history.
type Record struct {
	Time time.Time
	From string
	To   string
	Body string
}

// Identifiers are written with backslash, ':' and '>' escaped by a backslash so the
// " -> " and ": " separators stay unambiguous. Ordinary identifiers are
// written unchanged. Bodies are written verbatim.
var (
	identifierEscaper   = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `>`, `\>`)
	identifierUnescaper = strings.NewReplacer(`\\`, `\`, `\:`, `:`, `\>`, `>`)
)

// Line renders the durable display line:
//
//	[<timestamp>] <from> -> <to>: <body>
func (r Record) Line() string {
	return fmt.Sprintf("[%s] %s -> %s: %s", r.Time.Format(TimeLayout),
		identifierEscaper.Replace(r.From), identifierEscaper.Replace(r.To), r.Body)
}

// Between reports whether the record was exchanged between a and b in either direction.
func (r Record) Between(a, b string) bool {
	return (r.From == a && r.To == b) || (r.From == b && r.To == a)
}

// ParseLine recovers the record written by Line. Lines in any other shape
// report false.
func ParseLine(line string) (Record, bool) {
	if !strings.HasPrefix(line, "[") {
		return Record{}, false
	}
	end := strings.Index(line, "] ")
	if end < 0 {
		return Record{}, false
	}
	ts, err := time.Parse(TimeLayout, line[1:end])
	if err != nil {
		return Record{}, false
	}
	rest := line[end+2:]

	arrow := indexUnescaped(rest, '>')
	if arrow < 2 || rest[arrow-2:arrow] != " -" || arrow+1 >= len(rest) || rest[arrow+1] != ' ' {
		return Record{}, false
	}
	from, rest := rest[:arrow-2], rest[arrow+2:]

	colon := indexUnescaped(rest, ':')
	if colon < 0 || colon+1 >= len(rest) || rest[colon+1] != ' ' {
		return Record{}, false
	}
	to, body := rest[:colon], rest[colon+2:]

	if from == "" || to == "" {
		return Record{}, false
	}
	return Record{
		Time: ts,
		From: identifierUnescaper.Replace(from),
		To:   identifierUnescaper.Replace(to),
		Body: body,
	}, true
}

// indexUnescaped returns the index of the first c in s not preceded by an
// escaping backslash, or -1.
func indexUnescaped(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case c:
			return i
		}
	}
	return -1
}

// HistoryStore is the append-only log of relayed messages.
type HistoryStore interface {
	// Append persists a record as a single line.
	Append(ctx context.Context, rec Record) error

	// Query returns every record exchanged between a and b, oldest first.
	Query(ctx context.Context, a, b string) ([]Record, error)

	// Close flushes and releases the underlying log.
	Close() error
}
