package proto

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Reader decodes frames from a line-oriented stream. It is not safe for
// concurrent use; each connection has exactly one reading goroutine.
type Reader struct {
	sc *bufio.Scanner
}

// NewReader wraps r. maxLineBytes <= 0 selects DefaultMaxLineBytes.
func NewReader(r io.Reader, maxLineBytes int) *Reader {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(4096, maxLineBytes)), maxLineBytes)
	return &Reader{sc: sc}
}

// ReadRequest reads the next client-to-server frame: a relay frame or a
// history request. io.EOF is returned only at a frame boundary.
func (r *Reader) ReadRequest() (*Frame, error) {
	tag, correlation, err := r.readHeader()
	if err != nil {
		return nil, err
	}

	switch tag {
	case TagRelay:
		return r.readRelay()
	case TagHistory:
		from, to, err := r.readPair()
		if err != nil {
			return nil, err
		}
		return HistoryRequest(correlation, from, to), nil
	default:
		return nil, fmt.Errorf("%w: unexpected tag %q", ErrProtocol, tag)
	}
}

// ReadResponse reads the next server-to-client frame: a relay frame (delivery
// or confirmation echo) or a complete history response.
func (r *Reader) ReadResponse() (*Frame, error) {
	tag, correlation, err := r.readHeader()
	if err != nil {
		return nil, err
	}

	switch tag {
	case TagRelay:
		return r.readRelay()
	case TagHistory:
		from, to, err := r.readPair()
		if err != nil {
			return nil, err
		}
		terminator := TagEnd + " " + correlation
		lines := []string{}
		for {
			line, err := r.required()
			if err != nil {
				return nil, err
			}
			if line == terminator {
				return HistoryResponse(correlation, from, to, lines), nil
			}
			if strings.HasPrefix(line, TagEnd+" ") {
				return nil, fmt.Errorf("%w: terminator %q does not match %q", ErrProtocol, line, correlation)
			}
			lines = append(lines, line)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected tag %q", ErrProtocol, tag)
	}
}

func (r *Reader) readHeader() (string, string, error) {
	line, err := r.line()
	if err != nil {
		return "", "", err
	}

	tag, correlation, _ := strings.Cut(line, " ")
	switch tag {
	case TagRelay:
		if correlation != "" {
			return "", "", fmt.Errorf("%w: relay header carries arguments", ErrProtocol)
		}
	case TagHistory:
		if correlation == "" {
			return "", "", fmt.Errorf("%w: history header without correlation id", ErrProtocol)
		}
	}
	return tag, correlation, nil
}

func (r *Reader) readRelay() (*Frame, error) {
	from, to, err := r.readPair()
	if err != nil {
		return nil, err
	}
	body, err := r.required()
	if err != nil {
		return nil, err
	}
	return Relay(from, to, body), nil
}

func (r *Reader) readPair() (string, string, error) {
	from, err := r.required()
	if err != nil {
		return "", "", err
	}
	to, err := r.required()
	if err != nil {
		return "", "", err
	}
	if from == "" || to == "" {
		return "", "", fmt.Errorf("%w: empty identifier", ErrProtocol)
	}
	return from, to, nil
}

// required reads a line that the current frame cannot do without.
func (r *Reader) required() (string, error) {
	line, err := r.line()
	if errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: %w", ErrProtocol, io.ErrUnexpectedEOF)
	}
	return line, err
}

func (r *Reader) line() (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	err := r.sc.Err()
	switch {
	case err == nil:
		return "", io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return "", fmt.Errorf("%w: %w", ErrProtocol, ErrLineTooLong)
	default:
		return "", err
	}
}
