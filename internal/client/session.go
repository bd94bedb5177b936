package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/utils"
)

var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrInvalidIdentifier is returned for empty identifiers or ones containing line breaks.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Message is a relayed message as seen by the client.
type Message struct {
	From string
	To   string
	Body string
}

// Session is one client connection to the relay server.
type Session struct {
	id   string
	conn net.Conn
	opts options
	log  *zerolog.Logger

	// writeMu serializes writers; the reader goroutine never takes it.
	writeMu sync.Mutex
	writer  *proto.Writer

	pending *pendingSet
	inbox   *inbox

	mu          sync.Mutex
	waiters     map[string]chan []string
	onReceived  func(Message)
	onConfirmed func(Message)
	err         error

	done       chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once
}

// Dial connects to the relay server at addr as id.
func Dial(ctx context.Context, addr, id string, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: o.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, id, opts...)
}

// New runs a session over an established connection and starts its reader.
func New(conn net.Conn, id string, opts ...Option) (*Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.log.With().Str("client_id", id).Logger()

	s := &Session{
		id:         id,
		conn:       conn,
		opts:       o,
		log:        &logger,
		writer:     proto.NewWriter(conn),
		pending:    newPendingSet(),
		inbox:      newInbox(),
		waiters:    make(map[string]chan []string),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// ID returns the identifier this session sends as.
func (s *Session) ID() string {
	return s.id
}

// Send relays body to recipient. The body is marked pending before the frame
// is written, so the confirmation echo can never race ahead of it.
func (s *Session) Send(ctx context.Context, recipient, body string) error {
	if err := validateID(recipient); err != nil {
		return err
	}
	if strings.ContainsAny(body, "\r\n") {
		return fmt.Errorf("%w: body contains a line break", proto.ErrInvalidField)
	}

	s.pending.add(body)
	if err := s.write(ctx, proto.Relay(s.id, recipient, body)); err != nil {
		s.pending.remove(body)
		return fmt.Errorf("send to %s: %w", recipient, err)
	}
	return nil
}

// RequestHistory asks the server for every record exchanged with counterpart
// and blocks until the matching response arrives. Without a deadline on ctx
// the configured history timeout applies.
func (s *Session) RequestHistory(ctx context.Context, counterpart string) ([]string, error) {
	if err := validateID(counterpart); err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && s.opts.historyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.historyTimeout)
		defer cancel()
	}

	correlation := utils.NewID()
	result := make(chan []string, 1)

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, s.closedErr(err)
	}
	s.waiters[correlation] = result
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.waiters, correlation)
		s.mu.Unlock()
	}()

	if err := s.write(ctx, proto.HistoryRequest(correlation, s.id, counterpart)); err != nil {
		return nil, fmt.Errorf("request history with %s: %w", counterpart, err)
	}

	select {
	case lines := <-result:
		return lines, nil
	case <-s.done:
		return nil, s.closedErr(s.Err())
	case <-ctx.Done():
		return nil, fmt.Errorf("history with %s: %w", counterpart, ctx.Err())
	}
}

// Confirmed reports whether no copy of body is still awaiting its echo.
func (s *Session) Confirmed(body string) bool {
	return !s.pending.contains(body)
}

// WaitConfirmed blocks until body is confirmed, ctx is done, or the session closes.
func (s *Session) WaitConfirmed(ctx context.Context, body string) error {
	return s.pending.wait(ctx, body, s.done)
}

// Pending returns the number of sent messages not yet confirmed.
func (s *Session) Pending() int {
	return s.pending.len()
}

// Poll removes and returns the oldest received message.
func (s *Session) Poll() (Message, bool) {
	return s.inbox.poll()
}

// Peek returns the oldest received message without removing it.
func (s *Session) Peek() (Message, bool) {
	return s.inbox.peek()
}

// InboxLen returns the number of queued received messages.
func (s *Session) InboxLen() int {
	return s.inbox.len()
}

// Next blocks until a received message is available. Once the session is
// closed and the inbox drained it returns ErrClosed.
func (s *Session) Next(ctx context.Context) (Message, error) {
	m, ok, err := s.inbox.next(ctx, s.done)
	if err != nil {
		return Message{}, err
	}
	if !ok {
		return Message{}, s.closedErr(s.Err())
	}
	return m, nil
}

// OnReceived registers fn to be called from the reader for every received message.
func (s *Session) OnReceived(fn func(Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReceived = fn
}

// OnConfirmed registers fn to be called from the reader once per confirmed
// message this session sent.
func (s *Session) OnConfirmed(fn func(Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConfirmed = fn
}

// Done is closed when the session stops reading.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session stopped: ErrClosed after Close, the read error
// (io.EOF when the server hung up) otherwise, or nil while running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the connection and waits for the reader to exit.
func (s *Session) Close() error {
	s.stop(ErrClosed)
	<-s.readerDone
	return nil
}

func (s *Session) write(ctx context.Context, frame *proto.Frame) error {
	select {
	case <-s.done:
		return s.closedErr(s.Err())
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{}) //nolint:errcheck // best effort reset
	}
	return s.writer.WriteFrame(frame)
}

func (s *Session) readLoop() {
	defer close(s.readerDone)

	reader := proto.NewReader(s.conn, s.opts.maxLineBytes)
	for {
		frame, err := reader.ReadResponse()
		if err != nil {
			s.stop(err)
			return
		}

		switch frame.Kind {
		case proto.KindRelay:
			s.handleRelay(Message{From: frame.From, To: frame.To, Body: frame.Body})
		case proto.KindHistoryResponse:
			s.resolve(frame.Correlation, frame.Lines)
		}
	}
}

func (s *Session) handleRelay(m Message) {
	if m.From != s.id {
		s.receive(m)
		return
	}

	if s.pending.remove(m.Body) {
		s.mu.Lock()
		fn := s.onConfirmed
		s.mu.Unlock()
		if fn != nil {
			fn(m)
		}
	} else {
		s.log.Debug().Str("to", m.To).Msg("echo for a message that was not pending")
	}

	// The server sends a self-addressed message to this connection once, as the echo.
	if m.To == s.id {
		s.receive(m)
	}
}

func (s *Session) receive(m Message) {
	s.inbox.push(m)

	s.mu.Lock()
	fn := s.onReceived
	s.mu.Unlock()
	if fn != nil {
		fn(m)
	}
}

func (s *Session) resolve(correlation string, lines []string) {
	s.mu.Lock()
	ch, ok := s.waiters[correlation]
	delete(s.waiters, correlation)
	s.mu.Unlock()

	if !ok {
		s.log.Debug().Str("correlation_id", correlation).Msg("history response without a waiter")
		return
	}
	ch <- lines
}

func (s *Session) stop(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = cause
		s.mu.Unlock()

		close(s.done)
		_ = s.conn.Close()

		if cause != nil && !errors.Is(cause, ErrClosed) {
			s.log.Debug().Err(cause).Msg("session reader stopped")
		}
	})
}

func (s *Session) closedErr(cause error) error {
	if cause == nil || errors.Is(cause, ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrClosed, cause)
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}
