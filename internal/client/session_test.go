package client

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

// fakeServer is the far end of a net.Pipe speaking the server side of the protocol.
type fakeServer struct {
	t        *testing.T
	conn     net.Conn
	w        *proto.Writer
	requests chan *proto.Frame
}

func newPipeSession(t *testing.T, id string, opts ...Option) (*Session, *fakeServer) {
	t.Helper()

	clientConn, serverConn := net.Pipe()
	srv := &fakeServer{
		t:        t,
		conn:     serverConn,
		w:        proto.NewWriter(serverConn),
		requests: make(chan *proto.Frame, 16),
	}
	go func() {
		defer close(srv.requests)
		r := proto.NewReader(serverConn, 0)
		for {
			f, err := r.ReadRequest()
			if err != nil {
				return
			}
			srv.requests <- f
		}
	}()

	sess, err := New(clientConn, id, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sess.Close()
		_ = serverConn.Close()
	})
	return sess, srv
}

func (f *fakeServer) next() *proto.Frame {
	f.t.Helper()

	select {
	case frame, ok := <-f.requests:
		require.True(f.t, ok, "client connection closed")
		return frame
	case <-time.After(2 * time.Second):
		f.t.Fatalf("no request from client")
		return nil
	}
}

func (f *fakeServer) send(frame *proto.Frame) {
	f.t.Helper()
	require.NoError(f.t, f.w.WriteFrame(frame))
}

func TestSendConfirmedByEcho(t *testing.T) {
	sess, srv := newPipeSession(t, "A")
	ctx := context.Background()

	var mu sync.Mutex
	var echoes []Message
	sess.OnConfirmed(func(m Message) {
		mu.Lock()
		echoes = append(echoes, m)
		mu.Unlock()
	})

	require.NoError(t, sess.Send(ctx, "B", "hello"))
	require.False(t, sess.Confirmed("hello"))
	require.Equal(t, 1, sess.Pending())

	req := srv.next()
	require.Equal(t, proto.KindRelay, req.Kind)
	require.Equal(t, "A", req.From)
	require.Equal(t, "B", req.To)
	require.Equal(t, "hello", req.Body)

	srv.send(proto.Relay("A", "B", "hello"))

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, sess.WaitConfirmed(waitCtx, "hello"))
	require.True(t, sess.Confirmed("hello"))
	require.Zero(t, sess.Pending())
	require.Zero(t, sess.InboxLen(), "echo must not land in the inbox")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(echoes) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Message{{From: "A", To: "B", Body: "hello"}}, echoes)
}

func TestPendingIsAMultiset(t *testing.T) {
	sess, srv := newPipeSession(t, "A")
	ctx := context.Background()

	require.NoError(t, sess.Send(ctx, "B", "same"))
	require.NoError(t, sess.Send(ctx, "C", "same"))
	srv.next()
	srv.next()

	srv.send(proto.Relay("A", "B", "same"))
	require.Eventually(t, func() bool { return sess.Pending() == 1 }, time.Second, 5*time.Millisecond)
	require.False(t, sess.Confirmed("same"))

	srv.send(proto.Relay("A", "C", "same"))
	require.Eventually(t, func() bool { return sess.Confirmed("same") }, time.Second, 5*time.Millisecond)
}

func TestDeliveriesQueueInOrder(t *testing.T) {
	sess, srv := newPipeSession(t, "B")

	received := make(chan Message, 4)
	sess.OnReceived(func(m Message) { received <- m })

	srv.send(proto.Relay("A", "B", "first"))
	srv.send(proto.Relay("C", "B", "second"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m, err := sess.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, Message{From: "A", To: "B", Body: "first"}, m)

	require.Eventually(t, func() bool { return sess.InboxLen() == 1 }, time.Second, 5*time.Millisecond)
	peeked, ok := sess.Peek()
	require.True(t, ok)
	require.Equal(t, "second", peeked.Body)

	polled, ok := sess.Poll()
	require.True(t, ok)
	require.Equal(t, peeked, polled)

	_, ok = sess.Poll()
	require.False(t, ok)
	require.Eventually(t, func() bool { return len(received) == 2 }, time.Second, 5*time.Millisecond)
}

func TestHistoryInterleavedWithTraffic(t *testing.T) {
	sess, srv := newPipeSession(t, "A")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sess.Send(ctx, "B", "ping"))
	srv.next()

	type result struct {
		lines []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		lines, err := sess.RequestHistory(ctx, "B")
		done <- result{lines, err}
	}()

	req := srv.next()
	require.Equal(t, proto.KindHistoryRequest, req.Kind)
	require.Equal(t, "A", req.From)
	require.Equal(t, "B", req.To)
	require.NotEmpty(t, req.Correlation)

	// A stale response for another request is ignored.
	srv.send(proto.HistoryResponse("someone-else", "A", "B", []string{"[t0] A -> B: stale"}))
	srv.send(proto.Relay("B", "A", "live message"))
	srv.send(proto.HistoryResponse(req.Correlation, "A", "B", []string{"[t1] A -> B: ping"}))
	srv.send(proto.Relay("A", "B", "ping"))

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, []string{"[t1] A -> B: ping"}, res.lines)

	require.NoError(t, sess.WaitConfirmed(ctx, "ping"))
	m, err := sess.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "live message", m.Body)
}

func TestEmptyHistory(t *testing.T) {
	sess, srv := newPipeSession(t, "A")

	go func() {
		req := <-srv.requests
		if req != nil {
			_ = srv.w.WriteFrame(proto.HistoryResponse(req.Correlation, "A", "Z", []string{}))
		}
	}()

	lines, err := sess.RequestHistory(context.Background(), "Z")
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestHistoryTimesOut(t *testing.T) {
	sess, srv := newPipeSession(t, "A", WithHistoryTimeout(50*time.Millisecond))

	_, err := sess.RequestHistory(context.Background(), "B")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	srv.next()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	require.Empty(t, sess.waiters, "waiter must be dropped after timeout")
}

func TestServerHangupUnblocksWaiters(t *testing.T) {
	sess, srv := newPipeSession(t, "A", WithHistoryTimeout(0))
	srv.send(proto.Relay("B", "A", "before hangup"))

	errCh := make(chan error, 1)
	go func() {
		_, err := sess.RequestHistory(context.Background(), "B")
		errCh <- err
	}()
	srv.next()
	require.NoError(t, srv.conn.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("RequestHistory did not return after hangup")
	}

	<-sess.Done()
	require.ErrorIs(t, sess.Err(), io.EOF)

	// Messages received before the hangup are still readable.
	m, err := sess.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "before hangup", m.Body)

	_, err = sess.Next(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	require.ErrorIs(t, sess.Send(context.Background(), "B", "too late"), ErrClosed)
	require.True(t, sess.Confirmed("too late"), "failed sends are rolled back")
}

func TestSelfAddressedMessage(t *testing.T) {
	sess, srv := newPipeSession(t, "A")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sess.Send(ctx, "A", "memo"))
	srv.next()
	srv.send(proto.Relay("A", "A", "memo"))

	require.NoError(t, sess.WaitConfirmed(ctx, "memo"))
	m, err := sess.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, Message{From: "A", To: "A", Body: "memo"}, m)
}

func TestProtocolViolationClosesSession(t *testing.T) {
	sess, srv := newPipeSession(t, "A")

	_, err := srv.conn.Write([]byte("GARBAGE\n"))
	require.NoError(t, err)

	<-sess.Done()
	require.True(t, errors.Is(sess.Err(), proto.ErrProtocol), "got %v", sess.Err())
}

func TestInvalidInput(t *testing.T) {
	_, err := New(nil, "", WithLogger(nil))
	require.ErrorIs(t, err, ErrInvalidIdentifier)

	sess, _ := newPipeSession(t, "A")
	require.ErrorIs(t, sess.Send(context.Background(), "", "x"), ErrInvalidIdentifier)
	require.ErrorIs(t, sess.Send(context.Background(), "B", "two\nlines"), proto.ErrInvalidField)
	_, err = sess.RequestHistory(context.Background(), "bad\nid")
	require.ErrorIs(t, err, ErrInvalidIdentifier)
	require.Zero(t, sess.Pending())
}

func TestCloseIsIdempotent(t *testing.T) {
	sess, _ := newPipeSession(t, "A")

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	require.ErrorIs(t, sess.Err(), ErrClosed)
}
