package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/utils"
)

// Handler serves the relay protocol on a single connection. It is transport
// agnostic: the TCP server and the websocket bridge both hand it a net.Conn.
type Handler struct {
	hub *core.Hub
	cfg config.Config
	log *zerolog.Logger
}

// NewHandler builds a connection handler bound to hub.
func NewHandler(hub *core.Hub, cfg config.Config, logger *zerolog.Logger) *Handler {
	return &Handler{hub: hub, cfg: cfg, log: logger}
}

// ServeConn runs the protocol on conn until the peer disconnects, the stream
// breaks, a malformed frame arrives, or ctx is cancelled. Responses already
// queued for earlier frames are written before conn is closed, unless the
// server is shutting down or a write fails. Every identifier the connection
// registered is released before ServeConn returns.
func (h *Handler) ServeConn(ctx context.Context, conn net.Conn) {
	client := core.NewClient(utils.NewConnID(), h.cfg.OutboundBuffer)
	log := h.log.With().Str("conn_id", client.ID).Str("remote", remoteAddr(conn)).Logger()

	sess := h.hub.Attach(client)
	defer sess.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the socket is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log.Debug().Msg("handler started")

	readCh := make(chan error, 1)
	writeCh := make(chan error, 1)
	drain := make(chan struct{})
	go func() {
		readCh <- h.readLoop(ctx, conn, sess, &log)
	}()
	go func() {
		writeCh <- h.writeLoop(ctx, conn, client, drain, &log)
	}()

	var err error
	select {
	case err = <-readCh:
		if ctx.Err() == nil {
			// Handle queues every response before returning, so the write
			// loop only has to empty the channel.
			close(drain)
			if werr := <-writeCh; werr != nil {
				log.Debug().Err(werr).Msg("pending responses not flushed")
			}
		} else {
			<-writeCh
		}
	case err = <-writeCh:
		cancel() // stop the reader
		_ = conn.Close()
		<-readCh
	}
	cancel()
	_ = conn.Close()

	switch {
	case err == nil, errors.Is(err, io.EOF):
		log.Info().Strs("ids", sess.Identifiers()).Msg("client disconnected")
	case errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed):
		log.Debug().Err(err).Msg("connection closed")
	case errors.Is(err, proto.ErrProtocol):
		log.Warn().Err(err).Msg("protocol violation; dropping connection")
	default:
		log.Warn().Err(err).Msg("connection closed with error")
	}
}

func (h *Handler) readLoop(ctx context.Context, conn net.Conn, sess *core.Session, log *zerolog.Logger) error {
	reader := proto.NewReader(conn, h.cfg.MaxLineBytes)
	limiter := newRateLimiter(h.cfg.RelayRateLimit)

	for {
		frame, err := reader.ReadRequest()
		if err != nil {
			return err
		}

		cmd, err := frameToCommand(frame)
		if err != nil {
			return err
		}
		if cmd.Kind == core.CommandRelay && !limiter.allow() {
			log.Warn().Str("from", cmd.Message.From).Str("to", cmd.Message.To).Msg("relay rate limit exceeded; frame dropped")
			continue
		}

		if err := sess.Handle(ctx, cmd); err != nil {
			return err
		}
	}
}

// writeLoop is the only writer on conn. Once drain is closed it writes
// whatever is already queued and returns.
func (h *Handler) writeLoop(ctx context.Context, conn net.Conn, client *core.Client, drain <-chan struct{}, log *zerolog.Logger) error {
	writer := proto.NewWriter(conn)

	write := func(event *core.Event) error {
		if event == nil {
			return nil
		}
		if h.cfg.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		}
		if err := writer.WriteFrame(frameFromEvent(event)); err != nil {
			log.Error().Err(err).Str("event", event.Kind.String()).Msg("write frame")
			return err
		}
		return nil
	}

	for {
		select {
		case event := <-client.Events:
			if err := write(event); err != nil {
				return err
			}
		case <-drain:
			for {
				select {
				case event := <-client.Events:
					if err := write(event); err != nil {
						return err
					}
				case <-ctx.Done():
					return ctx.Err()
				default:
					return nil
				}
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
