package http

import (
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/transport/tcp"
)

// WSHandler upgrades HTTP connections and runs the relay line protocol over
// text messages.
type WSHandler struct {
	conns *tcp.Handler
	log   *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(conns *tcp.Handler, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{conns: conns, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	// NetConn closes the websocket with StatusNormalClosure when the
	// handler closes it.
	h.conns.ServeConn(ctx, websocket.NetConn(ctx, conn, websocket.MessageText))
}
