package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/store"
)

// Hub owns the state shared by every connection: the registry of live
// identifiers and the history log. Connections reach it only through the
// Session returned by Attach.
type Hub struct {
	registry *Registry
	history  store.HistoryStore
	log      *zerolog.Logger
	now      func() time.Time
}

// NewHub creates a hub over history. A nil history disables persistence and
// answers every history request with no records.
func NewHub(history store.HistoryStore, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		registry: NewRegistry(),
		history:  history,
		log:      logger,
		now:      time.Now,
	}
}

// Registry exposes the live identifier registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Attach starts a session for a newly accepted connection.
func (h *Hub) Attach(c *Client) *Session {
	return &Session{
		hub:       h,
		client:    c,
		ids:       make(map[string]struct{}),
		conflicts: make(map[string]struct{}),
	}
}

// History returns the records exchanged between a and b.
func (h *Hub) History(ctx context.Context, a, b string) ([]store.Record, error) {
	if h.history == nil {
		return nil, nil
	}
	return h.history.Query(ctx, a, b)
}

func (h *Hub) persist(ctx context.Context, msg Message) {
	if h.history == nil {
		return
	}
	rec := store.Record{Time: h.now(), From: msg.From, To: msg.To, Body: msg.Body}
	if err := h.history.Append(ctx, rec); err != nil {
		// Delivery still goes ahead: persistence and delivery are not atomic.
		h.log.Error().Err(err).Str("from", msg.From).Str("to", msg.To).Msg("failed to persist message")
		return
	}
	h.log.Debug().Str("line", rec.Line()).Msg("message saved to history")
}
