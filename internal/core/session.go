package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Session is the core-side state of one connection: its outbound handle and
// the identifiers it has bound in the registry.
type Session struct {
	hub    *Hub
	client *Client

	mu        sync.Mutex
	ids       map[string]struct{}
	conflicts map[string]struct{}
	closed    bool
}

// Identifiers returns the identifiers this session currently holds.
func (s *Session) Identifiers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	return ids
}

// Handle processes one command. Events it produces for this connection are
// queued before Handle returns, so per-connection output follows input order.
// A non-nil error means the connection can no longer be served.
func (s *Session) Handle(ctx context.Context, cmd *Command) error {
	switch cmd.Kind {
	case CommandRelay:
		return s.relay(ctx, cmd.Message)
	case CommandHistory:
		return s.replay(ctx, cmd.Message.From, cmd.Message.To, cmd.Correlation)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCommand, cmd.Kind)
	}
}

func (s *Session) relay(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	log := s.hub.log.With().Str("client_id", s.client.ID).Str("from", msg.From).Str("to", msg.To).Logger()

	s.register(msg.From)
	s.hub.persist(ctx, msg)

	if recipient, ok := s.hub.registry.Lookup(msg.To); ok {
		// A connection messaging its own identifier gets the echo only.
		if recipient != s.client {
			err := recipient.Deliver(ctx, &Event{Kind: EventDelivery, Message: msg})
			switch {
			case err == nil:
				log.Debug().Str("recipient_client", recipient.ID).Msg("message delivered")
			case errors.Is(err, ErrClientClosed):
				log.Debug().Msg("recipient disconnected during delivery; message stored in history only")
			default:
				return err
			}
		}
	} else {
		log.Debug().Msg("recipient offline; message stored in history only")
	}

	return s.client.Deliver(ctx, &Event{Kind: EventConfirmation, Message: msg})
}

func (s *Session) replay(ctx context.Context, requester, counterpart, correlation string) error {
	if requester == "" || counterpart == "" {
		return fmt.Errorf("%w: empty identifier in history request", ErrInvalidMessage)
	}
	s.register(requester)

	records, err := s.hub.History(ctx, requester, counterpart)
	if err != nil {
		// Answer anyway so the requester is not left waiting.
		s.hub.log.Error().Err(err).Str("client_id", s.client.ID).
			Str("requester", requester).Str("counterpart", counterpart).
			Msg("failed to read message history")
		records = nil
	}

	s.hub.log.Debug().Str("client_id", s.client.ID).Str("requester", requester).
		Str("counterpart", counterpart).Int("records", len(records)).Msg("history requested")

	return s.client.Deliver(ctx, &Event{
		Kind: EventHistory,
		History: &History{
			Correlation: correlation,
			Requester:   requester,
			Counterpart: counterpart,
			Records:     records,
		},
	})
}

// register binds id to this session's client if nobody holds it yet.
func (s *Session) register(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if _, ok := s.ids[id]; ok {
		return
	}

	holder, added := s.hub.registry.RegisterIfAbsent(id, s.client)
	if added {
		s.ids[id] = struct{}{}
		delete(s.conflicts, id)
		s.hub.log.Info().Str("client_id", s.client.ID).Str("id", id).Msg("identifier registered")
		return
	}
	if _, warned := s.conflicts[id]; !warned {
		s.conflicts[id] = struct{}{}
		s.hub.log.Warn().Str("client_id", s.client.ID).Str("id", id).
			Str("holder_client", holder.ID).Msg("identifier already bound to another connection; keeping first")
	}
}

// Close releases every identifier still bound to this session and closes the
// outbound handle. Bindings that now belong to other connections are left alone.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ids := s.ids
	s.ids = make(map[string]struct{})
	s.mu.Unlock()

	for id := range ids {
		if s.hub.registry.RemoveIf(id, s.client) {
			s.hub.log.Info().Str("client_id", s.client.ID).Str("id", id).Msg("identifier released")
		}
	}
	s.client.Close()
}
