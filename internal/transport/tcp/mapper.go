package tcp

import (
	"fmt"

	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

func frameToCommand(frame *proto.Frame) (*core.Command, error) {
	switch frame.Kind {
	case proto.KindRelay:
		return &core.Command{
			Kind:    core.CommandRelay,
			Message: core.Message{From: frame.From, To: frame.To, Body: frame.Body},
		}, nil
	case proto.KindHistoryRequest:
		return &core.Command{
			Kind:        core.CommandHistory,
			Message:     core.Message{From: frame.From, To: frame.To},
			Correlation: frame.Correlation,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %v frame from client", proto.ErrProtocol, frame.Kind)
	}
}

func frameFromEvent(event *core.Event) *proto.Frame {
	switch event.Kind {
	case core.EventHistory:
		h := event.History
		lines := make([]string, 0, len(h.Records))
		for _, rec := range h.Records {
			lines = append(lines, rec.Line())
		}
		return proto.HistoryResponse(h.Correlation, h.Requester, h.Counterpart, lines)
	default:
		m := event.Message
		return proto.Relay(m.From, m.To, m.Body)
	}
}
