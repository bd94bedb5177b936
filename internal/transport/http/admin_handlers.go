package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/store"
)

// AdminHandlers exposes read-only views of the relay state.
type AdminHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewAdminHandlers creates a new admin handlers instance.
func NewAdminHandlers(hub *core.Hub, logger *zerolog.Logger) *AdminHandlers {
	return &AdminHandlers{hub: hub, log: logger}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ClientsResponse lists the identifiers currently bound to a connection.
type ClientsResponse struct {
	Clients []string `json:"clients"`
	Count   int      `json:"count"`
}

// HistoryQuery selects the conversation between two identifiers.
type HistoryQuery struct {
	A string `form:"a" binding:"required"`
	B string `form:"b" binding:"required"`
}

// RecordResponse is one persisted message.
type RecordResponse struct {
	Time string `json:"time"`
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
	Line string `json:"line"`
}

// HistoryResponse carries the records of one conversation, oldest first.
type HistoryResponse struct {
	Records []RecordResponse `json:"records"`
}

// ListClients returns the registered identifiers.
// GET /api/clients
func (h *AdminHandlers) ListClients(c *gin.Context) {
	ids := h.hub.Registry().IDs()
	c.JSON(http.StatusOK, ClientsResponse{Clients: ids, Count: len(ids)})
}

// History returns the stored conversation between a and b.
// GET /api/history?a=<id>&b=<id>
func (h *AdminHandlers) History(c *gin.Context) {
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query parameters a and b are required"})
		return
	}

	records, err := h.hub.History(c.Request.Context(), q.A, q.B)
	if err != nil {
		h.log.Error().Err(err).Str("a", q.A).Str("b", q.B).Msg("failed to query history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{Records: toRecordResponses(records)})
}

func toRecordResponses(records []store.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, RecordResponse{
			Time: rec.Time.Format(store.TimeLayout),
			From: rec.From,
			To:   rec.To,
			Body: rec.Body,
			Line: rec.Line(),
		})
	}
	return out
}
