// Package client implements the sending side of the relay protocol.
//
// A Session owns one connection. The caller's goroutines write frames through
// Send and RequestHistory; a single background reader classifies everything
// the server sends back into three outcomes:
//
//   - confirmation echoes of this session's own messages clear the pending set
//   - history responses complete the RequestHistory call waiting on their
//     correlation ID
//   - every other relay frame is queued in the inbox
//
// The reader never writes to the connection.
package client
