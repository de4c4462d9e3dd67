// Package roomclient implements the viewer side of a vote room: a WebSocket
// client that decodes vote events and keeps its connection alive by
// redialing a fixed delay after every lost or failed connection.
//
// All connection state is owned by one event-loop goroutine. Dial results,
// transport closes, timer expiry and Stop arrive as events, so a stale or
// duplicated close can never schedule a second reconnect.
package roomclient
