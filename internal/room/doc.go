// Package room implements the in-memory broadcast rooms behind the realtime
// vote feed.
//
// A Room owns its member sessions on a single actor goroutine; Join, Leave and
// Broadcast are commands on a buffered channel, so membership changes never
// race with fan-out. Each Session has its own writer goroutine and bounded send
// queue, which keeps one stalled socket from delaying the others. A session
// whose transport fails is marked closed by its writer and removed by the next
// fan-out that reaches it.
//
// Registry hands out one Room per key, creating it on first use.
package room
