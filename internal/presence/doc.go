// Package presence keeps a durable, best-effort copy of who is online.
//
// The relay's in-memory registry is authoritative; the rows written here only
// mirror it for external readers. Writes go through a Writer that queues them
// on a bounded channel and applies them on one goroutine, so a slow or
// unreachable database never blocks the relay. Failures are logged and
// dropped.
package presence
