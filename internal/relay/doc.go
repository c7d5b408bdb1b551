// Package relay implements the presence-and-relay engine behind pairchat.
//
// A Relay owns three pieces of mutable state: the Registry of connected
// identities, the SessionTable of two-party chats, and the Broadcaster that
// fans the online-user list out to every registered sink. All of them are
// mutated under a single mutex held by the Relay, so a broadcast never
// observes a half-applied registration or teardown.
//
// Delivery failures are never returned to callers. A sink that cannot accept
// an event is queued for teardown, and the queue is drained after the
// operation that produced it, followed by at most one presence broadcast per
// drain pass.
package relay
