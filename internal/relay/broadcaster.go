package relay

// Broadcaster fans the online-user list out to every registered identity.
type Broadcaster struct {
	registry *Registry
	metrics  *Metrics
	passes   uint64
}

// NewBroadcaster returns a Broadcaster reading from registry.
func NewBroadcaster(registry *Registry, metrics *Metrics) *Broadcaster {
	return &Broadcaster{registry: registry, metrics: metrics}
}

// Broadcast sends one online_users event built from the current snapshot to
// every registered identity and returns the number of successful deliveries.
// Failed sinks are only queued on the registry; Broadcast never recurses.
func (b *Broadcaster) Broadcast() int {
	users := b.registry.Snapshot()
	ev := newOnlineUsers(users)

	b.passes++
	if b.metrics != nil {
		b.metrics.BroadcastPasses.Inc()
	}

	delivered := 0
	for _, u := range users {
		if b.registry.send(u.UserID, ev) {
			delivered++
		}
	}
	return delivered
}

// Passes returns how many broadcast passes have run.
func (b *Broadcaster) Passes() uint64 {
	return b.passes
}
