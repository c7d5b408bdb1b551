package relay

import (
	"log/slog"
	"sync"
	"time"
)

// defaultMaxBroadcastPasses bounds the follow-up broadcasts issued while
// draining failed sinks after a single operation.
const defaultMaxBroadcastPasses = 4

// PresenceRecorder receives write-through presence updates. Implementations
// must return promptly and must not call back into the Relay.
type PresenceRecorder interface {
	Upsert(userID, name string, at time.Time)
	Delete(userID string)
}

type nopPresence struct{}

func (nopPresence) Upsert(string, string, time.Time) {}
func (nopPresence) Delete(string)                   {}

// Relay owns the registry, the session table and the broadcaster, and
// serialises every operation on them behind one mutex.
type Relay struct {
	mu          sync.Mutex
	registry    *Registry
	sessions    *SessionTable
	broadcaster *Broadcaster

	presence     PresenceRecorder
	metrics      *Metrics
	log          *slog.Logger
	now          func() time.Time
	reportErrors bool
	maxPasses    int
}

// Option configures a Relay.
type Option func(*Relay)

// WithPresence installs the durable presence side-channel.
func WithPresence(p PresenceRecorder) Option {
	return func(r *Relay) {
		if p != nil {
			r.presence = p
		}
	}
}

// WithMetrics installs registered Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithClock overrides the clock used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// WithProtocolErrors makes the relay answer protocol misuse with an error
// event instead of ignoring it silently.
func WithProtocolErrors(enabled bool) Option {
	return func(r *Relay) { r.reportErrors = enabled }
}

// WithMaxBroadcastPasses bounds the follow-up broadcasts per operation.
func WithMaxBroadcastPasses(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxPasses = n
		}
	}
}

// New returns an empty Relay.
func New(log *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		registry:  NewRegistry(),
		sessions:  NewSessionTable(),
		presence:  nopPresence{},
		log:       log,
		now:       time.Now,
		maxPasses: defaultMaxBroadcastPasses,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	r.broadcaster = NewBroadcaster(r.registry, r.metrics)
	r.registry.onFail = func(h Handle, err error) {
		r.metrics.SendFailures.Inc()
		r.log.Debug("Send failed, scheduling disconnect", "user_id", h.UserID, "err", err)
	}
	return r
}

// Register makes userID online with the given display name and sink, then
// broadcasts the new online-user list. A previous registration of userID is
// replaced and its sink closed; its sessions carry over to the new one.
func (r *Relay) Register(userID, name string, sink Sink) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, displaced := r.registry.register(userID, name, sink)
	if displaced != nil {
		displaced.sink.Close()
		r.log.Info("Replaced existing connection", "user_id", userID)
	}
	r.presence.Upsert(userID, name, r.now().UTC())
	r.log.Info("User connected", "user_id", userID, "name", name, "online", r.registry.Len())

	r.broadcaster.Broadcast()
	r.settle()
	r.observe()
	return h
}

// Disconnect tears down the registration named by h: the identity leaves the
// registry, every session it was part of is closed with a user_left_chat
// notice to the counterpart, and the online-user list is re-broadcast.
// Repeated or stale calls are no-ops.
func (r *Relay) Disconnect(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.teardown(h) {
		return
	}
	r.broadcaster.Broadcast()
	r.settle()
	r.observe()
}

// Handle routes one inbound event from the registration named by h. Events
// from a stale or unregistered handle are dropped.
func (r *Relay) Handle(h Handle, ev Inbound) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, ok := r.registry.current(h)
	if !ok {
		r.log.Debug("Dropping event from stale connection", "user_id", h.UserID)
		return
	}
	if ev == nil {
		r.protocolError(h, ErrInvalidEvent)
		r.settle()
		return
	}
	r.metrics.InboundEvents.WithLabelValues(ev.inboundType()).Inc()
	r.route(h, from, ev)
	r.settle()
	r.observe()
}

// Reject records protocol misuse detected outside the relay, such as a frame
// that failed to decode, against the registration named by h.
func (r *Relay) Reject(h Handle, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.registry.current(h); !ok {
		return
	}
	r.protocolError(h, err)
	r.settle()
	r.observe()
}

// Snapshot returns the online users ordered by user id.
func (r *Relay) Snapshot() []User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.Snapshot()
}

// ParticipantsOf returns the participants of chatID, or nil if it is not open.
func (r *Relay) ParticipantsOf(chatID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.ParticipantsOf(chatID)
}

// SessionCount returns the number of open sessions.
func (r *Relay) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Len()
}

// BroadcastPasses returns how many online-user broadcasts have run.
func (r *Relay) BroadcastPasses() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcaster.Passes()
}

// CloseAll closes every sink and empties the relay without broadcasting. It
// is used on shutdown, where a broadcast per departing user would be wasted.
func (r *Relay) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.registry.clear()
	r.sessions.clear()
	for userID, e := range entries {
		e.sink.Close()
		r.presence.Delete(userID)
	}
	r.observe()
	r.log.Info("Closed all connections", "count", len(entries))
	return len(entries)
}

// teardown removes h from the registry and its sessions. It reports false
// when h was not the current registration.
func (r *Relay) teardown(h Handle) bool {
	e, ok := r.registry.unregister(h)
	if !ok {
		return false
	}
	e.sink.Close()
	r.presence.Delete(h.UserID)

	for _, chatID := range r.sessions.SessionsOf(h.UserID) {
		removed, remaining := r.sessions.RemoveParticipant(chatID, h.UserID)
		if !removed {
			continue
		}
		notice := newUserLeftChat(chatID, h.UserID)
		for _, other := range remaining {
			r.registry.send(other, notice)
		}
	}
	r.log.Info("User disconnected", "user_id", h.UserID, "online", r.registry.Len())
	return true
}

// settle drains sinks that failed during the current operation. Each pass
// tears down the failed registrations and issues a single broadcast; after
// maxPasses broadcasts the remaining failures are torn down silently.
func (r *Relay) settle() {
	for pass := 0; ; pass++ {
		failed := r.registry.drainFailures()
		if len(failed) == 0 {
			return
		}
		removed := 0
		for _, h := range failed {
			if r.teardown(h) {
				removed++
			}
		}
		if removed > 0 && pass < r.maxPasses {
			r.broadcaster.Broadcast()
		}
	}
}

func (r *Relay) observe() {
	r.metrics.OnlineUsers.Set(float64(r.registry.Len()))
	r.metrics.ActiveSessions.Set(float64(r.sessions.Len()))
}
