package relay

import (
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Sink is the outbound side of one connection. Send must not block: a closed
// or saturated sink reports an error instead, which the relay treats as a
// disconnect of the owning identity.
type Sink interface {
	Send(ev Outbound) error
	Close()
}

// Handle names one registration of an identity. A later registration of the
// same identity gets a new Handle, and operations issued through the old one
// are ignored.
type Handle struct {
	UserID string
	token  string
}

type entry struct {
	name  string
	sink  Sink
	token string
}

// Registry is the authoritative identity -> sink/name map. It is not safe for
// concurrent use on its own; the Relay serialises access to it.
type Registry struct {
	entries map[string]*entry
	failed  []Handle
	onFail  func(Handle, error)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// register inserts or overwrites the entry for userID and returns the handle
// of the new registration together with the entry it displaced, if any.
func (r *Registry) register(userID, name string, sink Sink) (Handle, *entry) {
	displaced := r.entries[userID]
	e := &entry{name: name, sink: sink, token: uuid.NewString()}
	r.entries[userID] = e
	return Handle{UserID: userID, token: e.token}, displaced
}

// unregister removes the registration named by h. It is a no-op when h is
// unknown or has been superseded.
func (r *Registry) unregister(h Handle) (*entry, bool) {
	e, ok := r.current(h)
	if !ok {
		return nil, false
	}
	delete(r.entries, h.UserID)
	return e, true
}

func (r *Registry) current(h Handle) (*entry, bool) {
	e, ok := r.entries[h.UserID]
	if !ok || e.token != h.token {
		return nil, false
	}
	return e, true
}

func (r *Registry) lookup(userID string) (*entry, bool) {
	e, ok := r.entries[userID]
	return e, ok
}

// send delivers ev to userID's sink. A failed send queues the registration
// for teardown and reports false; the caller never sees the error.
func (r *Registry) send(userID string, ev Outbound) bool {
	e, ok := r.entries[userID]
	if !ok {
		return false
	}
	if err := e.sink.Send(ev); err != nil {
		h := Handle{UserID: userID, token: e.token}
		if !lo.Contains(r.failed, h) {
			r.failed = append(r.failed, h)
		}
		if r.onFail != nil {
			r.onFail(h, err)
		}
		return false
	}
	return true
}

// drainFailures returns and clears the queued failed registrations.
func (r *Registry) drainFailures() []Handle {
	failed := r.failed
	r.failed = nil
	return failed
}

// Snapshot lists the registered identities ordered by user id.
func (r *Registry) Snapshot() []User {
	users := lo.MapToSlice(r.entries, func(id string, e *entry) User {
		return User{UserID: id, Name: e.name}
	})
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) clear() map[string]*entry {
	old := r.entries
	r.entries = make(map[string]*entry)
	r.failed = nil
	return old
}
