package relay

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// SessionKey derives the deterministic chat id for a pair of identities. The
// key does not depend on argument order.
func SessionKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "-")
}

type memberSet map[string]struct{}

// SessionTable maps chat ids to their participants. It does not check that
// participants are online; callers validate liveness before Open.
type SessionTable struct {
	sessions map[string]memberSet
	byMember map[string]memberSet
}

// NewSessionTable returns an empty SessionTable.
func NewSessionTable() *SessionTable {
	return &SessionTable{
		sessions: make(map[string]memberSet),
		byMember: make(map[string]memberSet),
	}
}

// Open returns the chat id for a and b, creating the session when it does not
// exist yet. An existing session for the same pair is returned unchanged. Ids
// containing the separator can make two pairs share a key; Open then reports
// false and leaves the other pair's session alone.
func (t *SessionTable) Open(a, b string) (string, bool) {
	key := SessionKey(a, b)
	if members, ok := t.sessions[key]; ok {
		_, hasA := members[a]
		_, hasB := members[b]
		return key, hasA && hasB && len(members) == 2
	}
	members := memberSet{a: {}, b: {}}
	t.sessions[key] = members
	for id := range members {
		t.index(id, key)
	}
	return key, true
}

// ParticipantsOf returns the participants of key ordered by user id, or nil
// when the session is unknown.
func (t *SessionTable) ParticipantsOf(key string) []string {
	members, ok := t.sessions[key]
	if !ok {
		return nil
	}
	ids := lo.Keys(members)
	sort.Strings(ids)
	return ids
}

// RemoveParticipant drops userID from key. When one or no participant
// remains the session is deleted and removed reports true, along with the
// participants that were left behind.
func (t *SessionTable) RemoveParticipant(key, userID string) (removed bool, remaining []string) {
	members, ok := t.sessions[key]
	if !ok {
		return false, nil
	}
	if _, member := members[userID]; !member {
		return false, nil
	}
	delete(members, userID)
	t.unindex(userID, key)
	if len(members) > 1 {
		return false, nil
	}
	remaining = lo.Keys(members)
	sort.Strings(remaining)
	t.Close(key)
	return true, remaining
}

// Close deletes key unconditionally.
func (t *SessionTable) Close(key string) {
	members, ok := t.sessions[key]
	if !ok {
		return
	}
	for id := range members {
		t.unindex(id, key)
	}
	delete(t.sessions, key)
}

// SessionsOf lists the chat ids userID participates in, in key order.
func (t *SessionTable) SessionsOf(userID string) []string {
	keys := lo.Keys(t.byMember[userID])
	sort.Strings(keys)
	return keys
}

// Len returns the number of open sessions.
func (t *SessionTable) Len() int {
	return len(t.sessions)
}

func (t *SessionTable) index(userID, key string) {
	set, ok := t.byMember[userID]
	if !ok {
		set = make(memberSet)
		t.byMember[userID] = set
	}
	set[key] = struct{}{}
}

func (t *SessionTable) unindex(userID, key string) {
	set, ok := t.byMember[userID]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(t.byMember, userID)
	}
}

func (t *SessionTable) clear() {
	t.sessions = make(map[string]memberSet)
	t.byMember = make(map[string]memberSet)
}
