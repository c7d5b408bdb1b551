package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_SendsSnapshotToEveryone(t *testing.T) {
	reg := NewRegistry()
	alice, bob := &recordingSink{}, &recordingSink{}
	reg.register("u1", "Alice", alice)
	reg.register("u2", "Bob", bob)

	b := NewBroadcaster(reg, nil)
	assert.Equal(t, 2, b.Broadcast())
	assert.Equal(t, uint64(1), b.Passes())

	want := OnlineUsers{Type: TypeOnlineUsers, Users: []User{
		{UserID: "u1", Name: "Alice"},
		{UserID: "u2", Name: "Bob"},
	}}
	assert.Equal(t, want, alice.last())
	assert.Equal(t, want, bob.last())
}

func TestBroadcaster_FailuresAreQueuedNotRecursed(t *testing.T) {
	reg := NewRegistry()
	reg.register("ok", "Ok", &recordingSink{})
	for _, id := range []string{"d1", "d2", "d3"} {
		reg.register(id, id, &recordingSink{fail: true})
	}

	b := NewBroadcaster(reg, nil)
	assert.Equal(t, 1, b.Broadcast())

	require.Len(t, reg.drainFailures(), 3)
	assert.Equal(t, uint64(1), b.Passes())
	assert.Equal(t, 4, reg.Len(), "teardown is left to the relay")
}
