package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/pairchat/internal/relay"
)

func TestClientSend_QueuesEncodedEvents(t *testing.T) {
	cfg := NewConfig()
	cfg.SendBufferSize = 2
	c := NewClient(nil, nil, cfg, NewMetrics(nil), discardLogger(), "alice", "127.0.0.1:1")

	ev := relay.ErrorEvent{Type: relay.TypeError, Code: relay.CodeUnknownChat, Message: "unknown chat"}
	require.NoError(t, c.Send(ev))
	require.NoError(t, c.Send(ev))
	assert.ErrorIs(t, c.Send(ev), relay.ErrSinkFull)

	var got relay.ErrorEvent
	require.NoError(t, json.Unmarshal(<-c.send, &got))
	assert.Equal(t, ev, got)
}

func TestClientClose_IsIdempotent(t *testing.T) {
	c := NewClient(nil, nil, NewConfig(), NewMetrics(nil), discardLogger(), "alice", "127.0.0.1:1")

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send(relay.ErrorEvent{Type: relay.TypeError}), relay.ErrSinkClosed)

	_, ok := <-c.send
	assert.False(t, ok)
}
