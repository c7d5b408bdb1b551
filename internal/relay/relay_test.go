package relay

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func newTestRelay(opts ...Option) *Relay {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(discardLogger(), opts...)
}

// budgetSink accepts a fixed number of further sends and then fails.
type budgetSink struct {
	recordingSink
	budget int
}

func (s *budgetSink) Send(ev Outbound) error {
	s.mu.Lock()
	if s.budget <= 0 {
		s.mu.Unlock()
		return ErrSinkFull
	}
	s.budget--
	s.mu.Unlock()
	return s.recordingSink.Send(ev)
}

func TestRelay_PairChatScenario(t *testing.T) {
	r := newTestRelay()
	alice, bob := &recordingSink{}, &recordingSink{}

	h1 := r.Register("u1", "Alice", alice)
	h2 := r.Register("u2", "Bob", bob)

	online := OnlineUsers{Type: TypeOnlineUsers, Users: []User{
		{UserID: "u1", Name: "Alice"},
		{UserID: "u2", Name: "Bob"},
	}}
	assert.Equal(t, online, alice.last())
	assert.Equal(t, online, bob.last())

	r.Handle(h1, StartChat{TargetUserID: "u2"})
	started := ChatStarted{Type: TypeChatStarted, ChatID: "u1-u2", Participants: []User{
		{UserID: "u1", Name: "Alice"},
		{UserID: "u2", Name: "Bob"},
	}}
	assert.Equal(t, started, alice.last())
	assert.Equal(t, started, bob.last())

	r.Handle(h1, SendChatMessage{ChatID: "u1-u2", Content: "hi"})
	msg := ChatMessage{
		Type:       TypeChatMessage,
		ChatID:     "u1-u2",
		SenderID:   "u1",
		SenderName: "Alice",
		Content:    "hi",
		Timestamp:  "2024-05-01T12:30:00Z",
	}
	assert.Equal(t, msg, alice.last(), "sender receives its own message")
	assert.Equal(t, msg, bob.last())

	r.Disconnect(h2)
	assert.Equal(t, []Outbound{newUserLeftChat("u1-u2", "u2")}, alice.ofType(TypeUserLeftChat))
	assert.Equal(t, []User{{UserID: "u1", Name: "Alice"}}, r.Snapshot())
	assert.Equal(t, 0, r.SessionCount())
	assert.True(t, bob.isClosed())
}

func TestRelay_StartChatWithOfflineTargetIsNoop(t *testing.T) {
	r := newTestRelay()
	alice := &recordingSink{}
	h := r.Register("u1", "Alice", alice)
	alice.reset()

	r.Handle(h, StartChat{TargetUserID: "ghost"})

	assert.Empty(t, alice.all())
	assert.Equal(t, 0, r.SessionCount())
	assert.Equal(t, []User{{UserID: "u1", Name: "Alice"}}, r.Snapshot(), "connection stays registered")
}

func TestRelay_StartChatWithSelfIsNoop(t *testing.T) {
	r := newTestRelay()
	alice := &recordingSink{}
	h := r.Register("u1", "Alice", alice)
	alice.reset()

	r.Handle(h, StartChat{TargetUserID: "u1"})

	assert.Empty(t, alice.all())
	assert.Equal(t, 0, r.SessionCount())
}

func TestRelay_StartChatTwiceReusesSession(t *testing.T) {
	r := newTestRelay()
	h1 := r.Register("u1", "Alice", &recordingSink{})
	h2 := r.Register("u2", "Bob", &recordingSink{})

	r.Handle(h1, StartChat{TargetUserID: "u2"})
	r.Handle(h2, StartChat{TargetUserID: "u1"})

	assert.Equal(t, 1, r.SessionCount())
	assert.Equal(t, []string{"u1", "u2"}, r.ParticipantsOf("u1-u2"))
}

func TestRelay_StartChatWithCollidingKeyIsRejected(t *testing.T) {
	r := newTestRelay(WithProtocolErrors(true))
	ab, c, a, bc := &recordingSink{}, &recordingSink{}, &recordingSink{}, &recordingSink{}
	hAB := r.Register("a-b", "AB", ab)
	r.Register("c", "C", c)
	hA := r.Register("a", "A", a)
	r.Register("b-c", "BC", bc)

	r.Handle(hAB, StartChat{TargetUserID: "c"})
	require.Equal(t, []string{"a-b", "c"}, r.ParticipantsOf("a-b-c"))
	for _, s := range []*recordingSink{ab, c, a, bc} {
		s.reset()
	}

	r.Handle(hA, StartChat{TargetUserID: "b-c"})
	assert.Empty(t, bc.all(), "b-c is never told about a chat it is not in")
	assert.Empty(t, a.ofType(TypeChatStarted))
	require.Len(t, a.ofType(TypeError), 1)
	assert.Equal(t, CodeChatConflict, a.last().(ErrorEvent).Code)

	r.Handle(hA, SendChatMessage{ChatID: "a-b-c", Content: "secret for b-c"})
	assert.Empty(t, a.ofType(TypeChatMessage))
	assert.Empty(t, bc.ofType(TypeChatMessage))
	assert.Len(t, c.ofType(TypeChatMessage), 1, "message follows the stored participants only")
	assert.Equal(t, []string{"a-b", "c"}, r.ParticipantsOf("a-b-c"))
	assert.Equal(t, 1, r.SessionCount())
}

func TestRelay_MessageToUnknownChatIsNoop(t *testing.T) {
	r := newTestRelay()
	alice := &recordingSink{}
	h := r.Register("u1", "Alice", alice)
	alice.reset()

	r.Handle(h, SendChatMessage{ChatID: "u1-u9", Content: "hello?"})
	r.Handle(h, EndChat{ChatID: "u1-u9"})

	assert.Empty(t, alice.all())
}

func TestRelay_EndChatNotifiesBothAndCloses(t *testing.T) {
	r := newTestRelay()
	alice, bob := &recordingSink{}, &recordingSink{}
	h1 := r.Register("u1", "Alice", alice)
	h2 := r.Register("u2", "Bob", bob)
	r.Handle(h1, StartChat{TargetUserID: "u2"})

	r.Handle(h2, EndChat{ChatID: "u1-u2"})

	ended := ChatEnded{Type: TypeChatEnded, ChatID: "u1-u2", EndedBy: "u2"}
	assert.Equal(t, ended, alice.last())
	assert.Equal(t, ended, bob.last())
	assert.Empty(t, r.ParticipantsOf("u1-u2"))

	bob.reset()
	r.Handle(h1, SendChatMessage{ChatID: "u1-u2", Content: "still there?"})
	assert.Empty(t, bob.all(), "no message reaches a closed session")
}

func TestRelay_DisconnectNotifiesOncePerSession(t *testing.T) {
	r := newTestRelay()
	hub := &recordingSink{}
	hHub := r.Register("hub", "Hub", hub)

	peers := map[string]*recordingSink{}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("p%d", i)
		peers[id] = &recordingSink{}
		r.Register(id, id, peers[id])
		r.Handle(hHub, StartChat{TargetUserID: id})
	}
	require.Equal(t, 5, r.SessionCount())

	r.Disconnect(hHub)
	r.Disconnect(hHub)

	total := 0
	for id, sink := range peers {
		left := sink.ofType(TypeUserLeftChat)
		require.Len(t, left, 1, id)
		assert.Equal(t, newUserLeftChat(SessionKey("hub", id), "hub"), left[0])
		total += len(left)
	}
	assert.Equal(t, 5, total)
	assert.Equal(t, 0, r.SessionCount())
	assert.Len(t, r.Snapshot(), 5)
}

func TestRelay_DuplicateDisconnectDoesNotRebroadcast(t *testing.T) {
	r := newTestRelay()
	r.Register("u1", "Alice", &recordingSink{})
	h2 := r.Register("u2", "Bob", &recordingSink{})

	r.Disconnect(h2)
	passes := r.BroadcastPasses()
	r.Disconnect(h2)

	assert.Equal(t, passes, r.BroadcastPasses())
}

func TestRelay_SendFailureDisconnects(t *testing.T) {
	r := newTestRelay()
	alice, bob := &recordingSink{}, &recordingSink{}
	h1 := r.Register("u1", "Alice", alice)
	r.Register("u2", "Bob", bob)
	r.Handle(h1, StartChat{TargetUserID: "u2"})

	bob.setFail(true)
	alice.reset()
	r.Handle(h1, SendChatMessage{ChatID: "u1-u2", Content: "hi"})

	assert.Equal(t, []User{{UserID: "u1", Name: "Alice"}}, r.Snapshot())
	assert.Equal(t, 0, r.SessionCount())
	assert.Len(t, alice.ofType(TypeChatMessage), 1)
	assert.Equal(t, []Outbound{newUserLeftChat("u1-u2", "u2")}, alice.ofType(TypeUserLeftChat))
	assert.Equal(t, OnlineUsers{Type: TypeOnlineUsers, Users: []User{{UserID: "u1", Name: "Alice"}}}, alice.last())
}

func TestRelay_MassFailureIsBounded(t *testing.T) {
	r := newTestRelay()
	keeper := &recordingSink{}
	r.Register("keeper", "Keeper", keeper)
	leaver := r.Register("leaver", "Leaver", &recordingSink{})

	dying := make([]*recordingSink, 50)
	for i := range dying {
		dying[i] = &recordingSink{}
		r.Register(fmt.Sprintf("d%02d", i), "dying", dying[i])
	}
	for _, s := range dying {
		s.setFail(true)
	}

	before := r.BroadcastPasses()
	r.Disconnect(leaver)

	assert.Equal(t, uint64(2), r.BroadcastPasses()-before, "one broadcast for the leave, one for the drained failures")
	assert.Equal(t, []User{{UserID: "keeper", Name: "Keeper"}}, r.Snapshot())
	for _, s := range dying {
		assert.True(t, s.isClosed())
	}
}

func TestRelay_CascadingFailuresStopAfterMaxPasses(t *testing.T) {
	r := newTestRelay(WithMaxBroadcastPasses(3))
	r.Register("keeper", "Keeper", &recordingSink{})
	leaver := r.Register("leaver", "Leaver", &recordingSink{})

	sinks := make([]*budgetSink, 10)
	for i := range sinks {
		sinks[i] = &budgetSink{budget: 1 << 20}
		r.Register(fmt.Sprintf("c%02d", i), "c", sinks[i])
	}
	// sink i survives exactly i more broadcasts, so each pass kills one more.
	for i, s := range sinks {
		s.mu.Lock()
		s.budget = i
		s.mu.Unlock()
	}

	before := r.BroadcastPasses()
	r.Disconnect(leaver)

	assert.Equal(t, uint64(4), r.BroadcastPasses()-before)
	ids := make([]string, 0)
	for _, u := range r.Snapshot() {
		ids = append(ids, u.UserID)
	}
	assert.Equal(t, []string{"c04", "c05", "c06", "c07", "c08", "c09", "keeper"}, ids)
}

func TestRelay_ReRegisterReplacesAndClosesOldSink(t *testing.T) {
	pres := &recordingPresence{}
	r := newTestRelay(WithPresence(pres))
	bob := &recordingSink{}
	r.Register("u2", "Bob", bob)

	oldSink := &recordingSink{}
	oldHandle := r.Register("u1", "Alice", oldSink)
	r.Handle(oldHandle, StartChat{TargetUserID: "u2"})

	newSink := &recordingSink{}
	newHandle := r.Register("u1", "Alice (tab 2)", newSink)
	assert.True(t, oldSink.isClosed())

	r.Disconnect(oldHandle)
	r.Handle(oldHandle, SendChatMessage{ChatID: "u1-u2", Content: "from the past"})
	assert.Empty(t, bob.ofType(TypeChatMessage))
	assert.Empty(t, bob.ofType(TypeUserLeftChat))
	assert.Len(t, r.Snapshot(), 2)

	r.Handle(newHandle, SendChatMessage{ChatID: "u1-u2", Content: "hello again"})
	msgs := bob.ofType(TypeChatMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Alice (tab 2)", msgs[0].(ChatMessage).SenderName)

	assert.Equal(t, []presenceCall{
		{op: "upsert", userID: "u2", name: "Bob"},
		{op: "upsert", userID: "u1", name: "Alice"},
		{op: "upsert", userID: "u1", name: "Alice (tab 2)"},
	}, pres.all())
}

func TestRelay_PresenceWriteThrough(t *testing.T) {
	pres := &recordingPresence{}
	r := newTestRelay(WithPresence(pres))

	h := r.Register("u1", "Alice", &recordingSink{})
	r.Disconnect(h)
	r.Disconnect(h)

	assert.Equal(t, []presenceCall{
		{op: "upsert", userID: "u1", name: "Alice"},
		{op: "delete", userID: "u1"},
	}, pres.all())
}

func TestRelay_ProtocolErrorsReportedWhenEnabled(t *testing.T) {
	r := newTestRelay(WithProtocolErrors(true))
	alice := &recordingSink{}
	h := r.Register("u1", "Alice", alice)
	alice.reset()

	r.Handle(h, StartChat{TargetUserID: "ghost"})
	r.Handle(h, EndChat{ChatID: "nope"})
	r.Reject(h, fmt.Errorf("%w: bad frame", ErrInvalidEvent))
	r.Reject(h, ErrRateLimited)

	events := alice.ofType(TypeError)
	require.Len(t, events, 4)
	codes := []string{}
	for _, ev := range events {
		codes = append(codes, ev.(ErrorEvent).Code)
	}
	assert.Equal(t, []string{CodeTargetOffline, CodeUnknownChat, CodeInvalidEvent, CodeRateLimited}, codes)
	assert.Len(t, r.Snapshot(), 1)
}

func TestRelay_RejectFromStaleHandleIsIgnored(t *testing.T) {
	r := newTestRelay(WithProtocolErrors(true))
	sink := &recordingSink{}
	h := r.Register("u1", "Alice", sink)
	r.Disconnect(h)

	r.Reject(h, ErrRateLimited)
	assert.Empty(t, sink.ofType(TypeError))
}

func TestRelay_CloseAllDoesNotBroadcast(t *testing.T) {
	pres := &recordingPresence{}
	r := newTestRelay(WithPresence(pres))
	sinks := []*recordingSink{{}, {}, {}}
	h1 := r.Register("u1", "A", sinks[0])
	r.Register("u2", "B", sinks[1])
	r.Register("u3", "C", sinks[2])
	r.Handle(h1, StartChat{TargetUserID: "u2"})

	passes := r.BroadcastPasses()
	assert.Equal(t, 3, r.CloseAll())

	assert.Equal(t, passes, r.BroadcastPasses())
	assert.Empty(t, r.Snapshot())
	assert.Equal(t, 0, r.SessionCount())
	for _, s := range sinks {
		assert.True(t, s.isClosed())
		assert.Empty(t, s.ofType(TypeUserLeftChat))
	}
	deletes := 0
	for _, c := range pres.all() {
		if c.op == "delete" {
			deletes++
		}
	}
	assert.Equal(t, 3, deletes)
}

func TestRelay_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r := newTestRelay(WithMetrics(m))

	h1 := r.Register("u1", "Alice", &recordingSink{})
	r.Register("u2", "Bob", &recordingSink{fail: true})
	r.Handle(h1, StartChat{TargetUserID: "u3"})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.OnlineUsers))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SendFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InboundEvents.WithLabelValues(TypeStartChat)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProtocolErrors.WithLabelValues(CodeTargetOffline)))
	assert.Equal(t, float64(r.BroadcastPasses()), testutil.ToFloat64(m.BroadcastPasses))
}

func TestRelay_ConcurrentTrafficLeavesConsistentState(t *testing.T) {
	r := newTestRelay()
	const users = 40

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%02d", i)
			peer := fmt.Sprintf("u%02d", (i+1)%users)
			sink := &recordingSink{}
			h := r.Register(id, id, sink)
			for j := 0; j < 20; j++ {
				r.Handle(h, StartChat{TargetUserID: peer})
				r.Handle(h, SendChatMessage{ChatID: SessionKey(id, peer), Content: "ping"})
				if j%7 == 0 {
					r.Handle(h, EndChat{ChatID: SessionKey(id, peer)})
				}
			}
			r.Disconnect(h)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, r.Snapshot())
	assert.Equal(t, 0, r.SessionCount())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeInternal, ErrorCode(errors.New("boom")))
	assert.Equal(t, CodeUnknownEvent, ErrorCode(fmt.Errorf("wrap: %w", ErrUnknownEventType)))
	assert.Equal(t, CodeChatConflict, ErrorCode(fmt.Errorf("wrap: %w", ErrChatConflict)))
}
