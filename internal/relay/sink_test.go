package relay

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// recordingSink captures every event delivered to it. A failing sink rejects
// every send, the way a broken socket would.
type recordingSink struct {
	mu     sync.Mutex
	events []Outbound
	fail   bool
	closed bool
}

func (s *recordingSink) Send(ev Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if s.fail {
		return ErrSinkFull
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSink) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *recordingSink) all() []Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outbound(nil), s.events...)
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *recordingSink) ofType(eventType string) []Outbound {
	var out []Outbound
	for _, ev := range s.all() {
		if ev.EventType() == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSink) last() Outbound {
	events := s.all()
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

type presenceCall struct {
	op     string
	userID string
	name   string
}

type recordingPresence struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (p *recordingPresence) Upsert(userID, name string, _ time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, presenceCall{op: "upsert", userID: userID, name: name})
}

func (p *recordingPresence) Delete(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, presenceCall{op: "delete", userID: userID})
}

func (p *recordingPresence) all() []presenceCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]presenceCall(nil), p.calls...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
