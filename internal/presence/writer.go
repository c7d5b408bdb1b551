package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type opKind int

const (
	opUpsert opKind = iota
	opDelete
)

func (k opKind) String() string {
	if k == opDelete {
		return "delete"
	}
	return "upsert"
}

type op struct {
	kind opKind
	rec  Record
}

// Writer applies presence writes to a Store in the background. Upsert and
// Delete never block: when the queue is full the write is dropped and logged.
// Writes are applied in the order they were queued.
type Writer struct {
	store   Store
	ops     chan op
	timeout time.Duration
	log     *slog.Logger
	writes  *prometheus.CounterVec
	done    chan struct{}
}

// NewWriter returns a Writer for store. Call Run to start applying writes.
func NewWriter(store Store, log *slog.Logger, bufferSize int, timeout time.Duration, reg prometheus.Registerer) *Writer {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Writer{
		store:   store,
		ops:     make(chan op, bufferSize),
		timeout: timeout,
		log:     log,
		writes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairchat",
			Name:      "presence_writes_total",
			Help:      "Presence writes by operation and result.",
		}, []string{"op", "result"}),
		done: make(chan struct{}),
	}
}

// Upsert queues userID as online since at.
func (w *Writer) Upsert(userID, name string, at time.Time) {
	w.enqueue(op{kind: opUpsert, rec: Record{UserID: userID, Name: name, ConnectedAt: at}})
}

// Delete queues the removal of userID.
func (w *Writer) Delete(userID string) {
	w.enqueue(op{kind: opDelete, rec: Record{UserID: userID}})
}

func (w *Writer) enqueue(o op) {
	select {
	case w.ops <- o:
	default:
		w.writes.WithLabelValues(o.kind.String(), "dropped").Inc()
		w.log.Warn("Presence queue full, dropping write", "op", o.kind.String(), "user_id", o.rec.UserID)
	}
}

// Run applies queued writes until ctx is cancelled, then flushes whatever is
// still queued and returns. Cancelling ctx stops the loop but does not abort
// writes already dequeued.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			w.flush(writeCtx)
			return
		case o := <-w.ops:
			w.apply(writeCtx, o)
		}
	}
}

// Done is closed once Run has returned.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

func (w *Writer) flush(ctx context.Context) {
	for {
		select {
		case o := <-w.ops:
			w.apply(ctx, o)
		default:
			return
		}
	}
}

func (w *Writer) apply(ctx context.Context, o op) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var err error
	switch o.kind {
	case opUpsert:
		err = w.store.Upsert(ctx, o.rec)
	case opDelete:
		err = w.store.Delete(ctx, o.rec.UserID)
	}
	if err != nil {
		w.writes.WithLabelValues(o.kind.String(), "error").Inc()
		w.log.Warn("Presence write failed", "op", o.kind.String(), "user_id", o.rec.UserID, "err", err)
		return
	}
	w.writes.WithLabelValues(o.kind.String(), "ok").Inc()
}
