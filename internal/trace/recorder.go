package trace

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chakramx/chakram/internal/event"
	"github.com/chakramx/chakram/internal/input"
	"github.com/chakramx/chakram/internal/motion"
)

const flushInterval = 250 * time.Millisecond

type recordKind uint8

const (
	recordSample recordKind = iota + 1
	recordAction
	recordEvent
)

type record struct {
	kind recordKind
	seq  int64
	t    time.Time

	sample motion.Sample
	action input.KeyAction
	err    string

	eventID   uuid.UUID
	eventKind string
	message   string
}

// Recorder queues trace records from the tick goroutine without blocking it
// and writes them in batches from Run.
type Recorder struct {
	logger    *slog.Logger
	store     *Store
	session   Session
	queue     chan record
	batchSize int
	dropped   atomic.Int64
	written   atomic.Int64

	sampleSeq int64
	actionSeq int64
}

func NewRecorder(logger *slog.Logger, store *Store, session Session, queueSize, batchSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 4096
	}
	if batchSize <= 0 {
		batchSize = 256
	}
	return &Recorder{
		logger:    logger,
		store:     store,
		session:   session,
		queue:     make(chan record, queueSize),
		batchSize: batchSize,
	}
}

func (r *Recorder) Session() Session {
	return r.session
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) RecordSample(s motion.Sample) {
	r.enqueue(record{kind: recordSample, t: s.T, sample: s})
}

func (r *Recorder) RecordAction(t time.Time, ka input.KeyAction, err error) {
	rec := record{kind: recordAction, t: t, action: ka}
	if err != nil {
		rec.err = err.Error()
	}
	r.enqueue(rec)
}

// HandleEvent is an event.Handler that records every published event.
func (r *Recorder) HandleEvent(_ context.Context, e event.Event) error {
	r.enqueue(record{
		kind:      recordEvent,
		t:         e.OccurredAt(),
		eventID:   e.ID(),
		eventKind: e.Kind(),
		message:   e.Message(),
	})
	return nil
}

// Dropped is the number of records discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Run writes queued records until ctx is done, then flushes what is left and
// closes the session.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]record, 0, r.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.store.writeBatch(ctx, r.session.ID, batch); err != nil {
			r.logger.Error("Failed to write trace batch", slog.Int("records", len(batch)), slog.Any("error", err))
		} else {
			r.written.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		drain:
			for {
				select {
				case rec := <-r.queue:
					batch = append(batch, r.number(rec))
					if len(batch) >= r.batchSize {
						flush(drainCtx)
					}
				default:
					break drain
				}
			}
			flush(drainCtx)
			if err := r.store.EndSession(drainCtx, r.session.ID, time.Now()); err != nil {
				r.logger.Warn("Failed to close trace session", slog.Any("error", err))
			}
			cancel()
			if n := r.Dropped(); n > 0 {
				r.logger.Warn("Trace records dropped", slog.Int64("dropped", n))
			}
			return nil
		case rec := <-r.queue:
			batch = append(batch, r.number(rec))
			if len(batch) >= r.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// number assigns per table sequence numbers in queue order.
func (r *Recorder) number(rec record) record {
	switch rec.kind {
	case recordSample:
		r.sampleSeq++
		rec.seq = r.sampleSeq
	case recordAction:
		r.actionSeq++
		rec.seq = r.actionSeq
	}
	return rec
}
