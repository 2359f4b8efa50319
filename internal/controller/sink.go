package controller

import (
	"time"

	"github.com/chakramx/chakram/internal/input"
	"github.com/chakramx/chakram/internal/motion"
)

// Tracer receives every accepted sample and every injected action.
// Implementations must not block.
type Tracer interface {
	RecordSample(s motion.Sample)
	RecordAction(t time.Time, ka input.KeyAction, err error)
}

// tracingSink forwards to the real sink and reports each call to the tracer
// stamped with the current tick time.
type tracingSink struct {
	inner  input.Sink
	tracer Tracer
	now    func() time.Time
}

func (s *tracingSink) Press(a input.Action) error {
	err := s.inner.Press(a)
	s.tracer.RecordAction(s.now(), input.PressOf(a), err)
	return err
}

func (s *tracingSink) Release(a input.Action) error {
	err := s.inner.Release(a)
	s.tracer.RecordAction(s.now(), input.ReleaseOf(a), err)
	return err
}

type tracingBatchSink struct {
	tracingSink
	batch input.BatchSink
}

func (s *tracingBatchSink) Send(actions []input.KeyAction) error {
	err := s.batch.Send(actions)
	t := s.now()
	for _, ka := range actions {
		s.tracer.RecordAction(t, ka, err)
	}
	return err
}

func wrapSink(inner input.Sink, tracer Tracer, now func() time.Time) input.Sink {
	if tracer == nil {
		return inner
	}
	ts := tracingSink{inner: inner, tracer: tracer, now: now}
	if b, ok := inner.(input.BatchSink); ok {
		return &tracingBatchSink{tracingSink: ts, batch: b}
	}
	return &ts
}
