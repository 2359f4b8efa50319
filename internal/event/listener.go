package event

import (
	"context"
	"log/slog"
)

type Handler func(ctx context.Context, e Event) error

var events = make(chan Event, 100)

// Send publishes e to the process wide listener. It never blocks the caller:
// when the queue is full the event is dropped.
func Send(e Event) {
	select {
	case events <- e:
	default:
	}
}

type Listener struct {
	logger   *slog.Logger
	handlers []Handler
}

func NewListener(logger *slog.Logger) *Listener {
	return &Listener{logger: logger}
}

// Register adds h. Handlers must be registered before Listen is called.
func (l *Listener) Register(h Handler) {
	l.handlers = append(l.handlers, h)
}

// Listen dispatches queued events to every handler until ctx is done.
func (l *Listener) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			for _, h := range l.handlers {
				if err := h(ctx, e); err != nil {
					l.logger.Warn("error handling event",
						slog.String("event", e.Kind()),
						slog.Any("error", err))
				}
			}
		}
	}
}
