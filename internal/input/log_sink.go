package input

import (
	"log/slog"
)

// LogSink is a dry-run Sink: it only logs what would have been injected.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Press(a Action) error {
	s.logger.Info("PRESS", slog.String("key", a.String()))
	return nil
}

func (s *LogSink) Release(a Action) error {
	s.logger.Info("RELEASE", slog.String("key", a.String()))
	return nil
}

func (s *LogSink) Send(actions []KeyAction) error {
	for _, ka := range actions {
		s.logger.Info("BATCH "+ka.Type.String(), slog.String("key", ka.Action.String()))
	}
	return nil
}
