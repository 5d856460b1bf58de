package patch

import (
	"log/slog"
)

// LogSink logs each event at debug level and forwards it.
type LogSink struct {
	next Sink
	log  *slog.Logger
}

func NewLogSink(next Sink, log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{next: next, log: log}
}

func (s *LogSink) WriteEvent(ev *Event) error {
	s.log.Debug("event", "op", ev.Kind.String(), "event", ev.String())
	return s.next.WriteEvent(ev)
}

func (s *LogSink) CommitNoChange() error {
	s.log.Debug("event", "op", KindCommit.String(), "noChange", true)
	return commitNoChange(s.next)
}
