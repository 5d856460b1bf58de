package patch

// Sink receives patch events in order.
type Sink interface {
	WriteEvent(ev *Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev *Event) error

func (f SinkFunc) WriteEvent(ev *Event) error {
	return f(ev)
}

// NoChangeCommitter is implemented by sinks that have a cheaper path for
// committing a transaction which made no change, for example skipping a
// network round trip or a disk sync.
type NoChangeCommitter interface {
	CommitNoChange() error
}

// commitNoChange routes a no-change commit to next, using its cheap path
// when it has one and an ordinary commit otherwise.
func commitNoChange(next Sink) error {
	if nc, ok := next.(NoChangeCommitter); ok {
		return nc.CommitNoChange()
	}
	return next.WriteEvent(&Event{Kind: KindCommit})
}

type discard struct{}

func (discard) WriteEvent(*Event) error { return nil }

// Discard is a Sink that accepts and drops every event.
var Discard Sink = discard{}

// Tee writes every event to each sink in order and stops at the first error.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ev *Event) error {
		for _, s := range sinks {
			e := *ev
			if err := s.WriteEvent(&e); err != nil {
				return err
			}
		}
		return nil
	})
}
