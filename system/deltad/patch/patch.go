// Package patch defines patches, ordered sequences of dataset change events,
// and the sinks they are replayed through.
//
// A patch starts with headers, two of which are required by logs: "id", the
// patch's own id, and "prev", the id of the patch it follows (absent for the
// first patch of a log). The body is a sequence of add, delete and prefix
// events, optionally grouped by TX/TC/TA transaction markers.
//
// Sinks receive events one at a time and can be stacked:
//
//	target := dataset.New()
//	sink := patch.NewCancelOnNoChange(patch.NewLogSink(target, log))
//	err := p.Apply(sink)
package patch

import (
	"fmt"

	"github.com/signadot/deltalog/system/deltad/api"
)

// Header keys with meaning to the log.
const (
	HeaderId   = "id"
	HeaderPrev = "prev"
)

// Patch is an immutable sequence of events.
type Patch struct {
	events []Event
}

// FromEvents returns a patch holding a copy of evs.
func FromEvents(evs []Event) *Patch {
	return &Patch{events: append([]Event(nil), evs...)}
}

// Events returns a copy of the patch's events.
func (p *Patch) Events() []Event {
	return append([]Event(nil), p.events...)
}

// Len returns the number of events.
func (p *Patch) Len() int {
	return len(p.events)
}

// Header returns the value of the first header with the given key.
func (p *Patch) Header(key string) (string, bool) {
	for i := range p.events {
		ev := &p.events[i]
		if ev.Kind != KindHeader {
			continue
		}
		if ev.Key == key {
			return ev.Value, true
		}
	}
	return "", false
}

// ID returns the patch id, or the nil id if the header is missing or malformed.
func (p *Patch) ID() api.Id {
	return p.headerId(HeaderId)
}

// Previous returns the id of the preceding patch, or the nil id.
func (p *Patch) Previous() api.Id {
	return p.headerId(HeaderPrev)
}

func (p *Patch) headerId(key string) api.Id {
	v, ok := p.Header(key)
	if !ok {
		return api.Id{}
	}
	id, err := api.ParseId(v)
	if err != nil {
		return api.Id{}
	}
	return id
}

// IsEmpty reports whether the patch has no data events.
func (p *Patch) IsEmpty() bool {
	for i := range p.events {
		if p.events[i].Kind.IsData() {
			return false
		}
	}
	return true
}

// Validate checks the structure of the patch. Violations are reported as
// api.ErrBadPatch errors.
func (p *Patch) Validate() error {
	v, ok := p.Header(HeaderId)
	if !ok {
		return api.NewError(api.ErrCodeBadPatch, "missing id header")
	}
	if id, err := api.ParseId(v); err != nil || id.IsNil() {
		return api.Errorf(api.ErrCodeBadPatch, "bad id header %q", v)
	}
	if v, ok := p.Header(HeaderPrev); ok && v != "" {
		if _, err := api.ParseId(v); err != nil {
			return api.Errorf(api.ErrCodeBadPatch, "bad prev header %q", v)
		}
	}
	inBody := false
	inTxn := false
	for i := range p.events {
		ev := &p.events[i]
		switch ev.Kind {
		case KindHeader:
			if inBody {
				return api.Errorf(api.ErrCodeBadPatch, "event %d: header %q after body", i, ev.Key)
			}
			continue
		case KindBegin:
			if inTxn {
				return api.Errorf(api.ErrCodeBadPatch, "event %d: nested transaction", i)
			}
			inTxn = true
		case KindCommit, KindAbort:
			if !inTxn {
				return api.Errorf(api.ErrCodeBadPatch, "event %d: %s outside transaction", i, ev.Kind)
			}
			inTxn = false
		case KindAdd, KindDelete, KindAddPrefix, KindDeletePrefix:
		default:
			return api.Errorf(api.ErrCodeBadPatch, "event %d: unknown kind %d", i, uint8(ev.Kind))
		}
		inBody = true
	}
	if inTxn {
		return api.NewError(api.ErrCodeBadPatch, "transaction not closed")
	}
	return nil
}

// Apply replays the patch's events, in order, into s. The first event s
// rejects stops the replay with an *ApplyError. Events applied before the
// failure are not undone here; that is up to the target's transactions.
func (p *Patch) Apply(s Sink) error {
	for i := range p.events {
		ev := p.events[i]
		if err := s.WriteEvent(&ev); err != nil {
			return &ApplyError{Index: i, Event: p.events[i], Err: err}
		}
	}
	return nil
}

func (p *Patch) String() string {
	return fmt.Sprintf("patch %s (prev %s, %d events)", p.ID().Short(), p.Previous().Short(), len(p.events))
}

// ApplyError reports an event rejected during Apply.
type ApplyError struct {
	Index int
	Event Event
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply event %d (%s): %v", e.Index, &e.Event, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Is matches api.ErrPatchApply.
func (e *ApplyError) Is(target error) bool {
	t, ok := target.(*api.Error)
	return ok && t.Code == api.ErrCodePatchApply
}
