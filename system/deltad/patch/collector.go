package patch

import (
	"github.com/signadot/deltalog/system/deltad/api"
)

// Collector is a Sink that records events into a patch.
type Collector struct {
	events []Event
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) WriteEvent(ev *Event) error {
	c.events = append(c.events, *ev)
	return nil
}

// Patch returns a patch of the events collected so far.
func (c *Collector) Patch() *Patch {
	return FromEvents(c.events)
}

// Reset drops the collected events.
func (c *Collector) Reset() {
	c.events = c.events[:0]
}

// Builder assembles a patch. Headers are always emitted before the body,
// whatever order the methods are called in.
type Builder struct {
	headers []Event
	body    []Event
}

// NewBuilder returns a builder for a patch with the given id and
// predecessor. prev may be the nil id.
func NewBuilder(id, prev api.Id) *Builder {
	b := &Builder{}
	b.Header(HeaderId, id.String())
	if !prev.IsNil() {
		b.Header(HeaderPrev, prev.String())
	}
	return b
}

// Header sets a header, replacing an earlier one with the same key.
func (b *Builder) Header(key, value string) *Builder {
	for i := range b.headers {
		if b.headers[i].Key == key {
			b.headers[i].Value = value
			return b
		}
	}
	b.headers = append(b.headers, headerEvent(key, value))
	return b
}

// Prev sets or replaces the predecessor header.
func (b *Builder) Prev(prev api.Id) *Builder {
	return b.Header(HeaderPrev, prev.String())
}

func (b *Builder) Begin() *Builder {
	b.body = append(b.body, Event{Kind: KindBegin})
	return b
}

func (b *Builder) Commit() *Builder {
	b.body = append(b.body, Event{Kind: KindCommit})
	return b
}

func (b *Builder) Abort() *Builder {
	b.body = append(b.body, Event{Kind: KindAbort})
	return b
}

func (b *Builder) Add(q Quad) *Builder {
	b.body = append(b.body, quadEvent(KindAdd, q))
	return b
}

func (b *Builder) Delete(q Quad) *Builder {
	b.body = append(b.body, quadEvent(KindDelete, q))
	return b
}

func (b *Builder) AddPrefix(graph, prefix, uri string) *Builder {
	b.body = append(b.body, Event{Kind: KindAddPrefix, Graph: graph, Prefix: prefix, URI: uri})
	return b
}

func (b *Builder) DeletePrefix(graph, prefix string) *Builder {
	b.body = append(b.body, Event{Kind: KindDeletePrefix, Graph: graph, Prefix: prefix})
	return b
}

// WriteEvent lets a Builder collect events from a sink chain. Headers go
// through Header.
func (b *Builder) WriteEvent(ev *Event) error {
	if ev.Kind == KindHeader {
		b.Header(ev.Key, ev.Value)
		return nil
	}
	b.body = append(b.body, *ev)
	return nil
}

// Len returns the number of body events.
func (b *Builder) Len() int {
	return len(b.body)
}

// Patch returns the patch built so far.
func (b *Builder) Patch() *Patch {
	evs := make([]Event, 0, len(b.headers)+len(b.body))
	evs = append(evs, b.headers...)
	evs = append(evs, b.body...)
	return &Patch{events: evs}
}
