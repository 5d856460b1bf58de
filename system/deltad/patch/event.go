package patch

import (
	"fmt"
)

// Kind identifies the type of a patch event.
type Kind uint8

const (
	KindHeader Kind = iota + 1
	KindBegin
	KindCommit
	KindAbort
	KindAdd
	KindDelete
	KindAddPrefix
	KindDeletePrefix
)

var kindCodes = map[Kind]string{
	KindHeader:       "H",
	KindBegin:        "TX",
	KindCommit:       "TC",
	KindAbort:        "TA",
	KindAdd:          "A",
	KindDelete:       "D",
	KindAddPrefix:    "PA",
	KindDeletePrefix: "PD",
}

func (k Kind) String() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind parses the short code of a kind ("A", "TX", ...).
func ParseKind(s string) (Kind, error) {
	for k, c := range kindCodes {
		if c == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// IsData reports whether events of kind k change dataset content.
func (k Kind) IsData() bool {
	switch k {
	case KindAdd, KindDelete, KindAddPrefix, KindDeletePrefix:
		return true
	}
	return false
}

// IsTxn reports whether k is a transaction marker.
func (k Kind) IsTxn() bool {
	return k == KindBegin || k == KindCommit || k == KindAbort
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindCodes[k]; !ok {
		return nil, fmt.Errorf("unknown event kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(d []byte) error {
	p, err := ParseKind(string(d))
	if err != nil {
		return err
	}
	*k = p
	return nil
}

// Quad is a statement: subject, predicate and object in a named graph.
// An empty Graph is the default graph.
type Quad struct {
	Graph     string
	Subject   string
	Predicate string
	Object    string
}

func (q Quad) String() string {
	if q.Graph == "" {
		return fmt.Sprintf("%s %s %s", q.Subject, q.Predicate, q.Object)
	}
	return fmt.Sprintf("%s %s %s %s", q.Subject, q.Predicate, q.Object, q.Graph)
}

// Event is a single patch event. Which fields are meaningful depends on
// Kind: Key and Value for headers, the quad fields for add and delete,
// Graph, Prefix and URI for prefix events.
type Event struct {
	Kind      Kind   `msgpack:"k" yaml:"op"`
	Key       string `msgpack:"hk,omitempty" yaml:"key,omitempty"`
	Value     string `msgpack:"hv,omitempty" yaml:"value,omitempty"`
	Graph     string `msgpack:"g,omitempty" yaml:"g,omitempty"`
	Subject   string `msgpack:"s,omitempty" yaml:"s,omitempty"`
	Predicate string `msgpack:"p,omitempty" yaml:"p,omitempty"`
	Object    string `msgpack:"o,omitempty" yaml:"o,omitempty"`
	Prefix    string `msgpack:"pfx,omitempty" yaml:"prefix,omitempty"`
	URI       string `msgpack:"uri,omitempty" yaml:"uri,omitempty"`
}

// Quad returns the statement carried by an add or delete event.
func (ev *Event) Quad() Quad {
	return Quad{Graph: ev.Graph, Subject: ev.Subject, Predicate: ev.Predicate, Object: ev.Object}
}

func (ev *Event) String() string {
	switch ev.Kind {
	case KindHeader:
		return fmt.Sprintf("H %s %s", ev.Key, ev.Value)
	case KindAdd, KindDelete:
		return fmt.Sprintf("%s %s", ev.Kind, ev.Quad())
	case KindAddPrefix:
		return fmt.Sprintf("PA %s: <%s> %s", ev.Prefix, ev.URI, ev.Graph)
	case KindDeletePrefix:
		return fmt.Sprintf("PD %s: %s", ev.Prefix, ev.Graph)
	}
	return ev.Kind.String()
}

func headerEvent(key, value string) Event {
	return Event{Kind: KindHeader, Key: key, Value: value}
}

func quadEvent(k Kind, q Quad) Event {
	return Event{Kind: k, Graph: q.Graph, Subject: q.Subject, Predicate: q.Predicate, Object: q.Object}
}
