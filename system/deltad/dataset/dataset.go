// Package dataset provides an in-memory quad store that patches can be
// applied to. It is the replay target for clients that keep their replica
// in memory and the reference target in tests.
package dataset

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/signadot/deltalog/system/deltad/patch"
)

// Dataset is a set of quads plus per-graph namespace prefixes.
//
// Dataset implements patch.Sink. Transactions are atomic: begin takes a
// snapshot, abort restores it. Events outside a transaction apply
// immediately.
type Dataset struct {
	mu       sync.RWMutex
	quads    map[patch.Quad]struct{}
	prefixes map[string]map[string]string // graph -> prefix -> uri

	// snapshot taken at begin, nil outside a transaction
	txn *snapshot

	commits         int
	noChangeCommits int
	aborts          int
}

type snapshot struct {
	quads    map[patch.Quad]struct{}
	prefixes map[string]map[string]string
}

func New() *Dataset {
	return &Dataset{
		quads:    map[patch.Quad]struct{}{},
		prefixes: map[string]map[string]string{},
	}
}

// WriteEvent applies one event.
func (d *Dataset) WriteEvent(ev *patch.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch ev.Kind {
	case patch.KindHeader:
		return nil
	case patch.KindBegin:
		if d.txn != nil {
			return fmt.Errorf("transaction already active")
		}
		d.txn = d.snapshotLocked()
		return nil
	case patch.KindCommit:
		if d.txn == nil {
			return fmt.Errorf("commit outside transaction")
		}
		d.txn = nil
		d.commits++
		return nil
	case patch.KindAbort:
		if d.txn == nil {
			return fmt.Errorf("abort outside transaction")
		}
		d.quads, d.prefixes = d.txn.quads, d.txn.prefixes
		d.txn = nil
		d.aborts++
		return nil
	case patch.KindAdd:
		q := ev.Quad()
		if err := checkQuad(q); err != nil {
			return err
		}
		d.quads[q] = struct{}{}
		return nil
	case patch.KindDelete:
		q := ev.Quad()
		if err := checkQuad(q); err != nil {
			return err
		}
		delete(d.quads, q)
		return nil
	case patch.KindAddPrefix:
		if err := checkPrefix(ev.Prefix); err != nil {
			return err
		}
		if ev.URI == "" {
			return fmt.Errorf("prefix %q: empty uri", ev.Prefix)
		}
		g := d.prefixes[ev.Graph]
		if g == nil {
			g = map[string]string{}
			d.prefixes[ev.Graph] = g
		}
		g[ev.Prefix] = ev.URI
		return nil
	case patch.KindDeletePrefix:
		if err := checkPrefix(ev.Prefix); err != nil {
			return err
		}
		if g := d.prefixes[ev.Graph]; g != nil {
			delete(g, ev.Prefix)
			if len(g) == 0 {
				delete(d.prefixes, ev.Graph)
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported event %s", ev.Kind)
}

// CommitNoChange ends a transaction that made no change without the
// bookkeeping of a full commit.
func (d *Dataset) CommitNoChange() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.txn == nil {
		return fmt.Errorf("commit outside transaction")
	}
	d.txn = nil
	d.noChangeCommits++
	return nil
}

func (d *Dataset) snapshotLocked() *snapshot {
	s := &snapshot{
		quads:    maps.Clone(d.quads),
		prefixes: make(map[string]map[string]string, len(d.prefixes)),
	}
	for g, m := range d.prefixes {
		s.prefixes[g] = maps.Clone(m)
	}
	// the live maps become the working copy, the clones the restore point
	return s
}

func checkQuad(q patch.Quad) error {
	if q.Subject == "" || q.Predicate == "" || q.Object == "" {
		return fmt.Errorf("incomplete statement %q", q)
	}
	return nil
}

func checkPrefix(p string) error {
	for i, r := range p {
		if r == ':' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("malformed prefix %q", p)
		}
		if i == 0 && !unicode.IsLetter(r) {
			return fmt.Errorf("malformed prefix %q", p)
		}
	}
	return nil
}

// Contains reports whether q is in the dataset.
func (d *Dataset) Contains(q patch.Quad) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.quads[q]
	return ok
}

// Len returns the number of quads.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.quads)
}

// Quads returns all quads, sorted.
func (d *Dataset) Quads() []patch.Quad {
	d.mu.RLock()
	defer d.mu.RUnlock()
	res := slices.Collect(maps.Keys(d.quads))
	slices.SortFunc(res, func(a, b patch.Quad) int {
		return strings.Compare(a.Graph+"\x00"+a.String(), b.Graph+"\x00"+b.String())
	})
	return res
}

// Prefix returns the uri bound to prefix in graph.
func (d *Dataset) Prefix(graph, prefix string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	uri, ok := d.prefixes[graph][prefix]
	return uri, ok
}

// InTxn reports whether a transaction is active.
func (d *Dataset) InTxn() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.txn != nil
}

// Stats counts finished transactions.
type Stats struct {
	Commits         int
	NoChangeCommits int
	Aborts          int
}

func (d *Dataset) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Stats{Commits: d.commits, NoChangeCommits: d.noChangeCommits, Aborts: d.aborts}
}

// Dump returns an N-Quads like listing of the dataset, one statement per
// line, prefixes first.
func (d *Dataset) Dump() string {
	b := &strings.Builder{}
	d.mu.RLock()
	graphs := slices.Sorted(maps.Keys(d.prefixes))
	for _, g := range graphs {
		m := d.prefixes[g]
		for _, p := range slices.Sorted(maps.Keys(m)) {
			if g == "" {
				fmt.Fprintf(b, "@prefix %s: <%s> .\n", p, m[p])
				continue
			}
			fmt.Fprintf(b, "@prefix %s: <%s> %s .\n", p, m[p], g)
		}
	}
	d.mu.RUnlock()
	for _, q := range d.Quads() {
		fmt.Fprintf(b, "%s .\n", q)
	}
	return b.String()
}
