package patch

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// filterEnv is the environment filter expressions are evaluated in.
type filterEnv struct {
	Op        string `expr:"op"`
	Graph     string `expr:"graph"`
	Subject   string `expr:"subject"`
	Predicate string `expr:"predicate"`
	Object    string `expr:"object"`
	Prefix    string `expr:"prefix"`
	URI       string `expr:"uri"`
}

// Filter forwards data events (add, delete and prefix events) only when an
// expression over the event evaluates to true. Headers and transaction
// markers always pass. For example
//
//	op == "A" && graph == ""
//	not (predicate startsWith "http://example.org/private#")
type Filter struct {
	next    Sink
	prog    *vm.Program
	dropped int
}

// NewFilter compiles expression and returns a filter in front of next.
func NewFilter(next Sink, expression string) (*Filter, error) {
	prog, err := expr.Compile(expression, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expression, err)
	}
	return &Filter{next: next, prog: prog}, nil
}

func (f *Filter) WriteEvent(ev *Event) error {
	if !ev.Kind.IsData() {
		return f.next.WriteEvent(ev)
	}
	out, err := expr.Run(f.prog, filterEnv{
		Op:        ev.Kind.String(),
		Graph:     ev.Graph,
		Subject:   ev.Subject,
		Predicate: ev.Predicate,
		Object:    ev.Object,
		Prefix:    ev.Prefix,
		URI:       ev.URI,
	})
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if keep, _ := out.(bool); !keep {
		f.dropped++
		return nil
	}
	return f.next.WriteEvent(ev)
}

func (f *Filter) CommitNoChange() error {
	return commitNoChange(f.next)
}

// Dropped returns the number of events the filter has dropped.
func (f *Filter) Dropped() int {
	return f.dropped
}
