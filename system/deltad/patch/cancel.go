package patch

// CancelOnNoChange tracks whether a transaction changed anything. A commit
// that follows no add, delete or prefix event since the last begin goes to
// the next sink's no-change path (see NoChangeCommitter) instead of being
// forwarded as an ordinary commit. Headers do not count as changes.
//
// The flag belongs to the current transaction: begin and abort reset it.
type CancelOnNoChange struct {
	next    Sink
	changed bool
}

func NewCancelOnNoChange(next Sink) *CancelOnNoChange {
	return &CancelOnNoChange{next: next}
}

func (c *CancelOnNoChange) WriteEvent(ev *Event) error {
	switch {
	case ev.Kind == KindBegin:
		c.changed = false
	case ev.Kind == KindAbort:
		c.changed = false
	case ev.Kind == KindCommit:
		changed := c.changed
		c.changed = false
		if !changed {
			return commitNoChange(c.next)
		}
	case ev.Kind.IsData():
		c.changed = true
	}
	return c.next.WriteEvent(ev)
}

// CommitNoChange lets an upstream sink route its own no-change commits
// through c.
func (c *CancelOnNoChange) CommitNoChange() error {
	c.changed = false
	return commitNoChange(c.next)
}

// Changed reports whether the open transaction has changed anything.
func (c *CancelOnNoChange) Changed() bool {
	return c.changed
}
