package client

import (
	"context"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/patch"
)

// Changes returns a sink for local changes. Events written to it are
// applied to the client's target and collected; each committed
// transaction is sent to the server as one patch. A transaction that
// changed nothing commits locally without a round trip.
//
// Data events must be inside a transaction.
func (c *Client) Changes(ctx context.Context) *patch.CancelOnNoChange {
	return patch.NewCancelOnNoChange(&changeRecorder{c: c, ctx: ctx})
}

type changeRecorder struct {
	c     *Client
	ctx   context.Context
	inTxn bool
	body  []patch.Event
}

func (r *changeRecorder) WriteEvent(ev *patch.Event) error {
	target := r.c.cfg.Target
	switch ev.Kind {
	case patch.KindHeader:
		return nil
	case patch.KindBegin:
		if r.inTxn {
			return api.NewError(api.ErrCodeBadPatch, "nested transaction")
		}
		r.inTxn = true
		r.body = append(r.body[:0], *ev)
		return target.WriteEvent(ev)
	case patch.KindAbort:
		if !r.inTxn {
			return api.NewError(api.ErrCodeBadPatch, "abort outside transaction")
		}
		r.inTxn = false
		r.body = r.body[:0]
		return target.WriteEvent(ev)
	case patch.KindCommit:
		if !r.inTxn {
			return api.NewError(api.ErrCodeBadPatch, "commit outside transaction")
		}
		r.inTxn = false
		if err := target.WriteEvent(ev); err != nil {
			return err
		}
		r.body = append(r.body, *ev)
		err := r.send()
		r.body = r.body[:0]
		return err
	}
	if !r.inTxn {
		return api.Errorf(api.ErrCodeBadPatch, "%s outside transaction", ev.Kind)
	}
	if err := target.WriteEvent(ev); err != nil {
		return err
	}
	r.body = append(r.body, *ev)
	return nil
}

// CommitNoChange ends a transaction that changed nothing, without
// sending anything.
func (r *changeRecorder) CommitNoChange() error {
	if !r.inTxn {
		return api.NewError(api.ErrCodeBadPatch, "commit outside transaction")
	}
	r.inTxn = false
	r.body = r.body[:0]
	if nc, ok := r.c.cfg.Target.(patch.NoChangeCommitter); ok {
		return nc.CommitNoChange()
	}
	return r.c.cfg.Target.WriteEvent(&patch.Event{Kind: patch.KindCommit})
}

func (r *changeRecorder) send() error {
	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.resolveHeadLocked(r.ctx); err != nil {
		return err
	}
	b := patch.NewBuilder(api.NewId(), c.head)
	for i := range r.body {
		if err := b.WriteEvent(&r.body[i]); err != nil {
			return err
		}
	}
	_, err := c.sendLocked(r.ctx, b.Patch())
	return err
}
