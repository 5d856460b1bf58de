// Package client keeps a local replica of a dataset in step with a patch
// log server.
//
// A Client replays the server's patches, in version order, into a target
// sink and records how far it got in a VersionCell. Sync is explicit: the
// client runs no background goroutines, callers decide when to sync.
//
//	c, err := client.New(ctx, client.Config{
//		Dataset:  id,
//		Link:     lnk,
//		Versions: &client.FileCell{Path: "people.version"},
//		Target:   ds,
//	})
//	...
//	err = c.Sync(ctx)
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/link"
	"github.com/signadot/deltalog/system/deltad/patch"
)

// DefaultPrefetch is the number of concurrent fetches during Sync.
const DefaultPrefetch = 4

// Config configures a Client.
type Config struct {
	// Label names the client in logs.
	Label string
	// Dataset is the id of the dataset to track. Required.
	Dataset api.Id
	// Link reaches the server. Required. Send needs it registered.
	Link link.Link
	// Versions persists the local version. Defaults to a MemCell.
	Versions VersionCell
	// Target receives replayed patches. Defaults to patch.Discard.
	Target patch.Sink
	// Filter, if set, is a patch.Filter expression; data events for which
	// it is false are not replayed into Target.
	Filter string
	// Prefetch bounds concurrent fetches. Defaults to DefaultPrefetch.
	Prefetch int
	Log      *slog.Logger
}

// Client tracks one dataset.
//
// Sync and Send share one lock: at most one of them runs at a time, and
// only they change the local version.
type Client struct {
	cfg      Config
	log      *slog.Logger
	pipeline patch.Sink

	mu        sync.Mutex
	localVer  api.Version
	remoteVer api.Version
	// head is the id of the patch at localVer, when known
	head      api.Id
	headKnown bool
}

// New returns a client starting from the version stored in cfg.Versions.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Dataset.IsNil() {
		return nil, api.NewError(api.ErrCodeMalformedId, "client: nil dataset id")
	}
	if cfg.Link == nil {
		return nil, errors.New("client: link is required")
	}
	if cfg.Versions == nil {
		cfg.Versions = &MemCell{}
	}
	if cfg.Target == nil {
		cfg.Target = patch.Discard
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = DefaultPrefetch
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Label == "" {
		cfg.Label = cfg.Dataset.Short()
	}
	c := &Client{
		cfg:       cfg,
		log:       cfg.Log.With("component", "client", "client", cfg.Label, "dataset", cfg.Dataset.Short()),
		remoteVer: api.Unset,
	}

	// filtered events never reach the no-change tracker, so a transaction
	// whose changes are all filtered out commits as a no-change
	var sink patch.Sink = patch.NewCancelOnNoChange(patch.NewLogSink(cfg.Target, c.log))
	if cfg.Filter != "" {
		f, err := patch.NewFilter(sink, cfg.Filter)
		if err != nil {
			return nil, err
		}
		sink = f
	}
	c.pipeline = sink

	v, err := cfg.Versions.Load()
	if err != nil {
		return nil, fmt.Errorf("load local version: %w", err)
	}
	c.localVer = v
	if v == api.Init {
		c.headKnown = true
	}
	c.log.Debug("client started", "localVersion", v)
	return c, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("Client[%s %s]", c.cfg.Label, c.cfg.Dataset)
}

// LocalVersion returns the version of the last patch applied locally.
func (c *Client) LocalVersion() api.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localVer
}

// RemoteVersion returns the server's version as of the last Sync or Send
// that reached it, api.Unset before any did. An empty log reads as
// api.Init.
func (c *Client) RemoteVersion() api.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteVer
}

// recoverable reports whether a failed remote version query is logged and
// given up on: the server could not be reached, or it answered with a
// failure status other than not found.
func recoverable(err error) bool {
	if errors.Is(err, api.ErrNotFound) {
		return false
	}
	var se *link.StatusError
	return errors.Is(err, api.ErrTransient) || errors.As(err, &se)
}

// Sync brings the local replica up to the server's current version.
//
// Patches after the local version are fetched in windows of up to
// Prefetch patches, concurrently within a window, and applied strictly in
// version order. The local version is stored after each window.
//
// If the remote version cannot be read because the server is unreachable
// or answers with a failure status, Sync logs it and returns nil with
// nothing changed, so a caller syncing on a timer simply tries again
// later. An unknown dataset is reported as api.ErrNotFound on every link.
// A transient failure while fetching patches keeps the progress made so
// far and also returns nil; any other fetch failure is returned.
//
// If the target rejects a patch, the local version is stored as the
// last patch that applied completely and the *patch.ApplyError is
// returned.
func (c *Client) Sync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	remote, err := c.cfg.Link.GetCurrentVersion(ctx, c.cfg.Dataset)
	if err != nil {
		if recoverable(err) {
			c.log.Warn("sync: cannot get remote version", "error", err)
			return nil
		}
		return err
	}
	if remote == api.Unset {
		remote = api.Init
	}
	c.remoteVer = remote
	local := c.localVer
	if local > remote {
		c.log.Warn("Local version ahead of remote", "local", local, "remote", remote)
		return nil
	}
	if local == remote {
		return nil
	}

	from, to := local.Next(), remote
	c.log.Info(fmt.Sprintf("Patch range [%d, %d]", from, to))
	if err := c.resolveHeadLocked(ctx); err != nil {
		return c.stopSyncLocked(local, err)
	}

	applied := local
	window := api.Version(c.cfg.Prefetch)
	for start := from; start <= to; start += window {
		end := min(start+window-1, to)
		patches, err := c.fetchRange(ctx, start, end)
		if err != nil {
			return c.stopSyncLocked(applied, err)
		}
		for i, p := range patches {
			v := start + api.Version(i)
			// the first patch of a log has no predecessor to check
			if prev := p.Previous(); v != api.Init.Next() && prev != c.head {
				err := api.Errorf(api.ErrCodeBadPatch, "patch %s at version %d follows %s, local head is %s", p.ID(), v, prev, c.head)
				return c.stopSyncLocked(applied, err)
			}
			if err := p.Apply(c.pipeline); err != nil {
				c.log.Error("sync: patch failed to apply", "version", v, "patch", p.ID().Short(), "error", err)
				return c.stopSyncLocked(applied, err)
			}
			applied = v
			c.head = p.ID()
			c.log.Info(fmt.Sprintf("sync: patch=%d", v), "patch", p.ID().Short())
		}
		if err := c.cfg.Versions.Store(applied); err != nil {
			return fmt.Errorf("store local version %d: %w", applied, err)
		}
		c.localVer = applied
	}
	return nil
}

// stopSyncLocked records the progress of an interrupted sync. Transient
// failures are logged and dropped so the next Sync resumes from there;
// other errors are returned.
func (c *Client) stopSyncLocked(applied api.Version, err error) error {
	if applied != c.localVer {
		if serr := c.cfg.Versions.Store(applied); serr != nil {
			return errors.Join(err, fmt.Errorf("store local version %d: %w", applied, serr))
		}
		c.localVer = applied
	}
	if errors.Is(err, api.ErrTransient) {
		c.log.Warn("sync: interrupted", "local", applied, "error", err)
		return nil
	}
	return err
}

// fetchRange fetches the patches at versions from through to, up to
// Prefetch at a time. Responses may arrive in any order; the result is in
// version order.
func (c *Client) fetchRange(ctx context.Context, from, to api.Version) ([]*patch.Patch, error) {
	res := make([]*patch.Patch, int(to-from)+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Prefetch)
	for i := range res {
		v := from + api.Version(i)
		g.Go(func() error {
			p, err := c.cfg.Link.FetchVersion(gctx, c.cfg.Dataset, v)
			if err != nil {
				return err
			}
			if p == nil {
				return api.Errorf(api.ErrCodeNotFound, "no patch at version %d", v)
			}
			res[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// resolveHeadLocked finds the id of the patch at the local version.
func (c *Client) resolveHeadLocked(ctx context.Context) error {
	if c.headKnown {
		return nil
	}
	p, err := c.cfg.Link.FetchVersion(ctx, c.cfg.Dataset, c.localVer)
	if err != nil {
		return err
	}
	if p == nil {
		return api.Errorf(api.ErrCodeNotFound, "no patch at local version %d", c.localVer)
	}
	c.head, c.headKnown = p.ID(), true
	return nil
}

// NewPatch returns a builder for a patch that follows the local head.
func (c *Client) NewPatch(ctx context.Context) (*patch.Builder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.resolveHeadLocked(ctx); err != nil {
		return nil, err
	}
	return patch.NewBuilder(api.NewId(), c.head), nil
}

// Send appends p to the server's log. p must already be applied to the
// local replica; if it lands right after the local version, the local
// version advances to it.
func (c *Client) Send(ctx context.Context, p *patch.Patch) (api.Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(ctx, p)
}

func (c *Client) sendLocked(ctx context.Context, p *patch.Patch) (api.Version, error) {
	v, err := c.cfg.Link.SendPatch(ctx, c.cfg.Dataset, p)
	if err != nil {
		return api.Unset, err
	}
	c.remoteVer = v
	if v != c.localVer.Next() {
		c.log.Warn("sent patch is not next to local version", "version", v, "local", c.localVer)
		return v, nil
	}
	if err := c.cfg.Versions.Store(v); err != nil {
		return v, fmt.Errorf("store local version %d: %w", v, err)
	}
	c.localVer = v
	c.head, c.headKnown = p.ID(), true
	c.log.Info("sent patch", "version", v, "patch", p.ID().Short())
	return v, nil
}
