package client

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/dataset"
	"github.com/signadot/deltalog/system/deltad/link"
	"github.com/signadot/deltalog/system/deltad/patch"
	"github.com/signadot/deltalog/system/deltad/storage"
)

// testLink wraps a link to observe and disturb fetches.
type testLink struct {
	link.Link

	mu         sync.Mutex
	fetches    []api.Version
	delay      func(v api.Version) time.Duration
	versionErr error
	fetchErr   func(v api.Version) error
}

func (l *testLink) FetchVersion(ctx context.Context, ds api.Id, v api.Version) (*patch.Patch, error) {
	l.mu.Lock()
	l.fetches = append(l.fetches, v)
	delay, fetchErr := l.delay, l.fetchErr
	l.mu.Unlock()
	if delay != nil {
		time.Sleep(delay(v))
	}
	if fetchErr != nil {
		if err := fetchErr(v); err != nil {
			return nil, err
		}
	}
	return l.Link.FetchVersion(ctx, ds, v)
}

func (l *testLink) GetCurrentVersion(ctx context.Context, ds api.Id) (api.Version, error) {
	l.mu.Lock()
	err := l.versionErr
	l.mu.Unlock()
	if err != nil {
		return api.Unset, err
	}
	return l.Link.GetCurrentVersion(ctx, ds)
}

func (l *testLink) fetchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fetches)
}

// idSink records the ids of the patches it sees.
type idSink struct {
	ids []api.Id
}

func (s *idSink) WriteEvent(ev *patch.Event) error {
	if ev.Kind == patch.KindHeader && ev.Key == patch.HeaderId {
		s.ids = append(s.ids, api.MustParseId(ev.Value))
	}
	return nil
}

type fixture struct {
	ds   api.Id
	link *testLink
	// patches appended so far, in version order
	patches []*patch.Patch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	reg, err := storage.OpenRegistry(storage.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	l := link.NewLocal(reg, nil)
	if err := l.Register(ctx, api.NewId()); err != nil {
		t.Fatal(err)
	}
	ds, err := l.NewDataSource(ctx, "people", "http://example/people")
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{ds: ds, link: &testLink{Link: l}}
}

func quad(n int) patch.Quad {
	return patch.Quad{Subject: "<s>", Predicate: "<p>", Object: `"` + string(rune('a'+n)) + `"`}
}

// appendRemote appends n patches to the server, each adding one quad.
func (f *fixture) appendRemote(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		prev := api.Id{}
		if len(f.patches) > 0 {
			prev = f.patches[len(f.patches)-1].ID()
		}
		p := patch.NewBuilder(api.NewId(), prev).Begin().Add(quad(len(f.patches))).Commit().Patch()
		f.appendPatch(t, p)
	}
}

func (f *fixture) appendPatch(t *testing.T, p *patch.Patch) {
	t.Helper()
	v, err := f.link.Link.SendPatch(context.Background(), f.ds, p)
	if err != nil {
		t.Fatalf("SendPatch: %v", err)
	}
	if v != api.Version(len(f.patches)+1) {
		t.Fatalf("SendPatch version = %v", v)
	}
	f.patches = append(f.patches, p)
}

func (f *fixture) ids(from, to int) []api.Id {
	var res []api.Id
	for _, p := range f.patches[from-1 : to] {
		res = append(res, p.ID())
	}
	return res
}

func (f *fixture) client(t *testing.T, cell VersionCell, target patch.Sink) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{
		Label:    "test",
		Dataset:  f.ds,
		Link:     f.link,
		Versions: cell,
		Target:   target,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestClient_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cell := &MemCell{}
	target := dataset.New()
	ids := &idSink{}
	c := f.client(t, cell, patch.Tee(ids, target))

	if c.LocalVersion() != api.Init {
		t.Fatalf("LocalVersion() = %v", c.LocalVersion())
	}
	if err := c.Sync(ctx); err != nil {
		t.Fatalf("Sync() on empty log: %v", err)
	}
	if f.link.fetchCount() != 0 {
		t.Errorf("empty log: %d fetches", f.link.fetchCount())
	}

	f.appendRemote(t, 3)
	if err := c.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if c.LocalVersion() != 3 || c.RemoteVersion() != 3 {
		t.Errorf("local=%v remote=%v, want 3, 3", c.LocalVersion(), c.RemoteVersion())
	}
	if v, _ := cell.Load(); v != 3 {
		t.Errorf("stored version = %v, want 3", v)
	}
	if diff := cmp.Diff(idStrings(f.ids(1, 3)), idStrings(ids.ids)); diff != "" {
		t.Errorf("applied order mismatch (-want +got):\n%s", diff)
	}
	if target.Len() != 3 {
		t.Errorf("target has %d quads", target.Len())
	}
	fetches := f.link.fetchCount()
	if fetches != 3 {
		t.Errorf("%d fetches, want 3", fetches)
	}

	if err := c.Sync(ctx); err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if f.link.fetchCount() != fetches {
		t.Errorf("second Sync() issued %d fetches", f.link.fetchCount()-fetches)
	}
}

func idStrings(ids []api.Id) []string {
	res := make([]string, len(ids))
	for i := range ids {
		res[i] = ids[i].String()
	}
	return res
}

func TestClient_RestartDurability(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.appendRemote(t, 9)

	cell := &FileCell{Path: filepath.Join(t.TempDir(), "people.version")}
	if err := cell.Store(7); err != nil {
		t.Fatal(err)
	}
	// a new process: only the file carries state
	ids := &idSink{}
	c := f.client(t, &FileCell{Path: cell.Path}, ids)
	if c.LocalVersion() != 7 {
		t.Fatalf("LocalVersion() after restart = %v, want 7", c.LocalVersion())
	}
	if err := c.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(idStrings(f.ids(8, 9)), idStrings(ids.ids)); diff != "" {
		t.Errorf("applied mismatch (-want +got):\n%s", diff)
	}
	for _, v := range f.link.fetches {
		if v < 7 {
			t.Errorf("fetched version %d below the stored local version", v)
		}
	}
	if v, err := cell.Load(); err != nil || v != 9 {
		t.Errorf("stored version = %v, %v", v, err)
	}
}

func TestClient_ReorderedFetches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.appendRemote(t, 8)
	// earlier versions answer last
	f.link.delay = func(v api.Version) time.Duration {
		return time.Duration(9-v) * 5 * time.Millisecond
	}
	ids := &idSink{}
	c, err := New(ctx, Config{Dataset: f.ds, Link: f.link, Target: ids, Prefetch: 8})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(idStrings(f.ids(1, 8)), idStrings(ids.ids)); diff != "" {
		t.Errorf("applied order mismatch (-want +got):\n%s", diff)
	}
}

// A local version ahead of the server is left alone. This is accepted
// behavior, not an invariant: the client never deletes local history.
func TestClient_LocalAhead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.appendRemote(t, 2)
	cell := &MemCell{}
	cell.Store(5)
	c := f.client(t, cell, nil)
	if err := c.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if c.LocalVersion() != 5 {
		t.Errorf("LocalVersion() = %v, want 5", c.LocalVersion())
	}
	if c.RemoteVersion() != 2 {
		t.Errorf("RemoteVersion() = %v, want 2", c.RemoteVersion())
	}
	if f.link.fetchCount() != 0 {
		t.Errorf("%d fetches", f.link.fetchCount())
	}
}

func TestClient_RecoverableErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.appendRemote(t, 2)
	c := f.client(t, nil, nil)

	for _, err := range []error{
		&link.TransportError{Op: "GET version", Err: errors.New("connection refused")},
		&link.StatusError{Status: 503, Err: api.NewError(api.ErrCodeTransient, "unavailable")},
		&link.StatusError{Status: 500, Err: api.NewError(api.ErrCodeInternal, "oops")},
	} {
		f.link.versionErr = err
		if err := c.Sync(ctx); err != nil {
			t.Errorf("Sync() with %v: error = %v, want nil", f.link.versionErr, err)
		}
		if c.LocalVersion() != api.Init {
			t.Errorf("LocalVersion() = %v after failed sync", c.LocalVersion())
		}
	}

	f.link.versionErr = errors.New("boom")
	if err := c.Sync(ctx); err == nil {
		t.Errorf("Sync() swallowed an unexpected error")
	}
	f.link.versionErr = &link.StatusError{Status: 404, Err: api.NewError(api.ErrCodeNotFound, "gone")}
	if err := c.Sync(ctx); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("Sync() with 404 error = %v, want not found", err)
	}

	f.link.versionErr = nil
	if err := c.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if c.LocalVersion() != 2 {
		t.Errorf("LocalVersion() = %v after recovery", c.LocalVersion())
	}
}

func TestClient_UnknownDataset(t *testing.T) {
	f := newFixture(t)
	c, err := New(context.Background(), Config{Dataset: api.NewId(), Link: f.link})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Sync(context.Background()); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("Sync() error = %v, want not found", err)
	}
}

func TestClient_ApplyErrorKeepsProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.appendRemote(t, 1)
	bad := patch.NewBuilder(api.NewId(), f.patches[0].ID()).AddPrefix("", "bad prefix", "http://example/").Patch()
	f.appendPatch(t, bad)
	f.appendRemote(t, 1)

	cell := &MemCell{}
	target := dataset.New()
	c := f.client(t, cell, target)
	err := c.Sync(ctx)
	if !errors.Is(err, api.ErrPatchApply) {
		t.Fatalf("Sync() error = %v, want patch apply error", err)
	}
	var ae *patch.ApplyError
	if !errors.As(err, &ae) || ae.Event.Kind != patch.KindAddPrefix {
		t.Errorf("error does not carry the rejected event: %v", err)
	}
	if c.LocalVersion() != 1 {
		t.Errorf("LocalVersion() = %v, want 1", c.LocalVersion())
	}
	if v, _ := cell.Load(); v != 1 {
		t.Errorf("stored version = %v, want 1", v)
	}
	if target.Len() != 1 {
		t.Errorf("target has %d quads, want 1", target.Len())
	}
}

func TestClient_Filter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	secret := patch.Quad{Subject: "<s>", Predicate: "<secret>", Object: `"x"`}
	p := patch.NewBuilder(api.NewId(), api.Id{}).
		Begin().Add(quad(0)).Add(secret).Commit().
		Begin().Add(secret).Commit().
		Patch()
	f.appendPatch(t, p)

	target := dataset.New()
	c, err := New(ctx, Config{Dataset: f.ds, Link: f.link, Target: target, Filter: `predicate != "<secret>"`})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if target.Contains(secret) || !target.Contains(quad(0)) {
		t.Errorf("filtered target = %v", target.Quads())
	}
	want := dataset.Stats{Commits: 1, NoChangeCommits: 1}
	if diff := cmp.Diff(want, target.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	if _, err := New(ctx, Config{Dataset: f.ds, Link: f.link, Filter: "subject +"}); err == nil {
		t.Errorf("New() accepted a bad filter")
	}
}

func TestClient_SendAndChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	local := dataset.New()
	a := f.client(t, nil, local)

	changes := a.Changes(ctx)
	events := []patch.Event{
		{Kind: patch.KindBegin},
		{Kind: patch.KindAdd, Subject: "<alice>", Predicate: "<name>", Object: `"Alice"`},
		{Kind: patch.KindCommit},
		{Kind: patch.KindBegin},
		{Kind: patch.KindCommit},
	}
	for i := range events {
		if err := changes.WriteEvent(&events[i]); err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}
	if a.LocalVersion() != 1 {
		t.Errorf("LocalVersion() = %v, want 1", a.LocalVersion())
	}
	if v, _ := f.link.Link.GetCurrentVersion(ctx, f.ds); v != 1 {
		t.Errorf("server version = %v; the no-change commit must not be sent", v)
	}
	if got := local.Stats(); got.Commits != 1 || got.NoChangeCommits != 1 {
		t.Errorf("local stats = %+v", got)
	}

	// a patch built on the client's head
	b, err := a.NewPatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	bob := patch.Quad{Subject: "<bob>", Predicate: "<name>", Object: `"Bob"`}
	p := b.Begin().Add(bob).Commit().Patch()
	if err := p.Apply(local); err != nil {
		t.Fatal(err)
	}
	if v, err := a.Send(ctx, p); err != nil || v != 2 {
		t.Fatalf("Send() = %v, %v", v, err)
	}

	remote := dataset.New()
	other := f.client(t, nil, remote)
	if err := other.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(local.Quads(), remote.Quads()); diff != "" {
		t.Errorf("replicas differ (-sender +receiver):\n%s", diff)
	}

	// the second client's head follows sync, so its patches chain on
	b, err = other.NewPatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Send(ctx, b.Begin().Delete(bob).Commit().Patch()); err != nil {
		t.Errorf("Send() from synced client: %v", err)
	}
	// the first client is now stale
	b, err = a.NewPatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Send(ctx, b.Add(bob).Patch()); !errors.Is(err, api.ErrBadPatch) {
		t.Errorf("stale Send() error = %v, want bad patch", err)
	}
}

func TestClient_ChangesOutsideTxn(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, nil, nil)
	ev := patch.Event{Kind: patch.KindAdd, Subject: "<s>", Predicate: "<p>", Object: "<o>"}
	if err := c.Changes(context.Background()).WriteEvent(&ev); !errors.Is(err, api.ErrBadPatch) {
		t.Errorf("WriteEvent() error = %v", err)
	}
}

func TestClient_SyncSendSerialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.appendRemote(t, 4)
	c := f.client(t, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Sync(ctx); err != nil {
				t.Errorf("Sync() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if c.LocalVersion() != 4 {
		t.Errorf("LocalVersion() = %v", c.LocalVersion())
	}
	// each version fetched once: later syncs found nothing to do
	if f.link.fetchCount() != 4 {
		t.Errorf("%d fetches, want 4", f.link.fetchCount())
	}
}
