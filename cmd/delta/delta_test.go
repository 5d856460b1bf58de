package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/link"
	"github.com/signadot/deltalog/system/deltad/patch"
	"github.com/signadot/deltalog/system/deltad/storage"
)

func newLocal(t *testing.T) (*link.Local, api.Id) {
	t.Helper()
	reg, err := storage.OpenRegistry(storage.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	lnk := link.NewLocal(reg, nil)
	ctx := context.Background()
	if err := lnk.Register(ctx, api.NewId()); err != nil {
		t.Fatal(err)
	}
	ds, err := lnk.NewDataSource(ctx, "people", "http://example/people")
	if err != nil {
		t.Fatal(err)
	}
	return lnk, ds
}

func TestResolveDataset(t *testing.T) {
	lnk, ds := newLocal(t)
	ctx := context.Background()
	for _, ref := range []string{ds.String(), ds.Plain(), "people", "http://example/people"} {
		d, err := resolveDataset(ctx, lnk, ref)
		if err != nil {
			t.Fatalf("resolveDataset(%q) error = %v", ref, err)
		}
		if d.Id != ds {
			t.Errorf("resolveDataset(%q) = %s, want %s", ref, d.Id, ds)
		}
	}
	if _, err := resolveDataset(ctx, lnk, "nobody"); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("unknown dataset: error = %v", err)
	}
}

func TestWithHeaders(t *testing.T) {
	lnk, ds := newLocal(t)
	ctx := context.Background()
	q := patch.Quad{Subject: "<s>", Predicate: "<p>", Object: "<o>"}

	first, err := withHeaders(ctx, lnk, ds, patch.FromEvents([]patch.Event{{Kind: patch.KindAdd, Subject: q.Subject, Predicate: q.Predicate, Object: q.Object}}))
	if err != nil {
		t.Fatal(err)
	}
	if first.ID().IsNil() || !first.Previous().IsNil() {
		t.Fatalf("first patch headers: id=%s prev=%s", first.ID(), first.Previous())
	}
	if _, err := lnk.SendPatch(ctx, ds, first); err != nil {
		t.Fatal(err)
	}

	fixed := api.MustParseId("second")
	in := patch.FromEvents([]patch.Event{
		{Kind: patch.KindHeader, Key: patch.HeaderId, Value: fixed.String()},
		{Kind: patch.KindDelete, Subject: q.Subject, Predicate: q.Predicate, Object: q.Object},
	})
	second, err := withHeaders(ctx, lnk, ds, in)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID() != fixed || second.Previous() != first.ID() {
		t.Errorf("second patch headers: id=%s prev=%s", second.ID(), second.Previous())
	}
	if v, err := lnk.SendPatch(ctx, ds, second); err != nil || v != 2 {
		t.Fatalf("SendPatch() = %v, %v", v, err)
	}
}

func TestFetchRef(t *testing.T) {
	lnk, ds := newLocal(t)
	ctx := context.Background()
	p := patch.NewBuilder(api.NewId(), api.Id{}).Add(patch.Quad{Subject: "<s>", Predicate: "<p>", Object: "<o>"}).Patch()
	if _, err := lnk.SendPatch(ctx, ds, p); err != nil {
		t.Fatal(err)
	}
	for _, ref := range []string{"1", p.ID().String()} {
		got, err := fetchRef(ctx, lnk, ds, ref)
		if err != nil {
			t.Fatalf("fetchRef(%q) error = %v", ref, err)
		}
		if got == nil || got.ID() != p.ID() {
			t.Errorf("fetchRef(%q) = %v", ref, got)
		}
	}
	if got, err := fetchRef(ctx, lnk, ds, "7"); err != nil || got != nil {
		t.Errorf("fetchRef(7) = %v, %v", got, err)
	}
}

func TestRenderPatch(t *testing.T) {
	p := patch.NewBuilder(api.MustParseId("p1"), api.Id{}).
		Begin().Add(patch.Quad{Subject: "<s>", Predicate: "<p>", Object: "<o>"}).Commit().Patch()
	buf := &bytes.Buffer{}
	if err := renderPatch(buf, p, false); err != nil {
		t.Fatal(err)
	}
	want := []string{`H id id:"p1" .`, "TX .", "A <s> <p> <o> .", "TC ."}
	if diff := cmp.Diff(want, strings.Split(strings.TrimSpace(buf.String()), "\n")); diff != "" {
		t.Errorf("render mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderPatch_ForcedColor(t *testing.T) {
	p := patch.NewBuilder(api.MustParseId("p1"), api.Id{}).Add(patch.Quad{Subject: "<s>", Predicate: "<p>", Object: "<o>"}).Patch()
	buf := &bytes.Buffer{}
	if err := renderPatch(buf, p, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("renderPatch(colored) into a buffer has no escapes: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "A <s> <p> <o> .") {
		t.Errorf("renderPatch(colored) = %q", buf.String())
	}
}
