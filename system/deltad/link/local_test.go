package link

import (
	"context"
	"errors"
	"testing"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/patch"
	"github.com/signadot/deltalog/system/deltad/storage"
)

var q = patch.Quad{Subject: "<s>", Predicate: "<p>", Object: `"o"`}

func newLocal(t *testing.T) *Local {
	t.Helper()
	reg, err := storage.OpenRegistry(storage.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	return NewLocal(reg, nil)
}

func TestLocal_RequiresRegistration(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	if _, err := l.NewDataSource(ctx, "a", ""); !errors.Is(err, api.ErrNotConnected) {
		t.Fatalf("NewDataSource() unregistered: error = %v", err)
	}
	if err := l.Register(ctx, api.NewId()); err != nil {
		t.Fatal(err)
	}
	ds, err := l.NewDataSource(ctx, "a", "http://example/a")
	if err != nil {
		t.Fatalf("NewDataSource() error = %v", err)
	}

	p := patch.NewBuilder(api.NewId(), api.Id{}).Add(q).Patch()
	if err := l.Deregister(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := l.SendPatch(ctx, ds, p); !errors.Is(err, api.ErrNotConnected) {
		t.Errorf("SendPatch() deregistered: error = %v", err)
	}
	if err := l.RemoveDataSource(ctx, ds); !errors.Is(err, api.ErrNotConnected) {
		t.Errorf("RemoveDataSource() deregistered: error = %v", err)
	}

	// reads do not need registration
	if v, err := l.GetCurrentVersion(ctx, ds); err != nil || v != api.Unset {
		t.Errorf("GetCurrentVersion() = %v, %v", v, err)
	}
	ids, err := l.ListDatasets(ctx)
	if err != nil || len(ids) != 1 || ids[0] != ds {
		t.Errorf("ListDatasets() = %v, %v", ids, err)
	}
	desc, err := l.GetDescriptionByURI(ctx, "http://example/a")
	if err != nil || desc == nil || desc.Id != ds {
		t.Errorf("GetDescriptionByURI() = %v, %v", desc, err)
	}
}

func TestLocal_SendFetch(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	if err := l.Register(ctx, api.NewId()); err != nil {
		t.Fatal(err)
	}
	ds, err := l.NewDataSource(ctx, "a", "")
	if err != nil {
		t.Fatal(err)
	}
	p := patch.NewBuilder(api.NewId(), api.Id{}).Add(q).Patch()
	v, err := l.SendPatch(ctx, ds, p)
	if err != nil || v != 1 {
		t.Fatalf("SendPatch() = %v, %v", v, err)
	}
	got, err := l.FetchVersion(ctx, ds, 1)
	if err != nil || got == nil || got.ID() != p.ID() {
		t.Errorf("FetchVersion(1) = %v, %v", got, err)
	}
	got, err = l.FetchId(ctx, ds, p.ID())
	if err != nil || got == nil {
		t.Errorf("FetchId() = %v, %v", got, err)
	}
	if got, err := l.FetchVersion(ctx, ds, 2); got != nil || err != nil {
		t.Errorf("FetchVersion(2) = %v, %v, want nil, nil", got, err)
	}
}

func TestLocal_NotFound(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	unknown := api.NewId()
	if _, err := l.GetCurrentVersion(ctx, unknown); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("GetCurrentVersion(unknown) error = %v", err)
	}
	if _, err := l.FetchVersion(ctx, unknown, 1); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("FetchVersion(unknown) error = %v", err)
	}
	if desc, err := l.GetDescription(ctx, unknown); desc != nil || err != nil {
		t.Errorf("GetDescription(unknown) = %v, %v", desc, err)
	}
	if err := l.Register(ctx, api.NewId()); err != nil {
		t.Fatal(err)
	}
	if err := l.RemoveDataSource(ctx, unknown); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("RemoveDataSource(unknown) error = %v", err)
	}
}

func TestLocal_Closed(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	if err := l.Register(ctx, api.NewId()); err != nil {
		t.Fatal(err)
	}
	l.Close()
	if l.IsRegistered() {
		t.Errorf("IsRegistered() after Close")
	}
	if err := l.Ping(ctx); !errors.Is(err, api.ErrNotConnected) {
		t.Errorf("Ping() error = %v", err)
	}
	if _, err := l.ListDatasets(ctx); !errors.Is(err, api.ErrNotConnected) {
		t.Errorf("ListDatasets() error = %v", err)
	}
	if err := l.Register(ctx, api.NewId()); !errors.Is(err, api.ErrNotConnected) {
		t.Errorf("Register() error = %v", err)
	}
}
