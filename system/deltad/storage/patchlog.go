package storage

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/patch"
	"github.com/signadot/deltalog/system/deltad/storage/index"
)

// PatchLog is the versioned, append-only sequence of patches of one data
// source.
//
// Appends are serialized by the log's append lock; concurrent callers
// block and proceed one at a time. Reads go straight to the index and the
// store and never take the append lock.
type PatchLog struct {
	desc  api.DataSourceDescription
	index index.LogIndex
	store PatchStore
	log   *slog.Logger

	appendMu sync.Mutex
}

// NewPatchLog binds desc to an index and a payload store. If log is nil,
// slog.Default() is used.
func NewPatchLog(desc api.DataSourceDescription, idx index.LogIndex, store PatchStore, log *slog.Logger) *PatchLog {
	if log == nil {
		log = slog.Default()
	}
	return &PatchLog{
		desc:  desc,
		index: idx,
		store: store,
		log:   log.With("component", "patchlog", "dataset", desc.Name, "id", desc.Id.Short()),
	}
}

func (l *PatchLog) Description() api.DataSourceDescription {
	return l.desc
}

// Append adds p at the next version and returns that version.
//
// p must be valid (see patch.Validate). When the log is not empty, p's
// prev header must name the current head; otherwise the caller's view of
// the log is stale and Append fails with api.ErrBadPatch, leaving the log
// unchanged. The prev header of the first patch is not checked, and its
// entry records no predecessor.
func (l *PatchLog) Append(p *patch.Patch) (api.Version, error) {
	if err := p.Validate(); err != nil {
		return api.Unset, err
	}
	id, prev := p.ID(), p.Previous()
	data, err := patch.Marshal(p)
	if err != nil {
		return api.Unset, fmt.Errorf("encode patch %s: %w", id, err)
	}

	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	if cur := l.index.Current(); cur != api.Unset {
		head := l.index.FetchByVersion(cur)
		if prev != head {
			return api.Unset, api.Errorf(api.ErrCodeBadPatch,
				"patch %s: prev %s does not match head %s at version %d", id, prev, head, cur)
		}
	} else {
		// the first entry has no predecessor, whatever its header says
		prev = api.Id{}
	}
	if _, dup := l.index.FetchEntry(id); dup {
		return api.Unset, api.Errorf(api.ErrCodeBadPatch, "patch %s already in log", id)
	}
	v := l.index.NextVersion()
	if err := l.store.Store(id, data); err != nil {
		l.log.Error("failed to store patch", "patch", id.Short(), "error", err)
		return api.Unset, api.Errorf(api.ErrCodeStorage, "store patch %s: %v", id, err)
	}
	if err := l.index.Save(v, id, prev); err != nil {
		l.log.Error("failed to index patch", "patch", id.Short(), "version", v, "error", err)
		return api.Unset, err
	}
	l.log.Info("append", "patch", id.Short(), "version", v)
	return v, nil
}

// FetchVersion returns the patch at version v, or nil if there is none.
func (l *PatchLog) FetchVersion(v api.Version) (*patch.Patch, error) {
	id := l.index.FetchByVersion(v)
	if id.IsNil() {
		return nil, nil
	}
	return l.load(id)
}

// FetchId returns the patch with the given id, or nil if it is not in the log.
func (l *PatchLog) FetchId(id api.Id) (*patch.Patch, error) {
	if _, ok := l.index.FetchEntry(id); !ok {
		return nil, nil
	}
	return l.load(id)
}

func (l *PatchLog) load(id api.Id) (*patch.Patch, error) {
	d, err := l.store.Load(id)
	if err != nil {
		return nil, api.Errorf(api.ErrCodeStorage, "load patch %s: %v", id, err)
	}
	return patch.Unmarshal(d)
}

// CurrentVersion returns the latest version, or api.Unset for an empty log.
func (l *PatchLog) CurrentVersion() api.Version {
	return l.index.Current()
}

// Head returns the id of the latest patch, or the nil id.
func (l *PatchLog) Head() api.Id {
	cur := l.index.Current()
	if cur == api.Unset {
		return api.Id{}
	}
	return l.index.FetchByVersion(cur)
}

// Entries returns all entries, in version order.
func (l *PatchLog) Entries() []api.LogEntry {
	return l.index.Entries()
}

// Entry returns the entry for id.
func (l *PatchLog) Entry(id api.Id) (api.LogEntry, bool) {
	return l.index.FetchEntry(id)
}

func (l *PatchLog) Close() error {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()
	return l.index.Close()
}
