// Package index holds the version index of a patch log: which patch id
// sits at which version, and what it follows.
package index

import (
	"github.com/signadot/deltalog/system/deltad/api"
)

// LogIndex is the append-only version index of one patch log.
//
// NextVersion and Save are only called by the log's single writer, under
// its append lock. Lookups may be called concurrently with each other and
// with the writer; a lookup sees an entry either completely or not at all.
type LogIndex interface {
	// NextVersion returns the version for the next append.
	NextVersion() api.Version
	// Save records a new entry. Saving a version twice is a caller error.
	Save(version api.Version, id, previous api.Id) error
	// FetchByVersion returns the id at version, or the nil id.
	FetchByVersion(version api.Version) api.Id
	// FetchEntry returns the entry for id.
	FetchEntry(id api.Id) (api.LogEntry, bool)
	// Earliest returns the first version, or api.Unset when empty.
	Earliest() api.Version
	// Current returns the latest version, or api.Unset when empty.
	Current() api.Version
	// Entries returns a snapshot of all entries in version order.
	Entries() []api.LogEntry
	// Close releases resources held by the index.
	Close() error
}

// checkSave validates a Save call against the current head.
func checkSave(current, version api.Version, id api.Id) error {
	if id.IsNil() {
		return api.NewError(api.ErrCodeBadPatch, "nil patch id")
	}
	want := current.Next()
	if current == api.Unset {
		want = api.Init.Next()
	}
	if version != want {
		return api.Errorf(api.ErrCodeBadPatch, "save version %d, expected %d", version, want)
	}
	return nil
}
