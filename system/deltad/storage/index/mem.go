package index

import (
	"sync"

	"github.com/signadot/deltalog/system/deltad/api"
)

// Mem is an in-memory LogIndex.
type Mem struct {
	sync.RWMutex
	byVersion map[api.Version]api.Id
	entries   map[api.Id]api.LogEntry
	earliest  api.Version
	current   api.Version
}

func NewMem() *Mem {
	return &Mem{
		byVersion: map[api.Version]api.Id{},
		entries:   map[api.Id]api.LogEntry{},
		earliest:  api.Unset,
		current:   api.Unset,
	}
}

func (m *Mem) NextVersion() api.Version {
	m.RLock()
	defer m.RUnlock()
	if m.current == api.Unset {
		return api.Init.Next()
	}
	return m.current.Next()
}

func (m *Mem) Save(version api.Version, id, previous api.Id) error {
	m.Lock()
	defer m.Unlock()
	if err := checkSave(m.current, version, id); err != nil {
		return err
	}
	if _, dup := m.entries[id]; dup {
		return api.Errorf(api.ErrCodeBadPatch, "duplicate patch id %s", id)
	}
	m.entries[id] = api.LogEntry{Id: id, Version: version, Previous: previous}
	m.byVersion[version] = id
	m.current = version
	if m.earliest == api.Unset {
		m.earliest = version
	}
	return nil
}

func (m *Mem) FetchByVersion(version api.Version) api.Id {
	m.RLock()
	defer m.RUnlock()
	return m.byVersion[version]
}

func (m *Mem) FetchEntry(id api.Id) (api.LogEntry, bool) {
	m.RLock()
	defer m.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

func (m *Mem) Earliest() api.Version {
	m.RLock()
	defer m.RUnlock()
	return m.earliest
}

func (m *Mem) Current() api.Version {
	m.RLock()
	defer m.RUnlock()
	return m.current
}

func (m *Mem) Entries() []api.LogEntry {
	m.RLock()
	defer m.RUnlock()
	if m.current == api.Unset {
		return nil
	}
	res := make([]api.LogEntry, 0, len(m.entries))
	for v := m.earliest; v <= m.current; v++ {
		res = append(res, m.entries[m.byVersion[v]])
	}
	return res
}

func (m *Mem) Close() error {
	return nil
}
