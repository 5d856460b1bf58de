package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/signadot/deltalog/system/deltad/api"
)

// PatchStore holds patch payloads by patch id.
type PatchStore interface {
	Store(id api.Id, data []byte) error
	Load(id api.Id) ([]byte, error)
}

// MemStore is an in-memory PatchStore.
type MemStore struct {
	mu   sync.RWMutex
	data map[api.Id][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[api.Id][]byte{}}
}

func (m *MemStore) Store(id api.Id, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = append([]byte(nil), data...)
	return nil
}

func (m *MemStore) Load(id api.Id) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[id]
	if !ok {
		return nil, api.Errorf(api.ErrCodeNotFound, "no payload for patch %s", id)
	}
	return d, nil
}

// FileStore keeps one file per patch in a directory. A payload is first
// written to a .pending file, synced, then renamed to its .patch name, so a
// .patch file is always complete.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{Dir: dir}, nil
}

func (fs *FileStore) path(id api.Id, ext string) string {
	return filepath.Join(fs.Dir, url.PathEscape(id.Plain())+"."+ext)
}

func (fs *FileStore) Store(id api.Id, data []byte) error {
	pending := fs.path(id, "pending")
	f, err := os.OpenFile(pending, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(pending)
		return fmt.Errorf("write patch %s: %w", id, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(pending)
		return fmt.Errorf("sync patch %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(pending)
		return err
	}
	return os.Rename(pending, fs.path(id, "patch"))
}

func (fs *FileStore) Load(id api.Id) ([]byte, error) {
	d, err := os.ReadFile(fs.path(id, "patch"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, api.Errorf(api.ErrCodeNotFound, "no payload for patch %s", id)
	}
	return d, err
}
