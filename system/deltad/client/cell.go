package client

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/signadot/deltalog/system/deltad/api"
)

// VersionCell persists the local version of one dataset. A cell that was
// never stored loads as api.Init.
type VersionCell interface {
	Load() (api.Version, error)
	Store(v api.Version) error
}

// MemCell is a VersionCell that does not survive the process.
type MemCell struct {
	mu sync.Mutex
	v  api.Version
}

func (m *MemCell) Load() (api.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v, nil
}

func (m *MemCell) Store(v api.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v = v
	return nil
}

// FileCell keeps the version in a small file. Store writes a temporary
// file, syncs it and renames it into place, so a crash leaves either the
// old or the new value.
//
// File layout: 8 bytes, little-endian int64.
type FileCell struct {
	Path string
}

const cellSize = 8

func (f *FileCell) Load() (api.Version, error) {
	d, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return api.Init, nil
	}
	if err != nil {
		return api.Init, err
	}
	if len(d) != cellSize {
		return api.Init, fmt.Errorf("version cell %s: %d bytes, want %d", f.Path, len(d), cellSize)
	}
	v := api.Version(int64(binary.LittleEndian.Uint64(d)))
	if v < api.Init {
		return api.Init, api.Errorf(api.ErrCodeMalformedVersion, "version cell %s holds %d", f.Path, int64(v))
	}
	return v, nil
}

func (f *FileCell) Store(v api.Version) error {
	var d [cellSize]byte
	binary.LittleEndian.PutUint64(d[:], uint64(v))
	tmp := f.Path + ".tmp"
	w, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := w.Write(d[:]); err != nil {
		w.Close()
		return err
	}
	if err := w.Sync(); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return err
	}
	// make the rename itself durable
	if dir, err := os.Open(filepath.Dir(f.Path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

// SQLiteCell keeps the versions of any number of datasets in one SQLite
// database, a row per dataset.
type SQLiteCell struct {
	db      *sql.DB
	dataset string
}

const cellSchema = `
CREATE TABLE IF NOT EXISTS local_versions (
	dataset TEXT PRIMARY KEY,
	version INTEGER NOT NULL
)`

// OpenSQLiteCell opens the cell of dataset in the database at path.
func OpenSQLiteCell(path string, dataset api.Id) (*SQLiteCell, error) {
	if dataset.IsNil() {
		return nil, api.NewError(api.ErrCodeMalformedId, "nil dataset id")
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(cellSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create version cell schema: %w", err)
	}
	return &SQLiteCell{db: db, dataset: dataset.String()}, nil
}

func (s *SQLiteCell) Load() (api.Version, error) {
	var v int64
	err := s.db.QueryRow(`SELECT version FROM local_versions WHERE dataset = ?`, s.dataset).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Init, nil
	}
	if err != nil {
		return api.Init, err
	}
	return api.Version(v), nil
}

func (s *SQLiteCell) Store(v api.Version) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO local_versions (dataset, version) VALUES (?, ?)
		ON CONFLICT(dataset) DO UPDATE SET version = excluded.version`, s.dataset, int64(v))
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteCell) Close() error {
	return s.db.Close()
}
