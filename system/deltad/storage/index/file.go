package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/signadot/deltalog/system/deltad/api"
)

// Record layout in the index file:
//
//	offset 0-3: payload length (little-endian uint32)
//	offset 4-7: crc32 (IEEE) of the payload
//	offset 8- : msgpack encoded api.LogEntry
const recordHeaderSize = 8

// maxRecordSize bounds a single payload; anything larger is corruption.
const maxRecordSize = 1 << 16

// File is a LogIndex persisted to an append-only file. Every Save is synced
// to disk before it returns. Lookups are served from memory.
//
// After a crash the file may end in a partly written record. OpenFile
// drops such a tail, so the index holds exactly the saves that returned.
type File struct {
	*Mem
	path string
	log  *slog.Logger

	mu   sync.Mutex // guards f and size
	f    *os.File
	size int64
}

// OpenFile opens or creates the index file at path and replays it.
// If log is nil, slog.Default() is used.
func OpenFile(path string, log *slog.Logger) (*File, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	fi := &File{
		Mem:  NewMem(),
		path: path,
		log:  log.With("component", "index", "path", path),
		f:    f,
	}
	if err := fi.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return fi, nil
}

// replay loads all complete records and truncates a torn tail.
func (fi *File) replay() error {
	data, err := io.ReadAll(fi.f)
	if err != nil {
		return err
	}
	off := int64(0)
	for int64(len(data))-off >= recordHeaderSize {
		n := int64(binary.LittleEndian.Uint32(data[off:]))
		sum := binary.LittleEndian.Uint32(data[off+4:])
		if n == 0 || n > maxRecordSize || off+recordHeaderSize+n > int64(len(data)) {
			break
		}
		payload := data[off+recordHeaderSize : off+recordHeaderSize+n]
		if crc32.ChecksumIEEE(payload) != sum {
			break
		}
		e := api.LogEntry{}
		if err := msgpack.Unmarshal(payload, &e); err != nil {
			break
		}
		if err := fi.Mem.Save(e.Version, e.Id, e.Previous); err != nil {
			return fmt.Errorf("index %s: record at offset %d: %w", fi.path, off, err)
		}
		off += recordHeaderSize + n
	}
	if off < int64(len(data)) {
		fi.log.Warn("truncating torn index tail", "offset", off, "size", len(data))
		if err := fi.f.Truncate(off); err != nil {
			return err
		}
		if err := fi.f.Sync(); err != nil {
			return err
		}
	}
	fi.size = off
	return nil
}

// Save appends the entry to the file, syncs it, then publishes it.
func (fi *File) Save(version api.Version, id, previous api.Id) error {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if fi.f == nil {
		return errors.New("index closed")
	}
	if err := checkSave(fi.Mem.Current(), version, id); err != nil {
		return err
	}
	if _, dup := fi.Mem.FetchEntry(id); dup {
		return api.Errorf(api.ErrCodeBadPatch, "duplicate patch id %s", id)
	}
	payload, err := msgpack.Marshal(&api.LogEntry{Id: id, Version: version, Previous: previous})
	if err != nil {
		return err
	}
	rec := make([]byte, recordHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(rec[0:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(rec[4:], crc32.ChecksumIEEE(payload))
	copy(rec[recordHeaderSize:], payload)

	if _, err := fi.f.Write(rec); err != nil {
		fi.rollbackLocked()
		return fmt.Errorf("write index: %w", err)
	}
	if err := fi.f.Sync(); err != nil {
		fi.rollbackLocked()
		return fmt.Errorf("sync index: %w", err)
	}
	fi.size += int64(len(rec))
	return fi.Mem.Save(version, id, previous)
}

// rollbackLocked cuts the file back to the last complete record.
func (fi *File) rollbackLocked() {
	if err := fi.f.Truncate(fi.size); err != nil {
		fi.log.Error("failed to truncate index after write error", "error", err)
	}
}

// Close closes the underlying file.
func (fi *File) Close() error {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if fi.f == nil {
		return nil
	}
	err := fi.f.Close()
	fi.f = nil
	return err
}
