package index

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/signadot/deltalog/system/deltad/api"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS log_entries (
	version INTEGER PRIMARY KEY,
	id      TEXT NOT NULL UNIQUE,
	prev    TEXT NOT NULL DEFAULT ''
)`

// SQLite is a LogIndex persisted in a SQLite database. Each Save is its own
// transaction. Lookups are served from memory, loaded at open.
type SQLite struct {
	*Mem
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("open index db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}
	s := &SQLite{Mem: NewMem(), db: db}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) load() error {
	rows, err := s.db.Query(`SELECT version, id, prev FROM log_entries ORDER BY version`)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v        int64
			id, prev string
		)
		if err := rows.Scan(&v, &id, &prev); err != nil {
			return err
		}
		e := api.LogEntry{Version: api.Version(v)}
		if err := e.Id.UnmarshalText([]byte(id)); err != nil {
			return fmt.Errorf("index row %d: %w", v, err)
		}
		if err := e.Previous.UnmarshalText([]byte(prev)); err != nil {
			return fmt.Errorf("index row %d: %w", v, err)
		}
		if err := s.Mem.Save(e.Version, e.Id, e.Previous); err != nil {
			return fmt.Errorf("index row %d: %w", v, err)
		}
	}
	return rows.Err()
}

func (s *SQLite) Save(version api.Version, id, previous api.Id) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkSave(s.Mem.Current(), version, id); err != nil {
		return err
	}
	if _, dup := s.Mem.FetchEntry(id); dup {
		return api.Errorf(api.ErrCodeBadPatch, "duplicate patch id %s", id)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO log_entries (version, id, prev) VALUES (?, ?, ?)`,
		int64(version), id.String(), previous.String())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert index entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index entry: %w", err)
	}
	return s.Mem.Save(version, id, previous)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
