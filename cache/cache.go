// Package cache implements the worker-local address cache of spec.md
// §4.2 step 1 ("Cache-first ... restarts O(1) and idempotent"). It is
// backed by github.com/syndtr/goleveldb for the durable keyed store (one
// row per worker identity, so a host that ever ran multiple worker
// identities keeps each one's cache distinct) and exports a
// human-readable, plain-JSON addresses.json sidecar next to the leveldb
// directory, written to a temp file and renamed into place. The leveldb
// rows are compressed with github.com/golang/snappy (the teacher's only
// compression dependency); the sidecar is not compressed.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/syndtr/goleveldb/leveldb"
)

// Entry is the cached boot-time result of an allocator Reserve call.
type Entry struct {
	WorkerID  string   `json:"workerId"`
	Addresses []string `json:"addresses"`
}

// Store is the on-disk worker cache.
type Store struct {
	db      *leveldb.DB
	dir     string
	sidecar string
}

const dbSubdir = "registry-cache"
const sidecarName = "addresses.json"

// Open opens (creating if absent) the leveldb cache directory under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: mkdir %s: %w", dir, err)
	}
	db, err := leveldb.OpenFile(filepath.Join(dir, dbSubdir), nil)
	if err != nil {
		return nil, fmt.Errorf("cache: open leveldb: %w", err)
	}
	return &Store{db: db, dir: dir, sidecar: filepath.Join(dir, sidecarName)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Load returns the cached Entry for workerID, or (Entry{}, false, nil) if
// none is cached (spec.md §4.2 step 1: "if ... exists and its workerId
// matches").
func (s *Store) Load(workerID string) (Entry, bool, error) {
	raw, err := s.db.Get([]byte(workerID), nil)
	if err == leveldb.ErrNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: get: %w", err)
	}
	plain, err := snappy.Decode(nil, raw)
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: decompress: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(plain, &e); err != nil {
		return Entry{}, false, fmt.Errorf("cache: decode: %w", err)
	}
	if e.WorkerID != workerID {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Save persists the Entry keyed by its WorkerID and rewrites the
// human-readable addresses.json sidecar atomically (spec.md §4.2 step 3:
// "Persist cache then emit addresses").
func (s *Store) Save(e Entry) error {
	plain, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	compressed := snappy.Encode(nil, plain)
	if err := s.db.Put([]byte(e.WorkerID), compressed, nil); err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return writeSidecarAtomic(s.sidecar, plain)
}

// writeSidecarAtomic writes data to a temp file in the same directory as
// path and renames it into place with os.Rename, so a crash mid-write
// never leaves a truncated addresses.json for the next boot to
// misinterpret as present-but-corrupt.
func writeSidecarAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cache: write sidecar tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: rename sidecar: %w", err)
	}
	return nil
}
