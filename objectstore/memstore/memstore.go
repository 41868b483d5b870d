// Package memstore is an in-process fake of objectstore.Store used by
// the test suite to exercise CAS contention (S1, S2, S6) without a real
// Azure account.
package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"berith-chain/minefleet/objectstore"
)

type entry struct {
	body []byte
	etag string
}

// Store is a mutex-guarded map[key]entry implementing objectstore.Store.
// ETags are content hashes, which makes the fake deterministic and lets
// tests assert on ETag values without caring about the backend.
type Store struct {
	mu      sync.Mutex
	objects map[string]entry

	// FailPutN, when > 0, makes the next N Put calls return
	// ErrPreconditionFailed regardless of ifMatch, to simulate injected
	// contention in CAS-retry tests.
	FailPutN int
}

func New() *Store {
	return &Store{objects: make(map[string]entry)}
}

func etagFor(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:8])
}

func (s *Store) Get(_ context.Context, key string) (objectstore.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[key]
	if !ok {
		return objectstore.Object{}, objectstore.ErrNotFound
	}
	cp := make([]byte, len(e.body))
	copy(cp, e.body)
	return objectstore.Object{Body: cp, ETag: e.etag}, nil
}

func (s *Store) Head(ctx context.Context, key string) (objectstore.ListEntry, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		return objectstore.ListEntry{}, err
	}
	return objectstore.ListEntry{Key: key, ETag: obj.ETag, Size: int64(len(obj.Body))}, nil
}

func (s *Store) Put(_ context.Context, key string, body []byte, ifMatch string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPutN > 0 {
		s.FailPutN--
		return "", objectstore.ErrPreconditionFailed
	}

	cur, exists := s.objects[key]
	if ifMatch != "" {
		if !exists || cur.etag != ifMatch {
			return "", objectstore.ErrPreconditionFailed
		}
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	etag := etagFor(body)
	s.objects[key] = entry{body: cp, etag: etag}
	return etag, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]objectstore.ListEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []objectstore.ListEntry
	for k, e := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, objectstore.ListEntry{Key: k, ETag: e.etag, Size: int64(len(e.body))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}
