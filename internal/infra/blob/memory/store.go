// Package memory implements the blob contract in process memory for tests.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"codexcore/internal/blob/core"
)

// Store keeps blobs in a map behind a mutex.
type Store struct {
	mu    sync.RWMutex
	blobs map[string]entry
}

var _ core.Store = (*Store)(nil)

type entry struct {
	data []byte
	info core.Info
}

// New returns an empty in-memory blob store.
func New() *Store {
	return &Store{blobs: map[string]entry{}}
}

// Driver reports the memory driver tag.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores the blob, replacing any previous content at the key.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	sum := sha256.Sum256(data)
	info := core.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.mu.Lock()
	s.blobs[key] = entry{data: data, info: info}
	s.mu.Unlock()
	return info, nil
}

// Get returns the blob content and metadata.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	e, exists := s.blobs[key]
	s.mu.RUnlock()
	if !exists {
		return core.Info{}, nil, core.ErrNotFound
	}
	return e.info, io.NopCloser(bytes.NewReader(e.data)), nil
}

// Head returns blob metadata.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	e, exists := s.blobs[key]
	s.mu.RUnlock()
	if !exists {
		return core.Info{}, core.ErrNotFound
	}
	return e.info, nil
}

// Delete removes the blob, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[key]; !exists {
		return false, nil
	}
	delete(s.blobs, key)
	return true, nil
}

// List returns blobs whose key has the given prefix, sorted by key.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	var infos []core.Info
	for key, e := range s.blobs {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			infos = append(infos, e.info)
		}
	}
	s.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL is not supported by the memory driver.
func (s *Store) PresignURL(ctx context.Context, key string, opts core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
