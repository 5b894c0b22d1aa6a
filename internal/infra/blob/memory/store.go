// Package memory provides an in-memory blob store used by tests.
package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"housingcore/internal/blob"
)

var _ blob.Store = (*Store)(nil)

type object struct {
	data []byte
	info blob.Info
}

// Store keeps blobs in process memory.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	nowFn   func() time.Time
}

// New constructs an empty in-memory blob store.
func New() *Store {
	return &Store{
		objects: make(map[string]object),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// Driver identifies the backend.
func (s *Store) Driver() blob.Driver { return blob.DriverMemory }

// Put stores the blob under key, replacing any existing object.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return blob.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info := blob.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: s.nowFn(),
	}
	s.objects[key] = object{data: data, info: info}
	return info, nil
}

// Get returns the blob and its metadata.
func (s *Store) Get(_ context.Context, key string) (blob.Info, io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return blob.Info{}, nil, blob.ErrNotFound
	}
	return obj.info, io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Head returns blob metadata without the payload.
func (s *Store) Head(_ context.Context, key string) (blob.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return blob.Info{}, blob.ErrNotFound
	}
	return obj.info, nil
}

// Delete removes the blob and reports whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	delete(s.objects, key)
	return ok, nil
}

// List returns metadata for every blob whose key has the prefix, sorted by key.
func (s *Store) List(_ context.Context, prefix string) ([]blob.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []blob.Info
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, obj.info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func cloneMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
