// Package fs provides a local-filesystem blob store. Each blob is a file under
// the configured root; metadata lives in a sidecar JSON file.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"housingcore/internal/blob"
)

var _ blob.Store = (*Store)(nil)

const metaSuffix = ".meta.json"

// Store persists blobs under a root directory.
type Store struct {
	root string
}

// New constructs a filesystem blob store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "blobdata"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the configured root directory.
func (s *Store) Root() string { return s.root }

// Driver identifies the backend.
func (s *Store) Driver() blob.Driver { return blob.DriverFilesystem }

func (s *Store) pathFor(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Put writes the blob and its metadata sidecar via temp-file rename.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return blob.Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return blob.Info{}, fmt.Errorf("create blob dirs: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return blob.Info{}, err
	}
	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return blob.Info{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return blob.Info{}, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return blob.Info{}, err
	}
	info := blob.Info{
		Key:          key,
		Size:         size,
		ContentType:  opts.ContentType,
		Metadata:     opts.Metadata,
		LastModified: stat.ModTime().UTC(),
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return blob.Info{}, err
	}
	if err := os.WriteFile(path+metaSuffix, meta, 0o600); err != nil {
		return blob.Info{}, err
	}
	return info, nil
}

// Get opens the blob for reading.
func (s *Store) Get(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return blob.Info{}, nil, err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return blob.Info{}, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return blob.Info{}, nil, blob.ErrNotFound
		}
		return blob.Info{}, nil, err
	}
	return info, f, nil
}

// Head returns the blob's stored metadata.
func (s *Store) Head(_ context.Context, key string) (blob.Info, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return blob.Info{}, err
	}
	data, err := os.ReadFile(path + metaSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return blob.Info{}, blob.ErrNotFound
		}
		return blob.Info{}, err
	}
	var info blob.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return blob.Info{}, fmt.Errorf("decode blob metadata: %w", err)
	}
	return info, nil
}

// Delete removes the blob and its sidecar, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = os.Remove(path + metaSuffix)
	return true, nil
}

// List walks the root and returns metadata for keys with the prefix, sorted.
func (s *Store) List(_ context.Context, prefix string) ([]blob.Info, error) {
	var infos []blob.Info
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var info blob.Info
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("decode blob metadata %s: %w", path, err)
		}
		if strings.HasPrefix(info.Key, prefix) {
			infos = append(infos, info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}
