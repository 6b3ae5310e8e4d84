package objstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// LocalStore mirrors artifacts into a directory, e.g. a mounted network share.
type LocalStore struct {
	root string
}

// NewLocal creates root if needed.
func NewLocal(root string) (*LocalStore, error) {
	if root == "" {
		return nil, eris.New("objstore: local root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, eris.Wrapf(err, "objstore: create %s", root)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes data through a temp file so readers never see a partial object.
func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) error {
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return eris.Wrapf(err, "objstore: put %s", key)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return eris.Wrapf(err, "objstore: put %s", key)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "objstore: put %s", key)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "objstore: put %s", key)
	}
	return eris.Wrapf(os.Rename(tmp.Name(), dst), "objstore: put %s", key)
}

// Get reads one object.
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "objstore: get %s", key)
	}
	return data, eris.Wrapf(err, "objstore: get %s", key)
}

// Exists reports whether key is present.
func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "objstore: stat %s", key)
	}
	return true, nil
}

// List walks the tree and returns keys that start with prefix.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "objstore: list %s", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}
