package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend stores each collection as a JSON array in <dir>/<collection>.json.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir data dir: %v", ErrIO, err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(collection string) string {
	return filepath.Join(b.dir, collection+".json")
}

func (b *FileBackend) Load(_ context.Context, collection string) ([]Document, error) {
	if err := validateCollectionName(collection); err != nil {
		return nil, err
	}
	path := b.path(collection)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := b.write(path, []Document{}); err != nil {
				return nil, err
			}
			return []Document{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []Document{}, nil
	}

	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrIO, path, err)
	}
	for i, d := range docs {
		if d == nil {
			return nil, fmt.Errorf("%w: decode %s: element %d is not an object", ErrIO, path, i)
		}
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

func (b *FileBackend) Save(_ context.Context, collection string, docs []Document) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	if docs == nil {
		docs = []Document{}
	}
	return b.write(b.path(collection), docs)
}

func (b *FileBackend) Ping(context.Context) error {
	info, err := os.Stat(b.dir)
	if err != nil {
		return fmt.Errorf("%w: stat data dir: %v", ErrIO, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrIO, b.dir)
	}
	return nil
}

// write replaces path through a temp file and rename so readers never see
// a half-written array.
func (b *FileBackend) write(path string, docs []Document) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrIO, path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrIO, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", ErrIO, path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %v", ErrIO, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %v", ErrIO, path, err)
	}
	return nil
}
