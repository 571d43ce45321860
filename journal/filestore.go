package journal

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const fileExt = ".json"

// FileStore keeps one JSON document per entry under root.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid journal id %q", id)
	}
	return filepath.Join(s.root, id+fileExt), nil
}

func (s *FileStore) Save(_ context.Context, entry Entry) error {
	path, err := s.path(entry.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, entry.ID, err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, entry.ID, err)
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, entry.ID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, entry.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, entry.ID, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, entry.ID, err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, id string) (Entry, error) {
	path, err := s.path(id)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Entry{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, id, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, id, err)
	}
	return entry, nil
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	type finished struct {
		id    string
		entry Entry
	}
	var found []finished
	for _, d := range dirEntries {
		name := d.Name()
		if d.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		entry, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		found = append(found, finished{id: id, entry: entry})
	}

	slices.SortFunc(found, func(a, b finished) int {
		if c := a.entry.FinishedAt.Compare(b.entry.FinishedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	ids := make([]string, len(found))
	for i, f := range found {
		ids[i] = f.id
	}
	return ids, nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete failed: %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
