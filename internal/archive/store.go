package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store loads, merges and atomically rewrites archive files.
type Store struct {
	// Root is prepended to relative paths. Empty means the working directory.
	Root string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Root: dir}
}

// Path resolves an archive path against the store root.
func (s *Store) Path(name string) string {
	if s.Root == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.Root, name)
}

// Load reads a whole archive. A missing file returns (nil, nil).
func (s *Store) Load(name string) (*Table, error) {
	path := s.Path(name)
	codec, err := CodecForPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	t, err := codec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// Save replaces an archive in full. The table is written to a temporary file
// in the same directory, synced, then renamed over the target.
func (s *Store) Save(name string, t *Table) error {
	path := s.Path(name)
	codec, err := CodecForPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file failed: %w", err)
	}
	if err := codec.Encode(f, t); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync failed: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close failed: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename failed: %w", err)
	}
	return nil
}

// Merge folds batch into the archive at name and rewrites it. The prior file
// is left untouched unless the merged table was built successfully.
func (s *Store) Merge(name string, batch *Table, key Key) (MergeResult, error) {
	existing, err := s.Load(name)
	if err != nil {
		return MergeResult{Fetched: batch.Len()}, err
	}
	merged, res, err := MergeTables(existing, batch, key)
	if err != nil {
		return res, err
	}
	if err := s.Save(name, merged); err != nil {
		return res, err
	}
	return res, nil
}
