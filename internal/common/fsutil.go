package common

import (
	"io/fs"
	"os"
	"path/filepath"
)

// RemoveAll removes path recursively. If the first attempt fails, every
// entry under path is made owner-writable and the removal is retried once.
// A missing path is not an error.
func RemoveAll(path string) error {
	if err := os.RemoveAll(path); err == nil {
		return nil
	}

	filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		mode := fs.FileMode(0644)
		if d.IsDir() {
			mode = 0755
		}
		os.Chmod(p, mode)
		return nil
	})
	return os.RemoveAll(path)
}

// EnsureDirs creates each directory if missing.
func EnsureDirs(dirs ...string) error {
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}
