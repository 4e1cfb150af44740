// Package fsutil provides file system helpers for workflow import.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FindFilesByExtension recursively collects the files under root whose name
// ends with extension, sorted by path. Hidden directories are skipped.
func FindFilesByExtension(root, extension string) ([]string, error) {
	if extension == "" {
		return nil, fmt.Errorf("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// ResolvePath expands path into the files to read: a directory yields every
// file with extension beneath it, a file must carry the extension itself.
func ResolvePath(path, extension string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("path not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("error accessing path %s: %w", path, err)
	}
	if info.IsDir() {
		return FindFilesByExtension(path, extension)
	}
	if filepath.Ext(path) != extension {
		return nil, fmt.Errorf("specified file is not a %s file: %s", extension, path)
	}
	return []string{path}, nil
}
