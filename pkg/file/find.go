package file

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindByPrefix returns files directly under dir whose names start with prefix
// and end with suffix, sorted by name. A missing dir yields no matches.
func FindByPrefix(dir, prefix, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
			matches = append(matches, filepath.Join(dir, name))
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveMatching deletes every file under dir selected by FindByPrefix and
// returns the removed paths.
func RemoveMatching(dir, prefix, suffix string) ([]string, error) {
	matches, err := FindByPrefix(dir, prefix, suffix)
	if err != nil {
		return nil, err
	}

	var removed []string
	var errs []error
	for _, path := range matches {
		if err := RemoveIfExists(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}
