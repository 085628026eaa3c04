package translator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// ErrNoSource is returned when an entry directory has no rule file.
var ErrNoSource = errors.New("no rule source file")

const classicalSuffix = "_Classical"

// Entry is one named rule source in the upstream rule tree.
type Entry struct {
	Name string
	Dir  string
}

// Discover lists the entries below root. Every directory is an entry, except
// names in skip, and names in unwrap whose own subdirectories become entries
// instead. Entries are returned in name order.
func Discover(root string, skip, unwrap []string) ([]Entry, error) {
	dirs, err := readDirs(root)
	if err != nil {
		return nil, fmt.Errorf("read rule root: %w", err)
	}

	var entries []Entry
	for _, name := range dirs {
		if slices.Contains(skip, name) {
			continue
		}
		dir := filepath.Join(root, name)
		if !slices.Contains(unwrap, name) {
			entries = append(entries, Entry{Name: name, Dir: dir})
			continue
		}
		subs, err := readDirs(dir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		for _, sub := range subs {
			entries = append(entries, Entry{Name: sub, Dir: filepath.Join(dir, sub)})
		}
	}
	return entries, nil
}

func readDirs(dir string) ([]string, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, item := range items {
		if item.IsDir() {
			names = append(names, item.Name())
		}
	}
	return names, nil
}

// SourceFile returns the rule file of an entry, preferring the _Classical
// variant, which carries every rule type.
func SourceFile(e Entry) (string, error) {
	for _, name := range []string{e.Name + classicalSuffix + ".yaml", e.Name + ".yaml"} {
		path := filepath.Join(e.Dir, name)
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: %w", e.Dir, ErrNoSource)
}
