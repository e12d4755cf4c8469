package vault

import (
	"os"
	"path/filepath"
	"time"
)

// Naming convention for storage directories and their date component.
const (
	DirLayout    = "2006-01-02_15-04-05"
	DateLayout   = "2006-01-02"
	minuteLayout = "2006-01-02_15-04"
)

// Entry is a storage directory whose name parsed under the naming convention.
type Entry struct {
	Name string
	At   time.Time
}

// Index enumerates the immediate subdirectories of a storage root.
// It is a plain filesystem listing; nothing is cached between calls.
type Index struct {
	root string
}

func NewIndex(root string) *Index { return &Index{root: root} }

func (ix *Index) Root() string { return ix.root }

// Path returns the absolute path of a named storage directory.
func (ix *Index) Path(name string) string { return filepath.Join(ix.root, name) }

// Dirs returns the names of all immediate subdirectories in listing order,
// including ones that do not conform to the naming convention.
// A missing root yields an empty result, not an error.
func (ix *Index) Dirs() ([]string, error) {
	ents, err := os.ReadDir(ix.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Entries returns the parseable storage directories in listing order.
func (ix *Index) Entries() ([]Entry, error) {
	dirs, err := ix.Dirs()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(dirs))
	for _, name := range dirs {
		at, ok := ParseDirName(name)
		if !ok {
			continue
		}
		out = append(out, Entry{Name: name, At: at})
	}
	return out, nil
}

// Has reports whether a storage directory with the exact name exists.
func (ix *Index) Has(name string) bool {
	fi, err := os.Stat(ix.Path(name))
	return err == nil && fi.IsDir()
}

// Files returns the regular file names inside a storage directory, in
// listing order.
func (ix *Index) Files(dir string) ([]string, error) {
	ents, err := os.ReadDir(ix.Path(dir))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ParseDirName parses a storage directory name. ok is false for names that
// do not conform to the convention.
func ParseDirName(name string) (time.Time, bool) {
	t, err := time.ParseInLocation(DirLayout, name, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
