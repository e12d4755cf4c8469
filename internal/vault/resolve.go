package vault

import (
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTolerance is the retrieval tolerance window: how far past the
// target instant a matching archive may have been written. It absorbs the
// skew between a batch's nominal time and the moment it was archived.
const DefaultTolerance = 60 * time.Second

// Resolver locates a stored directory for an approximate target time and
// selects files inside it.
type Resolver struct {
	store *Index
}

func NewResolver(store *Index) *Resolver { return &Resolver{store: store} }

// FindByMinute returns the first directory (listing order) whose name starts
// with any minute prefix in [t, t+tolerance]. With the default 60s tolerance
// that is the target minute and the one after it, absorbing a batch that
// started just before the boundary and was archived just after.
//
// ok is false when nothing matches; that is an "unavailable" outcome, not an
// error.
func (r *Resolver) FindByMinute(t time.Time, tolerance time.Duration) (name string, ok bool, err error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	var prefixes []string
	end := t.Add(tolerance)
	for m := t.Truncate(time.Minute); !m.After(end); m = m.Add(time.Minute) {
		prefixes = append(prefixes, m.Format(minuteLayout))
	}

	dirs, err := r.store.Dirs()
	if err != nil {
		return "", false, err
	}
	for _, d := range dirs {
		for _, p := range prefixes {
			if strings.HasPrefix(d, p) {
				return d, true, nil
			}
		}
	}
	return "", false, nil
}

// FindByWindow returns the directory whose exact-second name is closest to t
// within [t, t+tolerance]: candidates are checked in ascending offset order
// and the first existing one wins. Nothing outside the window ever matches.
func (r *Resolver) FindByWindow(t time.Time, tolerance time.Duration) (name string, ok bool, err error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	dirs, err := r.store.Dirs()
	if err != nil {
		return "", false, err
	}
	existing := make(map[string]struct{}, len(dirs))
	for _, d := range dirs {
		existing[d] = struct{}{}
	}

	seconds := int(tolerance / time.Second)
	for off := 0; off <= seconds; off++ {
		cand := t.Add(time.Duration(off) * time.Second).Format(DirLayout)
		if _, hit := existing[cand]; hit {
			return cand, true, nil
		}
	}
	return "", false, nil
}

// SelectFile returns the first file (listing order) in dir whose name
// contains marker, case-insensitively. ok is false when no file matches or
// the directory cannot be listed; both are "unavailable" outcomes.
func (r *Resolver) SelectFile(dir, marker string) (name string, ok bool) {
	files, err := r.store.Files(dir)
	if err != nil {
		return "", false
	}
	marker = strings.ToLower(marker)
	for _, f := range files {
		if strings.Contains(strings.ToLower(f), marker) {
			return f, true
		}
	}
	return "", false
}

// ReadFile returns the raw bytes of a stored file plus a best-effort mime
// type (by extension, defaulting to image/jpeg). Content encoding for
// transport is the caller's concern.
func (r *Resolver) ReadFile(dir, name string) ([]byte, string, error) {
	b, err := os.ReadFile(filepath.Join(r.store.Path(dir), name))
	if err != nil {
		return nil, "", err
	}
	mt := mime.TypeByExtension(filepath.Ext(name))
	if mt == "" {
		mt = "image/jpeg"
	}
	return b, mt, nil
}
