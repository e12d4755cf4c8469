package schedule

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// RuleSource loads and persists the rule set. Load is called on every poll;
// ok reports whether a configuration exists at all (absent configuration is
// a normal outcome, not an error).
type RuleSource interface {
	Load() (rs RuleSet, ok bool, err error)
	Save(rs RuleSet) error
}

// FileSource keeps the rule set as a JSON object in a single file, the
// externally updatable configuration described by the service contract.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

func (f *FileSource) Load() (RuleSet, bool, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var rs RuleSet
	if err := json.Unmarshal(b, &rs); err != nil {
		return nil, false, err
	}
	return rs, true, nil
}

// Save writes atomically (tmp + rename) so a poll never observes a
// half-written rule file.
func (f *FileSource) Save(rs RuleSet) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// MemorySource is an in-memory RuleSource for tests and embedded use.
type MemorySource struct {
	mu      sync.Mutex
	rs      RuleSet
	present bool
}

func NewMemorySource(rs RuleSet) *MemorySource {
	return &MemorySource{rs: rs, present: rs != nil}
}

func (m *MemorySource) Load() (RuleSet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		return nil, false, nil
	}
	cp := make(RuleSet, len(m.rs))
	for k, v := range m.rs {
		cp[k] = v
	}
	return cp, true, nil
}

func (m *MemorySource) Save(rs RuleSet) error {
	m.mu.Lock()
	m.rs = rs
	m.present = true
	m.mu.Unlock()
	return nil
}
