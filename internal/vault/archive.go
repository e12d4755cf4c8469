package vault

import (
	"context"
	"os"
	"path/filepath"

	"chilivault/internal/clock"
	"chilivault/internal/eventbus"
	logx "chilivault/pkg/logx"
)

// ArchiveResult reports one archival pass.
type ArchiveResult struct {
	Folder string   `json:"folder"`
	Path   string   `json:"path"`
	Count  int      `json:"count"`
	Moved  []string `json:"files"`
}

// Allocator migrates staged files into a new timestamp-named storage
// directory. Same-second collisions share the directory.
type Allocator struct {
	temp  string
	store *Index
	clk   clock.Clock
	log   logx.Logger
	bus   eventbus.Bus
}

func NewAllocator(tempDir string, store *Index, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Allocator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Allocator{temp: tempDir, store: store, clk: clk, log: log, bus: bus}
}

// Archive moves every regular file from the staging area into a directory
// named after the current timestamp, then purges whatever is left so the
// staging area ends up empty but present.
//
// A single failed move is skipped (logged, omitted from the result); it does
// not abort the batch. There is no rollback: a crash mid-archive leaves a
// partially populated directory plus remaining staged files, and a retried
// archive within the same second simply continues into the same directory.
func (a *Allocator) Archive(ctx context.Context) (ArchiveResult, error) {
	_ = ctx

	folder := a.clk.Now().Format(DirLayout)
	dest := a.store.Path(folder)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return ArchiveResult{}, err
	}
	if err := os.MkdirAll(a.temp, 0o755); err != nil {
		return ArchiveResult{}, err
	}

	ents, err := os.ReadDir(a.temp)
	if err != nil {
		return ArchiveResult{}, err
	}

	moved := make([]string, 0, len(ents))
	for _, e := range ents {
		if !e.Type().IsRegular() {
			continue
		}
		src := filepath.Join(a.temp, e.Name())
		if err := os.Rename(src, filepath.Join(dest, e.Name())); err != nil {
			a.log.Warn("move failed, skipping file", logx.String("file", e.Name()), logx.Err(err))
			continue
		}
		moved = append(moved, e.Name())
	}

	a.purgeStaging()

	res := ArchiveResult{Folder: folder, Path: dest, Count: len(moved), Moved: moved}
	a.log.Info("batch archived", logx.String("folder", folder), logx.Int("files", len(moved)))
	if a.bus != nil {
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeArchiveCompleted, Data: res})
	}
	return res, nil
}

// purgeStaging removes any leftover staging entries (unmovable files,
// stray subdirectories) without removing the staging root itself.
func (a *Allocator) purgeStaging() {
	ents, err := os.ReadDir(a.temp)
	if err != nil {
		return
	}
	for _, e := range ents {
		p := filepath.Join(a.temp, e.Name())
		if e.IsDir() {
			if err := os.RemoveAll(p); err != nil {
				a.log.Warn("staging purge failed", logx.String("entry", e.Name()), logx.Err(err))
			}
			continue
		}
		if err := os.Remove(p); err != nil {
			a.log.Warn("staging purge failed", logx.String("entry", e.Name()), logx.Err(err))
		}
	}
}
