package vault

import (
	"os"
	"strings"
	"time"

	"chilivault/internal/clock"
	"chilivault/internal/eventbus"
	logx "chilivault/pkg/logx"
)

// DefaultMaxAgeDays is the retention threshold: directories older than this
// many whole days are deleted by Sweep.
const DefaultMaxAgeDays = 730

// Sweeper ages out storage directories by the date embedded in their names.
type Sweeper struct {
	store *Index
	clk   clock.Clock
	log   logx.Logger
	bus   eventbus.Bus
}

func NewSweeper(store *Index, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{store: store, clk: clk, log: log, bus: bus}
}

// Sweep deletes every storage directory whose embedded date (the text before
// the first underscore) is more than maxAgeDays whole days in the past and
// returns the deleted names. Unparseable names are skipped silently. A
// directory that fails to delete is skipped and excluded from the result;
// the sweep continues.
func (s *Sweeper) Sweep(maxAgeDays int) ([]string, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}
	dirs, err := s.store.Dirs()
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	deleted := []string{}
	for _, name := range dirs {
		dateStr := name
		if i := strings.IndexByte(name, '_'); i >= 0 {
			dateStr = name[:i]
		}
		d, err := time.Parse(DateLayout, dateStr)
		if err != nil {
			continue
		}
		days := int(today.Sub(d).Hours() / 24)
		if days <= maxAgeDays {
			continue
		}
		if err := os.RemoveAll(s.store.Path(name)); err != nil {
			s.log.Warn("retention delete failed, skipping", logx.String("folder", name), logx.Err(err))
			continue
		}
		deleted = append(deleted, name)
	}

	if len(deleted) > 0 {
		s.log.Info("retention sweep removed directories", logx.Int("count", len(deleted)))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeSweepCompleted, Data: deleted})
	}
	return deleted, nil
}

// DeleteByKeyword deletes every storage directory whose name contains the
// keyword and returns the deleted names. Individual failures are skipped.
func (s *Sweeper) DeleteByKeyword(keyword string) ([]string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, validationf("keyword must not be empty")
	}
	dirs, err := s.store.Dirs()
	if err != nil {
		return nil, err
	}

	deleted := []string{}
	for _, name := range dirs {
		if !strings.Contains(name, keyword) {
			continue
		}
		if err := os.RemoveAll(s.store.Path(name)); err != nil {
			s.log.Warn("keyword delete failed, skipping", logx.String("folder", name), logx.Err(err))
			continue
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}
