package schedule

import (
	"context"
	"sort"
	"strings"
	"sync"

	"chilivault/internal/clock"
	"chilivault/internal/eventbus"
	logx "chilivault/pkg/logx"
)

// Callback is an externally registered task body.
type Callback func(ctx context.Context) error

// Result reports one poll.
type Result struct {
	// Triggered holds the de-duplicated task names dispatched this poll.
	Triggered []string `json:"triggered"`
	// Suppressed holds task names that matched the current minute but were
	// already fired in it by an earlier poll.
	Suppressed []string `json:"suppressed,omitempty"`
	// Minute is the evaluated wall-clock minute, "HH:MM".
	Minute string `json:"time"`
	// NoConfig is set when no rule configuration exists.
	NoConfig bool `json:"no_config,omitempty"`
}

// Evaluator maps the current wall-clock minute against the rule set and
// dispatches matching tasks to registered callbacks.
//
// It is stateless across polls except for the per-task last-fired-minute
// cursor, which makes repeated polls within one matching minute idempotent.
// The cursor is in-memory only; a restart inside a matching minute may fire
// the task once more.
type Evaluator struct {
	src RuleSource
	clk clock.Clock
	log logx.Logger
	bus eventbus.Bus

	mu        sync.Mutex
	callbacks map[string]Callback
	lastFired map[string]string // task name -> "YYYY-MM-DD HH:MM"
}

func NewEvaluator(src RuleSource, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Evaluator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Evaluator{
		src:       src,
		clk:       clk,
		log:       log,
		bus:       bus,
		callbacks: map[string]Callback{},
		lastFired: map[string]string{},
	}
}

// Register installs the callback dispatched for a task name. Matching tasks
// with no registered callback are ignored at dispatch time.
func (e *Evaluator) Register(name string, cb Callback) {
	e.mu.Lock()
	e.callbacks[name] = cb
	e.mu.Unlock()
}

// Poll loads the rule set fresh, evaluates it against the current minute and
// dispatches the de-duplicated set of matching tasks.
func (e *Evaluator) Poll(ctx context.Context) (Result, error) {
	rs, ok, err := e.src.Load()
	if err != nil {
		return Result{}, err
	}
	now := e.clk.Now()
	minute := now.Format("15:04")
	if !ok {
		return Result{Minute: minute, NoConfig: true, Triggered: []string{}}, nil
	}

	weekday := now.Weekday().String()
	monthDay := now.Format("01-02")

	matched := map[string]struct{}{}
	for name, rule := range rs {
		if ruleMatches(rule, minute, weekday, monthDay) {
			matched[name] = struct{}{}
		}
	}

	cursor := now.Format("2006-01-02 15:04")
	res := Result{Minute: minute, Triggered: []string{}}
	for name := range matched {
		e.mu.Lock()
		already := e.lastFired[name] == cursor
		if !already {
			e.lastFired[name] = cursor
		}
		cb := e.callbacks[name]
		e.mu.Unlock()

		if already {
			res.Suppressed = append(res.Suppressed, name)
			continue
		}
		res.Triggered = append(res.Triggered, name)

		if cb == nil {
			e.log.Debug("no callback registered for task", logx.String("task", name))
			continue
		}
		if err := cb(ctx); err != nil {
			e.log.Warn("task failed", logx.String("task", name), logx.Err(err))
		} else {
			e.log.Info("task ok", logx.String("task", name))
		}
		if e.bus != nil {
			e.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskFired, Data: name})
		}
	}

	sort.Strings(res.Triggered)
	sort.Strings(res.Suppressed)
	return res, nil
}

// ruleMatches evaluates each rule field independently against the current
// minute. Entries that do not split into the documented shape are skipped.
func ruleMatches(r Rule, minute, weekday, monthDay string) bool {
	for _, t := range r.PerDay {
		if strings.TrimSpace(t) == minute {
			return true
		}
	}
	for _, entry := range r.PerWeek {
		parts := strings.Fields(entry)
		if len(parts) != 2 {
			continue
		}
		if parts[0] == weekday && parts[1] == minute {
			return true
		}
	}
	for _, entry := range r.PerYear {
		parts := strings.Fields(entry)
		if len(parts) != 2 {
			continue
		}
		if parts[0] == monthDay && parts[1] == minute {
			return true
		}
	}
	return false
}
