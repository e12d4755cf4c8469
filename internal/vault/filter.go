package vault

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"chilivault/internal/clock"
)

// PeriodKind discriminates the accepted filter shapes.
type PeriodKind int

const (
	// PeriodRecent selects the trailing 7 calendar days ending today.
	PeriodRecent PeriodKind = iota
	// PeriodDate selects a single calendar date.
	PeriodDate
	// PeriodMonth selects a whole year+month.
	PeriodMonth
	// PeriodWeek selects one week of a year+month.
	PeriodWeek
)

// PeriodSpec is a validated calendar period. Build it with NewPeriodSpec;
// the four shapes are mutually exclusive by construction.
type PeriodSpec struct {
	Kind  PeriodKind
	Date  time.Time // PeriodDate
	Year  int       // PeriodMonth, PeriodWeek
	Month int       // PeriodMonth, PeriodWeek
	Week  int       // PeriodWeek
}

// NewPeriodSpec validates the loosely typed year/month/week/date inputs as
// they arrive from a JSON body. Exactly these combinations are accepted:
//
//	nothing               -> PeriodRecent
//	date                  -> PeriodDate
//	year + month          -> PeriodMonth
//	year + month + week   -> PeriodWeek
//
// Anything else (week without month, date mixed with year, ...) is a
// ValidationError, raised before any filesystem access.
func NewPeriodSpec(year, month, week, date any) (PeriodSpec, error) {
	hasYear := year != nil
	hasMonth := month != nil
	hasWeek := week != nil
	hasDate := date != nil

	switch {
	case !hasYear && !hasMonth && !hasWeek && !hasDate:
		return PeriodSpec{Kind: PeriodRecent}, nil

	case hasDate && !hasYear && !hasMonth && !hasWeek:
		s, ok := date.(string)
		if !ok {
			return PeriodSpec{}, validationf("date must be a string in YYYY-MM-DD format")
		}
		d, err := time.Parse(DateLayout, strings.TrimSpace(s))
		if err != nil {
			return PeriodSpec{}, validationf("invalid date %q, use YYYY-MM-DD", s)
		}
		return PeriodSpec{Kind: PeriodDate, Date: d}, nil

	case hasYear && hasMonth && !hasWeek && !hasDate:
		y, err := coerceInt("year", year)
		if err != nil {
			return PeriodSpec{}, err
		}
		m, err := coerceInt("month", month)
		if err != nil {
			return PeriodSpec{}, err
		}
		return PeriodSpec{Kind: PeriodMonth, Year: y, Month: m}, nil

	case hasYear && hasMonth && hasWeek && !hasDate:
		y, err := coerceInt("year", year)
		if err != nil {
			return PeriodSpec{}, err
		}
		m, err := coerceInt("month", month)
		if err != nil {
			return PeriodSpec{}, err
		}
		w, err := coerceInt("week", week)
		if err != nil {
			return PeriodSpec{}, err
		}
		if w < 1 {
			return PeriodSpec{}, validationf("week must be >= 1, got %d", w)
		}
		return PeriodSpec{Kind: PeriodWeek, Year: y, Month: m, Week: w}, nil
	}

	return PeriodSpec{}, validationf("provide one of: year and month; year, month and week; or date alone")
}

func coerceInt(field string, v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, validationf("%s must be an integer, got %v", field, x)
		}
		return int(x), nil
	case json.Number:
		n, err := strconv.Atoi(x.String())
		if err != nil {
			return 0, validationf("%s must be an integer, got %q", field, x.String())
		}
		return n, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, validationf("%s must be an integer, got %q", field, x)
		}
		return n, nil
	default:
		return 0, validationf("%s must be an integer", field)
	}
}

// Filter matches storage directories against a calendar period.
type Filter struct {
	store *Index
	clk   clock.Clock
}

func NewFilter(store *Index, clk clock.Clock) *Filter {
	return &Filter{store: store, clk: clk}
}

// Match returns the directory names whose embedded date falls inside the
// period, in listing order. Matching is by date-substring containment, the
// same containment the naming convention guarantees for conforming names.
func (f *Filter) Match(spec PeriodSpec) ([]string, error) {
	dirs, err := f.store.Dirs()
	if err != nil {
		return nil, err
	}

	switch spec.Kind {
	case PeriodRecent:
		today := f.clk.Now()
		return matchAnyDate(dirs, datesFrom(today.AddDate(0, 0, -6), 7)), nil

	case PeriodDate:
		return matchSubstring(dirs, spec.Date.Format(DateLayout)), nil

	case PeriodMonth:
		return matchSubstring(dirs, fmt.Sprintf("%d-%02d", spec.Year, spec.Month)), nil

	case PeriodWeek:
		start := weekStart(spec.Year, spec.Month, spec.Week)
		return matchAnyDate(dirs, datesFrom(start, 7)), nil
	}
	return nil, validationf("unknown period kind %d", spec.Kind)
}

// weekStart finds the first Monday on or after the 1st of the month (the 1st
// itself when it is a Monday) and advances (week-1) whole weeks.
func weekStart(year, month, week int) time.Time {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	offset := (8 - int(first.Weekday())) % 7
	return first.AddDate(0, 0, offset+7*(week-1))
}

func datesFrom(start time.Time, days int) []string {
	out := make([]string, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, start.AddDate(0, 0, i).Format(DateLayout))
	}
	return out
}

func matchSubstring(dirs []string, sub string) []string {
	out := []string{}
	for _, d := range dirs {
		if strings.Contains(d, sub) {
			out = append(out, d)
		}
	}
	return out
}

func matchAnyDate(dirs []string, dates []string) []string {
	out := []string{}
	for _, d := range dirs {
		for _, date := range dates {
			if strings.Contains(d, date) {
				out = append(out, d)
				break
			}
		}
	}
	return out
}
