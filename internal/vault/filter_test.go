package vault

import (
	"reflect"
	"testing"
	"time"

	"chilivault/internal/clock"
)

func TestNewPeriodSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                    string
		year, month, week, date any
		want                    PeriodSpec
		wantErr                 bool
	}{
		{
			name: "nothing means trailing week",
			want: PeriodSpec{Kind: PeriodRecent},
		},
		{
			name: "date alone",
			date: "2024-03-05",
			want: PeriodSpec{Kind: PeriodDate, Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		},
		{
			name: "year and month", year: 2024, month: 3,
			want: PeriodSpec{Kind: PeriodMonth, Year: 2024, Month: 3},
		},
		{
			name: "year month week", year: 2024, month: 3, week: 2,
			want: PeriodSpec{Kind: PeriodWeek, Year: 2024, Month: 3, Week: 2},
		},
		{
			name: "json numbers coerce", year: float64(2024), month: float64(3),
			want: PeriodSpec{Kind: PeriodMonth, Year: 2024, Month: 3},
		},
		{
			name: "numeric strings coerce", year: "2024", month: "3",
			want: PeriodSpec{Kind: PeriodMonth, Year: 2024, Month: 3},
		},
		{name: "week without month", year: 2024, week: 2, wantErr: true},
		{name: "month without year", month: 3, wantErr: true},
		{name: "date mixed with year", year: 2024, date: "2024-03-05", wantErr: true},
		{name: "malformed date", date: "05-03-2024", wantErr: true},
		{name: "non-string date", date: 20240305, wantErr: true},
		{name: "fractional month", year: float64(2024), month: 3.5, wantErr: true},
		{name: "non-numeric string", year: "x", month: 3, wantErr: true},
		{name: "week below one", year: 2024, month: 3, week: 0, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NewPeriodSpec(tc.year, tc.month, tc.week, tc.date)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("got %+v, want error", got)
				}
				if !IsValidation(err) {
					t.Errorf("error %v is not a ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPeriodSpec: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestWeekStart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		year, month, week int
		want              string
	}{
		// January 2024 starts on a Monday.
		{"month starting on monday", 2024, 1, 1, "2024-01-01"},
		{"second week", 2024, 1, 2, "2024-01-08"},
		// February 2024 starts on a Thursday; week 1 begins on the first Monday.
		{"month starting mid-week", 2024, 2, 1, "2024-02-05"},
		{"mid-week month week two", 2024, 2, 2, "2024-02-12"},
		{"april 2024 monday start", 2024, 4, 1, "2024-04-01"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := weekStart(tc.year, tc.month, tc.week).Format(DateLayout)
			if got != tc.want {
				t.Errorf("weekStart(%d, %d, %d) = %s, want %s", tc.year, tc.month, tc.week, got, tc.want)
			}
		})
	}
}

func TestFilterMatch(t *testing.T) {
	t.Parallel()

	dirs := []string{
		"2024-02-28_09-00-00",
		"2024-03-04_10-00-00",
		"2024-03-05_11-30-00",
		"2024-03-10_23-59-59",
		"2024-03-11_00-00-01",
		"2024-12-03_08-00-00",
		"notadir_aa-bb-cc",
	}

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		spec PeriodSpec
		want []string
	}{
		{
			name: "trailing seven days",
			spec: PeriodSpec{Kind: PeriodRecent},
			want: []string{"2024-03-04_10-00-00", "2024-03-05_11-30-00", "2024-03-10_23-59-59"},
		},
		{
			name: "single date",
			spec: PeriodSpec{Kind: PeriodDate, Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
			want: []string{"2024-03-05_11-30-00"},
		},
		{
			name: "whole month zero padded",
			spec: PeriodSpec{Kind: PeriodMonth, Year: 2024, Month: 3},
			want: []string{"2024-03-04_10-00-00", "2024-03-05_11-30-00", "2024-03-10_23-59-59", "2024-03-11_00-00-01"},
		},
		{
			// Week 1 of March 2024 runs Monday the 4th through Sunday the 10th.
			name: "first week of month",
			spec: PeriodSpec{Kind: PeriodWeek, Year: 2024, Month: 3, Week: 1},
			want: []string{"2024-03-04_10-00-00", "2024-03-05_11-30-00", "2024-03-10_23-59-59"},
		},
		{
			name: "week two of month",
			spec: PeriodSpec{Kind: PeriodWeek, Year: 2024, Month: 3, Week: 2},
			want: []string{"2024-03-11_00-00-01"},
		},
		{
			name: "month with no data",
			spec: PeriodSpec{Kind: PeriodMonth, Year: 2023, Month: 7},
			want: []string{},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			mkStorageDirs(t, root, dirs...)
			f := NewFilter(NewIndex(root), clock.At(now))

			got, err := f.Match(tc.spec)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilterMatchEmptyRoot(t *testing.T) {
	t.Parallel()

	f := NewFilter(NewIndex(t.TempDir()), clock.At(time.Now()))
	got, err := f.Match(PeriodSpec{Kind: PeriodRecent})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}
