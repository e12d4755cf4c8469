package vault

import (
	"reflect"
	"testing"
	"time"

	"chilivault/internal/clock"
	logx "chilivault/pkg/logx"
)

func TestSweep(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	dayName := func(daysAgo int) string {
		return now.AddDate(0, 0, -daysAgo).Format(DateLayout) + "_08-00-00"
	}

	root := t.TempDir()
	old731 := dayName(731)
	old732 := dayName(732)
	edge730 := dayName(730)
	young := dayName(10)
	mkStorageDirs(t, root, old731, old732, edge730, young, "scratch")

	s := NewSweeper(NewIndex(root), clock.At(now), logx.Nop(), nil)
	deleted, err := s.Sweep(730)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	wantDeleted := map[string]bool{old731: true, old732: true}
	if len(deleted) != len(wantDeleted) {
		t.Fatalf("deleted %v, want exactly %v", deleted, wantDeleted)
	}
	for _, name := range deleted {
		if !wantDeleted[name] {
			t.Errorf("deleted %q unexpectedly", name)
		}
	}

	ix := NewIndex(root)
	for _, name := range []string{edge730, young, "scratch"} {
		if !ix.Has(name) {
			t.Errorf("%q was removed, want kept", name)
		}
	}
	for _, name := range []string{old731, old732} {
		if ix.Has(name) {
			t.Errorf("%q still present, want removed", name)
		}
	}
}

func TestSweepDefaultThreshold(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	root := t.TempDir()
	old := now.AddDate(0, 0, -(DefaultMaxAgeDays + 1)).Format(DateLayout) + "_00-00-00"
	mkStorageDirs(t, root, old)

	s := NewSweeper(NewIndex(root), clock.At(now), logx.Nop(), nil)
	deleted, err := s.Sweep(0)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !reflect.DeepEqual(deleted, []string{old}) {
		t.Errorf("deleted %v, want [%s]", deleted, old)
	}
}

func TestDeleteByKeyword(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mkStorageDirs(t, root,
		"2024-03-01_10-00-00",
		"2024-03-01_11-00-00",
		"2024-04-01_10-00-00",
	)

	s := NewSweeper(NewIndex(root), clock.At(time.Now()), logx.Nop(), nil)

	deleted, err := s.DeleteByKeyword("2024-03-01")
	if err != nil {
		t.Fatalf("DeleteByKeyword: %v", err)
	}
	want := []string{"2024-03-01_10-00-00", "2024-03-01_11-00-00"}
	if !reflect.DeepEqual(deleted, want) {
		t.Errorf("deleted %v, want %v", deleted, want)
	}
	if !NewIndex(root).Has("2024-04-01_10-00-00") {
		t.Error("unmatched directory was removed")
	}

	if _, err := s.DeleteByKeyword("  "); err == nil || !IsValidation(err) {
		t.Errorf("blank keyword: err = %v, want validation error", err)
	}
}
