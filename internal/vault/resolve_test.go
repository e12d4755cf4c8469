package vault

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mkStorageDirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.MkdirAll(filepath.Join(root, n), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFindByMinute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		dirs   []string
		target time.Time
		want   string
		wantOK bool
	}{
		{
			name:   "same minute",
			dirs:   []string{"2024-03-01_10-15-42"},
			target: time.Date(2024, 3, 1, 10, 15, 0, 0, time.Local),
			want:   "2024-03-01_10-15-42",
			wantOK: true,
		},
		{
			name:   "archived in the following minute",
			dirs:   []string{"2024-03-01_10-16-03"},
			target: time.Date(2024, 3, 1, 10, 15, 30, 0, time.Local),
			want:   "2024-03-01_10-16-03",
			wantOK: true,
		},
		{
			name:   "hour rollover",
			dirs:   []string{"2024-03-01_11-00-01"},
			target: time.Date(2024, 3, 1, 10, 59, 30, 0, time.Local),
			want:   "2024-03-01_11-00-01",
			wantOK: true,
		},
		{
			name:   "two minutes later is outside the window",
			dirs:   []string{"2024-03-01_10-17-00"},
			target: time.Date(2024, 3, 1, 10, 15, 0, 0, time.Local),
			wantOK: false,
		},
		{
			name:   "earlier minute never matches",
			dirs:   []string{"2024-03-01_10-14-59"},
			target: time.Date(2024, 3, 1, 10, 15, 0, 0, time.Local),
			wantOK: false,
		},
		{
			name:   "empty storage",
			target: time.Date(2024, 3, 1, 10, 15, 0, 0, time.Local),
			wantOK: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			mkStorageDirs(t, root, tc.dirs...)
			r := NewResolver(NewIndex(root))

			got, ok, err := r.FindByMinute(tc.target, DefaultTolerance)
			if err != nil {
				t.Fatalf("FindByMinute: %v", err)
			}
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("got (%q, %v), want (%q, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestFindByWindow(t *testing.T) {
	t.Parallel()

	target := time.Date(2024, 3, 1, 10, 15, 0, 0, time.Local)
	tests := []struct {
		name   string
		dirs   []string
		want   string
		wantOK bool
	}{
		{
			name:   "exact second",
			dirs:   []string{"2024-03-01_10-15-00"},
			want:   "2024-03-01_10-15-00",
			wantOK: true,
		},
		{
			name:   "window end is inclusive",
			dirs:   []string{"2024-03-01_10-16-00"},
			want:   "2024-03-01_10-16-00",
			wantOK: true,
		},
		{
			name:   "one second past the window",
			dirs:   []string{"2024-03-01_10-16-01"},
			wantOK: false,
		},
		{
			name:   "before the target",
			dirs:   []string{"2024-03-01_10-14-59"},
			wantOK: false,
		},
		{
			name:   "closest candidate wins",
			dirs:   []string{"2024-03-01_10-15-10", "2024-03-01_10-15-05"},
			want:   "2024-03-01_10-15-05",
			wantOK: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			mkStorageDirs(t, root, tc.dirs...)
			r := NewResolver(NewIndex(root))

			got, ok, err := r.FindByWindow(target, DefaultTolerance)
			if err != nil {
				t.Fatalf("FindByWindow: %v", err)
			}
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("got (%q, %v), want (%q, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestSelectFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	const dir = "2024-03-01_10-15-00"
	mkStorageDirs(t, root, dir)
	writeFile(t, filepath.Join(root, dir, "crop_01.jpg"))
	writeFile(t, filepath.Join(root, dir, "IMG_Full_01.jpg"))

	r := NewResolver(NewIndex(root))

	name, ok := r.SelectFile(dir, "full")
	if !ok || name != "IMG_Full_01.jpg" {
		t.Errorf("SelectFile(full) = (%q, %v), want IMG_Full_01.jpg", name, ok)
	}

	if _, ok := r.SelectFile(dir, "thumbnail"); ok {
		t.Error("SelectFile(thumbnail) matched, want no match")
	}
	if _, ok := r.SelectFile("2099-01-01_00-00-00", "full"); ok {
		t.Error("SelectFile on a missing directory matched")
	}
}

func TestReadFileMimeType(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	const dir = "2024-03-01_10-15-00"
	mkStorageDirs(t, root, dir)
	writeFile(t, filepath.Join(root, dir, "shot.png"))
	writeFile(t, filepath.Join(root, dir, "noext"))

	r := NewResolver(NewIndex(root))

	_, mt, err := r.ReadFile(dir, "shot.png")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if mt != "image/png" {
		t.Errorf("mime = %q, want image/png", mt)
	}

	_, mt, err = r.ReadFile(dir, "noext")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if mt != "image/jpeg" {
		t.Errorf("fallback mime = %q, want image/jpeg", mt)
	}

	if _, _, err := r.ReadFile(dir, "missing.jpg"); err == nil {
		t.Error("ReadFile on a missing file succeeded")
	}
}
