// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

// startWatcher runs w until the test ends.
func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() error: %v", err)
		}
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var (
		mu      sync.Mutex
		calls   int
		changed []string
	)
	done := make(chan struct{}, 1)

	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, files []string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			changed = append(changed, files...)
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	startWatcher(t, w)

	for _, name := range []string{"main.py", "ocr.py", "db.py"} {
		writeFile(t, filepath.Join(dir, name), "pass\n")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
	for _, want := range []string{"main.py", "ocr.py", "db.py"} {
		if !slices.Contains(changed, want) {
			t.Errorf("changed = %v, missing %s", changed, want)
		}
	}
}

func TestWatcher_IgnoresAndPatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fired := make(chan []string, 10)
	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 50 * time.Millisecond,
		Patterns: []string{"**/*.py"},
		Ignore:   []string{"tmp/**"},
		OnChange: func(_ context.Context, files []string) error {
			fired <- files
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "notes.txt"), "x")
	writeFile(t, filepath.Join(dir, "__pycache__", "main.cpython-311.pyc"), "x")
	writeFile(t, filepath.Join(dir, ".env"), "DATABASE_PASSWORD=x")

	select {
	case files := <-fired:
		t.Fatalf("callback fired for ignored files: %v", files)
	case <-time.After(300 * time.Millisecond):
	}

	writeFile(t, filepath.Join(dir, "main.py"), "print()\n")
	select {
	case files := <-fired:
		if !slices.Equal(files, []string{"main.py"}) {
			t.Errorf("changed = %v, want [main.py]", files)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fired := make(chan []string, 10)
	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 50 * time.Millisecond,
		Patterns: []string{"**/*.py"},
		OnChange: func(_ context.Context, files []string) error {
			fired <- files
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	startWatcher(t, w)

	if err := os.Mkdir(filepath.Join(dir, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "pkg", "util.py"), "pass\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case files := <-fired:
			if slices.Contains(files, "pkg/util.py") {
				return
			}
		case <-deadline:
			t.Fatal("change in a new directory was not seen")
		}
	}
}

func TestWatcher_CallbackErrorKeepsWatching(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fired := make(chan struct{}, 10)
	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 30 * time.Millisecond,
		OnChange: func(context.Context, []string) error {
			fired <- struct{}{}
			return errors.New("restart failed")
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	startWatcher(t, w)

	for i := range 2 {
		writeFile(t, filepath.Join(dir, "main.py"), "v"+string(rune('0'+i)))
		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatalf("callback %d did not fire", i+1)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestWatcher_RunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("first Run() = %v, want nil on cancelled context", err)
	}
	if err := w.Run(ctx); err == nil {
		t.Error("second Run() should fail")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantCount int
	}{
		{"zero value", Config{}, 0},
		{"valid", Config{Patterns: []string{"**/*.py"}, Ignore: []string{"data/**"}, BaseDir: "/src"}, 0},
		{"empty pattern", Config{Patterns: []string{""}}, 1},
		{"bad syntax", Config{Patterns: []string{"[abc"}}, 1},
		{"blank base dir", Config{BaseDir: "  "}, 1},
		{"everything wrong", Config{Patterns: []string{"", "[x"}, Ignore: []string{" "}, BaseDir: " "}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantCount == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			var cfgErr *InvalidConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *InvalidConfigError, got %v", err)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Error("error should wrap ErrInvalidConfig")
			}
			if len(cfgErr.FieldErrors) != tt.wantCount {
				t.Errorf("FieldErrors = %v, want %d", cfgErr.FieldErrors, tt.wantCount)
			}
		})
	}

	if _, err := New(Config{Patterns: []string{"[x"}}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New() with a bad pattern = %v", err)
	}
}

func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		ignored bool
	}{
		{".git/HEAD", true},
		{"__pycache__/main.cpython-311.pyc", true},
		{"pkg/util.pyc", true},
		{".venv/lib/site.py", true},
		{".env", true},
		{"main.py~", true},
		{"main.py", false},
		{"requirements.txt", false},
		{"env.example", false},
	}
	ignores := DefaultIgnores()
	for _, tt := range tests {
		if got := matchAny(ignores, tt.path); got != tt.ignored {
			t.Errorf("ignored(%q) = %v, want %v", tt.path, got, tt.ignored)
		}
	}

	ignores[0] = "changed"
	if DefaultIgnores()[0] == "changed" {
		t.Error("DefaultIgnores() must return a copy")
	}
}
