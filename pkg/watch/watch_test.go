package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(_ context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func start(t *testing.T, dir string, rec *recorder) {
	t.Helper()
	w, err := New(dir, rec.handle, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNewRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "x.kicad_sch")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err := New(f, func(context.Context, string) {})
	assert.Error(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing"), func(context.Context, string) {})
	assert.Error(t, err)
}

func TestDebouncedChange(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, dir, rec)

	path := filepath.Join(dir, "board.kicad_sch")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("(kicad_sch)"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(rec.seen()) > 0 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"board.kicad_sch"}, rec.seen())
}

func TestNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, dir, rec)

	sub := filepath.Join(dir, "power")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// the directory is added asynchronously
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "psu.kicad_pcb"), []byte("(kicad_pcb)"), 0o644))

	require.Eventually(t, func() bool {
		for _, p := range rec.seen() {
			if p == "psu.kicad_pcb" {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func TestHiddenDirectoriesIgnored(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, ".git")
	require.NoError(t, os.Mkdir(hidden, 0o755))
	rec := &recorder{}
	start(t, dir, rec)

	require.NoError(t, os.WriteFile(filepath.Join(hidden, "old.kicad_sch"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.kicad_sch"), nil, 0o644))

	require.Eventually(t, func() bool { return len(rec.seen()) > 0 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"top.kicad_sch"}, rec.seen())
}
