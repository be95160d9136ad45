package filecopier

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testDirs creates a source/destination pair under a temp root.
func testDirs(t *testing.T) (source, destination string) {
	t.Helper()
	root := t.TempDir()
	source = filepath.Join(root, "source")
	destination = filepath.Join(root, "destination")
	if err := os.MkdirAll(source, 0755); err != nil {
		t.Fatalf("Failed to create source dir: %v", err)
	}
	if err := os.MkdirAll(destination, 0755); err != nil {
		t.Fatalf("Failed to create destination dir: %v", err)
	}
	return source, destination
}

func writeDummyFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, randomContent(size), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func randomContent(size int) []byte {
	charset := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, size)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return b
}

// waitFor polls cond until it returns true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// recordingReporter counts reporter callbacks for assertions.
type recordingReporter struct {
	mu       sync.Mutex
	started  []string
	done     []string
	failed   []string
	progress int
}

func (r *recordingReporter) CopyStarted(name string, total int64) {
	r.mu.Lock()
	r.started = append(r.started, name)
	r.mu.Unlock()
}

func (r *recordingReporter) CopyProgress(name string, copied, total int64) {
	r.mu.Lock()
	r.progress++
	r.mu.Unlock()
}

func (r *recordingReporter) CopyDone(name, src, dst string, copied int64) {
	r.mu.Lock()
	r.done = append(r.done, name)
	r.mu.Unlock()
}

func (r *recordingReporter) CopyFailed(name string, err error) {
	r.mu.Lock()
	r.failed = append(r.failed, name)
	r.mu.Unlock()
}

func (r *recordingReporter) counts() (started, done, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started), len(r.done), len(r.failed)
}

// newTestHandler builds a handler with the settle delays shrunk so tests run
// in milliseconds instead of seconds.
func newTestHandler(source, destination string, rep Reporter) *Handler {
	h := NewHandler(source, destination, rep, zerolog.Nop())
	h.Grace = 20 * time.Millisecond
	h.Stability = NewStabilityChecker(20 * time.Millisecond)
	return h
}
